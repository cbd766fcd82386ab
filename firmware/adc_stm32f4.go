//go:build stm32f4

package main

import (
	"runtime/volatile"
	"unsafe"

	"github.com/itohio/batmon/pkg/battery/stm32"
)

func reg32(addr uintptr) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(addr))
}

// newADC binds the ADC1 driver to the memory mapped registers.
func newADC() *stm32.ADC {
	return stm32.New(stm32.Registers{
		AHB1ENR:     reg32(stm32.RCCAHB1ENR),
		APB2ENR:     reg32(stm32.RCCAPB2ENR),
		MODER:       reg32(stm32.GPIOAMODER),
		OSPEEDR:     reg32(stm32.GPIOAOSPEEDR),
		PUPDR:       reg32(stm32.GPIOAPUPDR),
		SR:          reg32(stm32.ADCSR),
		CR1:         reg32(stm32.ADCCR1),
		CR2:         reg32(stm32.ADCCR2),
		SMPR1:       reg32(stm32.ADCSMPR1),
		SMPR2:       reg32(stm32.ADCSMPR2),
		SQR1:        reg32(stm32.ADCSQR1),
		SQR3:        reg32(stm32.ADCSQR3),
		DR:          reg32(stm32.ADCDR),
		CCR:         reg32(stm32.ADCCCR),
		Calibration: (*volatile.Register16)(unsafe.Pointer(uintptr(stm32.VrefIntCal))),
	})
}
