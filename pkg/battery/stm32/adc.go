// Package stm32 drives STM32F4 ADC1 through its registers for single-shot battery conversions.
// Register handles are injected so the driver can be bound to runtime/volatile on the MCU
// and to plain memory in tests.
package stm32

import "github.com/itohio/batmon/pkg/battery"

// Register is the subset of runtime/volatile.Register32 the driver uses.
type Register interface {
	Get() uint32
	Set(value uint32)
	SetBits(value uint32)
	ClearBits(value uint32)
	HasBits(value uint32) bool
	ReplaceBits(value uint32, mask uint32, pos uint8)
}

// Register16 is the subset of runtime/volatile.Register16 used for the calibration word.
type Register16 interface {
	Get() uint16
}

// STM32F4 memory map (RM0090)
const (
	RCCBase       = 0x40023800
	GPIOABase     = 0x40020000
	ADC1Base      = 0x40012000
	ADCCommonBase = 0x40012300
	VrefIntCal    = 0x1FFF7A2A // VREFINT_CAL, taken at 3.3 V and 30 °C

	RCCAHB1ENR = RCCBase + 0x30
	RCCAPB2ENR = RCCBase + 0x44

	GPIOAMODER   = GPIOABase + 0x00
	GPIOAOSPEEDR = GPIOABase + 0x08
	GPIOAPUPDR   = GPIOABase + 0x0C

	ADCSR    = ADC1Base + 0x00
	ADCCR1   = ADC1Base + 0x04
	ADCCR2   = ADC1Base + 0x08
	ADCSMPR1 = ADC1Base + 0x0C
	ADCSMPR2 = ADC1Base + 0x10
	ADCSQR1  = ADC1Base + 0x2C
	ADCSQR3  = ADC1Base + 0x34
	ADCDR    = ADC1Base + 0x4C
	ADCCCR   = ADCCommonBase + 0x04
)

// Register bits
const (
	RCCGPIOAEN = 1 << 0
	RCCADC1EN  = 1 << 8

	SREOC = 1 << 1

	CR1ResPos = 24
	CR1ResMsk = 0x3

	CR2ADON    = 1 << 0
	CR2CONT    = 1 << 1
	CR2EOCS    = 1 << 10
	CR2ALIGN   = 1 << 11
	CR2SWSTART = 1 << 30

	SQR1LPos = 20
	SQR1LMsk = 0xF
	SQR3Msk  = 0x1F

	CCRADCPREPos = 16
	CCRADCPREMsk = 0x3
	CCRTSVREFE   = 1 << 23

	// PCLK2/4 keeps the converter clock under 36 MHz at the default 168 MHz core clock
	adcPrescalerDiv4 = 1
)

// Registers holds the peripheral registers the driver touches.
type Registers struct {
	AHB1ENR, APB2ENR      Register // RCC
	MODER, OSPEEDR, PUPDR Register // GPIOA
	SR, CR1, CR2          Register // ADC1
	SMPR1, SMPR2          Register
	SQR1, SQR3            Register
	DR                    Register
	CCR                   Register // ADC common
	Calibration           Register16
}

// ADC implements battery.ADC and battery.CalibrationSource on ADC1.
type ADC struct {
	r Registers
}

var (
	_ battery.ADC               = (*ADC)(nil)
	_ battery.CalibrationSource = (*ADC)(nil)
)

// New binds the driver to regs.
func New(regs Registers) *ADC {
	return &ADC{r: regs}
}

// Configure applies cfg. ADON is cleared while the setup is written.
func (a *ADC) Configure(cfg battery.ADCConfig) {
	a.r.AHB1ENR.SetBits(RCCGPIOAEN)
	a.r.APB2ENR.SetBits(RCCADC1EN)

	a.r.CR2.ClearBits(CR2ADON)

	a.r.CCR.ReplaceBits(adcPrescalerDiv4, CCRADCPREMsk, CCRADCPREPos)
	if cfg.VrefIntEnable {
		a.r.CCR.SetBits(CCRTSVREFE)
	} else {
		a.r.CCR.ClearBits(CCRTSVREFE)
	}

	a.r.CR1.ReplaceBits(resolutionBits(cfg.Resolution), CR1ResMsk, CR1ResPos)

	if cfg.Align == battery.AlignLeft {
		a.r.CR2.SetBits(CR2ALIGN)
	} else {
		a.r.CR2.ClearBits(CR2ALIGN)
	}
	if cfg.Continuous {
		a.r.CR2.SetBits(CR2CONT)
	} else {
		a.r.CR2.ClearBits(CR2CONT)
	}
	// EOC after each regular conversion rather than after the sequence.
	a.r.CR2.SetBits(CR2EOCS)

	length := uint32(cfg.SequenceLength)
	if length == 0 {
		length = 1
	}
	a.r.SQR1.ReplaceBits(length-1, SQR1LMsk, SQR1LPos)

	for ch, st := range cfg.SampleTimes {
		a.setSampleTime(ch, st)
	}

	// ADC123_IN0..7 are PA0..PA7: analog mode, very high speed, no pull.
	for _, ch := range cfg.AnalogPins {
		if ch >= 8 {
			continue
		}
		pos := uint8(ch) * 2
		a.r.MODER.ReplaceBits(0x3, 0x3, pos)
		a.r.OSPEEDR.ReplaceBits(0x3, 0x3, pos)
		a.r.PUPDR.ReplaceBits(0, 0x3, pos)
	}
}

func (a *ADC) Enable() {
	a.r.CR2.SetBits(CR2ADON)
}

func (a *ADC) Disable() {
	a.r.CR2.ClearBits(CR2ADON)
}

// StartConversion clears any EOC left over from an abandoned conversion, then triggers ch.
func (a *ADC) StartConversion(ch battery.Channel) {
	a.r.SR.ClearBits(SREOC)
	a.r.SQR3.ReplaceBits(uint32(ch), SQR3Msk, 0)
	a.r.CR2.SetBits(CR2SWSTART)
}

func (a *ADC) Done() bool {
	return a.r.SR.HasBits(SREOC)
}

// ReadResult reads DR, which also clears EOC.
func (a *ADC) ReadResult() uint16 {
	return uint16(a.r.DR.Get())
}

// VrefIntCal reads the factory calibration word from system memory.
func (a *ADC) VrefIntCal() uint16 {
	return a.r.Calibration.Get()
}

// setSampleTime writes the 3-bit SMPx field for ch: SMPR2 holds channels 0..9, SMPR1 10..18.
func (a *ADC) setSampleTime(ch battery.Channel, st battery.SampleTime) {
	if ch < 10 {
		a.r.SMPR2.ReplaceBits(uint32(st), 0x7, uint8(ch)*3)
		return
	}
	a.r.SMPR1.ReplaceBits(uint32(st), 0x7, (uint8(ch)-10)*3)
}

// resolutionBits encodes CR1.RES: 12, 10, 8 and 6 bits map to 0..3.
func resolutionBits(bits uint8) uint32 {
	switch bits {
	case 10:
		return 1
	case 8:
		return 2
	case 6:
		return 3
	default:
		return 0
	}
}
