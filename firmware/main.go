//go:build stm32f4

//go:generate tinygo flash -target=feather-stm32f405

package main

import (
	"machine"
	"time"

	"github.com/itohio/batmon/pkg/battery"
	"github.com/itohio/batmon/pkg/report"
	"tinygo.org/x/drivers"
)

var (
	uart = machine.DefaultUART

	sensor *battery.Sensor

	lastEvaluation time.Time

	// Serial buffer for reading command lines
	serialBuffer [16]byte
	serialPos    int
	measureReq   bool

	// Output line buffer, reused for every report
	line [64]byte
)

func main() {
	PIN_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_LED.Low()

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	params := battery.DefaultParams()
	adc := newADC()
	if err := battery.Configure(adc, params); err != nil {
		fail(err)
	}
	sampler, err := battery.NewSampler(adc, adc, battery.SystemClock{}, params)
	if err != nil {
		fail(err)
	}
	sensor = battery.NewSensor(battery.NewEvaluator(sampler, params))

	// First report right away so the host has a status after reset
	evaluate(time.Now())

	for {
		now := time.Now()

		processSerial()

		if measureReq || now.Sub(lastEvaluation) >= EVALUATION_INTERVAL {
			measureReq = false
			evaluate(now)
		}

		time.Sleep(time.Millisecond)
	}
}

// evaluate runs one evaluation, drives the LED and prints the report line.
func evaluate(now time.Time) {
	lastEvaluation = now

	err := sensor.Update(drivers.Voltage)
	rep := report.FromReading(now, sensor.Reading(), err)

	// Unknown leaves the LED as it was; only a valid reading may change it.
	switch rep.Status {
	case battery.StatusLow:
		PIN_LED.High()
	case battery.StatusOK:
		PIN_LED.Low()
	}

	out := rep.Append(line[:0])
	out = append(out, '\n')
	uart.Write(out)
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos == 1 && serialBuffer[0] == report.MeasureCommand[0] {
				measureReq = true
			}
			serialPos = 0
			continue
		}

		if data == ' ' || data == '\t' {
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		}
	}
}

// fail blinks the LED forever; the configuration is compiled in, so there is nothing to recover.
func fail(err error) {
	for {
		println("battery setup failed:", err.Error())
		PIN_LED.High()
		time.Sleep(100 * time.Millisecond)
		PIN_LED.Low()
		time.Sleep(900 * time.Millisecond)
	}
}
