package battery

import (
	"context"
	"fmt"
	"time"
)

// Channel identifies an ADC input channel on the multiplexer.
type Channel uint8

const (
	// ChannelBattery is the battery-sense input (PA3 / ADC1_IN3 on the Feather STM32F405).
	ChannelBattery Channel = 3
	// ChannelVrefInt is the internal reference voltage channel.
	ChannelVrefInt Channel = 17
)

func (c Channel) String() string {
	if c == ChannelVrefInt {
		return "vrefint"
	}
	return fmt.Sprintf("in%d", uint8(c))
}

// Alignment selects how a conversion result is placed in the data register.
type Alignment uint8

const (
	AlignRight Alignment = iota
	AlignLeft
)

// SampleTime is the per-channel sampling time selector (SMPx field encoding).
type SampleTime uint8

const (
	SampleTime3Cycles SampleTime = iota
	SampleTime15Cycles
	SampleTime28Cycles
	SampleTime56Cycles
	SampleTime84Cycles
	SampleTime112Cycles
	SampleTime144Cycles
	SampleTime480Cycles

	// SampleTimeMax is the longest sampling time the converter supports.
	SampleTimeMax = SampleTime480Cycles
)

var sampleTimeCycles = [...]uint32{3, 15, 28, 56, 84, 112, 144, 480}

// Cycles returns the number of ADC clock cycles spent sampling.
func (s SampleTime) Cycles() uint32 {
	if int(s) >= len(sampleTimeCycles) {
		return sampleTimeCycles[len(sampleTimeCycles)-1]
	}
	return sampleTimeCycles[s]
}

// ADCConfig is the complete converter setup required for single-shot battery conversions.
type ADCConfig struct {
	Resolution     uint8 // bits
	Align          Alignment
	Continuous     bool
	SequenceLength uint8
	VrefIntEnable  bool

	// AnalogPins lists the channels whose pins must be switched to analog mode.
	AnalogPins  []Channel
	SampleTimes map[Channel]SampleTime
}

// ConversionTime returns the time one conversion of ch takes at the given ADC clock.
// A successive-approximation conversion needs one cycle per bit on top of sampling.
func (c ADCConfig) ConversionTime(ch Channel, adcClockHz uint32) time.Duration {
	if adcClockHz == 0 {
		return 0
	}
	cycles := c.SampleTimes[ch].Cycles() + uint32(c.Resolution)
	return time.Duration(uint64(cycles) * uint64(time.Second) / uint64(adcClockHz))
}

// ADC is the capability the sampler needs from one converter instance.
// Implementations are not required to be safe for concurrent use.
type ADC interface {
	// Configure applies cfg. Must be safe to call again while no conversion is running.
	Configure(cfg ADCConfig)
	Enable()
	Disable()
	// StartConversion selects ch as the only sequence entry and triggers a conversion.
	StartConversion(ch Channel)
	// Done reports the end-of-conversion condition.
	Done() bool
	// ReadResult returns the data register. Reading clears the end-of-conversion condition.
	ReadResult() uint16
}

// CalibrationSource provides the factory-programmed Vrefint calibration word.
type CalibrationSource interface {
	VrefIntCal() uint16
}

// StaticCalibration is a CalibrationSource with a fixed value.
type StaticCalibration uint16

func (c StaticCalibration) VrefIntCal() uint16 { return uint16(c) }

// Clock is the time source for conversion deadlines.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// WaitForCompletion polls adc until the end-of-conversion condition is observed,
// the timeout measured on clock elapses, or ctx is done.
func WaitForCompletion(ctx context.Context, adc ADC, clock Clock, timeout time.Duration) error {
	deadline := clock.Now().Add(timeout)
	for !adc.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !clock.Now().Before(deadline) {
			// The flag may have been raised between the last poll and the deadline check.
			if adc.Done() {
				return nil
			}
			return fmt.Errorf("no end of conversion after %s: %w", timeout, ErrConversionTimeout)
		}
	}
	return nil
}
