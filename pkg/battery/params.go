package battery

import (
	"fmt"
	"time"
)

// MaxTimeoutRetries caps the retry count so a dead converter can never stall a caller indefinitely.
const MaxTimeoutRetries = 3

// Params holds the hardware-revision specific measurement constants.
type Params struct {
	Threshold  float32 // LOW below this voltage (V)
	Hysteresis float32 // width of the hold band above Threshold (V), 0 disables

	DividerRatio       float32 // input attenuation undone after conversion
	ResolutionBits     uint8
	CalibrationVoltage float32 // supply voltage at which the Vrefint calibration word was taken (V)

	// Plausible battery voltage band; readings outside it are faults.
	MinVoltage float32
	MaxVoltage float32

	BatteryChannel    Channel
	SampleTime        SampleTime
	ConversionTimeout time.Duration
	TimeoutRetries    int
}

// DefaultParams returns the values of the reference hardware
// (100k/100k bridge on PA3, 12-bit ADC, calibration at 3.3 V).
func DefaultParams() Params {
	return Params{
		Threshold:          3.4,
		Hysteresis:         0,
		DividerRatio:       2,
		ResolutionBits:     12,
		CalibrationVoltage: 3.3,
		MinVoltage:         0,
		MaxVoltage:         5,
		BatteryChannel:     ChannelBattery,
		SampleTime:         SampleTimeMax,
		ConversionTimeout:  time.Millisecond,
		TimeoutRetries:     1,
	}
}

// FullScale returns 2^ResolutionBits.
func (p Params) FullScale() float32 {
	return float32(uint32(1) << p.ResolutionBits)
}

// MaxCode returns the largest raw code the converter can produce.
func (p Params) MaxCode() uint16 {
	return uint16(uint32(1)<<p.ResolutionBits - 1)
}

// Validate reports the first unusable parameter.
func (p Params) Validate() error {
	switch p.ResolutionBits {
	case 6, 8, 10, 12:
	default:
		return fmt.Errorf("resolution %d bits: %w", p.ResolutionBits, ErrInvalidParams)
	}
	if !(p.DividerRatio > 0) {
		return fmt.Errorf("divider ratio %v: %w", p.DividerRatio, ErrInvalidParams)
	}
	if !(p.CalibrationVoltage > 0) {
		return fmt.Errorf("calibration voltage %v: %w", p.CalibrationVoltage, ErrInvalidParams)
	}
	if !(p.Threshold > 0) {
		return fmt.Errorf("threshold %v: %w", p.Threshold, ErrInvalidParams)
	}
	if p.Hysteresis < 0 {
		return fmt.Errorf("hysteresis %v: %w", p.Hysteresis, ErrInvalidParams)
	}
	if !(p.MaxVoltage > p.MinVoltage) {
		return fmt.Errorf("voltage band [%v, %v]: %w", p.MinVoltage, p.MaxVoltage, ErrInvalidParams)
	}
	if p.BatteryChannel == ChannelVrefInt {
		return fmt.Errorf("battery channel cannot be %s: %w", p.BatteryChannel, ErrInvalidParams)
	}
	if p.ConversionTimeout <= 0 {
		return fmt.Errorf("conversion timeout %s: %w", p.ConversionTimeout, ErrInvalidParams)
	}
	if p.TimeoutRetries < 0 || p.TimeoutRetries > MaxTimeoutRetries {
		return fmt.Errorf("timeout retries %d (max %d): %w", p.TimeoutRetries, MaxTimeoutRetries, ErrInvalidParams)
	}
	return nil
}
