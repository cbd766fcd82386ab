package battery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chewxy/math32"
)

// Reading is the result of one dual-channel acquisition.
type Reading struct {
	Calibration uint16 // Vrefint calibration word used for Vdda
	VrefRaw     uint16
	BatteryRaw  uint16
	Vdda        float32 // estimated analog supply (V)
	Voltage     float32 // battery voltage (V)
	Status      Status
}

// SupplyVoltage estimates Vdda from a Vrefint code: calVoltage * cal / raw.
// A zero code or calibration word has no defined estimate.
func SupplyVoltage(cal, raw uint16, calVoltage float32) (float32, error) {
	if raw == 0 {
		return 0, fmt.Errorf("vrefint code 0: %w", ErrInvalidReference)
	}
	if cal == 0 {
		return 0, fmt.Errorf("calibration word 0: %w", ErrInvalidReference)
	}
	// cal/raw first so that raw == cal yields calVoltage exactly.
	return calVoltage * (float32(cal) / float32(raw)), nil
}

// BatteryVoltage reconstructs the battery voltage from its code: raw * divider * (vdda / 2^bits).
func BatteryVoltage(raw uint16, vdda, divider float32, bits uint8) float32 {
	return float32(raw) * divider * (vdda / float32(uint32(1)<<bits))
}

// Sampler performs blocking Vrefint + battery conversions on one ADC.
// Calls are serialized; the peripheral must not be shared with other users.
type Sampler struct {
	mu     sync.Mutex
	adc    ADC
	clock  Clock
	params Params
	cal    uint16
}

// NewSampler reads the calibration word once and binds the sampler to adc.
// The ADC must already be configured (see Configure). A nil clock uses SystemClock.
func NewSampler(adc ADC, cal CalibrationSource, clock Clock, params Params) (*Sampler, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Sampler{
		adc:    adc,
		clock:  clock,
		params: params,
		cal:    cal.VrefIntCal(),
	}, nil
}

// Params returns the measurement parameters the sampler was built with.
func (s *Sampler) Params() Params {
	return s.params
}

// Calibration returns the Vrefint calibration word read at construction.
func (s *Sampler) Calibration() uint16 {
	return s.cal
}

// Sample converts Vrefint, then the battery channel, and returns the reconstructed voltage.
// The converter is left disabled. On ErrOutOfRange the returned reading carries the
// offending values but must not be acted upon.
func (s *Sampler) Sample(ctx context.Context) (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Reading{Calibration: s.cal}

	vref, err := s.convert(ctx, ChannelVrefInt)
	if err != nil {
		return r, err
	}
	r.VrefRaw = vref

	// No battery conversion without a usable supply estimate.
	r.Vdda, err = SupplyFromCode(s.cal, vref, s.params)
	if err != nil {
		return r, err
	}

	bat, err := s.convert(ctx, s.params.BatteryChannel)
	if err != nil {
		return r, err
	}
	return Reconstruct(s.cal, vref, bat, s.params)
}

// SupplyFromCode validates a Vrefint code against the resolution and estimates Vdda from it.
func SupplyFromCode(cal, vref uint16, p Params) (float32, error) {
	if vref > p.MaxCode() {
		return 0, fmt.Errorf("vrefint code %d above %d: %w", vref, p.MaxCode(), ErrInvalidReference)
	}
	return SupplyVoltage(cal, vref, p.CalibrationVoltage)
}

// Reconstruct turns a calibration word and the two raw codes into a reading.
// Both the sampler and a host receiving raw codes go through here.
// On error the reading carries whatever was computed before the failing step;
// Status is always left StatusUnknown for the caller to classify.
func Reconstruct(cal, vref, bat uint16, p Params) (Reading, error) {
	r := Reading{Calibration: cal, VrefRaw: vref, BatteryRaw: bat}

	vdda, err := SupplyFromCode(cal, vref, p)
	if err != nil {
		return r, err
	}
	r.Vdda = vdda

	if bat > p.MaxCode() {
		return r, fmt.Errorf("battery code %d above %d: %w", bat, p.MaxCode(), ErrOutOfRange)
	}
	r.Voltage = BatteryVoltage(bat, vdda, p.DividerRatio, p.ResolutionBits)
	if err := CheckRange(r.Voltage, p); err != nil {
		return r, err
	}
	return r, nil
}

// CheckRange rejects voltages outside [MinVoltage, MaxVoltage] and non-finite values.
func CheckRange(v float32, p Params) error {
	if math32.IsNaN(v) || math32.IsInf(v, 0) || v < p.MinVoltage || v > p.MaxVoltage {
		return fmt.Errorf("%.3fV outside [%.1fV, %.1fV]: %w", v, p.MinVoltage, p.MaxVoltage, ErrOutOfRange)
	}
	return nil
}

// convert runs one conversion on ch, retrying a bounded number of times on timeout only.
func (s *Sampler) convert(ctx context.Context, ch Channel) (uint16, error) {
	var err error
	for attempt := 0; attempt <= s.params.TimeoutRetries; attempt++ {
		var code uint16
		code, err = s.convertOnce(ctx, ch)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, ErrConversionTimeout) {
			break
		}
	}
	return 0, fmt.Errorf("channel %s: %w", ch, err)
}

func (s *Sampler) convertOnce(ctx context.Context, ch Channel) (uint16, error) {
	s.adc.Enable()
	defer s.adc.Disable()

	s.adc.StartConversion(ch)
	if err := WaitForCompletion(ctx, s.adc, s.clock, s.params.ConversionTimeout); err != nil {
		return 0, err
	}
	return s.adc.ReadResult(), nil
}
