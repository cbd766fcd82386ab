package battery

import (
	"context"

	"github.com/chewxy/math32"
	"tinygo.org/x/drivers"
)

var _ drivers.Sensor = (*Sensor)(nil)

// Sensor exposes an Evaluator through the TinyGo drivers sensor contract:
// Update measures, the accessors return the last update.
type Sensor struct {
	eval *Evaluator
	last Reading
	err  error
}

// NewSensor wraps eval.
func NewSensor(eval *Evaluator) *Sensor {
	return &Sensor{eval: eval}
}

// Update runs one evaluation when which includes drivers.Voltage.
func (s *Sensor) Update(which drivers.Measurement) error {
	if which&drivers.Voltage == 0 {
		return nil
	}
	s.last, s.err = s.eval.EvaluateReading(context.Background())
	return s.err
}

// Voltage returns the last battery voltage in microvolts, 0 if the last update failed.
func (s *Sensor) Voltage() int32 {
	if s.err != nil {
		return 0
	}
	return int32(math32.Round(s.last.Voltage * 1e6))
}

// Status returns the last classification.
func (s *Sensor) Status() Status {
	return s.last.Status
}

// Reading returns the last reading, including raw codes when sampling failed part way.
func (s *Sensor) Reading() Reading {
	return s.last
}

// Err returns the error of the last update.
func (s *Sensor) Err() error {
	return s.err
}
