package battery

import (
	"context"
	"sync"
)

// VoltageSampler produces one battery reading per call.
type VoltageSampler interface {
	Sample(ctx context.Context) (Reading, error)
}

var _ VoltageSampler = (*Sampler)(nil)

// Classify maps a voltage to LOW (strictly below threshold) or OK.
func Classify(v, threshold float32) Status {
	if v < threshold {
		return StatusLow
	}
	return StatusOK
}

// Classifier applies the threshold with an optional hysteresis band.
// With Hysteresis == 0 every call is independent and a reading hovering around the
// threshold flaps between LOW and OK. With Hysteresis > 0 a LOW state is held until the
// voltage reaches Threshold+Hysteresis.
type Classifier struct {
	Threshold  float32
	Hysteresis float32

	last Status
}

// NewClassifier returns a classifier using the threshold and hysteresis of p.
func NewClassifier(p Params) *Classifier {
	return &Classifier{Threshold: p.Threshold, Hysteresis: p.Hysteresis}
}

// Classify returns the status for v and remembers it for the hysteresis band.
func (c *Classifier) Classify(v float32) Status {
	s := Classify(v, c.Threshold)
	if c.Hysteresis > 0 && c.last == StatusLow && v < c.Threshold+c.Hysteresis {
		s = StatusLow
	}
	c.last = s
	return s
}

// Last returns the most recent classification, StatusUnknown before the first one.
func (c *Classifier) Last() Status {
	return c.last
}

// Reset forgets the held state.
func (c *Classifier) Reset() {
	c.last = StatusUnknown
}

// Evaluator samples the battery and classifies the result.
type Evaluator struct {
	sampler VoltageSampler

	mu         sync.Mutex
	classifier *Classifier
}

// NewEvaluator creates an evaluator over sampler using the threshold settings of p.
func NewEvaluator(sampler VoltageSampler, p Params) *Evaluator {
	return &Evaluator{
		sampler:    sampler,
		classifier: NewClassifier(p),
	}
}

// Evaluate samples once and returns LOW or OK. A sampling failure yields StatusUnknown
// with the error; it never defaults to either valid state.
func (e *Evaluator) Evaluate(ctx context.Context) (Status, error) {
	r, err := e.EvaluateReading(ctx)
	return r.Status, err
}

// EvaluateReading is Evaluate returning the full reading.
func (e *Evaluator) EvaluateReading(ctx context.Context) (Reading, error) {
	r, err := e.sampler.Sample(ctx)
	if err != nil {
		r.Status = StatusUnknown
		return r, err
	}

	e.mu.Lock()
	r.Status = e.classifier.Classify(r.Voltage)
	e.mu.Unlock()
	return r, nil
}
