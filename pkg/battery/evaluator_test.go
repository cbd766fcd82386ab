package battery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinygo.org/x/drivers"
)

// fixedSampler returns queued voltages, then the last one.
type fixedSampler struct {
	voltages []float32
	err      error
	calls    int
}

func (f *fixedSampler) Sample(ctx context.Context) (Reading, error) {
	f.calls++
	if f.err != nil {
		return Reading{}, f.err
	}
	v := f.voltages[0]
	if len(f.voltages) > 1 {
		f.voltages = f.voltages[1:]
	}
	return Reading{Vdda: 3.3, Voltage: v}, nil
}

func TestClassify_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		v    float32
		want Status
	}{
		{2.6, StatusLow},
		{3.399999, StatusLow},
		{3.4, StatusOK},
		{3.40001, StatusOK},
		{4.2, StatusOK},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.v, 3.4), "v=%v", tt.v)
	}
}

func TestEvaluator_Evaluate(t *testing.T) {
	tests := []struct {
		name string
		v    float32
		want Status
	}{
		{"just below threshold", 3.399999, StatusLow},
		{"at threshold", 3.4, StatusOK},
		{"just above threshold", 3.40001, StatusOK},
		{"full charge", 4.2, StatusOK},
		{"drained", 3.2, StatusLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator(&fixedSampler{voltages: []float32{tt.v}}, DefaultParams())
			got, err := e.Evaluate(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_SamplingFailureIsUnknown(t *testing.T) {
	for _, sentinel := range []error{ErrConversionTimeout, ErrInvalidReference, ErrOutOfRange} {
		e := NewEvaluator(&fixedSampler{err: sentinel}, DefaultParams())
		got, err := e.Evaluate(context.Background())
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, StatusUnknown, got)
	}
}

func TestEvaluator_NoHysteresisFlaps(t *testing.T) {
	e := NewEvaluator(&fixedSampler{voltages: []float32{3.39, 3.41, 3.39, 3.41}}, DefaultParams())

	var got []Status
	for i := 0; i < 4; i++ {
		s, err := e.Evaluate(context.Background())
		require.NoError(t, err)
		got = append(got, s)
	}
	assert.Equal(t, []Status{StatusLow, StatusOK, StatusLow, StatusOK}, got)
}

func TestEvaluator_Hysteresis(t *testing.T) {
	p := DefaultParams()
	p.Hysteresis = 0.1
	e := NewEvaluator(&fixedSampler{voltages: []float32{3.45, 3.3, 3.45, 3.55, 3.45, 3.39}}, p)

	var got []Status
	for i := 0; i < 6; i++ {
		s, err := e.Evaluate(context.Background())
		require.NoError(t, err)
		got = append(got, s)
	}
	assert.Equal(t, []Status{
		StatusOK,  // no prior state, plain threshold
		StatusLow, // below threshold
		StatusLow, // held inside the band
		StatusOK,  // above the band
		StatusOK,  // inside the band, last state OK
		StatusLow,
	}, got)
}

func TestEvaluator_ErrorKeepsHysteresisState(t *testing.T) {
	p := DefaultParams()
	p.Hysteresis = 0.1
	fs := &fixedSampler{voltages: []float32{3.3}}
	e := NewEvaluator(fs, p)

	s, err := e.Evaluate(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusLow, s)

	fs.err = ErrConversionTimeout
	s, err = e.Evaluate(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusUnknown, s)

	fs.err = nil
	fs.voltages = []float32{3.45}
	s, err = e.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusLow, s)
}

func TestEvaluator_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		vref, bat uint16
		wantV     float32
		want      Status
	}{
		{"nominal supply", 1500, 2048, 3.3, StatusLow},
		{"sagging supply", 1650, 1900, 2.78, StatusLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, adc := newTestSampler(t, 1500, DefaultParams())
			adc.Script(ChannelVrefInt, tt.vref)
			adc.Script(ChannelBattery, tt.bat)

			r, err := NewEvaluator(s, DefaultParams()).EvaluateReading(context.Background())
			require.NoError(t, err)
			assert.InDelta(t, tt.wantV, r.Voltage, 0.01)
			assert.Equal(t, tt.want, r.Status)
		})
	}

	t.Run("zero reference", func(t *testing.T) {
		s, adc := newTestSampler(t, 1500, DefaultParams())
		adc.Script(ChannelVrefInt, 0)

		got, err := NewEvaluator(s, DefaultParams()).Evaluate(context.Background())
		assert.ErrorIs(t, err, ErrInvalidReference)
		assert.Equal(t, StatusUnknown, got)
	})

	t.Run("stuck converter", func(t *testing.T) {
		s, adc := newTestSampler(t, 1500, DefaultParams())
		adc.Stick(ChannelBattery, -1)
		adc.Script(ChannelVrefInt, 1500)

		got, err := NewEvaluator(s, DefaultParams()).Evaluate(context.Background())
		assert.ErrorIs(t, err, ErrConversionTimeout)
		assert.Equal(t, StatusUnknown, got)
	})
}

func TestSensor(t *testing.T) {
	fs := &fixedSampler{voltages: []float32{3.3}}
	sensor := NewSensor(NewEvaluator(fs, DefaultParams()))

	require.NoError(t, sensor.Update(drivers.Temperature))
	assert.Equal(t, 0, fs.calls, "non-voltage update does not sample")

	require.NoError(t, sensor.Update(drivers.Voltage))
	assert.InDelta(t, 3300000, sensor.Voltage(), 1)
	assert.Equal(t, StatusLow, sensor.Status())
	assert.NoError(t, sensor.Err())

	fs.err = errors.New("boom")
	assert.Error(t, sensor.Update(drivers.Voltage|drivers.Temperature))
	assert.Equal(t, int32(0), sensor.Voltage())
	assert.Equal(t, StatusUnknown, sensor.Status())
}

func TestWaitForCompletion(t *testing.T) {
	t.Run("completes", func(t *testing.T) {
		adc := NewMockADC()
		adc.Enable()
		adc.StartConversion(ChannelBattery)
		clock := NewMockClock(time.Unix(0, 0), time.Microsecond)
		assert.NoError(t, WaitForCompletion(context.Background(), adc, clock, time.Millisecond))
	})

	t.Run("not enabled never completes", func(t *testing.T) {
		adc := NewMockADC()
		adc.StartConversion(ChannelBattery)
		clock := NewMockClock(time.Unix(0, 0), 100*time.Microsecond)
		assert.ErrorIs(t, WaitForCompletion(context.Background(), adc, clock, time.Millisecond), ErrConversionTimeout)
	})

	t.Run("gives up at the deadline", func(t *testing.T) {
		adc := NewMockADC()
		adc.Stick(ChannelBattery, -1)
		adc.Enable()
		adc.StartConversion(ChannelBattery)

		start := time.Unix(0, 0)
		step := 100 * time.Microsecond
		clock := NewMockClock(start, step)
		err := WaitForCompletion(context.Background(), adc, clock, time.Millisecond)
		assert.ErrorIs(t, err, ErrConversionTimeout)
		assert.LessOrEqual(t, clock.Now().Sub(start), time.Millisecond+3*step)
	})
}
