package battery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSampler(t *testing.T, cal uint16, p Params) (*Sampler, *MockADC) {
	t.Helper()
	adc := NewMockADC()
	require.NoError(t, Configure(adc, p))
	clock := NewMockClock(time.Unix(0, 0), 100*time.Microsecond)
	s, err := NewSampler(adc, StaticCalibration(cal), clock, p)
	require.NoError(t, err)
	return s, adc
}

func TestSupplyVoltage(t *testing.T) {
	tests := []struct {
		name    string
		cal     uint16
		raw     uint16
		want    float32
		wantErr error
	}{
		{name: "ideal conditions", cal: 1500, raw: 1500, want: 3.3},
		{name: "supply sagging", cal: 1500, raw: 1650, want: 3.0},
		{name: "supply high", cal: 1500, raw: 1375, want: 3.6},
		{name: "zero code", cal: 1500, raw: 0, wantErr: ErrInvalidReference},
		{name: "blank calibration", cal: 0, raw: 1500, wantErr: ErrInvalidReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SupplyVoltage(tt.cal, tt.raw, 3.3)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-5)
		})
	}
}

func TestSupplyVoltage_ExactAtCalibrationCode(t *testing.T) {
	for _, cal := range []uint16{1, 1500, 1655, 4095} {
		got, err := SupplyVoltage(cal, cal, 3.3)
		require.NoError(t, err)
		assert.Equal(t, float32(3.3), got, "cal=%d", cal)
	}
}

func TestSupplyVoltage_StrictlyDecreasing(t *testing.T) {
	prev, err := SupplyVoltage(1500, 1, 3.3)
	require.NoError(t, err)
	for r := uint16(2); r <= 4095; r++ {
		v, err := SupplyVoltage(1500, r, 3.3)
		require.NoError(t, err)
		require.Less(t, v, prev, "r=%d", r)
		prev = v
	}
}

func TestBatteryVoltage(t *testing.T) {
	assert.InDelta(t, 3.3, BatteryVoltage(2048, 3.3, 2, 12), 1e-5)
	assert.InDelta(t, 2.7832, BatteryVoltage(1900, 3.0, 2, 12), 1e-3)
	assert.Equal(t, float32(0), BatteryVoltage(0, 3.3, 2, 12))

	prev := BatteryVoltage(0, 3.3, 2, 12)
	for b := uint16(1); b <= 4095; b++ {
		v := BatteryVoltage(b, 3.3, 2, 12)
		require.Greater(t, v, prev, "b=%d", b)
		prev = v
	}
}

func TestSampler_IdealConditions(t *testing.T) {
	s, adc := newTestSampler(t, 1500, DefaultParams())
	adc.Script(ChannelVrefInt, 1500)
	adc.Script(ChannelBattery, 2048)

	r, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(1500), r.Calibration)
	assert.Equal(t, uint16(1500), r.VrefRaw)
	assert.Equal(t, uint16(2048), r.BatteryRaw)
	assert.Equal(t, float32(3.3), r.Vdda)
	assert.InDelta(t, 3.3, r.Voltage, 1e-5)
}

func TestSampler_SupplySagging(t *testing.T) {
	s, adc := newTestSampler(t, 1500, DefaultParams())
	adc.Script(ChannelVrefInt, 1650)
	adc.Script(ChannelBattery, 1900)

	r, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 3.0, r.Vdda, 1e-5)
	assert.InDelta(t, 2.78, r.Voltage, 0.01)
}

func TestReconstruct(t *testing.T) {
	p := DefaultParams()

	tests := []struct {
		name      string
		vref, bat uint16
		wantVdda  float32
		wantV     float32
		wantErr   error
	}{
		{"ideal conditions", 1500, 2048, 3.3, 3.3, nil},
		{"supply sagging", 1650, 1900, 3.0, 2.78, nil},
		{"zero reference", 0, 2048, 0, 0, ErrInvalidReference},
		{"reference above resolution", 4096, 2048, 0, 0, ErrInvalidReference},
		{"battery above resolution", 1500, 4096, 3.3, 0, ErrOutOfRange},
		{"implausible voltage", 500, 4000, 9.9, 19.34, ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Reconstruct(1500, tt.vref, tt.bat, p)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, uint16(1500), r.Calibration)
			assert.Equal(t, tt.vref, r.VrefRaw)
			assert.Equal(t, tt.bat, r.BatteryRaw)
			assert.InDelta(t, tt.wantVdda, r.Vdda, 1e-5)
			assert.InDelta(t, tt.wantV, r.Voltage, 0.01)
			assert.Equal(t, StatusUnknown, r.Status)
		})
	}
}

func TestSampler_AgreesWithReconstruct(t *testing.T) {
	s, adc := newTestSampler(t, 1655, DefaultParams())
	adc.Script(ChannelVrefInt, 1520)
	adc.Script(ChannelBattery, 2607)

	sampled, err := s.Sample(context.Background())
	require.NoError(t, err)

	want, err := Reconstruct(1655, 1520, 2607, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, want, sampled)
}

func TestSampler_ConversionSequence(t *testing.T) {
	s, adc := newTestSampler(t, 1500, DefaultParams())
	adc.Script(ChannelVrefInt, 1500)
	adc.Script(ChannelBattery, 2048)

	_, err := s.Sample(context.Background())
	require.NoError(t, err)

	stats := adc.Stats()
	assert.Equal(t, 2, stats.Starts)
	assert.Equal(t, 2, stats.Reads, "one read per conversion")
	assert.Equal(t, 0, stats.ReadsWithoutEOC)
	assert.Equal(t, 2, stats.Enables)
	assert.Equal(t, 2, stats.Disables, "converter power-cycled per channel")
	assert.False(t, adc.Enabled())
}

func TestSampler_ZeroReference(t *testing.T) {
	s, adc := newTestSampler(t, 1500, DefaultParams())
	adc.Script(ChannelVrefInt, 0)
	adc.Script(ChannelBattery, 2048)

	r, err := s.Sample(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidReference)
	assert.Equal(t, float32(0), r.Voltage)
	assert.Equal(t, 1, adc.Stats().Starts, "battery channel must not be converted")
	assert.False(t, adc.Enabled())
}

func TestSampler_CodeAboveResolution(t *testing.T) {
	t.Run("vrefint", func(t *testing.T) {
		s, adc := newTestSampler(t, 1500, DefaultParams())
		adc.Script(ChannelVrefInt, 5000)
		_, err := s.Sample(context.Background())
		assert.ErrorIs(t, err, ErrInvalidReference)
	})
	t.Run("battery", func(t *testing.T) {
		s, adc := newTestSampler(t, 1500, DefaultParams())
		adc.Script(ChannelVrefInt, 1500)
		adc.Script(ChannelBattery, 4096)
		_, err := s.Sample(context.Background())
		assert.ErrorIs(t, err, ErrOutOfRange)
	})
}

func TestSampler_OutOfRange(t *testing.T) {
	s, adc := newTestSampler(t, 1500, DefaultParams())
	adc.Script(ChannelVrefInt, 500) // Vdda 9.9V
	adc.Script(ChannelBattery, 4000)

	r, err := s.Sample(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Greater(t, r.Voltage, float32(5))
}

func TestSampler_Timeout(t *testing.T) {
	p := DefaultParams()
	s, adc := newTestSampler(t, 1500, p)
	adc.Stick(ChannelVrefInt, -1)

	done := make(chan error, 1)
	go func() {
		_, err := s.Sample(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConversionTimeout)
	case <-time.After(5 * time.Second):
		t.Fatal("sampler did not give up on a stuck conversion")
	}

	stats := adc.Stats()
	assert.Equal(t, 1+p.TimeoutRetries, stats.Starts, "bounded retry")
	assert.Equal(t, 0, stats.Reads, "no read without end of conversion")
	assert.False(t, adc.Enabled())
}

func TestSampler_RetryRecoversTransientTimeout(t *testing.T) {
	s, adc := newTestSampler(t, 1500, DefaultParams())
	adc.Stick(ChannelBattery, 1)
	adc.Script(ChannelVrefInt, 1500)
	adc.Script(ChannelBattery, 2048)

	r, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 3.3, r.Voltage, 1e-5)
	assert.Equal(t, 3, adc.Stats().Starts)
}

func TestSampler_NoRetry(t *testing.T) {
	p := DefaultParams()
	p.TimeoutRetries = 0
	s, adc := newTestSampler(t, 1500, p)
	adc.Stick(ChannelBattery, 1)
	adc.Script(ChannelVrefInt, 1500)
	adc.Script(ChannelBattery, 2048)

	_, err := s.Sample(context.Background())
	assert.ErrorIs(t, err, ErrConversionTimeout)
	assert.Equal(t, 2, adc.Stats().Starts)
}

func TestSampler_ContextCanceled(t *testing.T) {
	s, adc := newTestSampler(t, 1500, DefaultParams())
	adc.Stick(ChannelVrefInt, -1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Sample(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrConversionTimeout))
	assert.Equal(t, 1, adc.Stats().Starts, "cancellation is not retried")
}

func TestNewSampler_InvalidParams(t *testing.T) {
	p := DefaultParams()
	p.ResolutionBits = 11
	_, err := NewSampler(NewMockADC(), StaticCalibration(1500), nil, p)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestNewSampler_ReadsCalibrationOnce(t *testing.T) {
	src := &countingCalibration{value: 1655}
	s, err := NewSampler(NewMockADC(), src, nil, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, uint16(1655), s.Calibration())
	assert.Equal(t, 1, src.calls)
}

type countingCalibration struct {
	value uint16
	calls int
}

func (c *countingCalibration) VrefIntCal() uint16 {
	c.calls++
	return c.value
}
