package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/itohio/batmon/pkg/battery"
	"github.com/itohio/batmon/pkg/config"
	"github.com/itohio/batmon/pkg/history"
	"github.com/itohio/batmon/pkg/reading"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	calls int
	err   error
}

func (f *fakeDevice) Measure() error {
	f.calls++
	return f.err
}

func feed(t *testing.T, hist *history.Window, readings ...reading.Reading) {
	t.Helper()
	in := make(chan reading.Reading, len(readings))
	for _, r := range readings {
		in <- r
	}
	close(in)
	hist.ProcessReadings(in)
}

func get(t *testing.T, s *Server, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestHealthz(t *testing.T) {
	s := New(config.Default(), history.New(config.Default()), nil)
	rec, body := get(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestBattery_NoReadings(t *testing.T) {
	s := New(config.Default(), history.New(config.Default()), nil)
	rec, body := get(t, s, http.MethodGet, "/api/v1/battery")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v1", rec.Header().Get("X-API-Version"))
	assert.Equal(t, "unknown", body["status"])
	assert.Nil(t, body["latest"])
	assert.Nil(t, body["last_known"])
	assert.InDelta(t, 3.4, body["threshold"], 1e-6)
}

func TestBattery_FailedLatestKeepsLastKnown(t *testing.T) {
	cfg := config.Default()
	hist := history.New(cfg)
	now := time.Now()
	feed(t, hist,
		reading.Reading{Timestamp: now, Voltage: 3.3, Vdda: 3.3, Status: battery.StatusLow, DeviceStatus: battery.StatusLow},
		reading.Reading{Timestamp: now.Add(time.Second), Status: battery.StatusUnknown, Err: battery.ErrConversionTimeout},
	)

	s := New(cfg, hist, nil)
	rec, body := get(t, s, http.MethodGet, "/api/v1/battery")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "unknown", body["status"])
	latest := body["latest"].(map[string]any)
	assert.Equal(t, "conversion timeout", latest["error"])

	known := body["last_known"].(map[string]any)
	assert.Equal(t, "low", known["status"])
	assert.Equal(t, "low", known["device_status"])
	assert.InDelta(t, 3.3, known["voltage"], 1e-9)
	assert.NotContains(t, known, "error")
}

func TestHistory(t *testing.T) {
	cfg := config.Default()
	hist := history.New(cfg)
	now := time.Now()

	var readings []reading.Reading
	for i := 0; i < 20; i++ {
		readings = append(readings, reading.Reading{
			Timestamp: now.Add(time.Duration(i) * time.Second),
			Voltage:   4.0 - float64(i)*0.01,
			Status:    battery.StatusOK,
		})
	}
	feed(t, hist, readings...)
	s := New(cfg, hist, nil)

	rec, body := get(t, s, http.MethodGet, "/api/v1/battery/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 20, body["count"])

	rec, body = get(t, s, http.MethodGet, "/api/v1/battery/history?max=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 5, body["count"])
	items := body["readings"].([]any)
	last := items[len(items)-1].(map[string]any)
	assert.InDelta(t, 3.81, last["voltage"], 1e-9)

	rec, _ = get(t, s, http.MethodGet, "/api/v1/battery/history?max=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEpisodes(t *testing.T) {
	cfg := config.Default()
	hist := history.New(cfg)
	now := time.Now()
	feed(t, hist,
		reading.Reading{Timestamp: now, Voltage: 3.3, Status: battery.StatusLow},
		reading.Reading{Timestamp: now.Add(time.Second), Voltage: 3.25, Status: battery.StatusLow},
		reading.Reading{Timestamp: now.Add(2 * time.Second), Voltage: 3.6, Status: battery.StatusOK},
	)

	s := New(cfg, hist, nil)
	rec, body := get(t, s, http.MethodGet, "/api/v1/battery/episodes")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])

	ep := body["episodes"].([]any)[0].(map[string]any)
	assert.InDelta(t, 3.25, ep["min_voltage"], 1e-9)
	assert.EqualValues(t, 2, ep["readings"])
	assert.Equal(t, false, ep["open"])
}

func TestMeasure(t *testing.T) {
	cfg := config.Default()

	t.Run("no device", func(t *testing.T) {
		s := New(cfg, history.New(cfg), nil)
		rec, _ := get(t, s, http.MethodPost, "/api/v1/battery/measure")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("requested", func(t *testing.T) {
		dev := &fakeDevice{}
		s := New(cfg, history.New(cfg), dev)
		rec, body := get(t, s, http.MethodPost, "/api/v1/battery/measure")
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "requested", body["status"])
		assert.Equal(t, 1, dev.calls)
	})

	t.Run("device error", func(t *testing.T) {
		dev := &fakeDevice{err: errors.New("not connected")}
		s := New(cfg, history.New(cfg), dev)
		rec, body := get(t, s, http.MethodPost, "/api/v1/battery/measure")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "not connected", body["error"])
	})
}

func TestRun_GracefulShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := config.Default()
	cfg.HTTP.Addr = addr
	s := New(cfg, history.New(cfg), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRun_ListenError(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.Addr = "bad address"
	s := New(cfg, history.New(cfg), nil)
	assert.Error(t, s.Run(context.Background()))
}
