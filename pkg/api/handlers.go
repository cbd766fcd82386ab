package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/itohio/batmon/pkg/battery"
	"github.com/itohio/batmon/pkg/reading"
)

// readingJSON is the wire form of a reading.
type readingJSON struct {
	Timestamp    time.Time      `json:"timestamp"`
	VrefRaw      uint16         `json:"vref_raw"`
	BatteryRaw   uint16         `json:"battery_raw"`
	Vdda         float64        `json:"vdda"`
	Voltage      float64        `json:"voltage"`
	Status       battery.Status `json:"status"`
	DeviceStatus battery.Status `json:"device_status"`
	Error        string         `json:"error,omitempty"`
}

func toJSON(r reading.Reading) readingJSON {
	out := readingJSON{
		Timestamp:    r.Timestamp,
		VrefRaw:      r.VrefRaw,
		BatteryRaw:   r.BatteryRaw,
		Vdda:         r.Vdda,
		Voltage:      r.Voltage,
		Status:       r.Status,
		DeviceStatus: r.DeviceStatus,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

// handleBattery returns the current status.
// GET /api/v1/battery
func (s *Server) handleBattery(c *gin.Context) {
	resp := gin.H{
		"status":     battery.StatusUnknown,
		"threshold":  s.cfg.Battery.Threshold,
		"hysteresis": s.cfg.Battery.Hysteresis,
		"flaps":      s.history.Flaps(),
		"latest":     nil,
		"last_known": nil,
	}

	if latest, ok := s.history.Latest(); ok {
		resp["status"] = latest.Status
		resp["latest"] = toJSON(latest)
	}
	if known, ok := s.history.LastKnown(); ok {
		resp["last_known"] = toJSON(known)
	}

	c.JSON(http.StatusOK, resp)
}

// handleHistory returns the readings in the window, optionally decimated.
// GET /api/v1/battery/history?max=N
func (s *Server) handleHistory(c *gin.Context) {
	readings := s.history.Readings()

	if maxStr := c.Query("max"); maxStr != "" {
		maxPoints, err := strconv.Atoi(maxStr)
		if err != nil || maxPoints <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid max"})
			return
		}
		readings = reading.Downsample(nil, readings, maxPoints)
	}

	out := make([]readingJSON, len(readings))
	for i, r := range readings {
		out[i] = toJSON(r)
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(out),
		"readings": out,
	})
}

// handleEpisodes returns the LOW episodes in the window.
// GET /api/v1/battery/episodes
func (s *Server) handleEpisodes(c *gin.Context) {
	episodes := s.history.Episodes()
	c.JSON(http.StatusOK, gin.H{
		"count":    len(episodes),
		"episodes": episodes,
	})
}

// handleMeasure asks the device for an immediate evaluation. The result arrives
// through the regular report stream.
// POST /api/v1/battery/measure
func (s *Server) handleMeasure(c *gin.Context) {
	if s.device == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no device"})
		return
	}
	if err := s.device.Measure(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
}
