package history

import (
	"sync"
	"time"

	"github.com/itohio/batmon/pkg/battery"
	"github.com/itohio/batmon/pkg/config"
	"github.com/itohio/batmon/pkg/reading"
)

var _ History = (*Window)(nil)

// Episode is a contiguous run of LOW readings.
// Unknown readings neither extend nor end an episode; the first OK reading ends it.
type Episode struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"` // last LOW reading
	MinVoltage float64   `json:"min_voltage"`
	Readings   int       `json:"readings"`
	Open       bool      `json:"open"` // no OK reading seen since Start
}

// Duration returns the time between the first and last LOW reading.
func (e Episode) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// UpdateFunc receives copies of the window contents after every reading.
type UpdateFunc func(readings []reading.Reading, episodes []Episode)

// History keeps recent battery readings and derives LOW episodes from them.
type History interface {
	ProcessReadings(input <-chan reading.Reading)
	Readings() []reading.Reading // ordered oldest to newest
	Episodes() []Episode         // ordered oldest to newest
	Latest() (reading.Reading, bool)
	LastKnown() (reading.Reading, bool)
	Flaps() int
	OnUpdate(UpdateFunc)
}

// Window implements History over a time window.
// Removal is based on timestamp, not number of readings.
type Window struct {
	readings  []reading.Reading
	episodes  []Episode
	lastKnown reading.Reading
	hasKnown  bool

	mu sync.RWMutex

	callbacks []UpdateFunc
	cbMu      sync.RWMutex

	windowDuration time.Duration

	// Set when the input channel closes, prevents further callbacks
	shutdown bool
}

// New creates a history window sized by cfg.Monitor.WindowSeconds.
func New(cfg *config.Config) *Window {
	return &Window{
		readings:       make([]reading.Reading, 0),
		episodes:       make([]Episode, 0),
		windowDuration: time.Duration(cfg.Monitor.WindowSeconds * float64(time.Second)),
	}
}

// ProcessReadings consumes input until it closes. After that no more callbacks are sent.
func (w *Window) ProcessReadings(input <-chan reading.Reading) {
	for r := range input {
		w.processReading(r)
	}
	w.mu.Lock()
	w.shutdown = true
	w.mu.Unlock()
}

// processReading appends r, trims the window and updates episodes.
func (w *Window) processReading(r reading.Reading) {
	w.mu.Lock()

	w.readings = append(w.readings, r)
	w.trim(r.Timestamp.Add(-w.windowDuration))
	w.updateEpisodes(r)

	if r.Status != battery.StatusUnknown {
		w.lastKnown = r
		w.hasKnown = true
	}

	shouldNotify := !w.shutdown
	w.mu.Unlock()

	if shouldNotify {
		w.notifyCallbacks()
	}
}

// trim drops readings and finished episodes that ended at or before cutoff.
func (w *Window) trim(cutoff time.Time) {
	cutoffIndex := len(w.readings)
	for i, r := range w.readings {
		if r.Timestamp.After(cutoff) {
			cutoffIndex = i
			break
		}
	}
	if cutoffIndex > 0 {
		w.readings = append(w.readings[:0], w.readings[cutoffIndex:]...)
	}

	kept := w.episodes[:0]
	for _, e := range w.episodes {
		if e.Open || e.End.After(cutoff) {
			kept = append(kept, e)
		}
	}
	w.episodes = kept
}

func (w *Window) updateEpisodes(r reading.Reading) {
	var open *Episode
	if n := len(w.episodes); n > 0 && w.episodes[n-1].Open {
		open = &w.episodes[n-1]
	}

	switch r.Status {
	case battery.StatusLow:
		if open == nil {
			w.episodes = append(w.episodes, Episode{
				Start:      r.Timestamp,
				End:        r.Timestamp,
				MinVoltage: r.Voltage,
				Readings:   1,
				Open:       true,
			})
			return
		}
		open.End = r.Timestamp
		open.Readings++
		if r.Voltage < open.MinVoltage {
			open.MinVoltage = r.Voltage
		}
	case battery.StatusOK:
		if open != nil {
			open.Open = false
		}
	}
}

// Readings returns a copy of the current readings.
func (w *Window) Readings() []reading.Reading {
	w.mu.RLock()
	defer w.mu.RUnlock()

	result := make([]reading.Reading, len(w.readings))
	copy(result, w.readings)
	return result
}

// Episodes returns a copy of the LOW episodes still inside the window.
func (w *Window) Episodes() []Episode {
	w.mu.RLock()
	defer w.mu.RUnlock()

	result := make([]Episode, len(w.episodes))
	copy(result, w.episodes)
	return result
}

// Latest returns the newest reading, which may be a failed one.
func (w *Window) Latest() (reading.Reading, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.readings) == 0 {
		return reading.Reading{}, false
	}
	return w.readings[len(w.readings)-1], true
}

// LastKnown returns the newest reading with a LOW or OK status.
// It survives window trimming so callers can fall back to it when sampling fails.
func (w *Window) LastKnown() (reading.Reading, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastKnown, w.hasKnown
}

// Flaps counts LOW<->OK transitions between consecutive known readings in the window.
func (w *Window) Flaps() int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	flaps := 0
	prev := battery.StatusUnknown
	for _, r := range w.readings {
		if r.Status == battery.StatusUnknown {
			continue
		}
		if prev != battery.StatusUnknown && r.Status != prev {
			flaps++
		}
		prev = r.Status
	}
	return flaps
}

// OnUpdate registers a callback invoked after every processed reading.
// The callback should copy data quickly and return as fast as possible.
func (w *Window) OnUpdate(callback UpdateFunc) {
	w.cbMu.Lock()
	defer w.cbMu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// ResetShutdown allows callbacks again before starting a new chain.
func (w *Window) ResetShutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.shutdown = false
}

// notifyCallbacks invokes all registered callbacks with copies of the current data.
func (w *Window) notifyCallbacks() {
	readings := w.Readings()
	episodes := w.Episodes()

	w.cbMu.RLock()
	callbacks := make([]UpdateFunc, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(readings, episodes)
		}
	}
}
