package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/batmon/pkg/config"
	"github.com/itohio/batmon/pkg/history"
	"github.com/itohio/batmon/pkg/reading"
)

// ScopeWidget is a custom Fyne widget that plots battery voltage history.
type ScopeWidget struct {
	widget.BaseWidget

	cfg *config.Config

	// Data (protected by mu)
	mu       sync.RWMutex
	episodes []history.Episode
	latest   reading.Reading
	hasData  bool

	// Display buffer (reused for downsampling)
	displayReadings []reading.Reading

	// Auto-scaling
	view view

	// Display settings
	maxDisplayPoints int
}

// view is the visible data range.
type view struct {
	yMin, yMax float64
	xMin, xMax time.Time
}

// New creates a new ScopeWidget instance.
func New(cfg *config.Config) *ScopeWidget {
	s := &ScopeWidget{
		cfg:              cfg,
		episodes:         make([]history.Episode, 0),
		displayReadings:  make([]reading.Reading, 0, 1000),
		maxDisplayPoints: 1000, // Limit points for efficient rendering
	}
	s.view = computeView(nil, cfg.Battery.Threshold, s.window(), time.Now())
	s.ExtendBaseWidget(s)
	s.Refresh()
	return s
}

func (s *ScopeWidget) window() time.Duration {
	return time.Duration(s.cfg.Monitor.WindowSeconds * float64(time.Second))
}

// UpdateData updates the widget with the history window contents.
// This should be called from the history callback using fyne.Do().
func (s *ScopeWidget) UpdateData(readings []reading.Reading, episodes []history.Episode) {
	s.mu.Lock()

	s.displayReadings = reading.Downsample(s.displayReadings, readings, s.maxDisplayPoints)
	s.episodes = episodes
	if n := len(readings); n > 0 {
		s.latest = readings[n-1]
		s.hasData = true
	}
	s.view = computeView(s.displayReadings, s.cfg.Battery.Threshold, s.window(), time.Now())

	s.mu.Unlock()

	// Refresh outside the lock; the renderer takes a read lock.
	s.Refresh()
}

// computeView fits the Y axis to valid voltages, Vdda and the threshold with a 10% margin,
// and the X axis to the readings, at least window wide.
func computeView(readings []reading.Reading, threshold float64, window time.Duration, now time.Time) view {
	v := view{yMin: threshold, yMax: threshold}
	for _, r := range readings {
		if !r.Valid() {
			continue
		}
		for _, y := range [...]float64{r.Voltage, r.Vdda} {
			if y < v.yMin {
				v.yMin = y
			}
			if y > v.yMax {
				v.yMax = y
			}
		}
	}

	span := v.yMax - v.yMin
	if span == 0 {
		span = 1.0
	}
	margin := span * 0.1
	v.yMin -= margin
	v.yMax += margin

	if len(readings) == 0 {
		v.xMin = now
	} else {
		v.xMin = readings[0].Timestamp
	}
	v.xMax = v.xMin.Add(window)
	if len(readings) > 0 {
		if last := readings[len(readings)-1].Timestamp; last.After(v.xMax) {
			v.xMax = last
		}
	}
	return v
}

// x maps a timestamp to a horizontal fraction of the plot.
func (v view) x(t time.Time) float32 {
	span := v.xMax.Sub(v.xMin).Seconds()
	if span <= 0 {
		return 0
	}
	return float32(t.Sub(v.xMin).Seconds() / span)
}

// y maps a voltage to a vertical fraction of the plot, 0 at the bottom.
func (v view) y(value float64) float32 {
	span := v.yMax - v.yMin
	if span <= 0 {
		return 0
	}
	return float32((value - v.yMin) / span)
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	grid := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255}) // Dark background
	return &scopeRenderer{
		scope:    s,
		grid:     grid,
		objects:  []fyne.CanvasObject{grid},
		lastSize: fyne.Size{Width: 0, Height: 0},
	}
}
