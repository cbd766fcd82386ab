package scope

import (
	"image/color"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/itohio/batmon/pkg/battery"
	"github.com/itohio/batmon/pkg/history"
	"github.com/itohio/batmon/pkg/reading"
)

var (
	gridColor      = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor     = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	voltageColor   = color.RGBA{R: 255, G: 165, B: 0, A: 255}   // Orange
	vddaColor      = color.RGBA{R: 100, G: 200, B: 255, A: 255} // Light blue
	thresholdColor = color.RGBA{R: 220, G: 50, B: 50, A: 255}   // Red
	episodeColor   = color.RGBA{R: 120, G: 0, B: 0, A: 80}      // Translucent dark red
	faultColor     = color.RGBA{R: 200, G: 200, B: 200, A: 255} // Light gray
)

// plot is the drawing area inside the axis margins.
type plot struct {
	x, y, w, h float32
	view       view
}

func (p plot) pos(t time.Time, v float64) fyne.Position {
	return fyne.NewPos(p.x+p.view.x(t)*p.w, p.y+p.h-p.view.y(v)*p.h)
}

func (p plot) col(t time.Time) float32 {
	return p.x + p.view.x(t)*p.w
}

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	// Background
	grid *canvas.Rectangle

	// Objects list for Fyne
	objects []fyne.CanvasObject

	// Track last size to detect changes
	lastSize fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.grid.Resize(size)

	if r.lastSize.Width != size.Width || r.lastSize.Height != size.Height {
		r.lastSize = size
		// Redraw with new dimensions
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh rebuilds the canvas objects from the current data.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	readings := r.scope.displayReadings
	episodes := r.scope.episodes
	latest, hasData := r.scope.latest, r.scope.hasData
	v := r.scope.view
	threshold := r.scope.cfg.Battery.Threshold
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	r.objects = []fyne.CanvasObject{r.grid}

	marginLeft := float32(60.0)
	marginRight := float32(20.0)
	marginTop := float32(20.0)
	marginBottom := float32(40.0)

	p := plot{
		x:    marginLeft,
		y:    marginTop,
		w:    size.Width - marginLeft - marginRight,
		h:    size.Height - marginTop - marginBottom,
		view: v,
	}

	r.drawEpisodes(p, episodes)
	r.drawGrid(p)
	r.drawThreshold(p, threshold)
	r.drawTrace(p, readings, func(rd reading.Reading) float64 { return rd.Vdda }, vddaColor, 1)
	r.drawTrace(p, readings, func(rd reading.Reading) float64 { return rd.Voltage }, voltageColor, 1.5)
	r.drawFaults(p, readings)
	if hasData {
		r.drawStatus(p, latest)
	}
}

// drawGrid draws the oscilloscope-style grid.
func (r *scopeRenderer) drawGrid(p plot) {
	numHLines := 8
	for i := 0; i < numHLines+1; i++ {
		y := p.y + float32(i)*p.h/float32(numHLines)
		r.line(fyne.NewPos(p.x, y), fyne.NewPos(p.x+p.w, y), gridColor, 1)

		value := p.view.yMax - float64(i)*(p.view.yMax-p.view.yMin)/float64(numHLines)
		text := canvas.NewText(formatVoltage(value), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(p.x-5, y-6))
		r.objects = append(r.objects, text)
	}

	numVLines := 10
	span := p.view.xMax.Sub(p.view.xMin)
	for i := 0; i < numVLines+1; i++ {
		x := p.x + float32(i)*p.w/float32(numVLines)
		r.line(fyne.NewPos(x, p.y), fyne.NewPos(x, p.y+p.h), gridColor, 1)

		offset := time.Duration(int64(span) * int64(i) / int64(numVLines))
		text := canvas.NewText(formatTime(offset), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-20, p.y+p.h+5))
		r.objects = append(r.objects, text)
	}
}

// drawThreshold draws the LOW threshold as a horizontal red line.
func (r *scopeRenderer) drawThreshold(p plot, threshold float64) {
	y := p.y + p.h - p.view.y(threshold)*p.h
	r.line(fyne.NewPos(p.x, y), fyne.NewPos(p.x+p.w, y), thresholdColor, 1)
}

// drawTrace connects consecutive valid readings; failed readings break the line.
func (r *scopeRenderer) drawTrace(p plot, readings []reading.Reading, value func(reading.Reading) float64, c color.Color, width float32) {
	var prev *fyne.Position
	for _, rd := range readings {
		if !rd.Valid() {
			prev = nil
			continue
		}
		pos := p.pos(rd.Timestamp, value(rd))
		if prev != nil {
			r.line(*prev, pos, c, width)
		}
		prev = &pos
	}
}

// drawFaults marks failed readings with short ticks on the time axis.
func (r *scopeRenderer) drawFaults(p plot, readings []reading.Reading) {
	for _, rd := range readings {
		if rd.Valid() {
			continue
		}
		x := p.col(rd.Timestamp)
		r.line(fyne.NewPos(x, p.y+p.h-8), fyne.NewPos(x, p.y+p.h), faultColor, 1)
	}
}

// drawEpisodes shades LOW episodes.
func (r *scopeRenderer) drawEpisodes(p plot, episodes []history.Episode) {
	for _, e := range episodes {
		start := p.view.xMin
		if e.Start.After(start) {
			start = e.Start
		}
		x0, x1 := p.col(start), p.col(e.End)
		if x1-x0 < 2 {
			x1 = x0 + 2
		}

		rect := canvas.NewRectangle(episodeColor)
		rect.Move(fyne.NewPos(x0, p.y))
		rect.Resize(fyne.NewSize(x1-x0, p.h))
		r.objects = append(r.objects, rect)
	}
}

// drawStatus draws the latest reading in the top-left corner.
func (r *scopeRenderer) drawStatus(p plot, latest reading.Reading) {
	label, c := statusLabel(latest)
	text := canvas.NewText(label, c)
	text.TextSize = 12
	text.Alignment = fyne.TextAlignLeading
	text.Move(fyne.NewPos(p.x+10, p.y+5))
	r.objects = append(r.objects, text)
}

func statusLabel(rd reading.Reading) (string, color.Color) {
	switch {
	case rd.Err != nil:
		return "fault: " + rd.Err.Error(), faultColor
	case rd.Status == battery.StatusLow:
		return formatVoltage(rd.Voltage) + " LOW", thresholdColor
	case rd.Status == battery.StatusOK:
		return formatVoltage(rd.Voltage) + " OK", voltageColor
	default:
		return "unknown", faultColor
	}
}

func (r *scopeRenderer) line(a, b fyne.Position, c color.Color, width float32) {
	line := canvas.NewLine(c)
	line.Position1 = a
	line.Position2 = b
	line.StrokeWidth = width
	r.objects = append(r.objects, line)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {
	// Cleanup handled by Fyne
}

func formatVoltage(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64) + "V"
}

func formatTime(d time.Duration) string {
	if d < time.Minute {
		return strconv.FormatFloat(d.Seconds(), 'f', 1, 64) + "s"
	}
	return strconv.FormatFloat(d.Minutes(), 'f', 1, 64) + "m"
}
