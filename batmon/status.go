package main

import (
	"fmt"

	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/batmon/pkg/battery"
	"github.com/itohio/batmon/pkg/reading"
)

// handleMeasure requests an on-demand evaluation. The result arrives through the report stream.
func handleMeasure(state *appState) {
	if err := state.Measure(); err != nil {
		dialog.ShowError(fmt.Errorf("failed to request measurement: %w", err), state.window)
	}
}

// updateStatusBadge shows the latest status. A failed reading keeps the last known
// voltage visible next to the fault.
func updateStatusBadge(state *appState, latest, known reading.Reading, hasKnown bool) {
	state.statusLabel.SetText(statusText(latest, known, hasKnown))
	updateMeasureButton(state.measureBtn, latest.Status)
}

func statusText(latest, known reading.Reading, hasKnown bool) string {
	if latest.Err == nil && latest.Status != battery.StatusUnknown {
		return fmt.Sprintf("%s  %.3fV", latest.Status, latest.Voltage)
	}
	if !hasKnown {
		return "unknown"
	}
	return fmt.Sprintf("unknown (last %s %.3fV at %s)", known.Status, known.Voltage, known.Timestamp.Format("15:04:05"))
}

// updateMeasureButton highlights the measure button while the battery is LOW.
func updateMeasureButton(btn *widget.Button, status battery.Status) {
	switch status {
	case battery.StatusLow:
		btn.Importance = widget.DangerImportance
	case battery.StatusUnknown:
		btn.Importance = widget.WarningImportance
	default:
		btn.Importance = widget.MediumImportance
	}
	btn.Refresh()
}
