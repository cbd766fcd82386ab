package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/batmon/pkg/monitor"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createBatteryTab(state),
		createMonitorTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

// saveConfig validates and persists the configuration. Invalid values are reported and not saved.
func saveConfig(state *appState) bool {
	if err := state.cfg.Validate(); err != nil {
		dialog.ShowError(err, state.window)
		return false
	}
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return false
	}
	return true
}

// reconnect restarts the measurement chain so a new configuration takes effect.
func reconnect(state *appState) {
	if !state.connected() {
		return
	}
	disconnect(state)
	handleConnect(state)
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	ports, err := monitor.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // Map display name to actual port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	// Add current port if not in list
	currentPort := state.cfg.Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}

	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(state.cfg.Serial.BaudRate))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
		},
		OnSubmit: func() {
			if portSelect.Selected == "" {
				return
			}
			selectedPort := portMap[portSelect.Selected]
			if selectedPort == "" {
				selectedPort = portSelect.Selected
			}
			changed := state.cfg.Serial.Port != selectedPort
			state.cfg.Serial.Port = selectedPort

			if baud, err := strconv.Atoi(baudEntry.Text); err == nil && baud > 0 {
				changed = changed || baud != state.cfg.Serial.BaudRate
				state.cfg.Serial.BaudRate = baud
			}

			if saveConfig(state) && changed && !state.useMock {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Serial", form)
}

// createBatteryTab creates the battery measurement configuration tab.
func createBatteryTab(state *appState) *container.TabItem {
	b := &state.cfg.Battery

	thresholdEntry := floatEntry(b.Threshold, 3)
	hysteresisEntry := floatEntry(b.Hysteresis, 3)
	dividerEntry := floatEntry(b.DividerRatio, 4)
	bitsEntry := widget.NewEntry()
	bitsEntry.SetText(strconv.Itoa(b.ResolutionBits))
	calVEntry := floatEntry(b.CalibrationVoltage, 3)
	minEntry := floatEntry(b.MinVoltage, 2)
	maxEntry := floatEntry(b.MaxVoltage, 2)
	timeoutEntry := widget.NewEntry()
	timeoutEntry.SetText(b.ConversionTimeout.String())
	retriesEntry := widget.NewEntry()
	retriesEntry.SetText(strconv.Itoa(b.TimeoutRetries))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "LOW Threshold (V)", Widget: thresholdEntry},
			{Text: "Hysteresis (V, 0=off)", Widget: hysteresisEntry},
			{Text: "Divider Ratio", Widget: dividerEntry},
			{Text: "ADC Resolution (bits)", Widget: bitsEntry},
			{Text: "Vrefint Calibration Supply (V)", Widget: calVEntry},
			{Text: "Plausible Min (V)", Widget: minEntry},
			{Text: "Plausible Max (V)", Widget: maxEntry},
			{Text: "Conversion Timeout", Widget: timeoutEntry},
			{Text: "Timeout Retries", Widget: retriesEntry},
		},
		OnSubmit: func() {
			prev := *b
			parseFloat(thresholdEntry, &b.Threshold)
			parseFloat(hysteresisEntry, &b.Hysteresis)
			parseFloat(dividerEntry, &b.DividerRatio)
			parseInt(bitsEntry, &b.ResolutionBits)
			parseFloat(calVEntry, &b.CalibrationVoltage)
			parseFloat(minEntry, &b.MinVoltage)
			parseFloat(maxEntry, &b.MaxVoltage)
			parseDuration(timeoutEntry, &b.ConversionTimeout)
			parseInt(retriesEntry, &b.TimeoutRetries)

			if !saveConfig(state) {
				*b = prev
				return
			}
			// The converter captures parameters when the chain starts
			reconnect(state)
		},
	}

	return container.NewTabItem("Battery", form)
}

// createMonitorTab creates the host monitoring configuration tab.
func createMonitorTab(state *appState) *container.TabItem {
	windowEntry := floatEntry(state.cfg.Monitor.WindowSeconds, 1)
	pollEntry := widget.NewEntry()
	pollEntry.SetText(state.cfg.Monitor.PollInterval.String())
	addrEntry := widget.NewEntry()
	addrEntry.SetText(state.cfg.HTTP.Addr)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Window (seconds, restart)", Widget: windowEntry},
			{Text: "Poll Interval (0=off)", Widget: pollEntry},
			{Text: "Status API Address (restart)", Widget: addrEntry},
		},
		OnSubmit: func() {
			parseFloat(windowEntry, &state.cfg.Monitor.WindowSeconds)
			parseDuration(pollEntry, &state.cfg.Monitor.PollInterval)
			state.cfg.HTTP.Addr = addrEntry.Text
			if saveConfig(state) {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Monitor", form)
}

// createMockTab creates the simulated device configuration tab.
func createMockTab(state *appState) *container.TabItem {
	m := &state.cfg.Mock

	calEntry := widget.NewEntry()
	calEntry.SetText(strconv.Itoa(int(m.Calibration)))
	fullEntry := floatEntry(m.FullVoltage, 2)
	emptyEntry := floatEntry(m.EmptyVoltage, 2)
	dischargeEntry := widget.NewEntry()
	dischargeEntry.SetText(m.DischargeTime.String())
	chargeEntry := widget.NewEntry()
	chargeEntry.SetText(m.ChargeTime.String())
	dropEntry := floatEntry(m.RegulatorDrop, 3)
	noiseEntry := floatEntry(m.NoiseLevel, 4)
	faultEntry := widget.NewEntry()
	faultEntry.SetText(strconv.Itoa(m.FaultEvery))
	sampleRateEntry := widget.NewEntry()
	sampleRateEntry.SetText(m.SampleRate.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Calibration Word", Widget: calEntry},
			{Text: "Full Voltage (V)", Widget: fullEntry},
			{Text: "Empty Voltage (V)", Widget: emptyEntry},
			{Text: "Discharge Time", Widget: dischargeEntry},
			{Text: "Charge Time", Widget: chargeEntry},
			{Text: "Regulator Drop (V)", Widget: dropEntry},
			{Text: "Noise Level (V)", Widget: noiseEntry},
			{Text: "Fault Every N Samples (0=never)", Widget: faultEntry},
			{Text: "Sample Rate", Widget: sampleRateEntry},
		},
		OnSubmit: func() {
			if cal, err := strconv.ParseUint(calEntry.Text, 10, 16); err == nil {
				m.Calibration = uint16(cal)
			}
			parseFloat(fullEntry, &m.FullVoltage)
			parseFloat(emptyEntry, &m.EmptyVoltage)
			parseDuration(dischargeEntry, &m.DischargeTime)
			parseDuration(chargeEntry, &m.ChargeTime)
			parseFloat(dropEntry, &m.RegulatorDrop)
			parseFloat(noiseEntry, &m.NoiseLevel)
			parseInt(faultEntry, &m.FaultEvery)
			parseDuration(sampleRateEntry, &m.SampleRate)
			if saveConfig(state) && state.useMock {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Mock", form)
}

func floatEntry(v float64, prec int) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(strconv.FormatFloat(v, 'f', prec, 64))
	return e
}

// Unparseable fields keep their previous value.

func parseFloat(e *widget.Entry, dst *float64) {
	if v, err := strconv.ParseFloat(e.Text, 64); err == nil {
		*dst = v
	}
}

func parseInt(e *widget.Entry, dst *int) {
	if v, err := strconv.Atoi(e.Text); err == nil {
		*dst = v
	}
}

func parseDuration(e *widget.Entry, dst *time.Duration) {
	if v, err := time.ParseDuration(e.Text); err == nil {
		*dst = v
	}
}
