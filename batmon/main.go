package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/batmon/pkg/api"
	"github.com/itohio/batmon/pkg/config"
	"github.com/itohio/batmon/pkg/history"
	"github.com/itohio/batmon/pkg/monitor"
	"github.com/itohio/batmon/pkg/reading"
	"github.com/itohio/batmon/pkg/scope"
)

func main() {
	var (
		portFlag     = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag     = flag.Bool("mock", false, "Use simulated device instead of serial port")
		httpFlag     = flag.String("http", "", "Status API listen address (e.g., :8080), overrides config")
		headlessFlag = flag.Bool("headless", false, "Run without a window, logging status changes and serving the status API")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ApplyEnv(".env"); err != nil {
		log.Fatalf("Failed to apply environment: %v", err)
	}

	// Command line wins over file and environment
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *httpFlag != "" {
		cfg.HTTP.Addr = *httpFlag
	}

	if *headlessFlag {
		if err := runHeadless(cfg, *mockFlag); err != nil {
			log.Fatal(err)
		}
		return
	}

	// Create Fyne application
	application := app.NewWithID("com.itohio.batmon")

	// Create main window
	window := application.NewWindow("Battery Monitor")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		history:    history.New(cfg),
		window:     window,
		useMock:    *mockFlag,
	}

	toolbar := createToolbar(state)

	scopeWidget := scope.New(cfg)
	state.scopeWidget = scopeWidget

	// Register callback with history to update scope widget and status badge.
	// Throttle updates to ~60 FPS to keep the UI responsive.
	const updateInterval = 16 * time.Millisecond
	state.history.OnUpdate(func(readings []reading.Reading, episodes []history.Episode) {
		state.updateMu.Lock()
		now := time.Now()
		if now.Sub(state.lastUpdateTime) < updateInterval {
			state.updateMu.Unlock()
			return
		}
		state.lastUpdateTime = now
		state.updateMu.Unlock()

		known, hasKnown := state.history.LastKnown()
		fyne.Do(func() {
			state.scopeWidget.UpdateData(readings, episodes)
			if len(readings) > 0 {
				updateStatusBadge(state, readings[len(readings)-1], known, hasKnown)
			}
		})
	})

	// Status API shares the history window with the scope
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.HTTP.Addr != "" {
		srv := api.New(cfg, state.history, state)
		go func() {
			log.Printf("Status API listening on %s", cfg.HTTP.Addr)
			if err := srv.Run(ctx); err != nil {
				log.Printf("status API: %v", err)
			}
		}()
	}

	window.SetContent(container.NewBorder(
		toolbar,
		nil,
		nil,
		nil,
		scopeWidget,
	))
	window.SetOnClosed(func() {
		closeMeasurementChain(state.chain)
		state.chain = nil
	})
	window.ShowAndRun()
}

// appState holds the application state.
type appState struct {
	cfg         *config.Config
	configPath  string
	history     *history.Window
	scopeWidget *scope.ScopeWidget
	window      fyne.Window
	connectBtn  *widget.Button
	measureBtn  *widget.Button
	statusLabel *widget.Label
	useMock     bool

	// Device and chain are swapped by the UI thread; Measure may be called from the API.
	deviceMu sync.RWMutex
	device   monitor.Device
	chain    *measurementChain // Current measurement chain (nil if not connected)

	// Throttling for scope updates
	lastUpdateTime time.Time
	updateMu       sync.Mutex
}

// Measure forwards an on-demand measurement request to the connected device.
func (s *appState) Measure() error {
	s.deviceMu.RLock()
	defer s.deviceMu.RUnlock()
	if s.device == nil || !s.device.IsConnected() {
		return fmt.Errorf("not connected")
	}
	return s.device.Measure()
}

func (s *appState) connected() bool {
	s.deviceMu.RLock()
	defer s.deviceMu.RUnlock()
	return s.device != nil && s.device.IsConnected()
}

// createToolbar creates the application toolbar with Connect, Settings, Measure and the status badge.
func createToolbar(state *appState) fyne.CanvasObject {
	connectBtn := widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	state.connectBtn = connectBtn

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	measureBtn := widget.NewButtonWithIcon("", theme.MediaPlayIcon(), func() {
		handleMeasure(state)
	})
	measureBtn.Disable()
	state.measureBtn = measureBtn

	state.statusLabel = widget.NewLabel("disconnected")

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(connectBtn, settingsBtn, measureBtn),
		state.statusLabel,
		nil,
	)
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	if state.connected() {
		disconnect(state)
		return
	}

	device := newDevice(state.cfg, state.useMock)
	if err := device.Connect(); err != nil {
		if state.useMock {
			dialog.ShowError(fmt.Errorf("failed to start simulated device: %w", err), state.window)
		} else {
			dialog.ShowError(fmt.Errorf("failed to connect to %s: %w", state.cfg.Serial.Port, err), state.window)
		}
		return
	}

	if state.useMock {
		log.Printf("Connected to simulated device")
	} else {
		log.Printf("Connected to serial port: %s", state.cfg.Serial.Port)
	}

	state.deviceMu.Lock()
	state.device = device
	state.chain = startMeasurementChain(state.cfg, device, state.history)
	state.deviceMu.Unlock()

	state.measureBtn.Enable()
	state.statusLabel.SetText("waiting for first report")
}

// disconnect gracefully closes the measurement chain.
func disconnect(state *appState) {
	state.deviceMu.Lock()
	chain := state.chain
	state.chain = nil
	state.device = nil
	state.deviceMu.Unlock()

	closeMeasurementChain(chain)

	state.measureBtn.Disable()
	state.statusLabel.SetText("disconnected")
	log.Printf("Disconnected")
}

// runHeadless runs the measurement chain and status API until interrupted.
func runHeadless(cfg *config.Config, useMock bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hist := history.New(cfg)
	device := newDevice(cfg, useMock)
	if err := device.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	var lastStatus string
	hist.OnUpdate(func(readings []reading.Reading, _ []history.Episode) {
		if len(readings) == 0 {
			return
		}
		r := readings[len(readings)-1]
		if s := r.Status.String(); s != lastStatus {
			log.Printf("battery %s (%.3fV, Vdda %.3fV)", s, r.Voltage, r.Vdda)
			lastStatus = s
		}
		if r.Err != nil {
			log.Printf("battery fault: %v", r.Err)
		}
	})

	chain := startMeasurementChain(cfg, device, hist)
	defer closeMeasurementChain(chain)

	if cfg.HTTP.Addr == "" {
		<-ctx.Done()
		return nil
	}

	log.Printf("Status API listening on %s", cfg.HTTP.Addr)
	return api.New(cfg, hist, device).Run(ctx)
}
