package main

import (
	"context"
	"log"
	"time"

	"github.com/itohio/batmon/pkg/config"
	"github.com/itohio/batmon/pkg/history"
	"github.com/itohio/batmon/pkg/monitor"
	"github.com/itohio/batmon/pkg/reading"
)

// measurementChain tracks the components of the measurement chain for graceful shutdown.
type measurementChain struct {
	device      monitor.Device
	readings    <-chan reading.Reading
	historyDone chan struct{} // Closed when the history goroutine exits
	pollCancel  context.CancelFunc
	pollDone    chan struct{} // Closed when the poll goroutine exits
}

// newDevice creates the serial or simulated device described by cfg.
func newDevice(cfg *config.Config, useMock bool) monitor.Device {
	if useMock {
		return monitor.NewMock(&cfg.Mock, cfg.Params())
	}
	return monitor.New(cfg.Serial.Port, cfg.Serial.BaudRate, monitor.DefaultBufferSize)
}

// startMeasurementChain wires an already connected device into the history window:
// device reports -> converter -> history. When cfg.Monitor.PollInterval is set the
// device is asked for a measurement on every tick.
func startMeasurementChain(cfg *config.Config, device monitor.Device, hist *history.Window) *measurementChain {
	// Reset history shutdown flag for new chain
	hist.ResetShutdown()

	readings := reading.NewConverter(cfg, 500)(device.Reports())

	chain := &measurementChain{
		device:      device,
		readings:    readings,
		historyDone: make(chan struct{}),
	}

	go func() {
		defer close(chain.historyDone)
		hist.ProcessReadings(readings)
	}()

	if interval := cfg.Monitor.PollInterval; interval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		chain.pollCancel = cancel
		chain.pollDone = make(chan struct{})
		go func() {
			defer close(chain.pollDone)
			poll(ctx, device, interval)
		}()
	}

	return chain
}

func poll(ctx context.Context, device monitor.Device, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := device.Measure(); err != nil {
				log.Printf("measure request failed: %v", err)
			}
		}
	}
}

// closeMeasurementChain gracefully closes the measurement chain.
// Waits for all goroutines to finish and channels to drain.
func closeMeasurementChain(chain *measurementChain) {
	if chain == nil {
		return
	}

	if chain.pollCancel != nil {
		chain.pollCancel()
		<-chain.pollDone
	}

	// Close device - this will close the reports channel
	if chain.device != nil {
		if err := chain.device.Close(); err != nil {
			log.Printf("close device: %v", err)
		}
	}

	// The history goroutine exits once the converter drains and closes readings
	if chain.historyDone != nil {
		<-chain.historyDone
	}
}
