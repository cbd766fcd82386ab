package monitor

import "github.com/itohio/batmon/pkg/report"

// Device defines the interface for battery monitor devices (real or mocked).
type Device interface {
	Connect() error
	Close() error
	Reports() <-chan report.Report
	// Measure requests an evaluation outside the device schedule.
	Measure() error
	IsConnected() bool
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
