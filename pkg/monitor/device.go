package monitor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/itohio/batmon/pkg/report"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the USB CDC rate the firmware prints at.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the reports channel buffer.
	DefaultBufferSize = 100
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial represents a connection to the battery firmware.
type Serial struct {
	port     string
	baudRate int
	bufSize  int

	conn      io.ReadWriteCloser
	reports   chan report.Report
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	dropped   int
	open      func(port string, baudRate int) (io.ReadWriteCloser, error)
}

// New creates a new Serial device with the specified port, baud rate, and buffer size.
func New(port string, baudRate int, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		reports:  make(chan report.Report, bufSize),
		ctx:      ctx,
		cancel:   cancel,
		open:     openSerial,
	}
}

func openSerial(port string, baudRate int) (io.ReadWriteCloser, error) {
	return serial.Open(port, &serial.Mode{BaudRate: baudRate})
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Connect opens the serial port and starts reading reports.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}
	if d.ctx.Err() != nil {
		return fmt.Errorf("device closed")
	}

	conn, err := d.open(d.port, d.baudRate)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = conn
	d.connected = true

	go d.readReports(conn)

	return nil
}

// Close closes the connection and stops reading reports. The reports channel is closed.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			log.Printf("Error closing serial port: %v", err)
		}
		d.conn = nil
	}

	d.connected = false
	close(d.reports)

	return nil
}

// Reports returns the channel of parsed reports.
func (d *Serial) Reports() <-chan report.Report {
	return d.reports
}

// Measure asks the firmware for an immediate evaluation.
func (d *Serial) Measure() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return fmt.Errorf("not connected")
	}

	if _, err := io.WriteString(d.conn, report.MeasureCommand); err != nil {
		return fmt.Errorf("failed to send measure command: %w", err)
	}
	return nil
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// Dropped returns how many reports were discarded because the channel was full.
func (d *Serial) Dropped() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dropped
}

// readReports reads lines from the port until it fails or the device is closed.
func (d *Serial) readReports(conn io.Reader) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in readReports: %v", r)
		}
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if d.ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rep, err := report.Parse(line)
		if err != nil {
			// Boot banners and debug prints share the port.
			log.Printf("Failed to parse line '%s': %v", line, err)
			continue
		}

		if !d.publish(rep) {
			return
		}
	}

	if err := scanner.Err(); err != nil && d.ctx.Err() == nil {
		log.Printf("Error reading from serial port: %v", err)
	}
}

// publish delivers rep without blocking. It returns false once the device is closed.
func (d *Serial) publish(rep report.Report) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return false
	}

	select {
	case d.reports <- rep:
	default:
		d.dropped++
		log.Printf("Reports channel full, dropping report")
	}
	return true
}
