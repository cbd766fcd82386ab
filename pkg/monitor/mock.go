package monitor

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/itohio/batmon/pkg/battery"
	"github.com/itohio/batmon/pkg/config"
	"github.com/itohio/batmon/pkg/report"
)

// nominalSupply is the regulated analog supply of the simulated board (V).
const nominalSupply = 3.3

// Model is the simulated analog front end: a cell cycling between full and empty
// behind a low-dropout regulator, observed through the sense divider.
type Model struct {
	cfg    config.MockConfig
	params battery.Params
}

// NewModel creates a front-end model.
func NewModel(cfg config.MockConfig, params battery.Params) Model {
	return Model{cfg: cfg, params: params}
}

// Cell returns the cell voltage at elapsed time since connect, without noise.
// The cell discharges linearly over DischargeTime, then recharges over ChargeTime.
func (m Model) Cell(elapsed time.Duration) float64 {
	span := m.cfg.FullVoltage - m.cfg.EmptyVoltage
	period := m.cfg.DischargeTime + m.cfg.ChargeTime
	if period <= 0 {
		return m.cfg.FullVoltage
	}

	t := elapsed % period
	if t < m.cfg.DischargeTime {
		return m.cfg.FullVoltage - span*t.Seconds()/m.cfg.DischargeTime.Seconds()
	}
	return m.cfg.EmptyVoltage + span*(t-m.cfg.DischargeTime).Seconds()/m.cfg.ChargeTime.Seconds()
}

// Supply returns Vdda for a given cell voltage. Once the cell cannot hold the
// regulator above its dropout, Vdda follows the cell down.
func (m Model) Supply(cell float64) float64 {
	return math.Min(nominalSupply, cell-m.cfg.RegulatorDrop)
}

// Codes returns the Vrefint and battery codes the converter would produce.
func (m Model) Codes(cell float64) (vref, bat uint16) {
	vdda := m.Supply(cell)
	if vdda <= 0 {
		return 0, 0
	}
	fullScale := float64(m.params.FullScale())
	vrefint := float64(m.cfg.Calibration) * float64(m.params.CalibrationVoltage) / fullScale

	vref = m.code(vrefint / vdda * fullScale)
	bat = m.code(cell / float64(m.params.DividerRatio) / vdda * fullScale)
	return vref, bat
}

func (m Model) code(v float64) uint16 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if limit := float64(m.params.MaxCode()); v > limit {
		return uint16(limit)
	}
	return uint16(v)
}

// Mock simulates the battery firmware. It runs the real sampler and evaluator
// against a simulated converter.
type Mock struct {
	cfg    *config.MockConfig
	params battery.Params
	model  Model

	reports   chan report.Report
	measure   chan struct{}
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool

	// Simulation state
	adc       *battery.MockADC
	eval      *battery.Evaluator
	startTime time.Time
	simMu     sync.Mutex
	cell      float64
	samples   int
}

// NewMock creates a new simulated device. A nil cfg uses the default mock settings.
func NewMock(cfg *config.MockConfig, params battery.Params) *Mock {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Mock{
		cfg:     cfg,
		params:  params,
		model:   NewModel(*cfg, params),
		reports: make(chan report.Report, DefaultBufferSize),
		measure: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect configures the simulated converter and starts producing reports.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}
	if m.ctx.Err() != nil {
		return fmt.Errorf("device closed")
	}

	adc := battery.NewMockADC()
	adc.Convert = m.convert
	if err := battery.Configure(adc, m.params); err != nil {
		return fmt.Errorf("failed to configure converter: %w", err)
	}
	sampler, err := battery.NewSampler(adc, battery.StaticCalibration(m.cfg.Calibration), nil, m.params)
	if err != nil {
		return fmt.Errorf("failed to create sampler: %w", err)
	}

	m.adc = adc
	m.eval = battery.NewEvaluator(sampler, m.params)
	m.startTime = time.Now()
	m.connected = true

	go m.generateReports()

	return nil
}

// Close stops the simulated device and closes the reports channel.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.cancel()
	m.connected = false
	close(m.reports)

	return nil
}

// Reports returns the channel of simulated reports.
func (m *Mock) Reports() <-chan report.Report {
	return m.reports
}

// Measure requests an immediate evaluation. Requests coalesce while one is pending.
func (m *Mock) Measure() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return fmt.Errorf("not connected")
	}

	select {
	case m.measure <- struct{}{}:
	default:
	}
	return nil
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// generateReports evaluates on every tick and on demand.
func (m *Mock) generateReports() {
	ticker := time.NewTicker(m.cfg.SampleRate)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		case <-m.measure:
		}

		rep := m.evaluate(time.Now())
		if !m.publish(rep) {
			return
		}
	}
}

// evaluate sets the front end for time now and runs one evaluation.
func (m *Mock) evaluate(now time.Time) report.Report {
	elapsed := now.Sub(m.startTime)
	cell := m.model.Cell(elapsed) + m.noise(elapsed)

	m.simMu.Lock()
	m.cell = cell
	m.samples++
	inject := m.cfg.FaultEvery > 0 && m.samples%m.cfg.FaultEvery == 0
	m.simMu.Unlock()

	if inject {
		// Outlast every retry so the whole evaluation fails.
		m.adc.Stick(m.params.BatteryChannel, m.params.TimeoutRetries+1)
	}

	r, err := m.eval.EvaluateReading(m.ctx)
	if err != nil && m.ctx.Err() == nil {
		log.Printf("Simulated evaluation failed: %v", err)
	}
	return report.FromReading(now, r, err)
}

func (m *Mock) noise(elapsed time.Duration) float64 {
	return (math.Sin(float64(elapsed.Nanoseconds())*0.001) +
		math.Cos(float64(elapsed.Nanoseconds())*0.0013)) *
		m.cfg.NoiseLevel * 0.5
}

// convert feeds the simulated converter.
func (m *Mock) convert(ch battery.Channel) uint16 {
	m.simMu.Lock()
	cell := m.cell
	m.simMu.Unlock()

	vref, bat := m.model.Codes(cell)
	if ch == battery.ChannelVrefInt {
		return vref
	}
	return bat
}

func (m *Mock) publish(rep report.Report) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return false
	}

	select {
	case m.reports <- rep:
	default:
		// Channel full, skip
	}
	return true
}
