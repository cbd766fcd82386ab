package battery

import (
	"sync"
	"time"
)

var _ ADC = (*MockADC)(nil)

// MockADC simulates a single-shot converter for tests and the simulated device.
// Codes come from per-channel scripts (consumed in order, last value repeats) or,
// when a channel has no script, from the Convert model.
type MockADC struct {
	mu sync.Mutex

	// Convert models the analog front end for channels without a script.
	Convert func(ch Channel) uint16

	config     ADCConfig
	configured int
	enabled    bool
	pending    bool
	result     uint16

	scripts map[Channel][]uint16
	stuck   map[Channel]int // remaining conversions that never complete, <0 = forever

	starts, reads, enables, disables int
	readsWithoutEOC                  int
}

// NewMockADC returns an unconfigured mock converter.
func NewMockADC() *MockADC {
	return &MockADC{
		scripts: make(map[Channel][]uint16),
		stuck:   make(map[Channel]int),
	}
}

// Script queues codes for ch.
func (m *MockADC) Script(ch Channel, codes ...uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[ch] = append(m.scripts[ch], codes...)
}

// Stick makes the next n conversions of ch never raise end-of-conversion.
// n < 0 sticks the channel permanently, n == 0 clears the fault.
func (m *MockADC) Stick(ch Channel, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n == 0 {
		delete(m.stuck, ch)
		return
	}
	m.stuck[ch] = n
}

func (m *MockADC) Configure(cfg ADCConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = cfg
	m.configured++
}

func (m *MockADC) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
	m.enables++
}

func (m *MockADC) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
	m.pending = false
	m.disables++
}

func (m *MockADC) StartConversion(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if !m.enabled {
		return
	}
	if n, ok := m.stuck[ch]; ok {
		switch {
		case n > 1:
			m.stuck[ch] = n - 1
		case n == 1:
			delete(m.stuck, ch)
		}
		return
	}
	m.result = m.next(ch)
	m.pending = true
}

func (m *MockADC) next(ch Channel) uint16 {
	if codes := m.scripts[ch]; len(codes) > 0 {
		code := codes[0]
		if len(codes) > 1 {
			m.scripts[ch] = codes[1:]
		}
		return code
	}
	if m.Convert != nil {
		return m.Convert(ch)
	}
	return 0
}

func (m *MockADC) Done() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

func (m *MockADC) ReadResult() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if !m.pending {
		m.readsWithoutEOC++
	}
	m.pending = false
	return m.result
}

// Config returns the last applied configuration and how many times Configure ran.
func (m *MockADC) Config() (ADCConfig, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config, m.configured
}

// Enabled reports whether the converter is currently powered.
func (m *MockADC) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// MockStats counts calls made against a MockADC.
type MockStats struct {
	Starts, Reads, Enables, Disables int
	ReadsWithoutEOC                  int
}

// Stats returns the call counters.
func (m *MockADC) Stats() MockStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MockStats{
		Starts:          m.starts,
		Reads:           m.reads,
		Enables:         m.enables,
		Disables:        m.disables,
		ReadsWithoutEOC: m.readsWithoutEOC,
	}
}

// MockClock is a Clock that advances by Step on every Now call.
type MockClock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewMockClock starts at start and advances by step per reading.
func NewMockClock(start time.Time, step time.Duration) *MockClock {
	return &MockClock{now: start, Step: step}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}
