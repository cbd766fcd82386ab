package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/itohio/batmon/pkg/battery"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Battery BatteryConfig `yaml:"battery"`
	Monitor MonitorConfig `yaml:"monitor"`
	HTTP    HTTPConfig    `yaml:"http"`
	Mock    MockConfig    `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// BatteryConfig mirrors battery.Params. The host recomputes every report with these values.
type BatteryConfig struct {
	Threshold          float64       `yaml:"threshold"`           // LOW below this (V)
	Hysteresis         float64       `yaml:"hysteresis"`          // hold band above threshold (V), 0 = off
	DividerRatio       float64       `yaml:"divider_ratio"`       // (R1+R2)/R2 of the sense bridge
	ResolutionBits     int           `yaml:"resolution_bits"`     // ADC resolution
	CalibrationVoltage float64       `yaml:"calibration_voltage"` // supply at which Vrefint was calibrated (V)
	MinVoltage         float64       `yaml:"min_voltage"`
	MaxVoltage         float64       `yaml:"max_voltage"`
	ConversionTimeout  time.Duration `yaml:"conversion_timeout"`
	TimeoutRetries     int           `yaml:"timeout_retries"`
}

// MonitorConfig contains host monitoring parameters.
type MonitorConfig struct {
	WindowSeconds float64       `yaml:"window_seconds"` // history kept for display and the API
	PollInterval  time.Duration `yaml:"poll_interval"`  // on-demand measurement period, 0 = rely on device reports
}

// HTTPConfig contains the status API configuration.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the API
}

// MockConfig contains simulated device configuration.
type MockConfig struct {
	Calibration   uint16        `yaml:"calibration"`    // simulated Vrefint calibration word
	FullVoltage   float64       `yaml:"full_voltage"`   // cell voltage when charged (V)
	EmptyVoltage  float64       `yaml:"empty_voltage"`  // cell voltage when drained (V)
	DischargeTime time.Duration `yaml:"discharge_time"` // full -> empty
	ChargeTime    time.Duration `yaml:"charge_time"`    // empty -> full
	RegulatorDrop float64       `yaml:"regulator_drop"` // LDO dropout; Vdda follows the cell below 3.3V + drop
	NoiseLevel    float64       `yaml:"noise_level"`    // noise on the cell voltage (V)
	FaultEvery    int           `yaml:"fault_every"`    // stuck conversion every N samples, 0 = never
	SampleRate    time.Duration `yaml:"sample_rate"`    // simulated report period
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	p := battery.DefaultParams()
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
		},
		Battery: BatteryConfig{
			Threshold:          float64(p.Threshold),
			Hysteresis:         float64(p.Hysteresis),
			DividerRatio:       float64(p.DividerRatio),
			ResolutionBits:     int(p.ResolutionBits),
			CalibrationVoltage: float64(p.CalibrationVoltage),
			MinVoltage:         float64(p.MinVoltage),
			MaxVoltage:         float64(p.MaxVoltage),
			ConversionTimeout:  p.ConversionTimeout,
			TimeoutRetries:     p.TimeoutRetries,
		},
		Monitor: MonitorConfig{
			WindowSeconds: 600,
			PollInterval:  0,
		},
		HTTP: HTTPConfig{
			Addr: "",
		},
		Mock: MockConfig{
			Calibration:   1655,
			FullVoltage:   4.2,
			EmptyVoltage:  3.2,
			DischargeTime: 2 * time.Minute,
			ChargeTime:    30 * time.Second,
			RegulatorDrop: 0.1,
			NoiseLevel:    0.005,
			FaultEvery:    0,
			SampleRate:    500 * time.Millisecond,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads envFile (if present) and applies BATMON_* environment overrides.
func (c *Config) ApplyEnv(envFile string) error {
	_ = godotenv.Load(envFile) // missing file is fine

	if port := os.Getenv("BATMON_SERIAL_PORT"); port != "" {
		c.Serial.Port = port
	}
	if addr := os.Getenv("BATMON_HTTP_ADDR"); addr != "" {
		c.HTTP.Addr = addr
	}
	if s := os.Getenv("BATMON_THRESHOLD"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid BATMON_THRESHOLD: %s", s)
		}
		c.Battery.Threshold = v
	}
	return c.Validate()
}

// Params converts the battery section into measurement parameters.
func (c *Config) Params() battery.Params {
	p := battery.DefaultParams()
	p.Threshold = float32(c.Battery.Threshold)
	p.Hysteresis = float32(c.Battery.Hysteresis)
	p.DividerRatio = float32(c.Battery.DividerRatio)
	p.ResolutionBits = uint8(c.Battery.ResolutionBits)
	p.CalibrationVoltage = float32(c.Battery.CalibrationVoltage)
	p.MinVoltage = float32(c.Battery.MinVoltage)
	p.MaxVoltage = float32(c.Battery.MaxVoltage)
	p.ConversionTimeout = c.Battery.ConversionTimeout
	p.TimeoutRetries = c.Battery.TimeoutRetries
	return p
}

// Validate checks the battery parameters.
func (c *Config) Validate() error {
	// Params narrows the resolution to uint8; out of range values must not wrap into valid ones.
	if bits := c.Battery.ResolutionBits; bits < 0 || bits > math.MaxUint8 {
		return fmt.Errorf("battery config: resolution %d bits: %w", bits, battery.ErrInvalidParams)
	}
	if err := c.Params().Validate(); err != nil {
		return fmt.Errorf("battery config: %w", err)
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Battery.Threshold == 0 {
		c.Battery.Threshold = def.Battery.Threshold
	}
	if c.Battery.DividerRatio == 0 {
		c.Battery.DividerRatio = def.Battery.DividerRatio
	}
	if c.Battery.ResolutionBits == 0 {
		c.Battery.ResolutionBits = def.Battery.ResolutionBits
	}
	if c.Battery.CalibrationVoltage == 0 {
		c.Battery.CalibrationVoltage = def.Battery.CalibrationVoltage
	}
	if c.Battery.MaxVoltage == 0 {
		c.Battery.MaxVoltage = def.Battery.MaxVoltage
	}
	if c.Battery.ConversionTimeout == 0 {
		c.Battery.ConversionTimeout = def.Battery.ConversionTimeout
	}

	if c.Monitor.WindowSeconds == 0 {
		c.Monitor.WindowSeconds = def.Monitor.WindowSeconds
	}

	if c.Mock.Calibration == 0 {
		c.Mock.Calibration = def.Mock.Calibration
	}
	if c.Mock.FullVoltage == 0 {
		c.Mock.FullVoltage = def.Mock.FullVoltage
	}
	if c.Mock.EmptyVoltage == 0 {
		c.Mock.EmptyVoltage = def.Mock.EmptyVoltage
	}
	if c.Mock.DischargeTime == 0 {
		c.Mock.DischargeTime = def.Mock.DischargeTime
	}
	if c.Mock.ChargeTime == 0 {
		c.Mock.ChargeTime = def.Mock.ChargeTime
	}
	if c.Mock.SampleRate == 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}
}
