package reading

import (
	"fmt"
	"log"
	"time"

	"github.com/itohio/batmon/pkg/battery"
	"github.com/itohio/batmon/pkg/config"
	"github.com/itohio/batmon/pkg/report"
)

// Reading represents a device report converted with the host parameters.
type Reading struct {
	Timestamp    time.Time
	VrefRaw      uint16
	BatteryRaw   uint16
	Vdda         float64        // estimated analog supply (V)
	Voltage      float64        // battery voltage (V), meaningless when Err is set
	Status       battery.Status // host classification
	DeviceStatus battery.Status // classification the firmware reported
	Err          error          // device fault or conversion failure
}

// Valid reports whether the reading carries a usable voltage.
func (r Reading) Valid() bool {
	return r.Err == nil && r.Status != battery.StatusUnknown
}

// Converter is a function type that converts a report channel to a Reading channel.
type Converter func(in <-chan report.Report) <-chan Reading

// NewConverter creates a converter that recomputes every report with cfg's battery
// parameters. The host configuration is authoritative: divider, calibration voltage,
// threshold and hysteresis all come from cfg, not from the firmware build.
func NewConverter(cfg *config.Config, bufSize int) Converter {
	if bufSize <= 0 {
		bufSize = 100
	}
	params := cfg.Params()

	return func(in <-chan report.Report) <-chan Reading {
		out := make(chan Reading, bufSize)
		classifier := battery.NewClassifier(params)

		go func() {
			defer close(out)

			for rep := range in {
				r := Convert(rep, params, classifier)
				if r.Err != nil {
					log.Printf("Battery reading at %s failed: %v", r.Timestamp.Format(time.RFC3339), r.Err)
				}

				select {
				case out <- r:
				case <-time.After(time.Second):
					log.Printf("Converter output channel full, dropping reading")
				}
			}
		}()

		return out
	}
}

// Convert recomputes rep with p. A nil classifier applies the plain threshold.
// Failed reports and conversions are returned with StatusUnknown and Err set; the
// classifier only sees valid voltages.
func Convert(rep report.Report, p battery.Params, classifier *battery.Classifier) Reading {
	r := Reading{
		Timestamp:    rep.Timestamp,
		VrefRaw:      rep.VrefRaw,
		BatteryRaw:   rep.BatteryRaw,
		Status:       battery.StatusUnknown,
		DeviceStatus: rep.Status,
	}

	if err := rep.Err(); err != nil {
		r.Err = fmt.Errorf("device: %w", err)
		return r
	}

	br, err := battery.Reconstruct(rep.Calibration, rep.VrefRaw, rep.BatteryRaw, p)
	r.Vdda = float64(br.Vdda)
	r.Voltage = float64(br.Voltage)
	if err != nil {
		r.Err = err
		return r
	}

	if classifier != nil {
		r.Status = classifier.Classify(br.Voltage)
	} else {
		r.Status = battery.Classify(br.Voltage, p.Threshold)
	}
	return r
}
