// Package report is the line protocol between the battery firmware and the host.
//
// Device to host, one line per evaluation:
//
//	unix_micros,cal,vref_raw,bat_raw,status,fault
//	1234567890123,1500,1500,2048,O,
//	1234567890456,1500,0,0,U,vref
//
// Host to device: MeasureCommand requests an immediate evaluation.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/itohio/batmon/pkg/battery"
)

// MeasureCommand asks the firmware for an out-of-schedule evaluation.
const MeasureCommand = "m\n"

const fields = 6

// Report is one evaluation as sent over the wire. Voltages are not transmitted;
// the receiver recomputes them from the raw codes.
type Report struct {
	Timestamp   time.Time
	Calibration uint16
	VrefRaw     uint16
	BatteryRaw  uint16
	Status      battery.Status
	Fault       string // battery fault code, empty when Status is LOW or OK
}

// FromReading builds a report for an evaluation that returned r and err.
func FromReading(ts time.Time, r battery.Reading, err error) Report {
	rep := Report{
		Timestamp:   ts,
		Calibration: r.Calibration,
		VrefRaw:     r.VrefRaw,
		BatteryRaw:  r.BatteryRaw,
		Status:      r.Status,
		Fault:       battery.FaultCode(err),
	}
	if err != nil {
		rep.Status = battery.StatusUnknown
	}
	return rep
}

// Err returns the sampling error the device reported, nil for a valid report.
func (r Report) Err() error {
	return battery.ParseFault(r.Fault)
}

// Append appends the wire form of r, without a line terminator, to dst.
func (r Report) Append(dst []byte) []byte {
	dst = strconv.AppendInt(dst, r.Timestamp.UnixMicro(), 10)
	dst = append(dst, ',')
	dst = strconv.AppendUint(dst, uint64(r.Calibration), 10)
	dst = append(dst, ',')
	dst = strconv.AppendUint(dst, uint64(r.VrefRaw), 10)
	dst = append(dst, ',')
	dst = strconv.AppendUint(dst, uint64(r.BatteryRaw), 10)
	dst = append(dst, ',', r.Status.Byte(), ',')
	dst = append(dst, r.Fault...)
	return dst
}

func (r Report) String() string {
	return string(r.Append(nil))
}

// Parse parses one line produced by Append.
func Parse(line string) (Report, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != fields {
		return Report{}, fmt.Errorf("invalid line format: expected %d comma-separated values, got %d", fields, len(parts))
	}

	micros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Report{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	var codes [3]uint16
	for i, name := range []string{"calibration", "vref", "battery"} {
		v, err := strconv.ParseUint(parts[1+i], 10, 16)
		if err != nil {
			return Report{}, fmt.Errorf("invalid %s code: %w", name, err)
		}
		codes[i] = uint16(v)
	}

	if len(parts[4]) != 1 {
		return Report{}, fmt.Errorf("invalid status %q", parts[4])
	}
	status, err := battery.StatusFromByte(parts[4][0])
	if err != nil {
		return Report{}, err
	}

	fault := parts[5]
	switch {
	case fault != "" && status != battery.StatusUnknown:
		return Report{}, fmt.Errorf("fault %q with status %s", fault, status)
	case fault == "" && status == battery.StatusUnknown:
		return Report{}, fmt.Errorf("unknown status without fault code")
	}

	return Report{
		Timestamp:   time.UnixMicro(micros),
		Calibration: codes[0],
		VrefRaw:     codes[1],
		BatteryRaw:  codes[2],
		Status:      status,
		Fault:       fault,
	}, nil
}
