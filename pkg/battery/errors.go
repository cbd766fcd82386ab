package battery

import "errors"

var (
	// ErrConversionTimeout means the end-of-conversion condition never asserted before the deadline.
	ErrConversionTimeout = errors.New("conversion timeout")
	// ErrInvalidReference means the Vrefint code (or the calibration word) cannot produce a supply estimate.
	ErrInvalidReference = errors.New("invalid reference reading")
	// ErrOutOfRange means the reconstructed battery voltage is outside the plausible band.
	ErrOutOfRange = errors.New("battery reading out of range")
	// ErrInvalidParams means the measurement parameters are unusable.
	ErrInvalidParams = errors.New("invalid parameters")
)

// Fault codes carried on the firmware report line.
const (
	FaultTimeout   = "timeout"
	FaultReference = "vref"
	FaultRange     = "range"
	FaultOther     = "error"
)

// FaultCode maps a sampling error to its report code. A nil error maps to "".
func FaultCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConversionTimeout):
		return FaultTimeout
	case errors.Is(err, ErrInvalidReference):
		return FaultReference
	case errors.Is(err, ErrOutOfRange):
		return FaultRange
	default:
		return FaultOther
	}
}

// ParseFault is the inverse of FaultCode.
func ParseFault(code string) error {
	switch code {
	case "":
		return nil
	case FaultTimeout:
		return ErrConversionTimeout
	case FaultReference:
		return ErrInvalidReference
	case FaultRange:
		return ErrOutOfRange
	default:
		return errors.New("device fault: " + code)
	}
}
