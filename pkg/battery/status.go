package battery

import "fmt"

// Status is the classified battery state.
type Status uint8

const (
	// StatusUnknown is reported when no valid sample backs the classification.
	StatusUnknown Status = iota
	StatusLow
	StatusOK
)

func (s Status) String() string {
	switch s {
	case StatusLow:
		return "low"
	case StatusOK:
		return "ok"
	default:
		return "unknown"
	}
}

// Byte returns the single-character wire form: 'L', 'O' or 'U'.
func (s Status) Byte() byte {
	switch s {
	case StatusLow:
		return 'L'
	case StatusOK:
		return 'O'
	default:
		return 'U'
	}
}

// StatusFromByte parses the wire form produced by Byte.
func StatusFromByte(b byte) (Status, error) {
	switch b {
	case 'L':
		return StatusLow, nil
	case 'O':
		return StatusOK, nil
	case 'U':
		return StatusUnknown, nil
	}
	return StatusUnknown, fmt.Errorf("invalid status %q", b)
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "low":
		*s = StatusLow
	case "ok":
		*s = StatusOK
	case "unknown", "":
		*s = StatusUnknown
	default:
		return fmt.Errorf("invalid status %q", string(text))
	}
	return nil
}
