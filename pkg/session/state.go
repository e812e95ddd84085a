package session

import "fmt"

// SensorState is the lifecycle of the live sensor session.
type SensorState int

const (
	// Inactive means no sensor session is held.
	Inactive SensorState = iota
	// Active means the sensor delivers updates to the controller.
	Active
)

func (s SensorState) String() string {
	if s == Active {
		return "active"
	}
	return "inactive"
}

// MarshalText implements encoding.TextMarshaler.
func (s SensorState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SensorState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "active":
		*s = Active
	case "inactive":
		*s = Inactive
	default:
		return fmt.Errorf("session: unknown sensor state %q", text)
	}
	return nil
}
