package domain

import "fmt"

// Direction represents the direction of a position.
type Direction int

const (
	DirectionLong Direction = iota
	DirectionShort
)

const (
	directionStringLong  = "long"
	directionStringShort = "short"
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return directionStringLong
	case DirectionShort:
		return directionStringShort
	default:
		return "unknown"
	}
}

// ParseDirection parses "long" or "short".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case directionStringLong, "":
		return DirectionLong, nil
	case directionStringShort:
		return DirectionShort, nil
	}
	return DirectionLong, fmt.Errorf("unknown direction %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Side order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)
