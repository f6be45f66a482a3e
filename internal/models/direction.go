package models

import "fmt"

// Direction selects which side of the audio interface a test exercises.
// The value doubles as the direction argument passed to the external
// volume-control binary.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// ParseDirection accepts the long and short spellings used in plan files.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "input", "in":
		return DirectionInput, nil
	case "output", "out":
		return DirectionOutput, nil
	default:
		return "", fmt.Errorf("unknown direction %q (want input or output)", s)
	}
}

// String returns the direction as the volume-control binary expects it
func (d Direction) String() string {
	return string(d)
}
