package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Direction is the predicted or realized direction of a period close
// relative to its open.
type Direction int

const (
	DirectionNeutral Direction = iota // no usable edge either way
	DirectionUp
	DirectionDown
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "UP"
	case DirectionDown:
		return "DOWN"
	case DirectionNeutral:
		return "NEUTRAL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the inverse direction; NEUTRAL maps to itself.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionUp:
		return DirectionDown
	case DirectionDown:
		return DirectionUp
	default:
		return DirectionNeutral
	}
}

// ParseDirection converts a wire string back into a Direction.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UP", "BULLISH":
		return DirectionUp, nil
	case "DOWN", "BEARISH":
		return DirectionDown, nil
	case "NEUTRAL", "":
		return DirectionNeutral, nil
	default:
		return DirectionNeutral, fmt.Errorf("unknown direction %q", s)
	}
}

func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Direction) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Strength grades how decisive a prediction is.
type Strength int

const (
	StrengthWeak Strength = iota
	StrengthModerate
	StrengthStrong
)

func (s Strength) String() string {
	switch s {
	case StrengthModerate:
		return "MODERATE"
	case StrengthStrong:
		return "STRONG"
	default:
		return "WEAK"
	}
}

// ParseStrength converts a wire string back into a Strength.
func ParseStrength(s string) (Strength, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WEAK", "":
		return StrengthWeak, nil
	case "MODERATE":
		return StrengthModerate, nil
	case "STRONG":
		return StrengthStrong, nil
	default:
		return StrengthWeak, fmt.Errorf("unknown strength %q", s)
	}
}

func (s Strength) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Strength) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseStrength(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
