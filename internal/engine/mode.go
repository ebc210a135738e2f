// SPDX-License-Identifier: GPL-3.0-only

// Package engine decides which brightness to apply to each display and applies it.
package engine

import "fmt"

// Kind identifies the strategy of a Mode.
type Kind int

const (
	// KindLevel applies a named profile or a literal percentage.
	KindLevel Kind = iota
	// KindToggle flips between the "max" and "min" profiles.
	KindToggle
	// KindTime picks "max" by day and "min" by night.
	KindTime
	// KindSensor follows the ambient light seen by the webcam.
	KindSensor
)

func (k Kind) String() string {
	switch k {
	case KindLevel:
		return "level"
	case KindToggle:
		return "toggle"
	case KindTime:
		return "time"
	case KindSensor:
		return "sensor"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Profile names with a fixed meaning.
const (
	ProfileMin     = "min"
	ProfileMax     = "max"
	ProfileDefault = "default"
)

// DefaultDeltaMinutes widens the day on both ends when no delta is given.
const DefaultDeltaMinutes = 20

// Mode is the requested strategy for one invocation.
type Mode struct {
	Kind         Kind
	Level        string
	DeltaMinutes int
}

// Level requests a profile name or literal percentage.
func Level(level string) Mode {
	return Mode{Kind: KindLevel, Level: level}
}

// Toggle requests a flip between "max" and "min".
func Toggle() Mode {
	return Mode{Kind: KindToggle}
}

// TimeBased requests the sunrise/sunset schedule.
func TimeBased(deltaMinutes int) Mode {
	return Mode{Kind: KindTime, DeltaMinutes: deltaMinutes}
}

// Sensor requests continuous webcam driven adjustment.
func Sensor() Mode {
	return Mode{Kind: KindSensor}
}

func (m Mode) String() string {
	switch m.Kind {
	case KindLevel:
		return fmt.Sprintf("level(%s)", m.Level)
	case KindTime:
		return fmt.Sprintf("time(delta=%dm)", m.DeltaMinutes)
	default:
		return m.Kind.String()
	}
}

// Flags mirrors the command line switches.
type Flags struct {
	Level        string
	Time         bool
	DeltaMinutes int
	Toggle       bool
	Webcam       bool
}

// ModeFromFlags resolves possibly conflicting switches.
// Precedence is toggle, then level, then time, then webcam; with none set the
// "default" profile is applied.
func ModeFromFlags(f Flags) Mode {
	switch {
	case f.Toggle:
		return Toggle()
	case f.Level != "":
		return Level(f.Level)
	case f.Time:
		return TimeBased(f.DeltaMinutes)
	case f.Webcam:
		return Sensor()
	default:
		return Level(ProfileDefault)
	}
}
