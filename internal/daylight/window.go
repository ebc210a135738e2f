// Package daylight decides whether a moment falls in the day or night part of
// a sunrise/sunset window and provides the sunrise/sunset times themselves.
package daylight

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidDelta is returned for negative window offsets.
var ErrInvalidDelta = errors.New("delta must be a non-negative number of minutes")

// Phase is the result of classifying a moment against a Window.
type Phase int

const (
	// Night covers everything up to sunrise-delta and after sunset+delta.
	Night Phase = iota
	// Day covers the interval (sunrise-delta, sunset+delta].
	Day
)

func (p Phase) String() string {
	if p == Day {
		return "day"
	}
	return "night"
}

// Window is a moment and the sun events of the same day.
// DeltaMinutes widens the day symmetrically on both ends.
type Window struct {
	Now          time.Time
	Sunrise      time.Time
	Sunset       time.Time
	DeltaMinutes int
}

// Bounds returns the effective sunrise and sunset in UTC.
func (w Window) Bounds() (time.Time, time.Time, error) {
	if w.DeltaMinutes < 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: got %d", ErrInvalidDelta, w.DeltaMinutes)
	}
	delta := time.Duration(w.DeltaMinutes) * time.Minute
	return w.Sunrise.UTC().Add(-delta), w.Sunset.UTC().Add(delta), nil
}

// Classify returns Day or Night for the window.
// All three instants are compared in UTC.
func Classify(w Window) (Phase, error) {
	sunrise, sunset, err := w.Bounds()
	if err != nil {
		return Night, err
	}

	now := w.Now.UTC()
	switch {
	case !now.After(sunrise):
		return Night, nil
	case !now.After(sunset):
		return Day, nil
	default:
		return Night, nil
	}
}
