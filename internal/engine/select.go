// SPDX-License-Identifier: GPL-3.0-only

package engine

import (
	"fmt"

	"github.com/shini4i/dimmer/internal/config"
	"github.com/shini4i/dimmer/internal/daylight"
)

// Inputs carries the external readings some modes need.
type Inputs struct {
	// Current holds the per-display brightness for KindToggle.
	Current map[string]int
	// Window holds the sun events for KindTime. DeltaMinutes is taken from the mode.
	Window daylight.Window
}

// Select picks the target for mode. It never talks to hardware.
func Select(model *config.Model, mode Mode, in Inputs) (Target, error) {
	switch mode.Kind {
	case KindLevel:
		return ParseLevel(model, mode.Level)
	case KindToggle:
		if err := requireProfiles(model, ProfileMin, ProfileMax); err != nil {
			return Target{}, err
		}
		return selectToggle(model, in.Current), nil
	case KindTime:
		if err := requireProfiles(model, ProfileMin, ProfileMax); err != nil {
			return Target{}, err
		}
		window := in.Window
		window.DeltaMinutes = mode.DeltaMinutes
		phase, err := daylight.Classify(window)
		if err != nil {
			return Target{}, err
		}
		if phase == daylight.Day {
			return ProfileTarget(ProfileMax), nil
		}
		return ProfileTarget(ProfileMin), nil
	case KindSensor:
		return Target{}, ErrSensorMode
	default:
		return Target{}, fmt.Errorf("unsupported mode %s", mode)
	}
}

// selectToggle flips max to min and min to max. Readings that match neither
// profile select max.
func selectToggle(model *config.Model, current map[string]int) Target {
	maxValues, _ := model.Profile(ProfileMax)
	if matches(current, maxValues) {
		return ProfileTarget(ProfileMin)
	}
	return ProfileTarget(ProfileMax)
}

// matches compares readings to a profile display by display.
// Readings of displays outside the profile are ignored.
func matches(current, profile map[string]int) bool {
	if len(profile) == 0 {
		return false
	}
	for display, want := range profile {
		if got, ok := current[display]; !ok || got != want {
			return false
		}
	}
	return true
}

func requireProfiles(model *config.Model, names ...string) error {
	for _, name := range names {
		if !model.HasProfile(name) {
			return fmt.Errorf("%w %q: profile is required for this mode", ErrUnknownLevel, name)
		}
	}
	return nil
}
