// SPDX-License-Identifier: GPL-3.0-only

package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Validation errors returned by NewModel.
var (
	ErrNoProfiles         = errors.New("brightness_values must define at least one profile")
	ErrValueOutOfRange    = errors.New("brightness value must be between 0 and 100")
	ErrDisplaySetMismatch = errors.New("all profiles must define the same displays")
)

// Model holds the named brightness profiles. It is read-only after construction.
type Model struct {
	profiles map[string]map[string]int
	displays []string
}

// NewModel validates and copies the profile map.
func NewModel(profiles map[string]map[string]int) (*Model, error) {
	if len(profiles) == 0 {
		return nil, ErrNoProfiles
	}

	m := &Model{profiles: make(map[string]map[string]int, len(profiles))}

	var (
		reference     []string
		referenceName string
		first         = true
	)
	for _, name := range slices.Sorted(maps.Keys(profiles)) {
		values := profiles[name]
		for display, value := range values {
			if value < 0 || value > 100 {
				return nil, fmt.Errorf("%w: profile %q display %q has %d", ErrValueOutOfRange, name, display, value)
			}
		}

		displays := slices.Sorted(maps.Keys(values))
		if first {
			reference, referenceName, first = displays, name, false
		} else if !slices.Equal(reference, displays) {
			return nil, fmt.Errorf("%w: %q has %v, %q has %v", ErrDisplaySetMismatch, referenceName, reference, name, displays)
		}

		m.profiles[name] = maps.Clone(values)
	}

	m.displays = reference
	return m, nil
}

// Profile returns a copy of the named profile.
func (m *Model) Profile(name string) (map[string]int, bool) {
	values, ok := m.profiles[name]
	if !ok {
		return nil, false
	}
	return maps.Clone(values), true
}

// Value returns the brightness of display in the named profile.
func (m *Model) Value(name, display string) (int, bool) {
	values, ok := m.profiles[name]
	if !ok {
		return 0, false
	}
	value, ok := values[display]
	return value, ok
}

// HasProfile reports whether the named profile exists.
func (m *Model) HasProfile(name string) bool {
	_, ok := m.profiles[name]
	return ok
}

// Profiles returns the sorted profile names.
func (m *Model) Profiles() []string {
	return slices.Sorted(maps.Keys(m.profiles))
}

// Displays returns the sorted union of display ids across all profiles.
func (m *Model) Displays() []string {
	return slices.Clone(m.displays)
}
