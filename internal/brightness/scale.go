// SPDX-License-Identifier: GPL-3.0-only

// Package brightness converts between raw hardware brightness values and the
// percentages (0-100) used everywhere else in dimmer.
package brightness

import "math"

// Scale describes the raw value range of a brightness control.
type Scale struct {
	Min uint32
	Max uint32
}

// StudioDisplay is the nits range supported by the Apple Studio Display.
var StudioDisplay = Scale{Min: 400, Max: 60000}

// Range returns the difference between the maximum and minimum raw value.
func (s Scale) Range() uint32 {
	if s.Max <= s.Min {
		return 0
	}
	return s.Max - s.Min
}

// ToPercent converts a raw value to a percentage (0-100).
// Values outside the scale are clamped before conversion.
// Uses rounding to ensure round-trip consistency with FromPercent.
func (s Scale) ToPercent(raw uint32) int {
	if s.Range() == 0 {
		return 0
	}
	raw = s.Clamp(raw)
	percent := float64(raw-s.Min) / float64(s.Range()) * 100
	return int(math.Round(percent))
}

// FromPercent converts a percentage to a raw value on the scale.
// Percentages outside 0-100 are clamped first.
func (s Scale) FromPercent(percent int) uint32 {
	percent = ClampPercent(percent)
	raw := uint32(math.Round(float64(percent)*float64(s.Range())/100)) + s.Min
	return s.Clamp(raw)
}

// Clamp ensures the raw value is within the scale.
func (s Scale) Clamp(raw uint32) uint32 {
	if raw < s.Min {
		return s.Min
	}
	if raw > s.Max {
		return s.Max
	}
	return raw
}

// ClampPercent limits a percentage to 0-100.
func ClampPercent(percent int) int {
	return min(max(percent, 0), 100)
}

// RoundPercent rounds a fractional percentage and clamps it to 0-100.
func RoundPercent(percent float64) int {
	if math.IsNaN(percent) {
		return 0
	}
	return ClampPercent(int(math.Round(percent)))
}
