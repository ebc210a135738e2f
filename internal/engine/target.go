// SPDX-License-Identifier: GPL-3.0-only

package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shini4i/dimmer/internal/config"
)

// Errors returned while selecting or applying a target.
var (
	// ErrUnknownLevel is returned when a level is neither a percentage nor a profile.
	ErrUnknownLevel = errors.New("unknown brightness level")

	// ErrMissingDisplay is returned when a profile has no value for a display.
	ErrMissingDisplay = errors.New("profile has no value for display")

	// ErrDriver wraps failures of the brightness driver.
	ErrDriver = errors.New("brightness driver error")

	// ErrSensorMode is returned when a sensor mode is passed to Select.
	ErrSensorMode = errors.New("sensor mode produces levels continuously")

	// ErrNoTimeSource is returned when a time based mode runs without a time source.
	ErrNoTimeSource = errors.New("no sunrise/sunset source configured")
)

// Target is either a profile name or a literal percentage.
type Target struct {
	profile string
	literal int
	isLit   bool
}

// ProfileTarget targets the per-display values of a profile.
func ProfileTarget(name string) Target {
	return Target{profile: name}
}

// LiteralTarget targets the same percentage on every display.
func LiteralTarget(percent int) Target {
	return Target{literal: percent, isLit: true}
}

// IsLiteral reports whether the target is a literal percentage.
func (t Target) IsLiteral() bool {
	return t.isLit
}

// Profile returns the profile name; empty for literal targets.
func (t Target) Profile() string {
	return t.profile
}

// Literal returns the percentage; zero for profile targets.
func (t Target) Literal() int {
	return t.literal
}

func (t Target) String() string {
	if t.isLit {
		return strconv.Itoa(t.literal) + "%"
	}
	return t.profile
}

// ParseLevel resolves an explicit level once: integers in [0,100] are literal
// percentages, anything else must name a profile.
func ParseLevel(model *config.Model, level string) (Target, error) {
	trimmed := strings.TrimSpace(level)
	if percent, err := strconv.Atoi(trimmed); err == nil && percent >= 0 && percent <= 100 {
		return LiteralTarget(percent), nil
	}
	if model.HasProfile(level) {
		return ProfileTarget(level), nil
	}
	return Target{}, fmt.Errorf("%w %q (profiles: %s)", ErrUnknownLevel, level, strings.Join(model.Profiles(), ", "))
}
