// Package tray maps the fixed menu presets to brightness modes and runs them.
package tray

import (
	"errors"
	"fmt"

	"github.com/shini4i/dimmer/internal/engine"
)

// Preset is an entry of the preset menu.
type Preset string

const (
	PresetDefault Preset = "Default"
	PresetMin     Preset = "Config(min)"
	PresetMax     Preset = "Config(max)"
	PresetWebcam  Preset = "Webcam"
	PresetTime    Preset = "Time based"
	PresetToggle  Preset = "Toggle"
	PresetQuit    Preset = "Quit"
)

// ErrUnknownPreset is returned for names that are not a menu entry.
var ErrUnknownPreset = errors.New("unknown preset")

// ErrQuit is returned when the Quit preset is triggered.
var ErrQuit = errors.New("quit requested")

var presets = []Preset{PresetDefault, PresetMin, PresetMax, PresetWebcam, PresetTime, PresetToggle, PresetQuit}

// Presets returns the menu entries in display order.
func Presets() []Preset {
	return append([]Preset(nil), presets...)
}

// ParsePreset validates a preset name.
func ParsePreset(name string) (Preset, error) {
	for _, p := range presets {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownPreset, name)
}

// Mode returns the mode the preset runs. Quit has none.
func (p Preset) Mode(deltaMinutes int) (engine.Mode, bool) {
	switch p {
	case PresetDefault:
		return engine.Level(engine.ProfileDefault), true
	case PresetMin:
		return engine.Level(engine.ProfileMin), true
	case PresetMax:
		return engine.Level(engine.ProfileMax), true
	case PresetWebcam:
		return engine.Sensor(), true
	case PresetTime:
		return engine.TimeBased(deltaMinutes), true
	case PresetToggle:
		return engine.Toggle(), true
	}
	return engine.Mode{}, false
}
