// SPDX-License-Identifier: GPL-3.0-only

// Package config loads the dimmer configuration file and exposes the named
// brightness profiles as an immutable Model.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfigLoad is matched by every error returned from Load.
var ErrConfigLoad = errors.New("failed to load config")

// LoadError reports a configuration file that could not be read or is invalid.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("error reading config file at %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() []error {
	return []error{ErrConfigLoad, e.Err}
}

// Location pins the sunrise/sunset calculation to coordinates.
// When Auto is set the coordinates are looked up from the public IP address.
type Location struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Auto      bool    `yaml:"auto"`
}

// Sensor configures the webcam driven mode.
type Sensor struct {
	Device     string        `yaml:"device"`
	Curve      string        `yaml:"curve"`
	Rate       float64       `yaml:"rate"`
	Expression string        `yaml:"expression"`
	Interval   time.Duration `yaml:"interval"`
	Width      int           `yaml:"width"`
	Height     int           `yaml:"height"`
}

// DDC lists the i2c buses to drive over DDC/CI. An empty list probes all buses.
type DDC struct {
	Buses []int `yaml:"buses"`
}

// File is the decoded configuration document.
type File struct {
	BrightnessValues map[string]map[string]int `yaml:"brightness_values"`
	Location         Location                  `yaml:"location"`
	Sensor           Sensor                    `yaml:"sensor"`
	Backends         []string                  `yaml:"backends"`
	DDC              DDC                       `yaml:"ddc"`
}

const (
	defaultDevice   = "/dev/video0"
	defaultCurve    = "linear"
	defaultInterval = 250 * time.Millisecond
	defaultWidth    = 320
	defaultHeight   = 240
)

// DefaultBackends are used when the file does not list any.
var DefaultBackends = []string{"backlight", "ddc", "studio"}

// DefaultPath returns the per-user config location, e.g. ~/.config/dimmer/config.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config dir: %w", err)
	}
	return filepath.Join(dir, "dimmer", "config.yaml"), nil
}

// Load reads and validates the configuration file at path.
func Load(path string) (*File, *Model, error) {
	file, err := decode(path)
	if err != nil {
		return nil, nil, &LoadError{Path: path, Err: err}
	}

	model, err := NewModel(file.BrightnessValues)
	if err != nil {
		return nil, nil, &LoadError{Path: path, Err: err}
	}

	file.applyDefaults()
	return file, model, nil
}

// decode releases the file handle before returning.
func decode(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var file File
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	return &file, nil
}

func (f *File) applyDefaults() {
	if f.Sensor.Device == "" {
		f.Sensor.Device = defaultDevice
	}
	if f.Sensor.Curve == "" {
		f.Sensor.Curve = defaultCurve
	}
	if f.Sensor.Interval <= 0 {
		f.Sensor.Interval = defaultInterval
	}
	if f.Sensor.Width <= 0 {
		f.Sensor.Width = defaultWidth
	}
	if f.Sensor.Height <= 0 {
		f.Sensor.Height = defaultHeight
	}
	if len(f.Backends) == 0 {
		f.Backends = append([]string(nil), DefaultBackends...)
	}
}
