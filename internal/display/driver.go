// SPDX-License-Identifier: GPL-3.0-only

// Package display routes per-display brightness reads and writes to the
// backend that owns each display.
package display

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrUnknownBackend is returned for display ids whose backend is not loaded.
var ErrUnknownBackend = errors.New("unknown display backend")

// ErrInvalidID is returned for display ids without a backend prefix.
var ErrInvalidID = errors.New("display id must look like <backend>/<name>")

// Backend controls one family of displays (sysfs backlights, DDC/CI monitors, ...).
type Backend interface {
	// Name is the id prefix of the backend's displays.
	Name() string

	// Displays lists the names of the displays the backend can drive.
	Displays() ([]string, error)

	// Brightness returns the percentage of the named display.
	Brightness(name string) (int, error)

	// SetBrightness sets the named display to percent.
	SetBrightness(name string, percent int) error

	// Close releases the backend's resources.
	Close() error
}

// ID joins a backend name and a display name.
func ID(backend, name string) string {
	return backend + "/" + name
}

// ParseID splits a display id into backend and display name.
func ParseID(id string) (string, string, error) {
	backend, name, ok := strings.Cut(id, "/")
	if !ok || backend == "" || name == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return backend, name, nil
}

// Driver dispatches to backends by display id prefix.
type Driver struct {
	mu       sync.Mutex
	backends map[string]Backend
	order    []string
}

// NewDriver creates a driver over backends. Later backends with a duplicate
// name replace earlier ones.
func NewDriver(backends ...Backend) *Driver {
	d := &Driver{backends: make(map[string]Backend, len(backends))}
	for _, b := range backends {
		if _, exists := d.backends[b.Name()]; !exists {
			d.order = append(d.order, b.Name())
		}
		d.backends[b.Name()] = b
	}
	return d
}

// Displays returns the ids of every display of every backend.
// Backends that fail to enumerate are skipped and reported in the error.
func (d *Driver) Displays() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var (
		ids  []string
		errs []error
	)
	for _, name := range d.order {
		names, err := d.backends[name].Displays()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		for _, n := range names {
			ids = append(ids, ID(name, n))
		}
	}
	return ids, errors.Join(errs...)
}

// GetBrightness reads every display. Displays that cannot be read are left out
// of the map and reported in the error.
func (d *Driver) GetBrightness() (map[string]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	values := make(map[string]int)
	var errs []error
	for _, name := range d.order {
		backend := d.backends[name]
		names, err := backend.Displays()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		for _, n := range names {
			percent, err := backend.Brightness(n)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", ID(name, n), err))
				continue
			}
			values[ID(name, n)] = percent
		}
	}

	log.Debug().Int("count", len(values)).Msg("Read brightness")
	return values, errors.Join(errs...)
}

// SetBrightness sets the display with the given id.
func (d *Driver) SetBrightness(id string, percent int) error {
	backendName, name, err := ParseID(id)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	backend, ok := d.backends[backendName]
	if !ok {
		return fmt.Errorf("%w %q in %q", ErrUnknownBackend, backendName, id)
	}
	return backend.SetBrightness(name, percent)
}

// Close closes every backend.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for _, name := range d.order {
		if err := d.backends[name].Close(); err != nil {
			log.Error().Err(err).Str("backend", name).Msg("Failed to close display backend")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
