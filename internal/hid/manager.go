// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
)

// BackendName is the display id prefix of Studio Displays.
const BackendName = "studio"

// ErrDisplayNotFound is returned for serials that are not connected.
var ErrDisplayNotFound = errors.New("display not found")

// Manager tracks connected Studio Displays by serial and implements
// display.Backend over them.
type Manager struct {
	displays   map[string]*Display
	mu         sync.RWMutex
	enumerator Enumerator
	opener     Opener
}

// ManagerOption is a functional option for configuring a Manager.
type ManagerOption func(*Manager)

// WithEnumerator sets a custom device enumerator for testing.
func WithEnumerator(fn Enumerator) ManagerOption {
	return func(m *Manager) {
		m.enumerator = fn
	}
}

// WithOpener sets a custom device opener for testing.
func WithOpener(fn Opener) ManagerOption {
	return func(m *Manager) {
		m.opener = fn
	}
}

// NewManager creates a new display manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		displays:   make(map[string]*Display),
		enumerator: EnumerateDisplays,
		opener:     OpenDisplay,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements display.Backend.
func (m *Manager) Name() string {
	return BackendName
}

// Displays refreshes the connected set and returns the serials, sorted.
func (m *Manager) Displays() ([]string, error) {
	if err := m.RefreshDisplays(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.displays)), nil
}

// Brightness reads the display with the given serial.
func (m *Manager) Brightness(serial string) (int, error) {
	display, err := m.GetDisplay(serial)
	if err != nil {
		return 0, err
	}

	percent, err := display.Brightness()
	if err != nil {
		m.forgetIfGone(serial, err)
		return 0, err
	}
	return percent, nil
}

// SetBrightness sets the display with the given serial.
func (m *Manager) SetBrightness(serial string, percent int) error {
	display, err := m.GetDisplay(serial)
	if err != nil {
		return err
	}

	if err := display.SetBrightness(percent); err != nil {
		m.forgetIfGone(serial, err)
		return err
	}
	log.Debug().Str("serial", serial).Int("percent", percent).Msg("Studio Display brightness updated")
	return nil
}

// GetDisplay returns a connected display, opening it if it was plugged in
// since the last refresh.
func (m *Manager) GetDisplay(serial string) (*Display, error) {
	m.mu.RLock()
	display, ok := m.displays[serial]
	m.mu.RUnlock()
	if ok {
		return display, nil
	}

	if err := m.RefreshDisplays(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if display, ok := m.displays[serial]; ok {
		return display, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrDisplayNotFound, serial)
}

// RefreshDisplays re-enumerates connected displays, opening new ones and
// closing those that went away.
func (m *Manager) RefreshDisplays() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.enumerator()
	if err != nil {
		return fmt.Errorf("failed to enumerate displays: %w", err)
	}

	connected := make(map[string]DeviceInfo, len(current))
	for _, info := range current {
		connected[info.Serial] = info
	}

	for serial, display := range m.displays {
		if _, ok := connected[serial]; ok {
			continue
		}
		log.Info().Str("serial", serial).Msg("Display disconnected")
		if err := display.Close(); err != nil {
			log.Warn().Err(err).Str("serial", serial).Msg("Failed to close disconnected display")
		}
		delete(m.displays, serial)
	}

	for serial, info := range connected {
		if _, ok := m.displays[serial]; ok {
			continue
		}
		device, err := m.opener(serial)
		if err != nil {
			log.Error().Err(err).Str("serial", serial).Msg("Failed to open display")
			continue
		}
		m.displays[serial] = NewDisplay(device)
		log.Info().Str("serial", serial).Str("product", info.Product).Msg("Display connected")
	}
	return nil
}

// Count returns the number of connected displays.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.displays)
}

// Close closes all open displays.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for serial, display := range m.displays {
		if err := display.Close(); err != nil {
			log.Error().Err(err).Str("serial", serial).Msg("Failed to close display")
		}
		delete(m.displays, serial)
	}
	return nil
}

func (m *Manager) forgetIfGone(serial string, err error) {
	if !IsDeviceGoneError(err) {
		return
	}
	log.Warn().Err(err).Str("serial", serial).Msg("Display gone, dropping it")

	m.mu.Lock()
	defer m.mu.Unlock()
	if display, ok := m.displays[serial]; ok {
		_ = display.Close()
		delete(m.displays, serial)
	}
}
