package ddc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/dimmer/internal/brightness"
)

// BackendName is the display id prefix of DDC/CI monitors.
const BackendName = "ddc"

// DefaultDRMPath is where connectors and their i2c buses are listed.
const DefaultDRMPath = "/sys/class/drm"

// ErrUnknownBus is returned for display names that are not a known bus.
var ErrUnknownBus = errors.New("unknown ddc bus")

// Opener opens the DDC/CI channel on an i2c bus.
type Opener func(bus int) (*CI, error)

// Backend implements display.Backend for DDC/CI monitors, one per i2c bus.
type Backend struct {
	mu      sync.Mutex
	buses   []int
	drmPath string
	open    Opener
	conns   map[int]*CI
	maxima  map[int]uint16
}

// Option is a functional option for configuring a Backend.
type Option func(*Backend)

// WithBuses pins the backend to the given buses instead of probing DRM connectors.
func WithBuses(buses ...int) Option {
	return func(b *Backend) {
		b.buses = slices.Clone(buses)
	}
}

// WithDRMPath overrides the sysfs DRM directory.
func WithDRMPath(path string) Option {
	return func(b *Backend) {
		b.drmPath = path
	}
}

// WithOpener overrides how buses are opened.
func WithOpener(open Opener) Option {
	return func(b *Backend) {
		b.open = open
	}
}

// NewBackend creates a DDC/CI backend.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		drmPath: DefaultDRMPath,
		open:    Open,
		conns:   make(map[int]*CI),
		maxima:  make(map[int]uint16),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements display.Backend.
func (b *Backend) Name() string {
	return BackendName
}

// Displays lists the buses of connected monitors, or the configured buses.
func (b *Backend) Displays() ([]string, error) {
	buses := b.buses
	if len(buses) == 0 {
		var err error
		if buses, err = FindBuses(b.drmPath); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(buses))
	for _, bus := range buses {
		names = append(names, strconv.Itoa(bus))
	}
	return names, nil
}

// Brightness reads VCP 0x10 of the monitor on the named bus.
func (b *Backend) Brightness(name string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bus, ci, err := b.conn(name)
	if err != nil {
		return 0, err
	}

	value, maxValue, err := ci.GetVCP(VCPBrightness)
	if err != nil {
		b.dropOnGone(bus, err)
		return 0, fmt.Errorf("failed to read brightness on bus %d: %w", bus, err)
	}
	b.maxima[bus] = maxValue
	return brightness.Scale{Max: uint32(maxValue)}.ToPercent(uint32(value)), nil
}

// SetBrightness writes VCP 0x10 of the monitor on the named bus.
func (b *Backend) SetBrightness(name string, percent int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bus, ci, err := b.conn(name)
	if err != nil {
		return err
	}

	maxValue, ok := b.maxima[bus]
	if !ok {
		if _, maxValue, err = ci.GetVCP(VCPBrightness); err != nil {
			b.dropOnGone(bus, err)
			return fmt.Errorf("failed to read brightness range on bus %d: %w", bus, err)
		}
		b.maxima[bus] = maxValue
	}

	raw := brightness.Scale{Max: uint32(maxValue)}.FromPercent(percent)
	if err := ci.SetVCP(VCPBrightness, uint16(raw)); err != nil {
		b.dropOnGone(bus, err)
		return fmt.Errorf("failed to set brightness on bus %d: %w", bus, err)
	}

	log.Debug().Int("bus", bus).Uint32("raw", raw).Int("percent", percent).Msg("DDC brightness updated")
	return nil
}

// Close closes every open bus.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for bus, ci := range b.conns {
		if err := ci.Close(); err != nil {
			errs = append(errs, fmt.Errorf("bus %d: %w", bus, err))
		}
		delete(b.conns, bus)
	}
	clear(b.maxima)
	return errors.Join(errs...)
}

func (b *Backend) conn(name string) (int, *CI, error) {
	bus, err := strconv.Atoi(name)
	if err != nil || bus < 0 {
		return 0, nil, fmt.Errorf("%w %q", ErrUnknownBus, name)
	}
	if len(b.buses) > 0 && !slices.Contains(b.buses, bus) {
		return 0, nil, fmt.Errorf("%w %q", ErrUnknownBus, name)
	}

	if ci, ok := b.conns[bus]; ok {
		return bus, ci, nil
	}
	ci, err := b.open(bus)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to open i2c bus %d: %w", bus, err)
	}
	b.conns[bus] = ci
	log.Debug().Int("bus", bus).Msg("Opened DDC/CI bus")
	return bus, ci, nil
}

// dropOnGone forgets a bus whose monitor was unplugged, so the next call reopens it.
func (b *Backend) dropOnGone(bus int, err error) {
	if !errors.Is(err, ErrDeviceGone) {
		return
	}
	if ci, ok := b.conns[bus]; ok {
		_ = ci.Close()
		delete(b.conns, bus)
	}
	delete(b.maxima, bus)
	log.Warn().Int("bus", bus).Msg("DDC/CI monitor gone")
}

// FindBuses returns the i2c buses exposed by connected DRM connectors.
func FindBuses(drmPath string) ([]int, error) {
	entries, err := os.ReadDir(drmPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list drm nodes: %w", err)
	}

	var buses []int
	for _, e := range entries {
		// Connectors look like card0-DP-1, plain cardN entries are GPUs.
		if !strings.HasPrefix(e.Name(), "card") || !strings.Contains(e.Name(), "-") {
			continue
		}
		connector := filepath.Join(drmPath, e.Name())
		status, err := os.ReadFile(filepath.Join(connector, "status"))
		if err != nil || strings.TrimSpace(string(status)) != "connected" {
			continue
		}
		children, err := os.ReadDir(connector)
		if err != nil {
			continue
		}
		for _, c := range children {
			if s, ok := strings.CutPrefix(c.Name(), "i2c-"); ok {
				if n, err := strconv.Atoi(s); err == nil {
					buses = append(buses, n)
				}
			}
		}
	}
	slices.Sort(buses)
	return slices.Compact(buses), nil
}
