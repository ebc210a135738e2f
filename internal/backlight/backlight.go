// Package backlight drives laptop panels through /sys/class/backlight.
// Values are read from sysfs and written through systemd-logind, which lets
// unprivileged session users change the brightness.
package backlight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"

	"github.com/shini4i/dimmer/internal/brightness"
)

// BackendName is the display id prefix of backlight devices.
const BackendName = "backlight"

// DefaultBasePath is where the kernel exposes backlight devices.
const DefaultBasePath = "/sys/class/backlight"

const (
	logindService = "org.freedesktop.login1"
	logindSession = "/org/freedesktop/login1/session/auto"
	logindMethod  = "org.freedesktop.login1.Session.SetBrightness"
)

// ErrInvalidName is returned for device names that would escape the base path.
var ErrInvalidName = errors.New("invalid backlight device name")

// ErrNoWriter is returned when a backend was built without a writer.
var ErrNoWriter = errors.New("no backlight writer configured")

// Writer stores a raw brightness value for the named device.
type Writer func(name string, value uint32) error

// Backend implements display.Backend for sysfs backlights.
type Backend struct {
	base   string
	write  Writer
	closer func() error
}

// Option is a functional option for configuring a Backend.
type Option func(*Backend)

// WithBasePath overrides the sysfs directory, for tests.
func WithBasePath(path string) Option {
	return func(b *Backend) {
		b.base = path
	}
}

// WithWriter sets how raw values are written.
func WithWriter(w Writer) Option {
	return func(b *Backend) {
		b.write = w
	}
}

// New creates a backend. Without WithWriter it can only read.
func New(opts ...Option) *Backend {
	b := &Backend{base: DefaultBasePath}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewLogind creates a backend writing through logind on the system bus.
func NewLogind(opts ...Option) (*Backend, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	b := New(append([]Option{WithWriter(LogindWriter(conn))}, opts...)...)
	b.closer = conn.Close
	return b, nil
}

// LogindWriter calls org.freedesktop.login1.Session.SetBrightness.
func LogindWriter(conn *dbus.Conn) Writer {
	return func(name string, value uint32) error {
		obj := conn.Object(logindService, logindSession)
		return obj.Call(logindMethod, 0, BackendName, name, value).Err
	}
}

// Name implements display.Backend.
func (b *Backend) Name() string {
	return BackendName
}

// Displays lists the backlight devices.
func (b *Backend) Displays() ([]string, error) {
	entries, err := os.ReadDir(b.base)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list backlights: %w", err)
	}

	var names []string
	for _, e := range entries {
		// sysfs entries are symlinks, Stat follows them.
		info, err := os.Stat(filepath.Join(b.base, e.Name()))
		if err != nil || !info.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Brightness returns the current percentage of the named device.
func (b *Backend) Brightness(name string) (int, error) {
	scale, err := b.scale(name)
	if err != nil {
		return 0, err
	}
	raw, err := b.readUint(name, "brightness")
	if err != nil {
		return 0, err
	}
	return scale.ToPercent(raw), nil
}

// SetBrightness writes percent to the named device.
func (b *Backend) SetBrightness(name string, percent int) error {
	if b.write == nil {
		return ErrNoWriter
	}
	scale, err := b.scale(name)
	if err != nil {
		return err
	}

	raw := scale.FromPercent(percent)
	if err := b.write(name, raw); err != nil {
		return fmt.Errorf("failed to set backlight %s: %w", name, err)
	}

	log.Debug().Str("device", name).Uint32("raw", raw).Int("percent", percent).Msg("Backlight updated")
	return nil
}

// Close releases the bus connection, if any.
func (b *Backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

func (b *Backend) scale(name string) (brightness.Scale, error) {
	maxRaw, err := b.readUint(name, "max_brightness")
	if err != nil {
		return brightness.Scale{}, err
	}
	if maxRaw == 0 {
		return brightness.Scale{}, fmt.Errorf("backlight %s reports max_brightness 0", name)
	}
	return brightness.Scale{Max: maxRaw}, nil
}

func (b *Backend) readUint(name, file string) (uint32, error) {
	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return 0, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	raw, err := os.ReadFile(filepath.Join(b.base, name, file))
	if err != nil {
		return 0, fmt.Errorf("failed to read %s of %s: %w", file, name, err)
	}

	value, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s of %s: %w", file, name, err)
	}
	return uint32(value), nil
}
