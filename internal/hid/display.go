package hid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"

	"github.com/shini4i/dimmer/internal/brightness"
)

const (
	// ReportID is the feature report carrying the brightness in nits.
	ReportID byte = 0x01

	// ReportSize is the size of the brightness feature report.
	ReportSize = 7

	AppleVendorID          uint16 = 0x05ac
	StudioDisplayProductID uint16 = 0x1114

	// BrightnessInterface is the USB interface number exposing the report.
	BrightnessInterface = 0x07
)

// ErrDisplayClosed is returned by operations on a closed display.
var ErrDisplayClosed = errors.New("display is closed")

// Display is one Studio Display. It is safe for concurrent use.
type Display struct {
	device Device
	mu     sync.Mutex
	closed bool
}

// NewDisplay wraps an open device.
func NewDisplay(device Device) *Display {
	return &Display{device: device}
}

// Brightness reads the current brightness as a percentage.
func (d *Display) Brightness() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrDisplayClosed
	}

	report := make([]byte, ReportSize)
	report[0] = ReportID
	if _, err := d.device.GetFeatureReport(report); err != nil {
		return 0, fmt.Errorf("failed to get feature report: %w", err)
	}

	nits := binary.LittleEndian.Uint32(report[1:5])
	return brightness.StudioDisplay.ToPercent(nits), nil
}

// SetBrightness sets the brightness to percent, clamped to 0-100.
func (d *Display) SetBrightness(percent int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDisplayClosed
	}

	report := make([]byte, ReportSize)
	report[0] = ReportID
	binary.LittleEndian.PutUint32(report[1:5], brightness.StudioDisplay.FromPercent(percent))

	if _, err := d.device.SendFeatureReport(report); err != nil {
		return fmt.Errorf("failed to send feature report: %w", err)
	}
	return nil
}

// Serial returns the display's serial number.
func (d *Display) Serial() string {
	return d.device.Info().Serial
}

// Close closes the device. Closing twice is a no-op.
func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.device.Close()
}

// IsDeviceGoneError reports whether err means the display was unplugged.
func IsDeviceGoneError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDisplayClosed) || errors.Is(err, syscall.ENODEV) || errors.Is(err, syscall.ENXIO) {
		return true
	}
	// hidapi reports failures as plain strings.
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"no such device", "device not connected", "disconnected"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
