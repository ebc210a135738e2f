// Package hid drives Apple Studio Displays, whose brightness is only reachable
// through a USB HID feature report.
package hid

//go:generate mockgen -source=device.go -destination=mocks/device_mock.go -package=mocks

// DeviceInfo describes an enumerated HID interface.
type DeviceInfo struct {
	Path      string
	Serial    string
	Product   string
	Interface int
}

// Device is an open HID interface.
type Device interface {
	// GetFeatureReport reads a feature report. data[0] is the report ID.
	GetFeatureReport(data []byte) (int, error)

	// SendFeatureReport writes a feature report. data[0] is the report ID.
	SendFeatureReport(data []byte) (int, error)

	// Close closes the device handle.
	Close() error

	// Info returns what enumeration reported for the device.
	Info() DeviceInfo
}

// Enumerator lists the brightness interfaces of connected displays.
type Enumerator func() ([]DeviceInfo, error)

// Opener opens the brightness interface of the display with the given serial.
type Opener func(serial string) (Device, error)
