package hid

import (
	"fmt"

	karalabehid "github.com/karalabe/hid"
)

type hidapiDevice struct {
	karalabehid.Device
	info DeviceInfo
}

var _ Device = (*hidapiDevice)(nil)

func (d *hidapiDevice) Info() DeviceInfo {
	return d.info
}

func toDeviceInfo(info karalabehid.DeviceInfo) DeviceInfo {
	return DeviceInfo{
		Path:      info.Path,
		Serial:    info.Serial,
		Product:   info.Product,
		Interface: info.Interface,
	}
}

func brightnessInterfaces() ([]karalabehid.DeviceInfo, error) {
	devices, err := karalabehid.Enumerate(AppleVendorID, StudioDisplayProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate HID devices: %w", err)
	}

	var found []karalabehid.DeviceInfo
	for _, device := range devices {
		if device.Interface == BrightnessInterface {
			found = append(found, device)
		}
	}
	return found, nil
}

// EnumerateDisplays lists the connected Studio Displays.
func EnumerateDisplays() ([]DeviceInfo, error) {
	devices, err := brightnessInterfaces()
	if err != nil {
		return nil, err
	}

	infos := make([]DeviceInfo, 0, len(devices))
	for _, device := range devices {
		infos = append(infos, toDeviceInfo(device))
	}
	return infos, nil
}

// OpenDisplay opens the Studio Display with the given serial.
func OpenDisplay(serial string) (Device, error) {
	devices, err := brightnessInterfaces()
	if err != nil {
		return nil, err
	}

	for _, info := range devices {
		if info.Serial != serial {
			continue
		}
		device, err := info.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open display %s: %w", serial, err)
		}
		return &hidapiDevice{Device: device, info: toDeviceInfo(info)}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrDisplayNotFound, serial)
}
