package ddc_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/shini4i/dimmer/internal/ddc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMonitor answers DDC/CI requests the way a monitor on the bus would.
type fakeMonitor struct {
	value       uint16
	max         uint16
	unsupported bool
	silent      bool
	corrupt     bool
	writeErr    error
	written     [][]byte
	pending     []byte
	closed      bool
}

func (m *fakeMonitor) Write(p []byte) (int, error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	m.written = append(m.written, slices.Clone(p))

	cmd := p[2 : len(p)-1]
	switch cmd[0] {
	case 0x01:
		var result byte
		if m.unsupported {
			result = 0x01
		}
		m.pending = reply([]byte{0x02, result, cmd[1], 0x00, byte(m.max >> 8), byte(m.max), byte(m.value >> 8), byte(m.value)})
		if m.corrupt {
			m.pending[len(m.pending)-1] ^= 0xFF
		}
	case 0x03:
		m.value = uint16(cmd[2])<<8 | uint16(cmd[3])
	}
	return len(p), nil
}

func (m *fakeMonitor) Read(p []byte) (int, error) {
	if m.silent {
		clear(p)
		return len(p), nil
	}
	if len(m.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

func (m *fakeMonitor) Close() error {
	m.closed = true
	return nil
}

func reply(payload []byte) []byte {
	msg := append([]byte{0x6E, 0x80 | byte(len(payload))}, payload...)
	sum := byte(0x50)
	for _, b := range msg {
		sum ^= b
	}
	return append(msg, sum)
}

func TestCI_GetVCP(t *testing.T) {
	mon := &fakeMonitor{value: 40, max: 100}
	ci := ddc.NewCI(mon)

	value, maxValue, err := ci.GetVCP(ddc.VCPBrightness)
	require.NoError(t, err)
	assert.Equal(t, uint16(40), value)
	assert.Equal(t, uint16(100), maxValue)
	assert.Equal(t, [][]byte{{0x51, 0x82, 0x01, 0x10, 0xAC}}, mon.written)
}

func TestCI_SetVCP(t *testing.T) {
	mon := &fakeMonitor{max: 100}
	ci := ddc.NewCI(mon)

	require.NoError(t, ci.SetVCP(ddc.VCPBrightness, 0x32))
	assert.Equal(t, [][]byte{{0x51, 0x84, 0x03, 0x10, 0x00, 0x32, 0x9A}}, mon.written)
	assert.Equal(t, uint16(0x32), mon.value)

	require.NoError(t, ci.Close())
	assert.True(t, mon.closed)
}

func TestCI_GetVCPErrors(t *testing.T) {
	tests := []struct {
		name     string
		monitor  *fakeMonitor
		expected error
	}{
		{name: "unsupported", monitor: &fakeMonitor{unsupported: true}, expected: ddc.ErrUnsupportedVCP},
		{name: "checksum", monitor: &fakeMonitor{value: 1, max: 2, corrupt: true}, expected: ddc.ErrChecksum},
		{name: "no reply", monitor: &fakeMonitor{silent: true}, expected: ddc.ErrNoReply},
		{name: "gone", monitor: &fakeMonitor{writeErr: ddc.ErrDeviceGone}, expected: ddc.ErrDeviceGone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ddc.NewCI(tt.monitor).GetVCP(ddc.VCPBrightness)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func monitorOpener(monitors map[int]*fakeMonitor, opened *int) ddc.Opener {
	return func(bus int) (*ddc.CI, error) {
		*opened++
		mon, ok := monitors[bus]
		if !ok {
			return nil, os.ErrNotExist
		}
		return ddc.NewCI(mon), nil
	}
}

func TestBackend_BrightnessAndSet(t *testing.T) {
	monitors := map[int]*fakeMonitor{4: {value: 30, max: 100}, 5: {value: 10, max: 50}}
	var opened int
	b := ddc.NewBackend(ddc.WithBuses(4, 5), ddc.WithOpener(monitorOpener(monitors, &opened)))

	names, err := b.Displays()
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "5"}, names)

	percent, err := b.Brightness("5")
	require.NoError(t, err)
	assert.Equal(t, 20, percent)

	require.NoError(t, b.SetBrightness("5", 80))
	assert.Equal(t, uint16(40), monitors[5].value)

	require.NoError(t, b.SetBrightness("4", 75))
	assert.Equal(t, uint16(75), monitors[4].value)
	assert.Equal(t, 2, opened)

	require.NoError(t, b.Close())
	assert.True(t, monitors[4].closed)
	assert.True(t, monitors[5].closed)
}

func TestBackend_UnknownBus(t *testing.T) {
	var opened int
	b := ddc.NewBackend(ddc.WithBuses(4), ddc.WithOpener(monitorOpener(nil, &opened)))

	_, err := b.Brightness("7")
	assert.ErrorIs(t, err, ddc.ErrUnknownBus)

	err = b.SetBrightness("abc", 10)
	assert.ErrorIs(t, err, ddc.ErrUnknownBus)
	assert.Zero(t, opened)

	_, err = b.Brightness("4")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBackend_ReopensAfterDeviceGone(t *testing.T) {
	mon := &fakeMonitor{value: 50, max: 100}
	var opened int
	b := ddc.NewBackend(ddc.WithBuses(4), ddc.WithOpener(monitorOpener(map[int]*fakeMonitor{4: mon}, &opened)))

	require.NoError(t, b.SetBrightness("4", 60))

	mon.writeErr = ddc.ErrDeviceGone
	err := b.SetBrightness("4", 70)
	assert.True(t, errors.Is(err, ddc.ErrDeviceGone))
	assert.True(t, mon.closed)

	mon.writeErr = nil
	require.NoError(t, b.SetBrightness("4", 70))
	assert.Equal(t, uint16(70), mon.value)
	assert.Equal(t, 2, opened)
}

func TestFindBuses(t *testing.T) {
	drm := t.TempDir()
	connector := func(name, status string, buses ...string) {
		dir := filepath.Join(drm, name)
		require.NoError(t, os.MkdirAll(dir, 0755))
		if status != "" {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "status"), []byte(status+"\n"), 0600))
		}
		for _, bus := range buses {
			require.NoError(t, os.Mkdir(filepath.Join(dir, bus), 0755))
		}
	}
	connector("card0", "")
	connector("card0-DP-1", "connected", "i2c-4")
	connector("card0-HDMI-A-1", "disconnected", "i2c-5")
	connector("card1-eDP-1", "connected")
	connector("card1-DP-2", "connected", "i2c-12", "i2c-bogus")

	buses, err := ddc.FindBuses(drm)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 12}, buses)

	names, err := ddc.NewBackend(ddc.WithDRMPath(drm)).Displays()
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "12"}, names)

	buses, err = ddc.FindBuses(filepath.Join(drm, "missing"))
	require.NoError(t, err)
	assert.Empty(t, buses)
}
