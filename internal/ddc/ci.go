// Package ddc talks to external monitors over DDC/CI and exposes them as a
// display backend.
package ddc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

const (
	ioctlI2CSlave = 0x0703
	addrDDCCI     = 0x37
	addrHost      = 0x51
)

// VCP codes used by dimmer.
const (
	VCPBrightness = 0x10
	VCPContrast   = 0x12
)

var (
	ErrDeviceGone     = unix.EREMOTEIO
	ErrChecksum       = errors.New("invalid ddc checksum")
	ErrBadReply       = errors.New("bad ddc reply")
	ErrNoReply        = errors.New("no ddc reply")
	ErrUnsupportedVCP = errors.New("unsupported ddc vcp code")
)

// CI is an open connection to an I2C bus with a DDC/CI slave.
type CI struct {
	rw   io.ReadWriteCloser
	next time.Time
}

// Open opens /dev/i2c-<bus> and selects the DDC/CI slave address.
func Open(bus int) (*CI, error) {
	f, err := os.OpenFile("/dev/i2c-"+strconv.Itoa(bus), os.O_RDWR, os.ModeDevice)
	if err != nil {
		return nil, err
	}
	if err := unix.IoctlSetInt(int(f.Fd()), ioctlI2CSlave, addrDDCCI); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open address 0x%X on i2c bus %d: %w", addrDDCCI, bus, err)
	}
	return NewCI(f), nil
}

// NewCI wraps an already addressed bus.
func NewCI(rw io.ReadWriteCloser) *CI {
	return &CI{rw: rw}
}

// GetVCP returns the current and maximum value of a VCP.
func (d *CI) GetVCP(vcp byte) (uint16, uint16, error) {
	if err := d.tx([]byte{0x01, vcp}, 40*time.Millisecond); err != nil {
		return 0, 0, err
	}
	for range 5 {
		buf, err := d.rx()
		if errors.Is(err, ErrNoReply) || (err == nil && len(buf) == 0) {
			d.next = time.Now().Add(40 * time.Millisecond)
			continue
		}
		if err != nil {
			return 0, 0, err
		}
		if len(buf) != 8 {
			return 0, 0, fmt.Errorf("%w: unexpected vcp response length %d", ErrBadReply, len(buf))
		}
		if buf[0] != 0x02 {
			return 0, 0, fmt.Errorf("%w: unexpected reply opcode 0x%02X", ErrBadReply, buf[0])
		}
		switch buf[1] {
		case 0x00:
		case 0x01:
			return 0, 0, fmt.Errorf("%w 0x%02X", ErrUnsupportedVCP, vcp)
		default:
			return 0, 0, fmt.Errorf("%w: unexpected result code %d", ErrBadReply, buf[1])
		}
		if buf[2] != vcp {
			return 0, 0, fmt.Errorf("%w: reply for vcp 0x%02X, requested 0x%02X", ErrBadReply, buf[2], vcp)
		}
		maxValue := binary.BigEndian.Uint16(buf[4:6])
		value := binary.BigEndian.Uint16(buf[6:8])
		return value, maxValue, nil
	}
	return 0, 0, ErrNoReply
}

// SetVCP sets a VCP. DDC/CI gives no acknowledgement.
func (d *CI) SetVCP(vcp byte, value uint16) error {
	return d.tx([]byte{0x03, vcp, byte(value >> 8), byte(value)}, 50*time.Millisecond)
}

// Close closes the bus.
func (d *CI) Close() error {
	return d.rw.Close()
}

func (d *CI) tx(cmd []byte, wait time.Duration) error {
	d.wait()

	buf := append([]byte{addrHost, 0x80 | byte(len(cmd))}, cmd...)
	buf = append(buf, checksum(addrDDCCI<<1, buf))

	if _, err := d.rw.Write(buf); err != nil {
		return err
	}
	d.next = time.Now().Add(wait)
	return nil
}

func (d *CI) rx() ([]byte, error) {
	d.wait()

	hdr := make([]byte, 2)
	n, err := d.rw.Read(hdr)
	if err == nil && n != len(hdr) {
		err = fmt.Errorf("short ddc header read, expected %d bytes, got %d", len(hdr), n)
	}
	if err != nil {
		return nil, err
	}

	src := hdr[0] >> 1
	if src == 0 {
		return nil, ErrNoReply
	}
	if src != addrDDCCI {
		return nil, fmt.Errorf("%w: source address 0x%X", ErrBadReply, src)
	}
	if hdr[1]&0x80 == 0 {
		return nil, fmt.Errorf("%w: length flag not set", ErrBadReply)
	}
	size := int(hdr[1] &^ 0x80)

	buf := make([]byte, size+1)
	n, err = d.rw.Read(buf)
	if err == nil && n != len(buf) {
		err = fmt.Errorf("short ddc payload read, expected %d bytes, got %d", len(buf), n)
	}
	if err != nil {
		return nil, err
	}

	// Replies are checksummed against the virtual host address 0x50.
	if checksum(addrHost-1, append(hdr, buf...)) != 0 {
		return nil, ErrChecksum
	}
	return buf[:size], nil
}

func (d *CI) wait() {
	for t := time.Now(); t.Before(d.next); t = time.Now() {
		time.Sleep(d.next.Sub(t))
	}
}

func checksum(seed byte, data []byte) byte {
	for _, b := range data {
		seed ^= b
	}
	return seed
}
