// Package camera samples ambient brightness from a V4L2 webcam.
package camera

import (
	"errors"
	"fmt"

	"github.com/blackjack/webcam"
	"github.com/rs/zerolog/log"
)

// ErrDeviceUnavailable is returned when the capture device cannot be opened
// or configured.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

// ErrFrameTimeout is returned when no frame arrives in time.
var ErrFrameTimeout = errors.New("timed out waiting for frame")

// frameTimeoutSeconds is passed to WaitForFrame.
const frameTimeoutSeconds = 5

// Sampler produces ambient brightness samples in [0,255].
type Sampler interface {
	Sample() (float64, error)
	Close() error
}

// Opener opens a Sampler. The sensor loop calls it once per run.
type Opener func() (Sampler, error)

// Webcam captures frames from a V4L2 device.
type Webcam struct {
	cam    *webcam.Webcam
	format uint32
	width  int
	height int
}

// Verify Webcam implements Sampler.
var _ Sampler = (*Webcam)(nil)

// Open opens device (e.g. /dev/video0), negotiates YUYV or MJPEG at roughly
// the requested size and starts streaming.
func Open(device string, width, height int) (*Webcam, error) {
	cam, err := webcam.Open(device)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, device, err)
	}

	w := &Webcam{cam: cam}
	if err := w.configure(width, height); err != nil {
		_ = cam.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, device, err)
	}

	if err := cam.StartStreaming(); err != nil {
		_ = cam.Close()
		return nil, fmt.Errorf("%w: %s: failed to start streaming: %w", ErrDeviceUnavailable, device, err)
	}

	log.Info().
		Str("device", device).
		Int("width", w.width).
		Int("height", w.height).
		Str("format", formatName(w.format)).
		Msg("Webcam opened")
	return w, nil
}

// NewOpener returns an Opener for device.
func NewOpener(device string, width, height int) Opener {
	return func() (Sampler, error) {
		return Open(device, width, height)
	}
}

func (w *Webcam) configure(width, height int) error {
	supported := w.cam.GetSupportedFormats()

	var format webcam.PixelFormat
	found := false
	for _, candidate := range []uint32{FormatYUYV, FormatMJPEG} {
		if _, ok := supported[webcam.PixelFormat(candidate)]; ok {
			format, found = webcam.PixelFormat(candidate), true
			break
		}
	}
	if !found {
		return ErrUnsupportedFormat
	}

	actual, aw, ah, err := w.cam.SetImageFormat(format, uint32(width), uint32(height))
	if err != nil {
		return fmt.Errorf("failed to set image format: %w", err)
	}

	w.format = uint32(actual)
	w.width = int(aw)
	w.height = int(ah)
	return nil
}

// Sample captures one frame and returns its mean brightness.
func (w *Webcam) Sample() (float64, error) {
	if err := w.cam.WaitForFrame(frameTimeoutSeconds); err != nil {
		var timeout *webcam.Timeout
		if errors.As(err, &timeout) {
			return 0, ErrFrameTimeout
		}
		return 0, fmt.Errorf("failed to wait for frame: %w", err)
	}

	data, err := w.cam.ReadFrame()
	if err != nil {
		return 0, fmt.Errorf("failed to read frame: %w", err)
	}
	if len(data) == 0 {
		return 0, ErrShortFrame
	}

	img, err := DecodeFrame(w.format, data, w.width, w.height)
	if err != nil {
		return 0, err
	}
	return FrameBrightness(img), nil
}

// Close stops streaming and releases the device.
func (w *Webcam) Close() error {
	if err := w.cam.StopStreaming(); err != nil {
		log.Warn().Err(err).Msg("Failed to stop webcam streaming")
	}
	return w.cam.Close()
}

func formatName(format uint32) string {
	switch format {
	case FormatYUYV:
		return "YUYV"
	case FormatMJPEG:
		return "MJPEG"
	default:
		return fmt.Sprintf("0x%08X", format)
	}
}
