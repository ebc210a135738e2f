package camera

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// V4L2 fourcc codes of the pixel formats we can decode.
const (
	FormatYUYV  uint32 = 0x56595559 // 'YUYV'
	FormatMJPEG uint32 = 0x47504A4D // 'MJPG'
)

// thumbnailSize bounds the work per sample; the mean survives downscaling.
const thumbnailSize = 64

// ErrShortFrame is returned when a raw frame is smaller than its dimensions.
var ErrShortFrame = errors.New("frame is shorter than expected")

// ErrUnsupportedFormat is returned for pixel formats other than YUYV and MJPEG.
var ErrUnsupportedFormat = errors.New("unsupported pixel format")

// DecodeFrame converts a raw V4L2 buffer into an image.
func DecodeFrame(format uint32, data []byte, width, height int) (image.Image, error) {
	switch format {
	case FormatYUYV:
		return decodeYUYV(data, width, height)
	case FormatMJPEG:
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode mjpeg frame: %w", err)
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%w 0x%08X", ErrUnsupportedFormat, format)
	}
}

// decodeYUYV unpacks packed 4:2:2 (Y0 U Y1 V) into planar YCbCr.
func decodeYUYV(data []byte, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, fmt.Errorf("invalid yuyv dimensions %dx%d", width, height)
	}
	if len(data) < width*height*2 {
		return nil, fmt.Errorf("%w: got %d bytes for %dx%d", ErrShortFrame, len(data), width, height)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for y := 0; y < height; y++ {
		row := data[y*width*2:]
		for x := 0; x < width; x += 2 {
			i := x * 2
			img.Y[y*img.YStride+x] = row[i]
			img.Y[y*img.YStride+x+1] = row[i+2]
			img.Cb[y*img.CStride+x/2] = row[i+1]
			img.Cr[y*img.CStride+x/2] = row[i+3]
		}
	}
	return img, nil
}

// FrameBrightness returns the mean HSV value (max of R, G and B) of img on a
// 0-255 scale.
func FrameBrightness(img image.Image) float64 {
	bounds := img.Bounds()
	if bounds.Empty() {
		return 0
	}

	w, h := min(bounds.Dx(), thumbnailSize), min(bounds.Dy(), thumbnailSize)
	thumb := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), img, bounds, draw.Src, nil)

	var sum float64
	for i := 0; i < len(thumb.Pix); i += 4 {
		sum += float64(max(thumb.Pix[i], thumb.Pix[i+1], thumb.Pix[i+2]))
	}
	return sum / float64(w*h)
}
