// Package jpeg provides the JPEG encoders the quality search drives.
//
// Encode uses the standard library. EncodeTurbo goes through libjpeg-turbo
// via CGO and writes progressive, Huffman-optimized files; it is only compiled
// with the turbojpeg build tag.
package jpeg

import (
	"errors"
	"image"
	"image/jpeg"
)

const (
	// DefaultQuality is the default JPEG quality
	DefaultQuality = 85
	// MinQuality is the minimum quality
	MinQuality = 1
	// MaxQuality is the maximum quality
	MaxQuality = 100
)

// ErrTurboUnavailable is returned by EncodeTurbo when the binary was built
// without libjpeg-turbo support.
var ErrTurboUnavailable = errors.New("libjpeg-turbo encoder not compiled in (build with -tags turbojpeg)")

// Encode encodes img as baseline JPEG with the standard library encoder.
// Huffman tables are not optimized and output is not progressive, so at the
// same quality files run larger than EncodeTurbo's and the search settles on
// a lower quality for the same target.
func Encode(img image.Image, quality int) ([]byte, error) {
	quality = clampQuality(quality)

	b := img.Bounds()
	buf := encodeBuffers.get(sizeHint(b.Dx(), b.Dy(), quality))
	defer encodeBuffers.put(buf)

	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return detach(buf), nil
}

// Encoder encodes with the standard library.
type Encoder struct{}

// Encode implements quality.Encoder.
func (Encoder) Encode(img image.Image, quality int) ([]byte, error) {
	return Encode(img, quality)
}

// TurboEncoder encodes through libjpeg-turbo.
type TurboEncoder struct{}

// Encode implements quality.Encoder.
func (TurboEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	return EncodeTurbo(img, quality)
}

func clampQuality(quality int) int {
	if quality < MinQuality {
		return MinQuality
	}
	if quality > MaxQuality {
		return MaxQuality
	}
	return quality
}
