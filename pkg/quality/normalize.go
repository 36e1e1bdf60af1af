package quality

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

type opaquer interface {
	Opaque() bool
}

// Normalize returns img in a color mode a lossy codec without alpha or
// palette support can encode. Paletted images and images carrying any
// non-opaque pixel are copied into an opaque NRGBA image; the alpha channel
// is dropped and the straight color values are kept. Already opaque
// truecolor, gray and YCbCr images are returned unchanged.
func Normalize(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidInput)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image bounds %v", ErrInvalidInput, img.Bounds())
	}

	if _, ok := img.(*image.Paletted); !ok {
		if o, ok := img.(opaquer); ok && o.Opaque() {
			return img, nil
		}
	}

	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst, nil
}
