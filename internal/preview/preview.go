// Package preview renders small JPEG thumbnails of uploaded images.
package preview

import (
	"errors"
	"image"

	"golang.org/x/image/draw"

	"github.com/harliandi/imgsqueeze/pkg/jpeg"
	"github.com/harliandi/imgsqueeze/pkg/quality"
)

const (
	DefaultWidth = 320
	MaxWidth     = 2048
	Quality      = 75
)

// ErrInvalidWidth is returned for widths outside 1..MaxWidth
var ErrInvalidWidth = errors.New("preview width out of range")

// Scale resizes img to width pixels wide, keeping the aspect ratio.
// Images already narrower than width are returned unchanged.
func Scale(img image.Image, width int) (image.Image, error) {
	if width <= 0 || width > MaxWidth {
		return nil, ErrInvalidWidth
	}
	b := img.Bounds()
	if b.Dx() <= width {
		return img, nil
	}

	height := b.Dy() * width / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, nil
}

// Render returns a JPEG thumbnail of img at most width pixels wide
func Render(img image.Image, width int) ([]byte, error) {
	flat, err := quality.Normalize(img)
	if err != nil {
		return nil, err
	}
	scaled, err := Scale(flat, width)
	if err != nil {
		return nil, err
	}
	return jpeg.Encode(scaled, Quality)
}
