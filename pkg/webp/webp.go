// Package webp encodes lossy WebP output through github.com/chai2010/webp.
package webp

import (
	"bytes"
	"image"

	"github.com/chai2010/webp"
)

// Encode encodes img as lossy WebP at the given quality (0-100).
func Encode(img image.Image, quality int) ([]byte, error) {
	if quality < 0 {
		quality = 0
	}
	if quality > 100 {
		quality = 100
	}

	var out bytes.Buffer
	if err := webp.Encode(&out, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Encoder implements quality.Encoder for WebP.
type Encoder struct{}

// Encode implements quality.Encoder.
func (Encoder) Encode(img image.Image, quality int) ([]byte, error) {
	return Encode(img, quality)
}
