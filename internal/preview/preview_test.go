package preview

import (
	"bytes"
	"image"
	"image/color"
	stdjpeg "image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harliandi/imgsqueeze/pkg/quality"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 64, A: 255})
		}
	}
	return img
}

func TestScale(t *testing.T) {
	tests := []struct {
		name          string
		w, h, width   int
		wantW, wantH  int
		wantUnchanged bool
	}{
		{"Downscale landscape", 800, 400, 320, 320, 160, false},
		{"Downscale portrait", 300, 900, 100, 100, 300, false},
		{"Already small", 200, 100, 320, 200, 100, true},
		{"Very flat", 1000, 1, 10, 10, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := gradient(tt.w, tt.h)
			got, err := Scale(src, tt.width)
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, got.Bounds().Dx())
			assert.Equal(t, tt.wantH, got.Bounds().Dy())
			if tt.wantUnchanged {
				assert.Same(t, src, got)
			}
		})
	}
}

func TestScale_InvalidWidth(t *testing.T) {
	for _, w := range []int{0, -5, MaxWidth + 1} {
		_, err := Scale(gradient(10, 10), w)
		assert.ErrorIs(t, err, ErrInvalidWidth, "width %d", w)
	}
}

func TestRender(t *testing.T) {
	data, err := Render(gradient(640, 480), DefaultWidth)
	require.NoError(t, err)

	cfg, err := stdjpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth, cfg.Width)
	assert.Equal(t, 240, cfg.Height)
}

func TestRender_InvalidImage(t *testing.T) {
	_, err := Render(nil, DefaultWidth)
	assert.ErrorIs(t, err, quality.ErrInvalidInput)
}
