//go:build !cgo || !turbojpeg

package jpeg

import "image"

// TurboAvailable reports whether EncodeTurbo is backed by libjpeg-turbo.
const TurboAvailable = false

// EncodeTurbo always fails with ErrTurboUnavailable in this build.
func EncodeTurbo(img image.Image, quality int) ([]byte, error) {
	return nil, ErrTurboUnavailable
}
