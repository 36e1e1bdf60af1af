// Package decode identifies uploaded images by their magic bytes and decodes
// them into an image.Image for compression.
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/adrium/goheif"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

var (
	// ErrUnsupportedFormat is returned when the data matches no known signature.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrCorrupt is returned when the signature matched but decoding failed.
	ErrCorrupt = errors.New("corrupt image data")
)

// Format is a supported input image type.
type Format string

const (
	Unknown Format = ""
	JPEG    Format = "jpeg"
	PNG     Format = "png"
	GIF     Format = "gif"
	WebP    Format = "webp"
	BMP     Format = "bmp"
	TIFF    Format = "tiff"
	HEIF    Format = "heif"
)

// heifBrands are the ftyp major brands accepted as HEIF/HEIC.
var heifBrands = []string{"heic", "heix", "heim", "heis", "hevc", "hevx", "mif1", "msf1"}

var extensions = map[string]Format{
	".jpg":  JPEG,
	".jpeg": JPEG,
	".png":  PNG,
	".gif":  GIF,
	".webp": WebP,
	".bmp":  BMP,
	".tif":  TIFF,
	".tiff": TIFF,
	".heic": HEIF,
	".heif": HEIF,
}

// Sniff inspects the leading bytes of data for a known image signature.
func Sniff(data []byte) Format {
	switch {
	case isJPEG(data):
		return JPEG
	case isPNG(data):
		return PNG
	case isGIF(data):
		return GIF
	case isWebP(data):
		return WebP
	case isBMP(data):
		return BMP
	case isTIFF(data):
		return TIFF
	case isHEIF(data):
		return HEIF
	default:
		return Unknown
	}
}

type codec struct {
	decode       func(io.Reader) (image.Image, error)
	decodeConfig func(io.Reader) (image.Config, error)
}

var codecs = map[Format]codec{
	JPEG: {jpeg.Decode, jpeg.DecodeConfig},
	PNG:  {png.Decode, png.DecodeConfig},
	GIF:  {gif.Decode, gif.DecodeConfig},
	WebP: {webp.Decode, webp.DecodeConfig},
	BMP:  {bmp.Decode, bmp.DecodeConfig},
	TIFF: {tiff.Decode, tiff.DecodeConfig},
	HEIF: {goheif.Decode, goheif.DecodeConfig},
}

func lookup(data []byte) (Format, codec, error) {
	format := Sniff(data)
	if format == Unknown {
		return Unknown, codec{}, ErrUnsupportedFormat
	}
	return format, codecs[format], nil
}

// Decode sniffs data and decodes it with the matching decoder.
func Decode(data []byte) (image.Image, Format, error) {
	format, c, err := lookup(data)
	if err != nil {
		return nil, format, err
	}
	img, err := c.decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, fmt.Errorf("%w: %s: %v", ErrCorrupt, format, err)
	}
	return img, format, nil
}

// DecodeConfig reads only the header of data and returns its dimensions and
// color model without decoding pixels.
func DecodeConfig(data []byte) (image.Config, Format, error) {
	format, c, err := lookup(data)
	if err != nil {
		return image.Config{}, format, err
	}
	cfg, err := c.decodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, format, fmt.Errorf("%w: %s header: %v", ErrCorrupt, format, err)
	}
	return cfg, format, nil
}

// FormatFromName maps a file name's extension to a Format.
func FormatFromName(name string) Format {
	return extensions[strings.ToLower(filepath.Ext(name))]
}

// IsSupportedName reports whether name carries an accepted image extension.
func IsSupportedName(name string) bool {
	return FormatFromName(name) != Unknown
}

func isJPEG(buf []byte) bool {
	return len(buf) > 2 && buf[0] == 0xFF && buf[1] == 0xD8 && buf[2] == 0xFF
}

func isPNG(buf []byte) bool {
	return len(buf) > 7 && bytes.Equal(buf[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A})
}

func isGIF(buf []byte) bool {
	return len(buf) > 5 && (string(buf[:6]) == "GIF87a" || string(buf[:6]) == "GIF89a")
}

func isWebP(buf []byte) bool {
	return len(buf) > 11 && string(buf[:4]) == "RIFF" && string(buf[8:12]) == "WEBP"
}

func isBMP(buf []byte) bool {
	return len(buf) > 13 && buf[0] == 'B' && buf[1] == 'M'
}

func isTIFF(buf []byte) bool {
	return len(buf) > 3 &&
		(bytes.Equal(buf[:4], []byte{'I', 'I', 0x2A, 0x00}) || bytes.Equal(buf[:4], []byte{'M', 'M', 0x00, 0x2A}))
}

// isHEIF checks for an ISOBMFF ftyp box at offset 4 with a HEIF brand.
func isHEIF(buf []byte) bool {
	if len(buf) < 12 || string(buf[4:8]) != "ftyp" {
		return false
	}
	brand := strings.ToLower(string(buf[8:12]))
	for _, b := range heifBrands {
		if brand == b {
			return true
		}
	}
	return false
}
