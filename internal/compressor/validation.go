package compressor

import (
	"fmt"
	"image"

	"github.com/harliandi/imgsqueeze/internal/decode"
	"github.com/harliandi/imgsqueeze/pkg/quality"
)

// Validation errors wrap quality.ErrInvalidInput so callers can treat every
// rejected input the same way.
var (
	// ErrEmptyFile is returned for zero-length uploads
	ErrEmptyFile = fmt.Errorf("%w: empty file", quality.ErrInvalidInput)
	// ErrFileTooLarge is returned when the file exceeds the size limit
	ErrFileTooLarge = fmt.Errorf("%w: file size exceeds limit", quality.ErrInvalidInput)
	// ErrInvalidImageDimensions is returned when image dimensions are invalid
	ErrInvalidImageDimensions = fmt.Errorf("%w: invalid image dimensions", quality.ErrInvalidInput)
	// ErrImageTooLarge is returned when image dimensions exceed limits
	ErrImageTooLarge = fmt.Errorf("%w: image dimensions exceed maximum allowed", quality.ErrInvalidInput)
)

// Validation limits
const (
	MaxFileSize    = 50 * 1024 * 1024 // 50MB max file size
	MaxImageWidth  = 20000            // 20K pixels max width
	MaxImageHeight = 20000            // 20K pixels max height
	MaxImagePixels = 250_000_000      // 250 megapixels max total pixels
)

// ValidateFile checks the raw upload before decoding
func ValidateFile(data []byte, maxBytes int64) error {
	if len(data) == 0 {
		return ErrEmptyFile
	}
	if maxBytes <= 0 || maxBytes > MaxFileSize {
		maxBytes = MaxFileSize
	}
	if int64(len(data)) > maxBytes {
		return fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, len(data), maxBytes)
	}
	return nil
}

// ValidateImage checks decoded image dimensions are within acceptable limits
func ValidateImage(img image.Image) error {
	if img == nil {
		return ErrInvalidImageDimensions
	}
	bounds := img.Bounds()
	return ValidateDimensions(bounds.Dx(), bounds.Dy())
}

// ValidateDimensions checks a width and height, typically read from the image
// header before any pixels are allocated.
func ValidateDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidImageDimensions, width, height)
	}

	if width > MaxImageWidth || height > MaxImageHeight {
		return fmt.Errorf("%w: %dx%d (max: %dx%d)", ErrImageTooLarge, width, height, MaxImageWidth, MaxImageHeight)
	}

	totalPixels := int64(width) * int64(height)
	if totalPixels > MaxImagePixels {
		return fmt.Errorf("%w: %d pixels (max: %d)", ErrImageTooLarge, totalPixels, MaxImagePixels)
	}

	return nil
}

// DecodeImage checks the header dimensions of data and only then decodes it.
// A header claiming an oversized image is rejected without pixel allocation.
func DecodeImage(data []byte) (image.Image, decode.Format, error) {
	cfg, format, err := decode.DecodeConfig(data)
	if err != nil {
		return nil, format, err
	}
	if err := ValidateDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, format, err
	}

	img, format, err := decode.Decode(data)
	if err != nil {
		return nil, format, err
	}
	if err := ValidateImage(img); err != nil {
		return nil, format, err
	}
	return img, format, nil
}
