// Package compressor turns uploaded image bytes into size-targeted output:
// decode, validate, compute the target from the original size, then run the
// quality search with the configured encoder.
package compressor

import (
	"context"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/harliandi/imgsqueeze/internal/config"
	"github.com/harliandi/imgsqueeze/internal/decode"
	"github.com/harliandi/imgsqueeze/internal/logging"
	"github.com/harliandi/imgsqueeze/pkg/jpeg"
	"github.com/harliandi/imgsqueeze/pkg/metrics"
	"github.com/harliandi/imgsqueeze/pkg/quality"
	"github.com/harliandi/imgsqueeze/pkg/webp"
)

// Result describes one compressed image.
type Result struct {
	Name             string        `json:"name"`
	Data             []byte        `json:"-"`
	SourceFormat     decode.Format `json:"source_format"`
	Format           string        `json:"format"`
	Width            int           `json:"width"`
	Height           int           `json:"height"`
	OriginalKB       float64       `json:"original_kb"`
	TargetKB         float64       `json:"target_kb"`
	CompressedKB     float64       `json:"compressed_kb"`
	ReductionPercent float64       `json:"reduction_percent"`
	Quality          int           `json:"quality"`
	MetTarget        bool          `json:"met_target"`
	Attempts         int           `json:"attempts"`
}

// Compressor compresses images to the size policy's target
type Compressor struct {
	format   string
	encoder  quality.Encoder
	maxBytes int64
	logger   *zap.Logger
}

// NewEncoder returns the encoder for an output format and JPEG backend
func NewEncoder(format, backend string) (quality.Encoder, error) {
	switch format {
	case config.FormatWebP:
		return webp.Encoder{}, nil
	case config.FormatJPEG, "":
		switch backend {
		case config.EncoderStd, "":
			return jpeg.Encoder{}, nil
		case config.EncoderTurbo:
			if !jpeg.TurboAvailable {
				return nil, jpeg.ErrTurboUnavailable
			}
			return jpeg.TurboEncoder{}, nil
		}
		return nil, fmt.Errorf("unknown jpeg encoder %q", backend)
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

// New creates a Compressor for the given output format and JPEG backend.
// maxBytes limits accepted inputs; zero means the package default.
func New(format, backend string, maxBytes int64, logger *zap.Logger) (*Compressor, error) {
	if format == "" {
		format = config.FormatJPEG
	}
	enc, err := NewEncoder(format, backend)
	if err != nil {
		return nil, err
	}
	return NewWithEncoder(format, enc, maxBytes, logger), nil
}

// NewWithEncoder creates a Compressor around an arbitrary encoder
func NewWithEncoder(format string, enc quality.Encoder, maxBytes int64, logger *zap.Logger) *Compressor {
	return &Compressor{
		format:   format,
		encoder:  enc,
		maxBytes: maxBytes,
		logger:   logging.OrNop(logger),
	}
}

// Format returns the output format name
func (c *Compressor) Format() string {
	return c.format
}

// ContentType returns the MIME type of compressed output
func (c *Compressor) ContentType() string {
	if c.format == config.FormatWebP {
		return "image/webp"
	}
	return "image/jpeg"
}

// Extension returns the output file extension including the dot
func (c *Compressor) Extension() string {
	if c.format == config.FormatWebP {
		return ".webp"
	}
	return ".jpg"
}

// Compress decodes data and compresses it to the target for its size.
// The original size is the raw upload length.
func (c *Compressor) Compress(ctx context.Context, name string, data []byte) (*Result, error) {
	start := time.Now()

	res, err := c.compress(ctx, name, data)
	duration := time.Since(start)
	if err != nil {
		metrics.RecordCompression("error", c.format, duration.Seconds(), len(data), 0)
		c.logger.Warn("compression failed",
			zap.String("name", name),
			zap.Int("bytes", len(data)),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.RecordCompression("success", c.format, duration.Seconds(), len(data), len(res.Data))
	metrics.RecordSearch(res.Quality, res.Attempts, res.MetTarget)
	c.logger.Debug("compressed image",
		zap.String("name", name),
		zap.String("source_format", string(res.SourceFormat)),
		zap.Float64("original_kb", res.OriginalKB),
		zap.Float64("target_kb", res.TargetKB),
		zap.Float64("compressed_kb", res.CompressedKB),
		zap.Int("quality", res.Quality),
		zap.Bool("met_target", res.MetTarget),
		zap.Int("attempts", res.Attempts),
		zap.Duration("took", duration),
	)
	return res, nil
}

func (c *Compressor) compress(ctx context.Context, name string, data []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateFile(data, c.maxBytes); err != nil {
		return nil, err
	}

	img, srcFormat, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}

	res, err := c.CompressImage(ctx, img, len(data))
	if err != nil {
		return nil, err
	}
	res.Name = name
	res.SourceFormat = srcFormat
	return res, nil
}

// CompressImage compresses an already decoded image whose encoded original
// was originalBytes long.
func (c *Compressor) CompressImage(ctx context.Context, img image.Image, originalBytes int) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	originalKB := quality.BytesToKB(originalBytes)
	out, target, err := quality.Compress(img, originalKB, c.cancellable(ctx))
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	return &Result{
		Data:             out.Bytes,
		Format:           c.format,
		Width:            b.Dx(),
		Height:           b.Dy(),
		OriginalKB:       originalKB,
		TargetKB:         target.TargetKB,
		CompressedKB:     out.AchievedKB,
		ReductionPercent: ReductionPercent(originalKB, out.AchievedKB),
		Quality:          out.QualityUsed,
		MetTarget:        out.MetTarget,
		Attempts:         out.Attempts,
	}, nil
}

// cancellable stops the search between encode attempts once ctx is done.
func (c *Compressor) cancellable(ctx context.Context) quality.Encoder {
	return quality.EncoderFunc(func(img image.Image, q int) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return c.encoder.Encode(img, q)
	})
}

// ReductionPercent is how much smaller compressed is than original, in percent.
// Negative when the output grew.
func ReductionPercent(originalKB, compressedKB float64) float64 {
	if originalKB <= 0 {
		return 0
	}
	return (originalKB - compressedKB) / originalKB * 100
}
