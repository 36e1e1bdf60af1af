package quality

import (
	"fmt"
	"image"
	"math"
)

const (
	// MinQuality and MaxQuality bound the searched quality range.
	MinQuality = 20
	MaxQuality = 85

	// MaxAttempts is the most encodes a single Search performs, fallback included.
	MaxAttempts = 7

	// slack lets a later, higher-quality fit replace the current best unless
	// it is more than 5% smaller.
	slack = 0.95
)

// Encoder is the lossy codec the search drives. Encode must return the
// complete encoded output for img at the given quality in [0, 100].
type Encoder interface {
	Encode(img image.Image, quality int) ([]byte, error)
}

// EncoderFunc adapts a plain function to Encoder.
type EncoderFunc func(img image.Image, quality int) ([]byte, error)

// Encode calls f(img, quality).
func (f EncoderFunc) Encode(img image.Image, quality int) ([]byte, error) {
	return f(img, quality)
}

// Outcome is the result of a Search.
type Outcome struct {
	Bytes       []byte
	QualityUsed int
	AchievedKB  float64
	// MetTarget is false when no quality in range fit and Bytes holds the
	// best-effort encode at the lowest quality reached.
	MetTarget bool
	Attempts  int
}

// Search finds the highest quality in [MinQuality, MaxQuality] whose encoded
// size is at most targetKB. The image is normalized once before encoding.
//
// Among fitting qualities the search keeps the latest one found unless it is
// more than 5% smaller than the current best. When nothing fits, the image is
// encoded once more at the final lower bound and returned with MetTarget
// unset. Any encoder error aborts the search.
func Search(img image.Image, targetKB float64, enc Encoder) (*Outcome, error) {
	if enc == nil {
		return nil, fmt.Errorf("%w: nil encoder", ErrInvalidInput)
	}
	if math.IsNaN(targetKB) {
		return nil, fmt.Errorf("%w: target size is NaN", ErrInvalidInput)
	}

	src, err := Normalize(img)
	if err != nil {
		return nil, err
	}

	var (
		lo, hi   = MinQuality, MaxQuality
		best     *Outcome
		bestKB   = math.Inf(1)
		attempts int
	)

	for lo <= hi {
		mid := (lo + hi) / 2

		data, err := encodeAt(enc, src, mid)
		attempts++
		if err != nil {
			return nil, err
		}
		currentKB := BytesToKB(len(data))

		if currentKB <= targetKB {
			if best == nil || currentKB > bestKB*slack {
				best = &Outcome{Bytes: data, QualityUsed: mid, AchievedKB: currentKB, MetTarget: true}
				bestKB = currentKB
			}
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	if best != nil {
		best.Attempts = attempts
		return best, nil
	}

	// lo only moves on a fit, so with no fit it still sits at MinQuality.
	q := clamp(lo, MinQuality, MaxQuality)
	data, err := encodeAt(enc, src, q)
	attempts++
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Bytes:       data,
		QualityUsed: q,
		AchievedKB:  BytesToKB(len(data)),
		MetTarget:   false,
		Attempts:    attempts,
	}, nil
}

// Compress computes the target for originalKB and searches for it.
func Compress(img image.Image, originalKB float64, enc Encoder) (*Outcome, SizeTarget, error) {
	target, err := NewSizeTarget(originalKB)
	if err != nil {
		return nil, SizeTarget{}, err
	}
	out, err := Search(img, target.TargetKB, enc)
	if err != nil {
		return nil, target, err
	}
	return out, target, nil
}

func encodeAt(enc Encoder, img image.Image, q int) ([]byte, error) {
	data, err := enc.Encode(img, q)
	if err != nil {
		return nil, fmt.Errorf("%w at quality %d: %w", ErrEncodeFailed, q, err)
	}
	return data, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
