// Package quality selects a lossy encoder quality that brings an image under
// a size budget derived from its original size.
package quality

import (
	"fmt"
	"math"
)

// Tier boundaries of the reduction schedule, in KB.
const (
	smallTierKB  = 50
	mediumTierKB = 100
	largeTierKB  = 500
)

// SizeTarget pairs an original size with the budget computed for it.
type SizeTarget struct {
	OriginalKB float64
	TargetKB   float64
}

// ComputeTarget maps an original size in KB to the size the compressed
// output must not exceed.
//
//	<= 50KB      no reduction
//	<= 100KB     60% of original
//	<= 500KB     20% of original
//	>  500KB     10% of original
func ComputeTarget(originalKB float64) (float64, error) {
	if math.IsNaN(originalKB) || originalKB <= 0 {
		return 0, fmt.Errorf("%w: original size must be positive, got %v", ErrInvalidInput, originalKB)
	}

	switch {
	case originalKB <= smallTierKB:
		return originalKB * 1.0, nil
	case originalKB <= mediumTierKB:
		return originalKB * 0.6, nil
	case originalKB <= largeTierKB:
		return originalKB * 0.2, nil
	default:
		return originalKB * 0.1, nil
	}
}

// NewSizeTarget computes the target for originalKB.
func NewSizeTarget(originalKB float64) (SizeTarget, error) {
	target, err := ComputeTarget(originalKB)
	if err != nil {
		return SizeTarget{}, err
	}
	return SizeTarget{OriginalKB: originalKB, TargetKB: target}, nil
}

// BytesToKB converts a byte count to KB the way sizes are measured
// throughout the package.
func BytesToKB(n int) float64 {
	return float64(n) / 1024
}
