package quality

import "errors"

var (
	// ErrInvalidInput is returned for non-positive sizes and images that
	// cannot be brought into an encodable color mode.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEncodeFailed wraps any error returned by the encoder during a search.
	ErrEncodeFailed = errors.New("encode failed")
)
