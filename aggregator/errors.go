package aggregator

import "errors"

var (
	ErrDimensionMismatch = errors.New("gradient dimension mismatch")
	ErrInvalidDimension  = errors.New("model dimension must be positive")
	ErrInvalidQuorum     = errors.New("quorum size must be positive")
	ErrInvalidTimeout    = errors.New("round timeout must be positive outside naive mode")
	ErrNoBroadcaster     = errors.New("no broadcaster was provided")
)
