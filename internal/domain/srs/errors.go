package srs

import "errors"

// Sentinel errors reported through Result.FallbackReason and Stats.
var (
	ErrNonFinite         = errors.New("srs: adaptive update produced a non-finite value")
	ErrAdaptivePanic     = errors.New("srs: adaptive update panicked")
	ErrInvalidParameters = errors.New("srs: invalid parameters")
	ErrInvalidRating     = errors.New("srs: invalid rating")
	ErrInvalidState      = errors.New("srs: invalid state")
)
