package repository

import "errors"

// Sentinel errors. Backend failures are wrapped with ErrLoad or ErrSave so
// callers can count them without knowing the backend.
var (
	ErrLoad          = errors.New("checkpoint load failed")
	ErrSave          = errors.New("checkpoint save failed")
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrClosed        = errors.New("store closed")
)
