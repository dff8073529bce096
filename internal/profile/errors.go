package profile

import "errors"

var (
	// ErrUnserializable rejects an Update whose events cannot be canonically encoded
	ErrUnserializable = errors.New("overlay events cannot be encoded")
	// ErrInvalidDocument marks a profile document that cannot be normalized
	ErrInvalidDocument = errors.New("invalid profile document")
)
