package entity

import "errors"

// ErrValidationFailed matches every *ValidationError under errors.Is, so
// callers can map bad input without knowing which field failed.
var ErrValidationFailed = errors.New("validation failed")

// ValidationError names the offending field of a rejected entity.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
