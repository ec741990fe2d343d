// Package apperr defines the sentinel errors shared by the HTTP handler
// layer, mirroring the teacher's internal/service/errors.go classification
// idiom (sentinel errors plus Is-implementing typed errors).
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
	ErrConflict = errors.New("conflict")
)
