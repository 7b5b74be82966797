// Package apperr defines the sentinel errors shared across rplanner layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrInvalidOperation     = errors.New("invalid operation")
	ErrOutOfRange           = errors.New("out of range")
	ErrIO                   = errors.New("io failure")
	ErrSelectionUnavailable = errors.New("selection unavailable")
	// ErrSuperseded is returned by the sync client when a newer request in the
	// same slot started before this response arrived.
	ErrSuperseded = errors.New("superseded")
)

// Wire codes carried in API error bodies.
const (
	CodeNotFound      = "not_found"
	CodeOutOfRange    = "out_of_range"
	CodeInvalidOp     = "invalid_operation"
	CodeInvalidRange  = "invalid_operation_out_of_range"
	CodeAlreadyExists = "already_exists"
	CodeInternal      = "internal"
)

// Code returns the stable wire code for err, used in API error bodies.
// An error wrapping both ErrInvalidOperation and ErrOutOfRange gets its own
// code so the client can restore both.
func Code(err error) string {
	invalid := errors.Is(err, ErrInvalidOperation)
	outOfRange := errors.Is(err, ErrOutOfRange)
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case invalid && outOfRange:
		return CodeInvalidRange
	case outOfRange:
		return CodeOutOfRange
	case invalid:
		return CodeInvalidOp
	case errors.Is(err, ErrAlreadyExists):
		return CodeAlreadyExists
	default:
		return CodeInternal
	}
}

// FromCode maps a wire code back to its sentinel. Unknown codes return nil.
func FromCode(code string) error {
	switch code {
	case CodeNotFound:
		return ErrNotFound
	case CodeOutOfRange:
		return ErrOutOfRange
	case CodeInvalidOp:
		return ErrInvalidOperation
	case CodeInvalidRange:
		return fmt.Errorf("%w: %w", ErrInvalidOperation, ErrOutOfRange)
	case CodeAlreadyExists:
		return ErrAlreadyExists
	default:
		return nil
	}
}
