package domain

import (
	"errors"
	"fmt"
)

// Engine error taxonomy. Handlers translate these to HTTP status codes;
// services wrap them with context via fmt.Errorf("...: %w", err).
var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrForbidden           = errors.New("forbidden")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrConflict            = errors.New("conflict")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrNotConnected        = errors.New("charge point not connected")
	ErrTransportTimeout    = errors.New("charge point response timeout")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrAccountLocked       = errors.New("account locked")
)

// ValidationError wraps ErrValidation with a user-facing message.
func ValidationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
