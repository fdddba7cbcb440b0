// Package apperr holds the error taxonomy shared by the stores, the reply
// manager and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrBusy            = errors.New("busy")
	ErrGatewayFailure  = errors.New("assistant unavailable")
	ErrInvalidArgument = errors.New("invalid argument")
)

// ValidationError names the required field that was missing or empty.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Missing returns a ValidationError for field.
func Missing(field string) error {
	return &ValidationError{Field: field}
}

// Denial is returned when the access policy blocks an action. LoginRequired
// is set when the viewer is a guest and should be offered the login prompt.
type Denial struct {
	Action        string
	LoginRequired bool
}

func (d *Denial) Error() string {
	if d.LoginRequired {
		return fmt.Sprintf("login required for %s", d.Action)
	}
	return fmt.Sprintf("%s not permitted for this role", d.Action)
}

func (d *Denial) Unwrap() error { return ErrUnauthorized }

// NotFound wraps ErrNotFound with the kind and id of the missing entity.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// LoginRequired reports whether err is a policy denial addressed to a guest.
func LoginRequired(err error) bool {
	var d *Denial
	return errors.As(err, &d) && d.LoginRequired
}
