package errs

import (
	"errors"
	"fmt"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrUserNotFound   = errors.New("user not found")
	// ErrConflict means the ticket changed between read and write.
	ErrConflict = errors.New("ticket was modified concurrently")
)

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// PermissionDenied is a policy decision and is never retried.
type PermissionDenied struct {
	Reason string
}

func (e *PermissionDenied) Error() string {
	if e.Reason == "" {
		return "permission denied"
	}
	return "permission denied: " + e.Reason
}

func Denied(reason string) error {
	return &PermissionDenied{Reason: reason}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsPermissionDenied(err error) bool {
	var p *PermissionDenied
	return errors.As(err, &p)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrTicketNotFound) || errors.Is(err, ErrUserNotFound)
}
