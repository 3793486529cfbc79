package schedules

import "errors"

// ErrInvalid is wrapped by every ValidationError
var ErrInvalid = errors.New("invalid schedule")

// ValidationError rejects a request before anything is stored
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
