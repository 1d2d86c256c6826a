package core

import (
	"strings"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError is bad input. Its fields are answered one by one (HTTP 400).
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	msgs := make([]string, 0, len(err.Fields))
	for _, f := range err.Fields {
		msgs = append(msgs, f.Field+": "+f.Error)
	}
	return strings.Join(msgs, ", ")
}

// shutdown is an error the process cannot get over by itself (eg. its credentials were rejected).
type shutdown struct {
	message string
	err     error
}

// NewShutdownError wraps err (may be nil): the API stops gracefully when such an error reaches it.
func NewShutdownError(err error, msg string) error {
	return &shutdown{message: msg, err: err}
}

func (s *shutdown) Error() string {
	if s.err == nil {
		return s.message
	}
	return s.message + ": " + s.err.Error()
}

func (s *shutdown) Unwrap() error { return s.err }

func IsShutdown(err error) bool {
	var s *shutdown
	return errors.As(err, &s)
}
