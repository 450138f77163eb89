package store

import (
	"errors"
	"fmt"
)

var (
	ErrFileNotFound  = errors.New("file not found")
	ErrNoAssignments = errors.New("assignment list is empty; cannot write a file with no headers")
)

// ValidationError reports bad input. Row is the 1-based data row (header
// excluded) and is 0 when the problem concerns the whole file.
type ValidationError struct {
	Source string
	Row    int
	Field  string
	Msg    string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Source == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Msg)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func fieldError(source string, row int, field, where string) *ValidationError {
	return &ValidationError{
		Source: source,
		Row:    row,
		Field:  field,
		Msg:    fmt.Sprintf("'%s' is missing or empty%s at row %d", field, where, row),
	}
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
