package helper

import "fmt"

// Error wraps an underlying error with the operation that failed.
type Error struct {
	Operation string
	Err       error
}

// NewError creates a new Error for the given operation.
func NewError(operation string, err error) *Error {
	return &Error{
		Operation: operation,
		Err:       err,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("error in %v", e.Operation)
	}
	return fmt.Sprintf("error in %v: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}
