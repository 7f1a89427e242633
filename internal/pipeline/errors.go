package pipeline

import "fmt"

// ValidationError reports a request that fails fast before any stage runs:
// a missing payload or a format outside the supported set.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ParseError reports a document that cannot be structurally parsed at all.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("document parse failed: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
