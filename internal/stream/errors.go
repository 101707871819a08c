package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrUnbalancedQuotes is returned when a quoted field is never closed
	// before the end of the input.
	ErrUnbalancedQuotes = errors.New("csvstream: unbalanced quotes")

	// ErrHeaderMismatch is returned when the first row does not match the
	// expected header list in validating header mode.
	ErrHeaderMismatch = errors.New("csvstream: header mismatch")

	// ErrColumnCount is returned in strict-column mode when a row carries
	// non-blank data beyond the resolved header width.
	ErrColumnCount = errors.New("csvstream: column count exceeded")
)

// ParseError reports a terminal parsing failure with its location.
// Once a ParseError is emitted the parser processes no further lines and
// never emits an End notification.
type ParseError struct {
	// Line is the 1-based logical line number the error occurred on.
	Line int
	// Raw is the raw text of the offending line, when available.
	Raw string
	// Err is one of the sentinel errors above, possibly wrapped with detail.
	Err error
}

// Error formats the parse error message with the stored line and Err values.
func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("csvstream: parse error on line %d: %v", e.Line, e.Err)
}

// Unwrap returns the underlying Err so ParseError participates in errors.Is.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
