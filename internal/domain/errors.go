package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies engine failures so callers can branch on the
// category without parsing message text.
type ErrorKind string

const (
	KindInsufficientData ErrorKind = "insufficient_data"
	KindInvalidBar       ErrorKind = "invalid_bar"
	KindComponentScoring ErrorKind = "component_scoring"
)

// Error is a structured failure carrying a machine-readable kind plus
// free-form context fields for logs and API payloads.
type Error struct {
	Kind    ErrorKind
	Message string
	Fields  map[string]interface{}
	Cause   error
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, strings.Join(parts, " "))
}

func (e *Error) Unwrap() error { return e.Cause }

// WithField attaches a context field and returns the error for chaining.
func (e *Error) WithField(key string, value interface{}) *Error {
	if e.Fields == nil {
		e.Fields = map[string]interface{}{}
	}
	e.Fields[key] = value
	return e
}

// WithCause records the underlying error for errors.Is/As traversal.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// InsufficientData builds an error for inputs too thin to analyze.
func InsufficientData(message string) *Error {
	return &Error{Kind: KindInsufficientData, Message: message}
}

// InvalidBar builds an error for a bar that violates price invariants.
func InvalidBar(message string) *Error {
	return &Error{Kind: KindInvalidBar, Message: message}
}

// ComponentScoring builds an error for a scoring component that could
// not be evaluated.
func ComponentScoring(message string) *Error {
	return &Error{Kind: KindComponentScoring, Message: message}
}

// IsKind reports whether err, or anything it wraps, is a domain Error
// of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}
