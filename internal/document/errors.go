package document

import (
	"errors"
	"fmt"
)

// Kind classifies why a document could not be corrected.
type Kind string

const (
	EmptyDocument          Kind = "EmptyDocument"
	ParseError             Kind = "ParseError"
	NotAMapping            Kind = "NotAMapping"
	MissingRequiredKey     Kind = "MissingRequiredKey"
	MissingRequiredSubkey  Kind = "MissingRequiredSubkey"
	DisallowedTopLevelKeys Kind = "DisallowedTopLevelKeys"
	SchemaViolation        Kind = "SchemaViolation"
)

// ValidationError is returned when the corrector cannot produce a valid
// document. Reason is meant to be shown to the document generator verbatim.
type ValidationError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(kind Kind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// KindOf returns the validation kind carried by err, or "" when err is not a
// validation failure.
func KindOf(err error) Kind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}
