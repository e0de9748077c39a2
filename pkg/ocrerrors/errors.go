// Package ocrerrors holds the error taxonomy surfaced at the request boundary.
package ocrerrors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation Kind = "ValidationError"
	KindExtraction Kind = "ExtractionError"
	KindInternal   Kind = "InternalError"
)

var (
	ErrTooLarge        = errors.New("document exceeds the maximum size")
	ErrUnsupportedType = errors.New("unsupported media type")
)

type Error struct {
	Kind    Kind
	Message string
	// Transient is only meaningful for KindExtraction.
	Transient bool
	// Raw keeps the offending payload of a malformed response for diagnostics.
	Raw []byte
	Err error
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Kind == KindExtraction {
		if e.Transient {
			prefix += "(transient)"
		} else {
			prefix += "(permanent)"
		}
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...), Err: cause}
}

func Transient(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindExtraction, Transient: true, Message: fmt.Sprintf(format, args...), Err: cause}
}

func Permanent(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindExtraction, Message: fmt.Sprintf(format, args...), Err: cause}
}

func Internal(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: cause}
}

// Malformed reports a response that does not match the expected envelope.
func Malformed(raw []byte, cause error) *Error {
	return &Error{
		Kind:    KindInternal,
		Message: "malformed extraction response",
		Raw:     raw,
		Err:     cause,
	}
}

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func IsTransient(err error) bool {
	e, ok := As(err)
	return ok && e.Kind == KindExtraction && e.Transient
}

func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
