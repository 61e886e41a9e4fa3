package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindMissingFile       ErrorKind = "MissingFile"
	KindUnsupportedFormat ErrorKind = "UnsupportedFormat"
	KindInvalidParameter  ErrorKind = "InvalidParameter"
	KindDecodeFailure     ErrorKind = "DecodeFailure"
	KindEncodeFailure     ErrorKind = "EncodeFailure"
	KindParseFailure      ErrorKind = "ParseFailure"
	KindUnexpected        ErrorKind = "Unexpected"
)

// Error is a classified conversion error. Pipeline internals return it (or
// wrap it) so the entry point can turn any failure into a Failure result.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Errorf(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind ErrorKind, err error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first classified error in err's chain,
// or KindUnexpected.
func KindOf(err error) ErrorKind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindUnexpected
}
