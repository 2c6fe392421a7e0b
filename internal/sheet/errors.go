package sheet

import (
	"errors"
)

// Kind classifies why a spreadsheet could not be turned into rows.
type Kind string

const (
	KindEmptyFile     Kind = "empty_file"
	KindSchemaInvalid Kind = "schema_invalid"
	KindIO            Kind = "io_error"
)

// Sentinels matched with errors.Is against a *ParseError.
var (
	ErrEmptyFile     = errors.New("empty file")
	ErrSchemaInvalid = errors.New("invalid format")
	ErrIO            = errors.New("io error")
)

// ParseError is the only error type returned by Parse and Isolated.Parse.
// Message is user-facing and becomes the job's error detail.
type ParseError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	return e.Message
}

func (e *ParseError) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func (k Kind) sentinel() error {
	switch k {
	case KindEmptyFile:
		return ErrEmptyFile
	case KindSchemaInvalid:
		return ErrSchemaInvalid
	default:
		return ErrIO
	}
}

func newParseError(kind Kind, message string, cause error) *ParseError {
	return &ParseError{Kind: kind, Message: message, Cause: cause}
}

func ioError(message string, cause error) *ParseError {
	return newParseError(KindIO, message, cause)
}
