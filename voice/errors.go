package voice

import (
	"errors"
	"net/http"
)

// ErrorKind classifies pipeline failures so the transport layer can choose
// a status code without inspecting messages.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInputRejected
	KindDecode
	KindConversion
	KindExtractionFailed
	KindConfigFault
)

func (k ErrorKind) String() string {
	switch k {
	case KindInputRejected:
		return "InputRejected"
	case KindDecode:
		return "DecodeError"
	case KindConversion:
		return "ConversionError"
	case KindExtractionFailed:
		return "ExtractionFailed"
	case KindConfigFault:
		return "ConfigFault"
	default:
		return "InternalError"
	}
}

var (
	ErrEmptyInput       = errors.New("no file provided")
	ErrTooSmallInput    = errors.New("audio file too small")
	ErrExtractionFailed = errors.New("feature extraction failed")
)

// AnalysisError is the error type returned by the pipeline. Message is safe
// to show to clients; Err keeps the underlying cause for logs.
type AnalysisError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *AnalysisError) Unwrap() error { return e.Err }

func newError(kind ErrorKind, message string, err error) *AnalysisError {
	return &AnalysisError{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of err, KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, ErrExtractionFailed) {
		return KindExtractionFailed
	}
	return KindInternal
}

// PublicMessage returns the client-facing description of err.
func PublicMessage(err error) string {
	var ae *AnalysisError
	if errors.As(err, &ae) && ae.Kind != KindInternal {
		return ae.Message
	}
	return "internal server error"
}

func HTTPStatus(kind ErrorKind) int {
	switch kind {
	case KindInputRejected:
		return http.StatusBadRequest
	case KindDecode:
		return http.StatusUnsupportedMediaType
	case KindConversion:
		return http.StatusUnprocessableEntity
	case KindConfigFault:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
