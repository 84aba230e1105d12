package transcribe

import (
	"errors"
	"net/http"
)

// Kind classifies a failure for the HTTP boundary.
type Kind int

const (
	KindClientData Kind = iota + 1
	KindNotReady
	KindLoadFailed
	KindTranscription
)

func (k Kind) String() string {
	switch k {
	case KindClientData:
		return "client_data"
	case KindNotReady:
		return "not_ready"
	case KindLoadFailed:
		return "load_failed"
	case KindTranscription:
		return "transcription"
	default:
		return "unknown"
	}
}

// Error carries the client-facing detail next to the underlying cause.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus is the response status for the error's kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotReady:
		return http.StatusServiceUnavailable
	case KindLoadFailed, KindTranscription:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Retryable reports whether the same request may succeed later.
func (e *Error) Retryable() bool {
	return e.Kind == KindNotReady
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
