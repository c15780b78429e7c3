package model

import "errors"

// Sentinel errors for room operations. Callers wrap these with context via
// fmt.Errorf("...: %w", err) and match them with errors.Is.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("room not found")
	ErrAlreadyStarted = errors.New("game already started")
	ErrNotAuthorized  = errors.New("not authorized")
	ErrTimeout        = errors.New("request timed out")
	ErrTransport      = errors.New("transport failure")
)

// Wire error codes carried in acks so clients can classify failures without
// parsing messages.
const (
	CodeValidation     = "validation_error"
	CodeNotFound       = "not_found"
	CodeAlreadyStarted = "already_started"
	CodeNotAuthorized  = "not_authorized"
	CodeTimeout        = "timeout"
	CodeTransport      = "transport_error"
	CodeInternal       = "internal_error"
)

// ErrorCode maps an error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadyStarted):
		return CodeAlreadyStarted
	case errors.Is(err, ErrNotAuthorized):
		return CodeNotAuthorized
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrTransport):
		return CodeTransport
	default:
		return CodeInternal
	}
}

// CodeToError maps a wire code back to its sentinel so client-side callers
// can use errors.Is on acks that crossed the channel.
func CodeToError(code string) error {
	switch code {
	case CodeValidation:
		return ErrValidation
	case CodeNotFound:
		return ErrNotFound
	case CodeAlreadyStarted:
		return ErrAlreadyStarted
	case CodeNotAuthorized:
		return ErrNotAuthorized
	case CodeTimeout:
		return ErrTimeout
	case CodeTransport:
		return ErrTransport
	default:
		return nil
	}
}
