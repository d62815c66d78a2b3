package model

import "fmt"

// ErrorKind classifies a failure the way the engine's components report
// it across goroutine/task boundaries. Handlers switch on Kind rather
// than on sentinel errors so new call sites stay exhaustive-checkable.
type ErrorKind string

const (
	KindValidation       ErrorKind = "VALIDATION"
	KindUnauthorized     ErrorKind = "UNAUTHORIZED"
	KindNotFound         ErrorKind = "NOT_FOUND"
	KindConflict         ErrorKind = "CONFLICT"
	KindLimit            ErrorKind = "LIMIT"
	KindRateLimit        ErrorKind = "RATE_LIMIT"
	KindDuplicateSession ErrorKind = "DUPLICATE_SESSION"
	KindTransient        ErrorKind = "TRANSIENT"
	KindFatal            ErrorKind = "FATAL"
)

// Error wraps an underlying cause with the kind the connection handler
// and hub use to decide how to respond (drop, close, retry).
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err, defaulting to KindFatal for
// errors that were never classified (a programming bug, not a
// request-level failure).
func KindOf(err error) ErrorKind {
	var e *Error
	if err == nil {
		return ""
	}
	if ok := asError(err, &e); ok {
		return e.Kind
	}
	return KindFatal
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
