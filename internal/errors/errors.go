package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorType string

const (
	// ErrorTypeNoChange: the edit descriptor reproduced the original commit
	// exactly. Recoverable; the caller should report that nothing happened.
	ErrorTypeNoChange ErrorType = "NO_CHANGE"

	// ErrorTypeInvalidMessageEncoding: a commit on the rewrite path has a
	// message that is not valid UTF-8 and cannot be re-encoded. Fatal for
	// the whole run.
	ErrorTypeInvalidMessageEncoding ErrorType = "INVALID_MESSAGE_ENCODING"

	// ErrorTypeNotFound: a referenced object or reference does not exist.
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeStoreFailure: the object or reference store reported an
	// error. Carries the operation that was in flight.
	ErrorTypeStoreFailure ErrorType = "STORE_FAILURE"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Commit  string    `json:"commit,omitempty"`
	Err     error     `json:"-"`
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

func NoChange() *Error {
	return &Error{
		Type:    ErrorTypeNoChange,
		Message: "the specified edit does not actually change the commit",
	}
}

func InvalidMessageEncoding(commit string) *Error {
	return &Error{
		Type:    ErrorTypeInvalidMessageEncoding,
		Message: fmt.Sprintf("commit %s does not have a valid utf-8 message and could not be re-applied", commit),
		Commit:  commit,
	}
}

func NotFound(format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: fmt.Sprintf(format, args...),
	}
}

func StoreFailure(op string, err error) *Error {
	return &Error{
		Type:    ErrorTypeStoreFailure,
		Message: op,
		Err:     err,
	}
}

// IsType reports whether err or anything it wraps is an *Error of type t.
func IsType(err error, t ErrorType) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type == t
	}
	return false
}
