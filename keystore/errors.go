package keystore

import "fmt"

// Code is a stable, short error classification for keystore failures,
// mirroring licensing.Code so callers branch on kind instead of on
// message text.
type Code string

const (
	CodeFileExists    Code = "FileExists"
	CodeIOError       Code = "IOError"
	CodeCorruptRecord Code = "CorruptRecord"
)

// Error is the typed error value keystore's file operations return on
// failure. Error() never includes key material; wrap with errors.Is
// against the sentinel Code values below to branch on kind.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("keystore: %s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("keystore: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, keystore.Err(CodeFileExists)) style checks.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newErr(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Err returns a sentinel *Error of the given code with no message, for
// use with errors.Is(err, keystore.Err(CodeX)).
func Err(code Code) *Error {
	return &Error{Code: code}
}
