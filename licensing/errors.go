package licensing

import "fmt"

// Code is a stable, short error classification, safe to surface to end
// users and log without leaking implementation detail.
type Code string

const (
	CodeCorruptRecord        Code = "CorruptRecord"
	CodeBadSignature         Code = "BadSignature"
	CodeNoRecord             Code = "NoRecord"
	CodeMalformedRecord      Code = "MalformedRecord"
	CodeUnsupportedKeyType   Code = "UnsupportedKeyType"
	CodeTransientDNS         Code = "TransientDNS"
	CodeNotAuthoritative     Code = "NotAuthoritative"
	CodeAuthorityUnreachable Code = "AuthorityUnreachable"
	CodeExpired              Code = "Expired"
	CodeNotYetValid          Code = "NotYetValid"
	CodeWrongMachine         Code = "WrongMachine"
	CodeUnauthorizedRefine   Code = "UnauthorizedRefinement"
	CodeClientMismatch       Code = "ClientMismatch"
	CodeDependencyTooDeep    Code = "DependencyTooDeep"
	CodeTimespanIncompatible Code = "TimespanIncompatible"
	CodeMissingOwnGrant      Code = "MissingOwnGrant"
	CodeUnreachableGrantKey  Code = "UnreachableGrantKey"
	CodeFileExists           Code = "FileExists"
	CodeIOError              Code = "IOError"
	CodeCancelled            Code = "Cancelled"
)

// Error is the typed error value every licensing operation returns on
// failure. Error() never includes file paths, stack traces, or key
// material; wrap with errors.Is/errors.As against the sentinel Code
// values below to branch on kind.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("licensing: %s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("licensing: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, licensing.Err(CodeBadSignature)) style checks.
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
// use with errors.Is(err, licensing.Err(CodeX)).
func Err(code Code) *Error {
	return &Error{Code: code}
}
