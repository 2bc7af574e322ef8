// internal/bridge/errors.go
package bridge

import "fmt"

// Code classifies a bridge failure. Values are stable: they are written into status memory.
type Code uint16

const (
	CodeTimeout            Code = 0x10
	CodeTransportTimeout   Code = 0x11
	CodeProtocolException  Code = 0x12
	CodeSubmissionRejected Code = 0x13
	CodeInvalidParams      Code = 0x14
	CodeInternal           Code = 0x15
)

func (c Code) String() string {
	switch c {
	case CodeTimeout:
		return "timeout"
	case CodeTransportTimeout:
		return "transport timeout"
	case CodeProtocolException:
		return "protocol exception"
	case CodeSubmissionRejected:
		return "submission queue full"
	case CodeInvalidParams:
		return "invalid parameters"
	case CodeInternal:
		return "internal error"
	default:
		return fmt.Sprintf("code 0x%02x", uint16(c))
	}
}

// Error is returned by ReadRegisters for every failure.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "bridge: " + e.Code.String()
	}
	return "bridge: " + e.Code.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode exposes the numeric code to status reporting.
func (e *Error) ErrorCode() uint16 { return uint16(e.Code) }

// Is matches on Code so wrapped instances compare equal to the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrTimeout             = &Error{Code: CodeTimeout}
	ErrTransportTimeout    = &Error{Code: CodeTransportTimeout}
	ErrProtocolException   = &Error{Code: CodeProtocolException}
	ErrSubmissionQueueFull = &Error{Code: CodeSubmissionRejected}
	ErrInvalidParams       = &Error{Code: CodeInvalidParams}
	ErrInternal            = &Error{Code: CodeInternal}
)

func newError(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}
