package bridgewire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes carried by error responses.
const (
	CodeAccessDenied         = -32001
	CodeFileTooLarge         = -32002
	CodeFileNotFound         = -32003
	CodeReadOnlyViolation    = -32004
	CodePathOutsideWorkspace = -32005
	CodeUserRejected         = -32006
	CodeAgentDispatchFailed  = -32007
	CodeInvalidParams        = -32602
	CodeMethodNotFound       = -32601
	CodeInternalError        = -32603
	CodeParseError           = -32700
)

var codeNames = map[int]string{
	CodeAccessDenied:         "ACCESS_DENIED",
	CodeFileTooLarge:         "FILE_TOO_LARGE",
	CodeFileNotFound:         "FILE_NOT_FOUND",
	CodeReadOnlyViolation:    "READ_ONLY_VIOLATION",
	CodePathOutsideWorkspace: "PATH_OUTSIDE_WORKSPACE",
	CodeUserRejected:         "USER_REJECTED",
	CodeAgentDispatchFailed:  "AGENT_DISPATCH_FAILED",
	CodeInvalidParams:        "INVALID_PARAMS",
	CodeMethodNotFound:       "METHOD_NOT_FOUND",
	CodeInternalError:        "INTERNAL_ERROR",
	CodeParseError:           "PARSE_ERROR",
}

// CodeName returns the symbolic name of a code, or its decimal form.
func CodeName(code int) string {
	if n, ok := codeNames[code]; ok {
		return n
	}
	return fmt.Sprintf("%d", code)
}

// Error is the error object of a response. Handlers return it to choose the
// code the caller sees.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// NewError formats a bridge error.
func NewError(code int, format string, args ...any) *Error {
	if len(args) == 0 {
		return &Error{Code: code, Message: format}
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts a bridge error from err.
func AsError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// HasCode reports whether err is a bridge error with the given code.
func HasCode(err error, code int) bool {
	be, ok := AsError(err)
	return ok && be.Code == code
}

// FormatError renders an arbitrary error value as a message.
func FormatError(v any) string {
	switch e := v.(type) {
	case nil:
		return "<nil>"
	case error:
		return e.Error()
	case string:
		return e
	case fmt.Stringer:
		return e.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "Unserializable error object"
	}
	return string(b)
}
