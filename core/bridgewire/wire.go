// Package bridgewire defines the JSON-RPC 2.0 messages exchanged between the
// bridge CLI and the host-side bridge daemon.
package bridgewire

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Version is the only accepted value of the jsonrpc marker.
const Version = "2.0"

// Method names a bridge operation.
type Method string

const (
	MethodFsList          Method = "fs/list"
	MethodFsRead          Method = "fs/read"
	MethodFsWrite         Method = "fs/write"
	MethodAgentDispatch   Method = "agent/dispatch"
	MethodAgentListModels Method = "agent/models/list"
	MethodWorkspaceEvent  Method = "workspace/event"
	MethodGetLogs         Method = "bridge/logs"
	MethodIDEDiagnostics  Method = "ide/diagnostics"
)

// Methods lists every method of the protocol.
var Methods = []Method{
	MethodFsList,
	MethodFsRead,
	MethodFsWrite,
	MethodAgentDispatch,
	MethodAgentListModels,
	MethodWorkspaceEvent,
	MethodGetLogs,
	MethodIDEDiagnostics,
}

// Known reports whether m belongs to the protocol.
func (m Method) Known() bool {
	for _, k := range Methods {
		if k == m {
			return true
		}
	}
	return false
}

// ID is a raw JSON-RPC identifier: a number, a string or null.
// The zero value encodes as null.
type ID json.RawMessage

var nullID = []byte("null")

// NumberID returns a numeric identifier.
func NumberID(n int64) ID { return ID(strconv.AppendInt(nil, n, 10)) }

// StringID returns a string identifier.
func StringID(s string) ID {
	b, _ := json.Marshal(s)
	return ID(b)
}

// IsNull reports whether the identifier is absent or null.
func (id ID) IsNull() bool {
	t := bytes.TrimSpace(id)
	return len(t) == 0 || bytes.Equal(t, nullID)
}

// Key returns a canonical form suitable for map lookups. Numbers and strings
// never collide: string keys keep their quotes.
func (id ID) Key() string {
	if id.IsNull() {
		return "null"
	}
	t := bytes.TrimSpace(id)
	if t[0] == '"' {
		var s string
		if json.Unmarshal(t, &s) == nil {
			b, _ := json.Marshal(s)
			return string(b)
		}
		return string(t)
	}
	var n json.Number
	if json.Unmarshal(t, &n) == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return string(t)
}

// String renders the identifier for logs.
func (id ID) String() string {
	if id.IsNull() {
		return "null"
	}
	return string(bytes.TrimSpace(id))
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsNull() {
		return nullID, nil
	}
	return bytes.TrimSpace(id), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	*id = append((*id)[:0], b...)
	return nil
}

// Request is a call that expects a Response carrying the same ID.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id,omitempty"`
	Method  Method          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response answers a Request. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsError reports whether the response carries an error.
func (r *Response) IsError() bool { return r.Error != nil }

// Decode unmarshals the result into v. An error response is returned as *Error.
func (r *Response) Decode(v any) error {
	if r.Error != nil {
		return r.Error
	}
	if v == nil || len(r.Result) == 0 {
		return nil
	}
	return json.Unmarshal(r.Result, v)
}

// Notification is a one-way message; it never receives a reply.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  Method          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewRequest builds a request, encoding params when non-nil.
func NewRequest(id ID, method Method, params any) (Request, error) {
	req := Request{JSONRPC: Version, ID: id, Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return Request{}, err
		}
		req.Params = b
	}
	return req, nil
}

// NewNotification builds a notification, encoding params when non-nil.
func NewNotification(method Method, params any) (Notification, error) {
	n := Notification{JSONRPC: Version, Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return Notification{}, err
		}
		n.Params = b
	}
	return n, nil
}

// Success builds a result response. A result that cannot be encoded becomes
// an internal error response.
func Success(id ID, result any) Response {
	b, err := json.Marshal(result)
	if err != nil {
		return Failure(id, NewError(CodeInternalError, "Internal error: %s", err.Error()))
	}
	return Response{JSONRPC: Version, ID: id, Result: b}
}

// Failure builds an error response.
func Failure(id ID, e *Error) Response {
	return Response{JSONRPC: Version, ID: id, Error: e}
}
