package bridgewire

import (
	"bytes"
	"encoding/json"
)

// fields decodes a frame into its top-level members. Anything but a JSON
// object yields ok=false.
func fields(data []byte) (map[string]json.RawMessage, bool) {
	t := bytes.TrimSpace(data)
	if len(t) == 0 || t[0] != '{' {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(t, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

func hasVersion(m map[string]json.RawMessage) bool {
	var v string
	raw, ok := m["jsonrpc"]
	if !ok || json.Unmarshal(raw, &v) != nil {
		return false
	}
	return v == Version
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), nullID)
}

func validID(raw json.RawMessage) bool {
	var v any
	if json.Unmarshal(raw, &v) != nil {
		return false
	}
	switch v.(type) {
	case nil, string, float64:
		return true
	}
	return false
}

// IsResponse reports whether data is a well-formed response: version marker,
// an id that is a number, a string or null, and exactly one of result and
// error. An error member must be an object with a numeric code and a string
// message.
func IsResponse(data []byte) bool {
	m, ok := fields(data)
	if !ok || !hasVersion(m) {
		return false
	}
	id, ok := m["id"]
	if !ok || !validID(id) {
		return false
	}
	_, hasResult := m["result"]
	errRaw, hasError := m["error"]
	if hasResult == hasError {
		return false
	}
	if !hasError {
		return true
	}
	var e struct {
		Code    *float64 `json:"code"`
		Message *string  `json:"message"`
	}
	if isNull(errRaw) || json.Unmarshal(errRaw, &e) != nil {
		return false
	}
	return e.Code != nil && e.Message != nil
}

// IsNotification reports whether data is a well-formed notification: version
// marker, no id (or a null one), a string method and neither result nor error.
func IsNotification(data []byte) bool {
	m, ok := fields(data)
	if !ok || !hasVersion(m) {
		return false
	}
	if id, ok := m["id"]; ok && !isNull(id) {
		return false
	}
	var method string
	raw, ok := m["method"]
	if !ok || json.Unmarshal(raw, &method) != nil {
		return false
	}
	if _, ok := m["result"]; ok {
		return false
	}
	if _, ok := m["error"]; ok {
		return false
	}
	return true
}

// IsRequest reports whether data carries a method and a non-null id.
func IsRequest(data []byte) bool {
	m, ok := fields(data)
	if !ok {
		return false
	}
	id, ok := m["id"]
	if !ok || isNull(id) || !validID(id) {
		return false
	}
	var method string
	raw, ok := m["method"]
	return ok && json.Unmarshal(raw, &method) == nil
}
