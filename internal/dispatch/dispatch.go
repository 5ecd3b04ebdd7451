// Package dispatch routes bridge requests to their handlers and turns handler
// outcomes into responses.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"runtime/debug"

	"github.com/yohi/antigravity-mcp-bridge/core/bridgewire"
	"github.com/yohi/antigravity-mcp-bridge/core/logx"
)

// Handler serves one method. Returning a *bridgewire.Error selects the error
// code; any other error becomes an internal error.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Dispatcher maps methods to handlers.
type Dispatcher struct {
	handlers map[bridgewire.Method]Handler
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: map[bridgewire.Method]Handler{}}
}

// Register binds h to method.
func (d *Dispatcher) Register(method bridgewire.Method, h Handler) {
	d.handlers[method] = h
}

// Handle runs the handler for req and always returns a response.
func (d *Dispatcher) Handle(ctx context.Context, req bridgewire.Request) (resp bridgewire.Response) {
	h, ok := d.handlers[req.Method]
	if !ok {
		return bridgewire.Failure(req.ID, bridgewire.NewError(bridgewire.CodeMethodNotFound, "Method not found: %s", req.Method))
	}
	defer func() {
		if r := recover(); r != nil {
			logx.Log.Error().Str("method", string(req.Method)).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("handler panic")
			resp = bridgewire.Failure(req.ID, bridgewire.NewError(bridgewire.CodeInternalError, "Internal error: %s", bridgewire.FormatError(r)))
		}
	}()
	result, err := h(ctx, req.Params)
	if err != nil {
		return bridgewire.Failure(req.ID, toWireError(err))
	}
	return bridgewire.Success(req.ID, result)
}

func toWireError(err error) *bridgewire.Error {
	if be, ok := bridgewire.AsError(err); ok {
		return be
	}
	return bridgewire.NewError(bridgewire.CodeInternalError, "Internal error: %s", err.Error())
}

// HandleFrame parses one incoming frame. Requests are dispatched; a frame
// that is not JSON yields a parse error with a null id. Responses and
// notifications sent by the caller are dropped and reported with ok=false.
func (d *Dispatcher) HandleFrame(ctx context.Context, data []byte) (resp bridgewire.Response, ok bool) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		var v any
		if jerr := json.Unmarshal(data, &v); jerr != nil {
			return bridgewire.Failure(nil, bridgewire.NewError(bridgewire.CodeParseError, "Parse error: %s", jerr.Error())), true
		}
		return bridgewire.Failure(nil, bridgewire.NewError(bridgewire.CodeInvalidParams, "Invalid request: expected an object")), true
	}
	switch {
	case bridgewire.IsResponse(data):
		logx.Log.Debug().Msg("dropping response sent by client")
		return bridgewire.Response{}, false
	case bridgewire.IsNotification(data):
		logx.Log.Debug().Msg("dropping notification sent by client")
		return bridgewire.Response{}, false
	}

	id := bridgewire.ID(members["id"])
	if !validID(id) {
		id = nil
	}
	if !bridgewire.IsRequest(data) {
		return bridgewire.Failure(id, bridgewire.NewError(bridgewire.CodeInvalidParams, "Invalid request: expected a string method and a number or string id")), true
	}
	var req bridgewire.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return bridgewire.Failure(id, bridgewire.NewError(bridgewire.CodeInvalidParams, "Invalid request: %s", err.Error())), true
	}
	logx.Log.Info().Str("method", string(req.Method)).Str("id", req.ID.String()).
		Msgf("Received: %s (id: %s)", req.Method, req.ID)
	return d.Handle(ctx, req), true
}

func validID(id bridgewire.ID) bool {
	t := bytes.TrimSpace(id)
	if len(t) == 0 {
		return false
	}
	var v any
	if json.Unmarshal(t, &v) != nil {
		return false
	}
	switch v.(type) {
	case string, float64, nil:
		return true
	}
	return false
}

// decodeParams unmarshals params into v. Absent or null params leave v
// untouched.
func decodeParams(params json.RawMessage, v any) error {
	t := bytes.TrimSpace(params)
	if len(t) == 0 || bytes.Equal(t, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(t, v); err != nil {
		return bridgewire.NewError(bridgewire.CodeInvalidParams, "Invalid params: %s", err.Error())
	}
	return nil
}
