package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/yohi/antigravity-mcp-bridge/core/logx"
)

const (
	defaultBreakerFailures uint32 = 5
	defaultBreakerTimeout         = 30 * time.Second
	defaultHTTPTimeout            = 30 * time.Second
	maxResponseBytes              = 16 << 20
)

// Command outcomes reported to HTTPOptions.Observe.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeOpen     = "open"
)

// HTTPOptions configure HTTPCommands.
type HTTPOptions struct {
	BaseURL string
	Token   string
	Client  *http.Client
	// BreakerFailures consecutive transport failures open the breaker.
	BreakerFailures uint32
	// BreakerTimeout is how long the breaker stays open.
	BreakerTimeout time.Duration
	// Observe, when set, is told the outcome of every command.
	Observe func(command, outcome string)
}

// HTTPCommands reaches the IDE command surface over HTTP:
//
//	POST <base>/commands/execute {"command":id,"args":[...]} -> {"result":...} | {"error":"..."}
//	GET  <base>/commands -> {"commands":[...]}
//
// Transport failures and 5xx replies count against a circuit breaker; a
// command the host rejects does not.
type HTTPCommands struct {
	base    string
	token   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[json.RawMessage]
	observe func(command, outcome string)
}

// NewHTTPCommands builds a client for the command surface at opts.BaseURL.
func NewHTTPCommands(opts HTTPOptions) *HTTPCommands {
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	timeout := opts.BreakerTimeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	h := &HTTPCommands{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		client:  client,
		observe: opts.Observe,
	}
	h.breaker = gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        "host-commands",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logx.Log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsCommandError(err)
		},
	})
	return h
}

type executeRequest struct {
	Command string `json:"command"`
	Args    []any  `json:"args"`
}

type executeResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// Execute runs command on the host.
func (h *HTTPCommands) Execute(ctx context.Context, command string, args ...any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	body, err := json.Marshal(executeRequest{Command: command, Args: args})
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", command, err)
	}
	res, err := h.breaker.Execute(func() (json.RawMessage, error) {
		b, status, err := h.do(ctx, http.MethodPost, "/commands/execute", body)
		if err != nil {
			return nil, err
		}
		var er executeResponse
		if jerr := json.Unmarshal(b, &er); jerr != nil {
			if status >= 500 {
				return nil, fmt.Errorf("host returned %d", status)
			}
			return nil, fmt.Errorf("decode %s reply: %w", command, jerr)
		}
		if er.Error != nil {
			return nil, &CommandError{Command: command, Message: *er.Error}
		}
		if status >= 400 {
			return nil, fmt.Errorf("host returned %d", status)
		}
		if len(er.Result) == 0 {
			return json.RawMessage("null"), nil
		}
		return er.Result, nil
	})
	h.report(command, err)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w (%v)", command, ErrUnavailable, err)
		}
		return nil, err
	}
	return res, nil
}

// List returns the registered command ids.
func (h *HTTPCommands) List(ctx context.Context) ([]string, error) {
	b, status, err := h.do(ctx, http.MethodGet, "/commands", nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("list commands: host returned %d", status)
	}
	var out struct {
		Commands []string `json:"commands"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode command list: %w", err)
	}
	return out.Commands, nil
}

func (h *HTTPCommands) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.base+path, rd)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return b, resp.StatusCode, nil
}

func (h *HTTPCommands) report(command string, err error) {
	if h.observe == nil {
		return
	}
	switch {
	case err == nil:
		h.observe(command, OutcomeOK)
	case IsCommandError(err):
		h.observe(command, OutcomeRejected)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		h.observe(command, OutcomeOpen)
	default:
		h.observe(command, OutcomeError)
	}
}
