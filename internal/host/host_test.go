package host

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func commandServer(t *testing.T, handle func(cmd string, args []json.RawMessage) (int, any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer host-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/commands":
			_ = json.NewEncoder(w).Encode(map[string]any{"commands": []string{"antigravity.sendTextToChat", "antigravity.getDiagnostics"}})
		case r.Method == http.MethodPost && r.URL.Path == "/commands/execute":
			var req struct {
				Command string            `json:"command"`
				Args    []json.RawMessage `json:"args"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			status, body := handle(req.Command, req.Args)
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(body)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPCommandsExecute(t *testing.T) {
	srv := commandServer(t, func(cmd string, args []json.RawMessage) (int, any) {
		if cmd == "antigravity.getDiagnostics" {
			return 200, map[string]any{"result": map[string]any{"ok": true, "args": len(args)}}
		}
		return 200, map[string]any{"error": "command '" + cmd + "' not found"}
	})
	var mu sync.Mutex
	outcomes := map[string]string{}
	h := NewHTTPCommands(HTTPOptions{BaseURL: srv.URL + "/", Token: "host-secret", Observe: func(c, o string) {
		mu.Lock()
		outcomes[c] = o
		mu.Unlock()
	}})
	ctx := context.Background()

	res, err := h.Execute(ctx, "antigravity.getDiagnostics", "a", 1)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if string(res) != `{"args":2,"ok":true}` {
		t.Fatalf("unexpected result %s", res)
	}

	_, err = h.Execute(ctx, "nope")
	if !IsCommandError(err) {
		t.Fatalf("expected command error, got %v", err)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Fatalf("message lost: %v", err)
	}

	cmds, err := h.List(ctx)
	if err != nil || len(cmds) != 2 {
		t.Fatalf("list: %v %v", cmds, err)
	}
	if outcomes["antigravity.getDiagnostics"] != OutcomeOK || outcomes["nope"] != OutcomeRejected {
		t.Fatalf("outcomes %v", outcomes)
	}
}

func TestHTTPCommandsBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := commandServer(t, func(string, []json.RawMessage) (int, any) {
		hits.Add(1)
		return 500, map[string]any{}
	})
	h := NewHTTPCommands(HTTPOptions{BaseURL: srv.URL, Token: "host-secret", BreakerFailures: 3, BreakerTimeout: time.Minute})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := h.Execute(ctx, "x"); err == nil || IsCommandError(err) {
			t.Fatalf("attempt %d: expected transport error, got %v", i, err)
		}
	}
	_, err := h.Execute(ctx, "x")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("open breaker should not reach the host, hits=%d", hits.Load())
	}
}

func TestCommandErrorsDoNotTripBreaker(t *testing.T) {
	srv := commandServer(t, func(string, []json.RawMessage) (int, any) {
		return 200, map[string]any{"error": "bad args"}
	})
	h := NewHTTPCommands(HTTPOptions{BaseURL: srv.URL, Token: "host-secret", BreakerFailures: 2})
	for i := 0; i < 5; i++ {
		if _, err := h.Execute(context.Background(), "x"); !IsCommandError(err) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
}

func TestUnavailable(t *testing.T) {
	var c Commands = Unavailable{}
	if _, err := c.Execute(context.Background(), "antigravity.getDiagnostics"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("execute: %v", err)
	}
	if _, err := c.List(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("list: %v", err)
	}
}

func TestAsk(t *testing.T) {
	cases := map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "\n": false, "maybe\n": false}
	for in, want := range cases {
		var out strings.Builder
		got, err := ask(context.Background(), bufio.NewReader(strings.NewReader(in)), &out, "a.txt")
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got != want {
			t.Fatalf("%q: got %v", in, got)
		}
		if !strings.Contains(out.String(), "a.txt") {
			t.Fatalf("prompt should name the path: %q", out.String())
		}
	}
	if _, err := ask(context.Background(), bufio.NewReader(strings.NewReader("")), io.Discard, "a"); err == nil {
		t.Fatalf("EOF should be an error")
	}
}

func TestApprovers(t *testing.T) {
	if ok, _ := StaticApprover(true).ApproveWrite(context.Background(), "a"); !ok {
		t.Fatalf("static true")
	}
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()
	a := &TerminalApprover{In: r, Out: io.Discard}
	if _, err := a.ApproveWrite(context.Background(), "a"); !errors.Is(err, ErrNoTerminal) {
		t.Fatalf("pipe is not a terminal: %v", err)
	}
}
