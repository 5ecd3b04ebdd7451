package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yohi/antigravity-mcp-bridge/core/bridgewire"
	"github.com/yohi/antigravity-mcp-bridge/core/logx"
	"github.com/yohi/antigravity-mcp-bridge/internal/dispatch"
	"github.com/yohi/antigravity-mcp-bridge/internal/host"
	"github.com/yohi/antigravity-mcp-bridge/internal/metrics"
	"github.com/yohi/antigravity-mcp-bridge/internal/sandbox"
	"github.com/yohi/antigravity-mcp-bridge/internal/serverstate"
	"github.com/yohi/antigravity-mcp-bridge/internal/wsclient"
)

const token = "s3cret"

func newServer(t *testing.T, mutate func(*Options)) (*Server, *httptest.Server, string) {
	t.Helper()
	prev := serverstate.UseStore(serverstate.NewMemoryStore())
	t.Cleanup(func() { serverstate.UseStore(prev) })
	serverstate.SetState(serverstate.StatusReady)

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed workspace: %v", err)
	}
	sb, err := sandbox.New(sandbox.Options{Root: root, MaxFileSize: 1024})
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	svc := dispatch.NewService(sb, host.Unavailable{}, logx.NewRing(10))

	opts := Options{Token: token, Dispatcher: svc.Dispatcher(), MaxMessageBytes: 1 << 20}
	if mutate != nil {
		mutate(&opts)
	}
	s := New(opts)
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)
	t.Cleanup(s.CloseSessions)
	return s, hs, "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
}

func connect(t *testing.T, url string) *wsclient.Client {
	t.Helper()
	c := wsclient.New(wsclient.Options{URL: url, Token: token, RequestTimeout: 2 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestUnauthorizedUpgrade(t *testing.T) {
	_, hs, _ := newServer(t, nil)
	for _, hdr := range []string{"", "Bearer wrong", "Basic " + token} {
		req, _ := http.NewRequest(http.MethodGet, hs.URL+"/ws", nil)
		if hdr != "" {
			req.Header.Set("Authorization", hdr)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("header %q: status %d", hdr, resp.StatusCode)
		}
		if strings.TrimSpace(string(body)) != `{"error":"unauthorized"}` {
			t.Fatalf("header %q: body %s", hdr, body)
		}
	}
}

func TestBearerMiddlewareMatchesExactly(t *testing.T) {
	h := BearerMiddleware(token)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	tests := []struct {
		header string
		want   int
	}{
		{"Bearer " + token, http.StatusNoContent},
		{"bearer " + token, http.StatusNoContent},
		{"Bearer " + token + " ", http.StatusUnauthorized},
		{"Bearer  " + token, http.StatusUnauthorized},
		{"Bearer ", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Header.Set("Authorization", tt.header)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		if rec.Code != tt.want {
			t.Fatalf("header %q: status %d; want %d", tt.header, rec.Code, tt.want)
		}
	}
}

func TestClientRejectedWithWrongToken(t *testing.T) {
	_, _, url := newServer(t, nil)
	c := wsclient.New(wsclient.Options{URL: url, Token: "nope"})
	if err := c.Connect(context.Background()); !errors.Is(err, wsclient.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	s, _, url := newServer(t, nil)
	c := connect(t, url)
	ctx := context.Background()

	files, err := c.ListFiles(ctx, true)
	if err != nil || !slices.Equal(files, []string{"a.txt"}) {
		t.Fatalf("list = %v, %v", files, err)
	}

	content, err := c.ReadFile(ctx, "a.txt")
	if err != nil || content != "hello" {
		t.Fatalf("read = %q, %v", content, err)
	}

	_, err = c.ReadFile(ctx, "../etc/passwd")
	if !bridgewire.HasCode(err, bridgewire.CodeInvalidParams) {
		t.Fatalf("expected invalid params, got %v", err)
	}

	res, err := c.WriteFile(ctx, "sub/b.txt", "x")
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.Message != "File written: sub/b.txt" {
		t.Fatalf("write message %q", res.Message)
	}

	eventually(t, func() bool { return s.Sessions() == 1 }, "one session")
}

func TestConcurrentRequests(t *testing.T) {
	_, _, url := newServer(t, nil)
	c := connect(t, url)
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.ReadFile(context.Background(), "a.txt"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("request failed: %v", err)
	}
}

func rawDial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+token)
	c, _, err := websocket.Dial(context.Background(), url, &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func roundTrip(t *testing.T, ctx context.Context, c *websocket.Conn, frame string) bridgewire.Response {
	t.Helper()
	if err := c.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp bridgewire.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if resp.Error == nil {
		t.Fatalf("expected an error response, got %s", data)
	}
	return resp
}

func TestParseErrorKeepsSession(t *testing.T) {
	_, _, url := newServer(t, nil)
	c := rawDial(t, url)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp := roundTrip(t, ctx, c, "{not json")
	if !resp.ID.IsNull() || resp.Error.Code != bridgewire.CodeParseError {
		t.Fatalf("id=%s code=%d", resp.ID, resp.Error.Code)
	}

	resp = roundTrip(t, ctx, c, `{"jsonrpc":"2.0","id":"x","method":"fs/delete"}`)
	if resp.ID.Key() != `"x"` || resp.Error.Code != bridgewire.CodeMethodNotFound {
		t.Fatalf("id=%s code=%d", resp.ID, resp.Error.Code)
	}
	if resp.Error.Message != "Method not found: fs/delete" {
		t.Fatalf("message %q", resp.Error.Message)
	}
}

func TestBroadcast(t *testing.T) {
	s, _, url := newServer(t, nil)
	got := make(chan bridgewire.WorkspaceEventParams, 2)
	c1 := connect(t, url)
	c1.OnWorkspaceEvent(func(ev bridgewire.WorkspaceEventParams) { got <- ev })
	c2 := connect(t, url)
	c2.OnWorkspaceEvent(func(ev bridgewire.WorkspaceEventParams) { got <- ev })
	eventually(t, func() bool { return s.Sessions() == 2 }, "two sessions")

	s.Broadcast(bridgewire.WorkspaceEventParams{Type: bridgewire.EventFileChanged, Path: "a.txt"})
	for i := 0; i < 2; i++ {
		select {
		case ev := <-got:
			if ev.Type != bridgewire.EventFileChanged || ev.Path != "a.txt" {
				t.Fatalf("unexpected event %+v", ev)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("session %d missed the event", i)
		}
	}
}

func TestRateLimitDelaysRequests(t *testing.T) {
	_, _, url := newServer(t, func(o *Options) {
		o.RateLimit = 10
		o.RateBurst = 1
	})
	c := connect(t, url)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.ReadFile(context.Background(), "a.txt"); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Fatalf("three requests took %s; expected limiter delay", elapsed)
	}
}

func TestHealthzAndDrain(t *testing.T) {
	s, hs, url := newServer(t, nil)
	c := connect(t, url)
	eventually(t, func() bool { return s.Sessions() == 1 }, "one session")

	resp, err := http.Get(hs.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	err = json.NewDecoder(resp.Body).Decode(&body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if resp.StatusCode != http.StatusOK || body.Status != serverstate.StatusReady || body.Sessions != 1 {
		t.Fatalf("healthz %d %+v", resp.StatusCode, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !s.Drain(ctx) {
		t.Fatalf("drain did not finish")
	}
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("client not disconnected by drain")
	}

	resp, err = http.Get(hs.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("healthz after drain %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, hs.URL+"/ws", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("upgrade after drain %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	_, hs, url := newServer(t, func(o *Options) { o.Gatherer = reg })
	c := connect(t, url)
	if _, err := c.ReadFile(context.Background(), "a.txt"); err != nil {
		t.Fatalf("read: %v", err)
	}

	resp, err := http.Get(hs.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), `agbridge_requests_total{code="ok",method="fs/read"}`) {
		t.Fatalf("request counter missing from:\n%s", body)
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc ", "abc "},
		{"Token abc", ""},
		{"Bearer ", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", tt.header)
		if got := ExtractBearer(r); got != tt.want {
			t.Fatalf("ExtractBearer(%q) = %q; want %q", tt.header, got, tt.want)
		}
	}
}
