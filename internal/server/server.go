// Package server serves the bridge protocol over websocket.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yohi/antigravity-mcp-bridge/core/bridgewire"
	"github.com/yohi/antigravity-mcp-bridge/core/logx"
	"github.com/yohi/antigravity-mcp-bridge/internal/dispatch"
	"github.com/yohi/antigravity-mcp-bridge/internal/inflight"
	"github.com/yohi/antigravity-mcp-bridge/internal/metrics"
	"github.com/yohi/antigravity-mcp-bridge/internal/serverstate"
)

const writeTimeout = 10 * time.Second

// Options configure a Server.
type Options struct {
	// Token is the bearer secret every upgrade must present.
	Token      string
	Dispatcher *dispatch.Dispatcher

	AllowedOrigins  []string
	RateLimit       float64
	RateBurst       int
	MaxMessageBytes int64

	// Gatherer, when set, is served on /metrics.
	Gatherer prometheus.Gatherer
}

// Server owns the connected sessions.
type Server struct {
	opts     Options
	inflight inflight.Counter

	mu       sync.RWMutex
	sessions map[string]*session
}

// New returns a server. Call Handler to mount it.
func New(opts Options) *Server {
	if opts.Dispatcher == nil {
		opts.Dispatcher = dispatch.NewDispatcher()
	}
	return &Server{opts: opts, sessions: map[string]*session{}}
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}

	r.Get("/healthz", s.healthz)
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Group(func(g chi.Router) {
		g.Use(BearerMiddleware(s.opts.Token))
		g.Get("/", s.serveWS)
		g.Get("/ws", s.serveWS)
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	st := serverstate.GetState()
	w.Header().Set("Content-Type", "application/json")
	if serverstate.IsDraining() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}{st, s.Sessions()})
}

// Sessions returns the number of connected sessions.
func (s *Server) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// InFlight returns the number of requests being handled.
func (s *Server) InFlight() int64 { return s.inflight.Load() }

func (s *Server) add(sess *session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	metrics.SessionOpened()
}

func (s *Server) remove(sess *session) {
	s.mu.Lock()
	_, ok := s.sessions[sess.id]
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	if ok {
		metrics.SessionClosed()
	}
}

func (s *Server) snapshot() []*session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Broadcast sends a workspace/event notification to every session. Sessions
// whose outbound queue is full miss the event.
func (s *Server) Broadcast(ev bridgewire.WorkspaceEventParams) {
	n, err := bridgewire.NewNotification(bridgewire.MethodWorkspaceEvent, ev)
	if err != nil {
		return
	}
	b, err := json.Marshal(n)
	if err != nil {
		return
	}
	metrics.RecordWorkspaceEvent(string(ev.Type))
	for _, sess := range s.snapshot() {
		if !sess.trySend(b) {
			logx.Log.Warn().Str("session_id", sess.id).Str("path", ev.Path).Msg("session queue full; event dropped")
		}
	}
}

// Drain marks the daemon as draining, waits for in-flight requests until ctx
// is done and then closes every session.
func (s *Server) Drain(ctx context.Context) bool {
	serverstate.StartDrain()
	logx.Log.Info().Int64("inflight", s.inflight.Load()).Msg("draining")
	ok := s.inflight.WaitForZero(ctx)
	s.CloseSessions()
	return ok
}

// CloseSessions closes every connected session.
func (s *Server) CloseSessions() {
	for _, sess := range s.snapshot() {
		sess.close("server shutting down")
	}
}

func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		o = strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
