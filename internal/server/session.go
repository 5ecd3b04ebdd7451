package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/yohi/antigravity-mcp-bridge/core/bridgewire"
	"github.com/yohi/antigravity-mcp-bridge/core/logx"
	"github.com/yohi/antigravity-mcp-bridge/internal/metrics"
	"github.com/yohi/antigravity-mcp-bridge/internal/serverstate"
)

const sendQueue = 64

type session struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *session) trySend(b []byte) bool {
	select {
	case <-s.ctx.Done():
		return true
	case s.send <- b:
		return true
	default:
		return false
	}
}

func (s *session) sendWait(b []byte) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case s.send <- b:
		return nil
	}
}

func (s *session) close(reason string) {
	s.closeOnce.Do(func() {
		_ = s.conn.Close(websocket.StatusGoingAway, reason)
		s.cancel()
	})
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case b := <-s.send:
			ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
			err := s.conn.Write(ctx, websocket.MessageText, b)
			cancel()
			if err != nil {
				logx.Log.Debug().Err(err).Str("session_id", s.id).Msg("write failed")
				s.cancel()
				return
			}
		}
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if serverstate.IsDraining() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(s.opts.AllowedOrigins),
	})
	if err != nil {
		return
	}
	if s.opts.MaxMessageBytes > 0 {
		c.SetReadLimit(s.opts.MaxMessageBytes)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:     uuid.NewString(),
		conn:   c,
		send:   make(chan []byte, sendQueue),
		ctx:    ctx,
		cancel: cancel,
	}
	if s.opts.RateLimit > 0 {
		burst := s.opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		sess.limiter = rate.NewLimiter(rate.Limit(s.opts.RateLimit), burst)
	}
	s.add(sess)
	logx.Log.Info().Str("session_id", sess.id).Str("remote", r.RemoteAddr).Msg("Client connected")
	defer func() {
		s.remove(sess)
		sess.close("session ended")
		logx.Log.Info().Str("session_id", sess.id).Msg("Client disconnected")
	}()

	go sess.writeLoop()

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			var ce websocket.CloseError
			switch {
			case errors.As(err, &ce) && (ce.Code == websocket.StatusNormalClosure || ce.Code == websocket.StatusGoingAway):
			case errors.Is(err, context.Canceled):
			default:
				logx.Log.Debug().Err(err).Str("session_id", sess.id).Msg("read failed")
			}
			return
		}
		if sess.limiter != nil {
			if err := sess.limiter.Wait(ctx); err != nil {
				return
			}
		}
		s.inflight.Inc()
		go func() {
			defer s.inflight.Dec()
			s.handle(sess, data)
		}()
	}
}

func (s *Server) handle(sess *session, data []byte) {
	start := time.Now()
	resp, ok := s.opts.Dispatcher.HandleFrame(sess.ctx, data)
	if !ok {
		return
	}
	code := "ok"
	if resp.Error != nil {
		code = bridgewire.CodeName(resp.Error.Code)
	}
	metrics.RecordRequest(methodLabel(data), code, time.Since(start))

	b, err := json.Marshal(resp)
	if err != nil {
		logx.Log.Error().Err(err).Str("session_id", sess.id).Msg("encode response")
		b, _ = json.Marshal(bridgewire.Failure(resp.ID, bridgewire.NewError(bridgewire.CodeInternalError, "Internal error: %s", err.Error())))
	}
	if err := sess.sendWait(b); err != nil {
		logx.Log.Debug().Err(err).Str("session_id", sess.id).Msg("response dropped")
	}
}

// methodLabel bounds the method label to the protocol's method names.
func methodLabel(data []byte) string {
	var m struct {
		Method bridgewire.Method `json:"method"`
	}
	if json.Unmarshal(data, &m) != nil || !m.Method.Known() {
		return "unknown"
	}
	return string(m.Method)
}
