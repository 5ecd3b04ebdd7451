// Package trajectory recovers the answer to a dispatched agent prompt. The
// host never reports completion, so the tracker watches the persisted
// conversation summaries for a new conversation and then polls diagnostics
// snapshots until output for that conversation shows up. Results are best
// effort.
package trajectory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yohi/antigravity-mcp-bridge/core/logx"
)

// ErrTimeout is returned when no output is found before the deadline.
var ErrTimeout = errors.New("LLM ask timed out")

// State is a phase of a tracked dispatch.
type State int

const (
	Idle State = iota
	BaselineCaptured
	AwaitingNewConversation
	ConversationFound
	AwaitingOutput
	Resolved
	TimedOut
)

var stateNames = [...]string{
	"idle",
	"baseline_captured",
	"awaiting_new_conversation",
	"conversation_found",
	"awaiting_output",
	"resolved",
	"timed_out",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Snapshotter returns the raw diagnostics snapshot.
type Snapshotter interface {
	Diagnostics(ctx context.Context) (json.RawMessage, error)
}

// Options tune the tracker. Zero values take the defaults.
type Options struct {
	Timeout          time.Duration
	StoreInterval    time.Duration
	StoreTimeout     time.Duration
	SnapshotInterval time.Duration
	Window           int
	// OnState observes every transition.
	OnState func(State)
}

const (
	DefaultTimeout          = 60 * time.Second
	DefaultStoreInterval    = 500 * time.Millisecond
	DefaultStoreTimeout     = 10 * time.Second
	DefaultSnapshotInterval = time.Second
)

func (o *Options) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.StoreInterval <= 0 {
		o.StoreInterval = DefaultStoreInterval
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = DefaultStoreTimeout
	}
	if o.SnapshotInterval <= 0 {
		o.SnapshotInterval = DefaultSnapshotInterval
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
}

// Result is the recovered output.
type Result struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
	// Source is "store" or "diagnostics", naming where the conversation
	// was first seen.
	Source string `json:"source"`
}

// Tracker correlates one dispatch at a time. Store may be nil, in which case
// only diagnostics are consulted.
type Tracker struct {
	store Store
	snap  Snapshotter
	opts  Options
	state State
}

// NewTracker returns a tracker.
func NewTracker(store Store, snap Snapshotter, opts Options) *Tracker {
	opts.defaults()
	return &Tracker{store: store, snap: snap, opts: opts}
}

// State returns the current phase.
func (t *Tracker) State() State { return t.state }

func (t *Tracker) enter(s State) {
	t.state = s
	logx.Log.Debug().Str("state", s.String()).Msg("trajectory")
	if t.opts.OnState != nil {
		t.opts.OnState(s)
	}
}

// Run captures the baseline conversation, calls send to dispatch the prompt
// and polls until output for the new conversation is found. A send error is
// returned as is; running out of time returns ErrTimeout.
func (t *Tracker) Run(ctx context.Context, send func(context.Context) error) (Result, error) {
	t.enter(Idle)
	started := time.Now()
	dctx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	baseline := t.latest(dctx)
	if baseline != "" {
		logx.Log.Info().Str("cascade_id", baseline).Msg("Baseline cascade_id (DB)")
	}
	t.enter(BaselineCaptured)

	if err := send(dctx); err != nil {
		return Result{}, err
	}
	t.enter(AwaitingNewConversation)

	id, source, err := t.awaitConversation(dctx, baseline)
	if err != nil {
		return Result{}, t.fail(ctx, err, started)
	}
	t.enter(ConversationFound)
	logx.Log.Info().Str("cascade_id", id).Str("source", source).Msg("Captured new cascade_id")

	t.enter(AwaitingOutput)
	for {
		if snap, ok := t.snapshot(dctx); ok {
			if text := ExtractText(snap, id, t.opts.Window); text != "" {
				t.enter(Resolved)
				return Result{ConversationID: id, Text: text, Source: source}, nil
			}
		}
		if err := sleep(dctx, t.opts.SnapshotInterval); err != nil {
			return Result{}, t.fail(ctx, err, started)
		}
	}
}

// awaitConversation polls the store for an id other than baseline, then falls
// back to diagnostics snapshots.
func (t *Tracker) awaitConversation(ctx context.Context, baseline string) (string, string, error) {
	if t.store != nil {
		sctx, cancel := context.WithTimeout(ctx, t.opts.StoreTimeout)
		for {
			if err := sleep(sctx, t.opts.StoreInterval); err != nil {
				break
			}
			if cur := t.latest(sctx); cur != "" && cur != baseline {
				cancel()
				return cur, "store", nil
			}
		}
		cancel()
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
	}

	logx.Log.Warn().Msg("Could not detect new cascade_id in DB, falling back to diagnostics polling (lower confidence)")
	for {
		if snap, ok := t.snapshot(ctx); ok {
			if id, found := ExtractConversationID(snap, baseline); found {
				return id, "diagnostics", nil
			}
		}
		if err := sleep(ctx, t.opts.SnapshotInterval); err != nil {
			return "", "", err
		}
	}
}

func (t *Tracker) fail(parent context.Context, err error, started time.Time) error {
	if perr := parent.Err(); perr != nil {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.enter(TimedOut)
		return fmt.Errorf("%w after %dms", ErrTimeout, time.Since(started).Milliseconds())
	}
	return err
}

// latest reads the newest conversation id; failures count as none.
func (t *Tracker) latest(ctx context.Context) string {
	if t.store == nil {
		return ""
	}
	id, err := Latest(ctx, t.store)
	if err != nil {
		logx.Log.Warn().Err(err).Msg("DB read failed")
		return ""
	}
	return id
}

func (t *Tracker) snapshot(ctx context.Context) (any, bool) {
	raw, err := t.snap.Diagnostics(ctx)
	if err != nil {
		logx.Log.Warn().Err(err).Msg("getDiagnostics failed")
		return nil, false
	}
	return Normalize(raw), true
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
