package serverstate

import "sync/atomic"

// Statuses reported by /healthz.
const (
	StatusNotReady = "not_ready"
	StatusReady    = "ready"
	StatusDraining = "draining"
)

// State holds the daemon status and draining flag. All fields are updated
// together so callers always observe a consistent snapshot.
type State struct {
	Status   string `json:"status"`
	Draining bool   `json:"draining"`
}

// Store defines how the state is persisted. Implementations may keep it in
// memory or in an external service such as Redis.
type Store interface {
	Load() State
	Store(State)
}

// active is the currently configured Store. It defaults to an in-memory
// implementation but can be swapped for other strategies.
var active atomic.Value

func init() {
	active.Store(storeBox{NewMemoryStore()})
}

// storeBox keeps atomic.Value holding one concrete type.
type storeBox struct{ Store }

func current() Store { return active.Load().(storeBox).Store }

// UseStore replaces the active Store and returns the previous one.
func UseStore(s Store) Store {
	prev := current()
	if s != nil {
		active.Store(storeBox{s})
	}
	return prev
}

// MemoryStore implements Store using an atomic.Value. It is the default
// strategy and is safe for concurrent use within a single process.
type MemoryStore struct {
	v atomic.Value
}

// NewMemoryStore returns a memory-backed Store initialized to "not_ready".
func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{}
	ms.v.Store(State{Status: StatusNotReady})
	return ms
}

func (m *MemoryStore) Load() State {
	if st, ok := m.v.Load().(State); ok {
		return st
	}
	return State{Status: "unknown"}
}

func (m *MemoryStore) Store(s State) {
	m.v.Store(s)
}

// SetState updates the status string.
func SetState(status string) {
	s := current()
	st := s.Load()
	st.Status = status
	s.Store(st)
}

// GetState returns the current status.
func GetState() string {
	return current().Load().Status
}

// StartDrain marks the daemon as draining.
func StartDrain() {
	current().Store(State{Status: StatusDraining, Draining: true})
}

// IsDraining reports whether the daemon is draining.
func IsDraining() bool {
	return current().Load().Draining
}
