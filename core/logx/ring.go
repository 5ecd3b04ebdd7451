package logx

import (
	"strings"
	"sync"
)

// DefaultRingSize is the number of lines kept when no size is configured.
const DefaultRingSize = 500

// Ring is a bounded line buffer. It implements io.Writer so it can sit behind
// a zerolog writer; each written chunk is split on newlines.
type Ring struct {
	mu    sync.Mutex
	lines []string
	max   int
}

// NewRing returns a ring that keeps at most max lines.
func NewRing(max int) *Ring {
	if max <= 0 {
		max = DefaultRingSize
	}
	return &Ring{max: max}
}

func (r *Ring) Write(p []byte) (int, error) {
	text := strings.TrimRight(string(p), "\n")
	if text == "" {
		return len(p), nil
	}
	r.mu.Lock()
	r.lines = append(r.lines, strings.Split(text, "\n")...)
	r.trim()
	r.mu.Unlock()
	return len(p), nil
}

// Append adds a single line.
func (r *Ring) Append(line string) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.trim()
	r.mu.Unlock()
}

// Lines returns the newest n lines, oldest first. n <= 0 or n larger than the
// buffer returns everything.
func (r *Ring) Lines(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := 0
	if n > 0 && n < len(r.lines) {
		start = len(r.lines) - n
	}
	out := make([]string, len(r.lines)-start)
	copy(out, r.lines[start:])
	return out
}

// Len returns the number of buffered lines.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

// Resize changes the capacity, dropping the oldest lines when shrinking.
func (r *Ring) Resize(max int) {
	if max <= 0 {
		return
	}
	r.mu.Lock()
	r.max = max
	r.trim()
	r.mu.Unlock()
}

func (r *Ring) trim() {
	if over := len(r.lines) - r.max; over > 0 {
		r.lines = append(r.lines[:0:0], r.lines[over:]...)
	}
}
