package ffmpeg

import (
	"strings"
	"sync"
)

// DefaultRingSize is the number of stderr lines retained per process.
const DefaultRingSize = 100

// StderrRing retains the last N stderr lines of an encoder process for
// diagnostics. Safe for one writer and concurrent readers.
type StderrRing struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// NewStderrRing creates a ring holding up to size lines.
func NewStderrRing(size int) *StderrRing {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &StderrRing{lines: make([]string, size)}
}

// Append records one line, evicting the oldest when full.
func (r *StderrRing) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// Tail returns the most recent n lines in chronological order.
func (r *StderrRing) Tail(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.snapshot()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// TailString returns the most recent n lines joined with newlines.
func (r *StderrRing) TailString(n int) string {
	return strings.Join(r.Tail(n), "\n")
}

// Len returns the number of retained lines.
func (r *StderrRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.lines)
	}
	return r.next
}

// snapshot copies the retained lines oldest first. Caller holds r.mu.
func (r *StderrRing) snapshot() []string {
	if !r.full {
		return append([]string(nil), r.lines[:r.next]...)
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	out = append(out, r.lines[:r.next]...)
	return out
}
