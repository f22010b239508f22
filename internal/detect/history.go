package detect

import (
	"sync"

	"github.com/HerbHall/driftwatch/pkg/stream"
)

// History retains the most recent verdicts in a fixed-capacity ring buffer.
// Append evicts the oldest entry once full, in O(1) without reallocation.
// Append and Snapshot are safe for concurrent use; append-plus-evict is a
// single atomic step relative to any snapshot reader.
type History struct {
	mu    sync.RWMutex
	buf   []stream.Verdict
	head  int // Position of the oldest entry when full
	count int
}

// NewHistory creates a history buffer holding at most capacity verdicts.
// Capacity must be positive.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{buf: make([]stream.Verdict, capacity)}
}

// Append adds a verdict at the tail, evicting the oldest entry when full.
func (h *History) Append(v stream.Verdict) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count < len(h.buf) {
		h.buf[(h.head+h.count)%len(h.buf)] = v
		h.count++
		return
	}
	h.buf[h.head] = v
	h.head = (h.head + 1) % len(h.buf)
}

// Snapshot returns a copy of the current contents, oldest first. The result
// does not alias internal storage: callers may mutate it freely, and later
// appends are never observed through it.
func (h *History) Snapshot() []stream.Verdict {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]stream.Verdict, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.buf[(h.head+i)%len(h.buf)]
	}
	return out
}

// Len returns the number of verdicts currently held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Cap returns the fixed capacity.
func (h *History) Cap() int {
	return len(h.buf)
}
