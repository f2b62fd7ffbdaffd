// Package rngbuf holds hardware-derived random values between the serial
// reader and the HTTP consumers.
package rngbuf

import "sync"

// Stats counts ring activity since creation or the last Reset.
type Stats struct {
	Pushed  uint64
	Popped  uint64
	Dropped uint64
	Len     int
	Cap     int
}

// Ring is a bounded FIFO of float64 values. When full, a push overwrites the
// oldest value, so the ring never holds more than its capacity.
type Ring struct {
	mu    sync.Mutex
	buf   []float64
	head  int
	size  int
	stats Stats
}

// New returns a ring holding at most capacity values. Capacities below one
// are clamped to one.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float64, capacity)}
}

// Push appends v and reports whether the oldest value was dropped to make room.
func (r *Ring) Push(v float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.push(v)
}

// PushBatch appends vs in order and returns how many values were dropped.
func (r *Ring) PushBatch(vs []float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for _, v := range vs {
		if r.push(v) {
			dropped++
		}
	}
	return dropped
}

func (r *Ring) push(v float64) bool {
	r.stats.Pushed++
	tail := (r.head + r.size) % len(r.buf)
	r.buf[tail] = v
	if r.size < len(r.buf) {
		r.size++
		return false
	}
	r.head = (r.head + 1) % len(r.buf)
	r.stats.Dropped++
	return true
}

// Pop removes and returns the oldest value. ok is false when the ring is empty.
func (r *Ring) Pop() (v float64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size == 0 {
		return 0, false
	}
	v = r.buf[r.head]
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	r.stats.Popped++
	return v, true
}

// Len returns the number of buffered values.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the configured capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Snapshot copies the buffered values, oldest first, without consuming them.
func (r *Ring) Snapshot() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Reset empties the ring and clears its counters.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.size = 0
	r.stats = Stats{}
}

// Stats returns a copy of the counters.
func (r *Ring) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.Len = r.size
	s.Cap = len(r.buf)
	return s
}
