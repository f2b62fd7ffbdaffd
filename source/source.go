// Package source supplies values in [0,1] to the HTTP service, either from
// the FPGA byte stream, from a pre-recorded file, or from a software PRNG.
package source

import (
	"encoding/json"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thiagojm/fpga_rng_linux/rngbuf"
)

// Origin identifies where a value came from.
type Origin string

const (
	OriginHardware Origin = "hardware"
	OriginFile     Origin = "file"
	OriginRuntime  Origin = "runtime"
)

// Mode names a provider kind.
type Mode string

const (
	ModeHardware Mode = "hardware"
	ModeFile     Mode = "file"
	ModeRuntime  Mode = "runtime"
)

// ByteToUnit maps a raw byte linearly onto [0,1].
func ByteToUnit(b byte) float64 {
	return float64(b) / 255
}

// Status is a provider snapshot for the /status endpoint.
type Status struct {
	Mode    Mode
	Message string

	// file mode
	TotalNumbers int
	CurrentIndex int
	Remaining    int
	Wraps        int

	// hardware mode
	Buffered  int
	Capacity  int
	Dropped   uint64
	Fallbacks uint64
	Stream    *StreamerStatus
}

// MarshalJSON emits the fields that belong to the mode, zero values
// included.
func (s Status) MarshalJSON() ([]byte, error) {
	out := map[string]any{"mode": s.Mode}
	if s.Message != "" {
		out["message"] = s.Message
	}
	switch s.Mode {
	case ModeFile:
		out["total_numbers"] = s.TotalNumbers
		out["current_index"] = s.CurrentIndex
		out["remaining"] = s.Remaining
		out["wraps"] = s.Wraps
	case ModeHardware:
		out["buffered"] = s.Buffered
		out["capacity"] = s.Capacity
		out["dropped"] = s.Dropped
		out["fallbacks"] = s.Fallbacks
		if s.Stream != nil {
			out["stream"] = s.Stream
		}
	}
	return json.Marshal(out)
}

// Provider hands out one value per call. Implementations are safe for
// concurrent use and never fail.
type Provider interface {
	Next() (float64, Origin)
	Status() Status
}

// Runtime generates values with a seeded PCG generator.
type Runtime struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRuntime seeds a generator from the clock.
func NewRuntime() *Runtime {
	seed := uint64(time.Now().UnixNano())
	return NewRuntimeSeeded(seed, seed^0x9e3779b97f4a7c15)
}

// NewRuntimeSeeded returns a deterministic generator.
func NewRuntimeSeeded(seed1, seed2 uint64) *Runtime {
	return &Runtime{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

func (r *Runtime) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

func (r *Runtime) Next() (float64, Origin) {
	return r.Float64(), OriginRuntime
}

func (r *Runtime) Status() Status {
	return Status{Mode: ModeRuntime, Message: "Generating random numbers on the fly"}
}

// Hardware serves values buffered by a Streamer and falls back to software
// randomness whenever the buffer is empty.
type Hardware struct {
	ring      *rngbuf.Ring
	fallback  *Runtime
	streamer  *Streamer
	fallbacks atomic.Uint64
}

// NewHardware wraps ring. streamer may be nil when no reader is attached.
func NewHardware(ring *rngbuf.Ring, streamer *Streamer, fallback *Runtime) *Hardware {
	if fallback == nil {
		fallback = NewRuntime()
	}
	return &Hardware{ring: ring, fallback: fallback, streamer: streamer}
}

func (h *Hardware) Next() (float64, Origin) {
	if h.ring != nil {
		if v, ok := h.ring.Pop(); ok {
			return v, OriginHardware
		}
	}
	h.fallbacks.Add(1)
	return h.fallback.Float64(), OriginRuntime
}

// Fallbacks counts values served by the software generator.
func (h *Hardware) Fallbacks() uint64 {
	return h.fallbacks.Load()
}

func (h *Hardware) Status() Status {
	st := Status{Mode: ModeHardware, Fallbacks: h.Fallbacks()}
	if h.ring != nil {
		rs := h.ring.Stats()
		st.Buffered = rs.Len
		st.Capacity = rs.Cap
		st.Dropped = rs.Dropped
	}
	if h.streamer != nil {
		ss := h.streamer.Status()
		st.Stream = &ss
	}
	return st
}
