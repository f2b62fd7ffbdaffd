package service

import (
	"sync"
	"time"

	"github.com/Thiagojm/fpga_rng_linux/rngbuf"
)

const (
	// trackedRequests is how many request timestamps feed the rate windows.
	trackedRequests = 100
	// BytesPerResponse estimates one /random JSON body.
	BytesPerResponse = 50
)

// Stats is the request-speed snapshot served by /stats.
type Stats struct {
	RPS1s         float64 `json:"rps_1s"`
	RPS10s        float64 `json:"rps_10s"`
	RPSAvg        float64 `json:"rps_avg"`
	PeakRPS       float64 `json:"peak_rps"`
	BPSCurrent    float64 `json:"bps_current"`
	BPSAvg        float64 `json:"bps_avg"`
	TotalRequests uint64  `json:"total_requests"`
	Uptime        float64 `json:"uptime"`
}

// Tracker records /random request times.
type Tracker struct {
	start time.Time
	times *rngbuf.Ring

	mu    sync.Mutex
	total uint64
	peak  float64
}

// NewTracker starts the uptime clock at start.
func NewTracker(start time.Time) *Tracker {
	return &Tracker{start: start, times: rngbuf.New(trackedRequests)}
}

// Observe counts one request at t.
func (t *Tracker) Observe(at time.Time) {
	t.times.Push(float64(at.UnixNano()) / 1e9)
	t.mu.Lock()
	t.total++
	t.mu.Unlock()
}

// Snapshot computes the rates as of now.
func (t *Tracker) Snapshot(now time.Time) Stats {
	nowSec := float64(now.UnixNano()) / 1e9
	var last1, last10 int
	for _, ts := range t.times.Snapshot() {
		age := nowSec - ts
		if age <= 10 {
			last10++
		}
		if age <= 1 {
			last1++
		}
	}

	uptime := now.Sub(t.start).Seconds()
	t.mu.Lock()
	defer t.mu.Unlock()

	st := Stats{
		RPS1s:         float64(last1),
		TotalRequests: t.total,
		Uptime:        uptime,
	}
	if window := min(10, uptime); window > 0 {
		st.RPS10s = float64(last10) / window
	}
	if uptime > 0 {
		st.RPSAvg = float64(t.total) / uptime
	}
	if st.RPS1s > t.peak {
		t.peak = st.RPS1s
	}
	st.PeakRPS = t.peak
	st.BPSCurrent = st.RPS1s * BytesPerResponse
	st.BPSAvg = st.RPSAvg * BytesPerResponse
	return st
}
