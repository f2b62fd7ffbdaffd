package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerShortUptimeDivisor(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start)
	for i := 0; i < 4; i++ {
		tr.Observe(start.Add(time.Duration(i) * 500 * time.Millisecond))
	}

	st := tr.Snapshot(start.Add(2 * time.Second))
	assert.Equal(t, uint64(4), st.TotalRequests)
	assert.InDelta(t, 2.0, st.RPS10s, 1e-9)
	assert.InDelta(t, 2.0, st.RPSAvg, 1e-9)
	assert.InDelta(t, 100.0, st.BPSAvg, 1e-9)
	// 1.0s, 1.5s fall in the last second
	assert.Equal(t, 2.0, st.RPS1s)
}

func TestTrackerPeakSurvivesQuietPeriods(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start)
	burst := start.Add(30 * time.Second)
	for i := 0; i < 7; i++ {
		tr.Observe(burst)
	}
	assert.Equal(t, 7.0, tr.Snapshot(burst).PeakRPS)

	later := tr.Snapshot(burst.Add(time.Minute))
	assert.Zero(t, later.RPS1s)
	assert.Zero(t, later.RPS10s)
	assert.Equal(t, 7.0, later.PeakRPS)
}

func TestTrackerKeepsOnlyRecentTimestamps(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start)
	at := start.Add(20 * time.Second)
	for i := 0; i < trackedRequests+50; i++ {
		tr.Observe(at)
	}
	st := tr.Snapshot(at)
	assert.Equal(t, uint64(trackedRequests+50), st.TotalRequests)
	assert.Equal(t, float64(trackedRequests), st.RPS1s)
}
