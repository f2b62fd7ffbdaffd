package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Thiagojm/fpga_rng_linux/drawlog"
	"github.com/Thiagojm/fpga_rng_linux/rngbuf"
	"github.com/Thiagojm/fpga_rng_linux/source"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memorySink struct {
	mu    sync.Mutex
	draws []drawlog.Draw
}

func (m *memorySink) Record(_ context.Context, d drawlog.Draw) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.draws = append(m.draws, d)
	return nil
}

func (m *memorySink) Close() error { return nil }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRoot(t *testing.T) {
	rec := get(t, New(Options{}).Handler(), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"RNG Service is running"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestRandomFromHardwareThenFallback(t *testing.T) {
	ring := rngbuf.New(4)
	ring.Push(0.25)
	sink := &memorySink{}
	srv := New(Options{
		Provider: source.NewHardware(ring, nil, source.NewRuntimeSeeded(1, 2)),
		Sink:     sink,
	})

	rec := get(t, srv.Handler(), "/random")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"random":0.25}`, rec.Body.String())
	assert.Equal(t, "hardware", rec.Header().Get(HeaderSource))

	// an empty buffer still answers
	rec = get(t, srv.Handler(), "/random")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "runtime", rec.Header().Get(HeaderSource))
	v := decode(t, rec)["random"].(float64)
	assert.GreaterOrEqual(t, v, 0.0)
	assert.Less(t, v, 1.0)

	require.Len(t, sink.draws, 2)
	assert.Equal(t, 0.25, sink.draws[0].Value)
	assert.Equal(t, "hardware", sink.draws[0].Origin)
	assert.Equal(t, "runtime", sink.draws[1].Origin)

	status := decode(t, get(t, srv.Handler(), "/status"))
	assert.Equal(t, "hardware", status["mode"])
	assert.Equal(t, 1.0, status["fallbacks"])
	assert.Equal(t, 0.0, status["buffered"])
	assert.Equal(t, 4.0, status["capacity"])
}

func TestFileModeStatus(t *testing.T) {
	srv := New(Options{Provider: source.NewFile([]float64{0.1, 0.2, 0.3}, nil)})
	h := srv.Handler()

	assert.JSONEq(t, `{"random":0.1}`, get(t, h, "/random").Body.String())
	assert.JSONEq(t, `{"random":0.2}`, get(t, h, "/random").Body.String())

	status := decode(t, get(t, h, "/status"))
	assert.Equal(t, "file", status["mode"])
	assert.Equal(t, 3.0, status["total_numbers"])
	assert.Equal(t, 2.0, status["current_index"])
	assert.Equal(t, 1.0, status["remaining"])
}

func TestRuntimeModeStatus(t *testing.T) {
	status := decode(t, get(t, New(Options{Provider: source.NewRuntime()}).Handler(), "/status"))
	assert.Equal(t, "runtime", status["mode"])
	assert.Equal(t, "Generating random numbers on the fly", status["message"])
}

func TestStatsEndpoint(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := start.Add(20 * time.Second)
	srv := New(Options{
		Tracker: NewTracker(start),
		Now:     func() time.Time { return now },
	})
	for i := 0; i < 5; i++ {
		get(t, srv.Handler(), "/random")
	}

	stats := decode(t, get(t, srv.Handler(), "/stats"))
	assert.Equal(t, 5.0, stats["total_requests"])
	assert.Equal(t, 5.0, stats["rps_1s"])
	assert.InDelta(t, 0.5, stats["rps_10s"], 1e-9)
	assert.InDelta(t, 0.25, stats["rps_avg"], 1e-9)
	assert.InDelta(t, 250.0, stats["bps_current"], 1e-9)
	assert.InDelta(t, 20.0, stats["uptime"], 1e-9)
}

func TestRequestIDEchoedAndAccessLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	srv := New(Options{AccessLogger: zap.New(core)})

	req := httptest.NewRequest(http.MethodGet, "/random", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "/random", fields["path"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
	assert.Equal(t, "abc-123", fields["request_id"])
	assert.Equal(t, "runtime", fields["source"])
}

func TestUnknownPathAndMethod(t *testing.T) {
	h := New(Options{}).Handler()
	assert.Equal(t, http.StatusNotFound, get(t, h, "/nope").Code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/random", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + ln.Addr().String() + "/random")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())
	client.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRandomRecordsToFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "values.log")
	sink, err := drawlog.OpenFile(path)
	require.NoError(t, err)

	srv := New(Options{Provider: source.NewFile([]float64{0.5}, nil), Sink: sink})
	get(t, srv.Handler(), "/random")
	require.NoError(t, sink.Close())

	values, skipped, err := drawlog.ReadValues(path)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Equal(t, []float64{0.5}, values)
}

func TestDisplayRender(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewTracker(start)
	tracker.Observe(start.Add(time.Second))

	d := NewDisplay(&bytes.Buffer{}, tracker, source.NewFile([]float64{0.1, 0.2}, nil))
	d.now = func() time.Time { return start.Add(2 * time.Second) }
	out := d.Render()
	assert.Contains(t, out, "Total Requests")
	assert.Contains(t, out, "File Progress")
	assert.Contains(t, out, "0/2")

	ring := rngbuf.New(8)
	ring.Push(0.5)
	d = NewDisplay(&bytes.Buffer{}, tracker, source.NewHardware(ring, nil, nil))
	assert.Contains(t, d.Render(), "1/8")
}

func TestDisplayRunRedraws(t *testing.T) {
	var mu sync.Mutex
	buf := &lockedBuffer{mu: &mu}
	d := NewDisplay(buf, NewTracker(time.Now()), nil)
	d.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return bytes.Count(buf.b.Bytes(), []byte("Total Requests")) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

type lockedBuffer struct {
	mu *sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}
