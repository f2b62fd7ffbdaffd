package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/Thiagojm/fpga_rng_linux/fpga"
	"github.com/Thiagojm/fpga_rng_linux/rngbuf"
)

type board struct {
	mu        sync.Mutex
	streaming bool
	toggles   int
	failReads int
	opens     int
}

func (b *board) open(_ string, mode *serial.Mode) (fpga.Port, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opens++
	return &boardPort{b: b, baud: mode.BaudRate}, nil
}

func (b *board) snapshot() (streaming bool, toggles int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streaming, b.toggles
}

type boardPort struct {
	b       *board
	baud    int
	timeout time.Duration
}

func (p *boardPort) Read(buf []byte) (int, error) {
	p.b.mu.Lock()
	if p.b.failReads > 0 && p.b.streaming {
		p.b.failReads--
		p.b.mu.Unlock()
		return 0, errors.New("device disconnected")
	}
	streaming := p.b.streaming
	p.b.mu.Unlock()
	if !streaming {
		time.Sleep(p.timeout)
		return 0, nil
	}
	time.Sleep(time.Millisecond)
	for i := range buf {
		buf[i] = 255
	}
	return len(buf), nil
}

func (p *boardPort) Write(data []byte) (int, error) {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	if p.baud == fpga.SignalBaud && len(data) == 1 && data[0] == fpga.ToggleSignal {
		p.b.streaming = !p.b.streaming
		p.b.toggles++
	}
	return len(data), nil
}

func (p *boardPort) Close() error                         { return nil }
func (p *boardPort) SetReadTimeout(t time.Duration) error { p.timeout = t; return nil }
func (p *boardPort) ResetInputBuffer() error              { return nil }
func (p *boardPort) Drain() error                         { return nil }

func (b *board) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

// deviceDir creates an empty device node for auto-detection and points the
// device locks at a private directory.
func deviceDir(t *testing.T) (pattern, device string) {
	t.Helper()
	old := fpga.LockDir
	fpga.LockDir = t.TempDir()
	t.Cleanup(func() { fpga.LockDir = old })

	dir := t.TempDir()
	device = filepath.Join(dir, "ttyUSB0")
	require.NoError(t, os.WriteFile(device, nil, 0o600))
	return filepath.Join(dir, "ttyUSB*"), device
}

func testClient(b *board) *fpga.Client {
	return fpga.New(fpga.Options{
		Open:          b.open,
		ReadTimeout:   time.Millisecond,
		CheckDuration: 10 * time.Millisecond,
		ChunkSize:     8,
	})
}

func TestStreamerFillsRingAndStopsOnExit(t *testing.T) {
	b := &board{}
	ring := rngbuf.New(64)
	s := NewStreamer(StreamerConfig{
		Device:    "/dev/ttyUSB0",
		Client:    testClient(b),
		SendStart: true,
	}, ring)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return ring.Len() == 64 }, 2*time.Second, 5*time.Millisecond)
	v, ok := ring.Pop()
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	st := s.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, "/dev/ttyUSB0", st.Device)
	assert.Greater(t, st.BytesRead, uint64(0))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	streaming, toggles := b.snapshot()
	assert.False(t, streaming)
	assert.Equal(t, 2, toggles)
	assert.False(t, s.Status().Connected)
	assert.LessOrEqual(t, ring.Len(), ring.Cap())
}

func TestStreamerLeavesRunningBoardAlone(t *testing.T) {
	b := &board{streaming: true}
	ring := rngbuf.New(16)
	s := NewStreamer(StreamerConfig{Device: "/dev/ttyUSB0", Client: testClient(b), SendStart: true}, ring)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return ring.Len() > 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	streaming, toggles := b.snapshot()
	assert.True(t, streaming)
	assert.Zero(t, toggles)
}

func TestStreamerReconnectsAfterReadError(t *testing.T) {
	b := &board{streaming: true, failReads: 1}
	ring := rngbuf.New(16)
	s := NewStreamer(StreamerConfig{
		Device:         "/dev/ttyUSB0",
		Client:         testClient(b),
		ReconnectDelay: 10 * time.Millisecond,
	}, ring)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return ring.Len() > 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	st := s.Status()
	assert.Equal(t, uint64(1), st.Reconnects)
	assert.Contains(t, st.LastError, "device disconnected")
}

func TestStreamerStallTriggersReconnect(t *testing.T) {
	b := &board{}
	s := NewStreamer(StreamerConfig{
		Device:         "/dev/ttyUSB0",
		Client:         testClient(b),
		ReconnectDelay: time.Hour,
		StallTimeout:   20 * time.Millisecond,
	}, rngbuf.New(4))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Status().Reconnects == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, s.Status().LastError, "stall timeout")

	// a wake-up skips the hour-long delay
	s.Notify()
	require.Eventually(t, func() bool { return s.Status().Reconnects == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestStreamerAutoDetectFailure(t *testing.T) {
	s := NewStreamer(StreamerConfig{
		Patterns:       []string{t.TempDir() + "/ttyUSB*"},
		Client:         testClient(&board{}),
		ReconnectDelay: 5 * time.Millisecond,
	}, rngbuf.New(4))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Status().Reconnects >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, s.Status().LastError, fpga.ErrNoDevice.Error())
	cancel()
	<-done
}

func TestHardwareStatusIncludesStream(t *testing.T) {
	ring := rngbuf.New(8)
	s := NewStreamer(StreamerConfig{Device: "/dev/ttyUSB9", Client: testClient(&board{})}, ring)
	st := NewHardware(ring, s, nil).Status()
	require.NotNil(t, st.Stream)
	assert.Equal(t, "/dev/ttyUSB9", st.Stream.Device)
	assert.False(t, st.Stream.Connected)
}

func TestStreamerAutoDetectSkipsLockedBoard(t *testing.T) {
	pattern, device := deviceDir(t)
	other, err := fpga.LockDevice(device)
	require.NoError(t, err)

	b := &board{streaming: true}
	ring := rngbuf.New(16)
	s := NewStreamer(StreamerConfig{
		Patterns:       []string{pattern},
		Client:         testClient(b),
		SendStart:      true,
		Lock:           true,
		ReconnectDelay: 5 * time.Millisecond,
	}, ring)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Status().Reconnects >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, s.Status().LastError, "locked by another process")
	assert.Zero(t, b.openCount())
	streaming, toggles := b.snapshot()
	assert.True(t, streaming)
	assert.Zero(t, toggles)

	// once released the board is picked up and, already streaming, left on
	require.NoError(t, other.Unlock())
	require.Eventually(t, func() bool { return ring.Len() > 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	streaming, toggles = b.snapshot()
	assert.True(t, streaming)
	assert.Zero(t, toggles)
}

func TestStreamerWithoutStartSignalUsesRunningBoard(t *testing.T) {
	pattern, _ := deviceDir(t)
	b := &board{streaming: true}
	ring := rngbuf.New(16)
	s := NewStreamer(StreamerConfig{
		Patterns:       []string{pattern},
		Client:         testClient(b),
		Lock:           true,
		ReconnectDelay: 5 * time.Millisecond,
		StallTimeout:   30 * time.Millisecond,
	}, ring)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return ring.Len() == ring.Cap() }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	streaming, toggles := b.snapshot()
	assert.True(t, streaming)
	assert.Zero(t, toggles)
	assert.Zero(t, s.Status().Reconnects)
}

func TestStreamerWithoutStartSignalLeavesIdleBoard(t *testing.T) {
	pattern, _ := deviceDir(t)
	b := &board{}
	s := NewStreamer(StreamerConfig{
		Patterns:       []string{pattern},
		Client:         testClient(b),
		ReconnectDelay: 5 * time.Millisecond,
	}, rngbuf.New(4))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Status().Reconnects >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Contains(t, s.Status().LastError, fpga.ErrNoDevice.Error())
	_, toggles := b.snapshot()
	assert.Zero(t, toggles)
}
