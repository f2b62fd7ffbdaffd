package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thiagojm/fpga_rng_linux/fpga"
	"github.com/Thiagojm/fpga_rng_linux/rngbuf"
)

// StreamerConfig configures the serial reader.
type StreamerConfig struct {
	// Device is the serial path; empty means auto-detect over Patterns.
	Device   string
	Patterns []string
	Client   *fpga.Client
	// SendStart toggles an idle board on before reading and off on exit.
	// Without it auto-detect only accepts a board that already streams.
	SendStart bool
	// Lock holds the per-device advisory lock for the session. Auto-detect
	// takes it before opening a candidate and skips busy ones.
	Lock           bool
	ReconnectDelay time.Duration
	// StallTimeout forces a reconnect when no byte arrives for this long.
	StallTimeout time.Duration
	Logger       *zap.Logger
}

// StreamerStatus is a point-in-time view of the reader.
type StreamerStatus struct {
	Device     string `json:"device"`
	Connected  bool   `json:"connected"`
	BytesRead  uint64 `json:"bytes_read"`
	Reconnects uint64 `json:"reconnects"`
	LastError  string `json:"last_error,omitempty"`
}

var errStalled = errors.New("no data received within stall timeout")

// Streamer drains the board in fixed-size chunks and pushes every byte,
// mapped onto [0,1], into a ring.
type Streamer struct {
	cfg    StreamerConfig
	ring   *rngbuf.Ring
	logger *zap.Logger
	wake   chan struct{}

	mu     sync.Mutex
	status StreamerStatus
}

// NewStreamer returns a reader feeding ring.
func NewStreamer(cfg StreamerConfig, ring *rngbuf.Ring) *Streamer {
	if cfg.Client == nil {
		cfg.Client = fpga.New(fpga.Options{Logger: cfg.Logger})
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Streamer{
		cfg:    cfg,
		ring:   ring,
		logger: logger.Named("streamer"),
		wake:   make(chan struct{}, 1),
		status: StreamerStatus{Device: cfg.Device},
	}
}

// Status returns a snapshot of the reader state.
func (s *Streamer) Status() StreamerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Notify cuts the current reconnect wait short, e.g. on a hotplug event.
func (s *Streamer) Notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run reads until ctx is cancelled, reconnecting after failures.
func (s *Streamer) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.mu.Lock()
		s.status.Reconnects++
		if err != nil {
			s.status.LastError = err.Error()
		}
		s.mu.Unlock()

		s.logger.Warn("stream interrupted, reconnecting",
			zap.Error(err),
			zap.Duration("delay", s.cfg.ReconnectDelay),
		)

		timer := time.NewTimer(s.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// resolve picks the board for a session. With Lock set the device lock is
// held before the board is opened, including while auto-detect probes it.
func (s *Streamer) resolve(ctx context.Context) (string, *fpga.DeviceLock, error) {
	if s.cfg.Device != "" {
		if !s.cfg.Lock {
			return s.cfg.Device, nil, nil
		}
		lock, err := fpga.LockDevice(s.cfg.Device)
		if err != nil {
			return "", nil, err
		}
		return s.cfg.Device, lock, nil
	}

	// a running board is left running; without SendStart only such boards
	// are usable
	opts := fpga.DetectOptions{AlreadyStreamingOK: true}
	if !s.cfg.SendStart {
		opts = fpga.DetectOptions{StreamingOnly: true}
	}
	if s.cfg.Lock {
		return s.cfg.Client.AutoDetectLocked(ctx, s.cfg.Patterns, opts)
	}
	path, err := s.cfg.Client.AutoDetect(ctx, s.cfg.Patterns, opts)
	return path, nil, err
}

func (s *Streamer) session(ctx context.Context) error {
	path, lock, err := s.resolve(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	if s.cfg.SendStart {
		data, err := s.cfg.Client.ReadData(ctx, path)
		if err != nil {
			return err
		}
		if len(data) > 0 {
			s.logger.Info("device already streaming, not toggling", zap.String("device", path))
		} else {
			if err := s.cfg.Client.Start(path); err != nil {
				return err
			}
			defer func() {
				if err := s.cfg.Client.Stop(path); err != nil {
					s.logger.Warn("failed to send stop signal", zap.String("device", path), zap.Error(err))
				}
			}()
		}
	}

	port, err := s.cfg.Client.OpenData(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = port.Close() }()

	s.setConnected(path, true)
	defer s.setConnected(path, false)
	s.logger.Info("streaming from device", zap.String("device", path))

	chunk := s.cfg.Client.Options().ChunkSize
	buf := make([]byte, chunk)
	vals := make([]float64, chunk)
	lastData := time.Now()

	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := port.Read(buf)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if n == 0 {
			if time.Since(lastData) > s.cfg.StallTimeout {
				return fmt.Errorf("%s: %w", path, errStalled)
			}
			continue
		}
		lastData = time.Now()
		for i, b := range buf[:n] {
			vals[i] = ByteToUnit(b)
		}
		s.ring.PushBatch(vals[:n])

		s.mu.Lock()
		s.status.BytesRead += uint64(n)
		s.mu.Unlock()
	}
}

func (s *Streamer) setConnected(path string, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Device = path
	s.status.Connected = connected
}
