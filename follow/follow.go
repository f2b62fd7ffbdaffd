// Package follow tails a value log file and hands every new draw to a
// callback. Truncated or recreated files are picked up from the start.
package follow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Thiagojm/fpga_rng_linux/drawlog"
)

// Options tunes a Follower.
type Options struct {
	// FromStart replays the lines already in the file before tailing.
	FromStart bool
	// PollInterval re-checks the file when no filesystem event arrives.
	PollInterval time.Duration
	Logger       *zap.Logger
}

// Follower tails one file.
type Follower struct {
	path    string
	handler func(drawlog.Draw)
	opts    Options
	logger  *zap.Logger

	offset  int64
	partial []byte
	skipped atomic.Int64
}

// New returns a Follower delivering parsed lines of path to handler.
func New(path string, handler func(drawlog.Draw), opts Options) *Follower {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Follower{
		path:    filepath.Clean(path),
		handler: handler,
		opts:    opts,
		logger:  logger.Named("follow"),
	}
}

// Skipped reports how many malformed lines were ignored so far.
func (f *Follower) Skipped() int { return int(f.skipped.Load()) }

// Run blocks until ctx is cancelled.
func (f *Follower) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		// the poll keeps things moving if the directory is not watchable
		f.logger.Warn("watch directory failed", zap.String("dir", dir), zap.Error(err))
	}

	if !f.opts.FromStart {
		if info, err := os.Stat(f.path); err == nil {
			f.offset = info.Size()
		}
	}
	f.logger.Info("following", zap.String("path", f.path), zap.Int64("offset", f.offset))
	f.drain()

	ticker := time.NewTicker(f.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher event channel closed")
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			switch {
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				f.logger.Info("log file removed, waiting for it to return")
				f.reset()
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				f.drain()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			f.logger.Warn("watcher error", zap.Error(err))

		case <-ticker.C:
			f.drain()
		}
	}
}

func (f *Follower) reset() {
	f.offset = 0
	f.partial = f.partial[:0]
}

// drain reads everything appended since the last call.
func (f *Follower) drain() {
	file, err := os.Open(f.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.logger.Warn("open log file failed", zap.Error(err))
		}
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		f.logger.Warn("stat log file failed", zap.Error(err))
		return
	}
	if info.Size() < f.offset {
		f.logger.Info("log file truncated, restarting from the top",
			zap.Int64("size", info.Size()), zap.Int64("offset", f.offset))
		f.reset()
	}
	if info.Size() == f.offset {
		return
	}

	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		f.logger.Warn("seek log file failed", zap.Error(err))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		f.logger.Warn("read log file failed", zap.Error(err))
	}
	f.offset += int64(len(data))

	buf := append(f.partial, data...)
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		f.emit(string(buf[:idx]))
		buf = buf[idx+1:]
	}
	f.partial = append(f.partial[:0], buf...)
}

func (f *Follower) emit(line string) {
	trimmed := bytes.TrimSpace([]byte(line))
	if len(trimmed) == 0 || trimmed[0] == '#' {
		return
	}
	d, err := drawlog.ParseLine(string(trimmed))
	if err != nil {
		f.skipped.Add(1)
		f.logger.Warn("skipping malformed line", zap.String("line", line), zap.Error(err))
		return
	}
	if d.Time.IsZero() {
		d.Time = time.Now()
	}
	f.handler(d)
}
