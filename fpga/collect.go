package fpga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultCollectTimeout bounds how long ReadBytes waits without progress.
const DefaultCollectTimeout = 10 * time.Second

// ReadBytes reads exactly n bytes from a streaming board on path. onChunk,
// when non-nil, receives the size of every chunk. The read fails when no
// byte arrives for idle (DefaultCollectTimeout when zero).
func (c *Client) ReadBytes(ctx context.Context, path string, n int, idle time.Duration, onChunk func(int)) ([]byte, error) {
	if n <= 0 {
		return nil, errors.New("byte count must be positive")
	}
	if idle <= 0 {
		idle = DefaultCollectTimeout
	}
	port, err := c.OpenData(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = port.Close() }()

	buf := make([]byte, n)
	total := 0
	lastData := time.Now()
	for total < n {
		if err := ctx.Err(); err != nil {
			return buf[:total], err
		}
		if time.Since(lastData) > idle {
			return buf[:total], fmt.Errorf("read timeout after %s: read %d/%d bytes: %w", idle, total, n, ErrNoData)
		}
		end := min(total+c.opts.ChunkSize, n)
		got, err := port.Read(buf[total:end])
		if err != nil {
			return buf[:total], fmt.Errorf("read %s: %w", path, err)
		}
		if got == 0 {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		total += got
		lastData = time.Now()
		if onChunk != nil {
			onChunk(got)
		}
	}
	c.logger.Debug("collected bytes", zap.String("device", path), zap.Int("bytes", total))
	return buf, nil
}
