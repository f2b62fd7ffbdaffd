package fpga

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// DetectOptions controls how AutoDetect treats boards that are already
// streaming when probed.
type DetectOptions struct {
	// AlreadyStreamingOK returns a streaming board without touching it.
	AlreadyStreamingOK bool
	// AutoStopIfStreaming stops a streaming board and returns it. Takes
	// precedence over AlreadyStreamingOK.
	AutoStopIfStreaming bool
	// StreamingOnly accepts only boards that already stream. Candidates are
	// read but never toggled.
	StreamingOnly bool
}

// DefaultDetectOptions stops a streaming board so the caller starts from idle.
var DefaultDetectOptions = DetectOptions{AutoStopIfStreaming: true}

// AutoDetect probes every candidate matching patterns and returns the first
// usable board. It takes no device locks; use AutoDetectLocked when another
// process may be driving a candidate.
func (c *Client) AutoDetect(ctx context.Context, patterns []string, opts DetectOptions) (string, error) {
	path, _, err := c.detect(ctx, patterns, opts, false)
	return path, err
}

// AutoDetectLocked is AutoDetect with each candidate's device lock taken
// before it is opened. Locked candidates are skipped untouched. The lock of
// the returned board stays held and must be released by the caller.
func (c *Client) AutoDetectLocked(ctx context.Context, patterns []string, opts DetectOptions) (string, *DeviceLock, error) {
	return c.detect(ctx, patterns, opts, true)
}

func (c *Client) detect(ctx context.Context, patterns []string, opts DetectOptions, lock bool) (string, *DeviceLock, error) {
	c.logger.Debug("auto-detecting device")
	devices, err := ListCandidates(patterns)
	if err != nil {
		return "", nil, err
	}
	c.logger.Debug("found candidate devices", zap.Int("count", len(devices)), zap.Strings("devices", devices))

	busy := 0
	for _, device := range devices {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		var held *DeviceLock
		if lock {
			held, err = LockDevice(device)
			if err != nil {
				if errors.Is(err, ErrDeviceBusy) {
					busy++
				}
				c.logger.Debug("skipping device", zap.String("device", device), zap.Error(err))
				continue
			}
		}
		if c.accept(ctx, device, opts) {
			return device, held, nil
		}
		_ = held.Unlock()
	}
	if busy > 0 {
		return "", nil, fmt.Errorf("%w (%d candidates, %d locked by another process)", ErrNoDevice, len(devices), busy)
	}
	return "", nil, fmt.Errorf("%w (%d candidates)", ErrNoDevice, len(devices))
}

func (c *Client) accept(ctx context.Context, device string, opts DetectOptions) bool {
	if opts.StreamingOnly {
		data, err := c.ReadData(ctx, device)
		if err != nil {
			c.logger.Debug("could not read device", zap.String("device", device), zap.Error(err))
			return false
		}
		return len(data) > 0
	}

	status, err := c.Probe(ctx, device)
	if err != nil {
		c.logger.Debug("could not test device", zap.String("device", device), zap.Error(err))
		return false
	}
	switch status {
	case StatusResponsive:
		return true
	case StatusStreaming:
		c.logger.Warn("device found but already streaming data",
			zap.String("device", device),
			zap.String("hint", "disable the generator before starting the job"),
		)
		if opts.AutoStopIfStreaming {
			c.logger.Info("stopping device", zap.String("device", device))
			if err := c.Stop(device); err != nil {
				c.logger.Debug("stop failed", zap.String("device", device), zap.Error(err))
				return false
			}
			return true
		}
		return opts.AlreadyStreamingOK
	}
	return false
}
