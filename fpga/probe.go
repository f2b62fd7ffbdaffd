package fpga

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ReadData opens path at the data baud rate and reads chunks until data
// arrives or the check duration elapses. It returns nil when the device
// stayed silent.
func (c *Client) ReadData(ctx context.Context, path string) ([]byte, error) {
	port, err := c.OpenData(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = port.Close() }()
	c.logger.Debug("opened connection", zap.String("device", path), zap.Int("baud", c.opts.DataBaud))

	// stale bytes from a previous session must not count as live data
	_ = port.ResetInputBuffer()

	buf := make([]byte, c.opts.ChunkSize)
	deadline := time.Now().Add(c.opts.CheckDuration)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := port.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if n > 0 {
			out := make([]byte, n)
			copy(out, buf[:n])
			return out, nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.logger.Debug("no data received",
		zap.String("device", path),
		zap.Duration("check_duration", c.opts.CheckDuration),
	)
	return nil, nil
}

// SendSignal writes the toggle byte to path at the signal baud rate.
func (c *Client) SendSignal(path string) error {
	port, err := c.opts.Open(path, c.signalMode())
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = port.Close() }()

	c.logger.Debug("sending signal", zap.String("device", path), zap.Uint8("signal", c.opts.Signal))
	if _, err := port.Write([]byte{c.opts.Signal}); err != nil {
		return fmt.Errorf("write signal to %s: %w", path, err)
	}
	if err := port.Drain(); err != nil {
		return fmt.Errorf("drain %s: %w", path, err)
	}
	c.logger.Debug("signal sent", zap.String("device", path))
	return nil
}

// Start asks the board on path to begin streaming.
func (c *Client) Start(path string) error { return c.SendSignal(path) }

// Stop asks the board on path to stop streaming. The board uses the same
// toggle byte for both directions.
func (c *Client) Stop(path string) error { return c.SendSignal(path) }

// Probe classifies the device on path. A silent device is toggled once; if
// it then streams it is toggled back to idle and reported responsive.
func (c *Client) Probe(ctx context.Context, path string) (Status, error) {
	c.logger.Info("checking device", zap.String("device", path))

	data, err := c.ReadData(ctx, path)
	if err != nil {
		return StatusUnresponsive, err
	}
	if len(data) > 0 {
		c.logger.Warn("device is sending data before the start signal", zap.String("device", path))
		return StatusStreaming, nil
	}

	if err := c.Start(path); err != nil {
		return StatusUnresponsive, err
	}

	data, err = c.ReadData(ctx, path)
	if err != nil {
		return StatusUnresponsive, err
	}
	if len(data) == 0 {
		c.logger.Error("no data received after sending start signal", zap.String("device", path))
		return StatusUnresponsive, nil
	}
	c.logger.Info("data received after sending start signal", zap.String("device", path))

	if err := c.Stop(path); err != nil {
		return StatusResponsive, err
	}
	return StatusResponsive, nil
}

// CheckConnection reports whether path hosts a responsive board. A board
// that is already streaming yields ErrAlreadyStreaming.
func (c *Client) CheckConnection(ctx context.Context, path string) (bool, error) {
	status, err := c.Probe(ctx, path)
	if err != nil {
		return false, err
	}
	switch status {
	case StatusStreaming:
		return false, fmt.Errorf("%s: %w", path, ErrAlreadyStreaming)
	case StatusResponsive:
		return true, nil
	default:
		return false, nil
	}
}

// StartVerified sends the toggle and confirms the board is streaming.
func (c *Client) StartVerified(ctx context.Context, path string) error {
	if err := c.Start(path); err != nil {
		return err
	}
	data, err := c.ReadData(ctx, path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("%s: %w", path, ErrNoData)
	}
	return nil
}

// StopVerified sends the toggle and confirms the board went silent.
func (c *Client) StopVerified(ctx context.Context, path string) error {
	if err := c.Stop(path); err != nil {
		return err
	}
	data, err := c.ReadData(ctx, path)
	if err != nil {
		return err
	}
	if len(data) > 0 {
		return fmt.Errorf("%s: %w", path, ErrStillStreaming)
	}
	return nil
}
