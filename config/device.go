package config

import (
	"time"

	"go.uber.org/zap"

	"github.com/Thiagojm/fpga_rng_linux/fpga"
)

// ClientOptions maps the device section onto serial client options.
func (d Device) ClientOptions(logger *zap.Logger) fpga.Options {
	return fpga.Options{
		DataBaud:      d.DataBaud,
		SignalBaud:    d.SignalBaud,
		ReadTimeout:   time.Duration(d.ReadTimeoutMS) * time.Millisecond,
		CheckDuration: time.Duration(d.CheckDurationMS) * time.Millisecond,
		ChunkSize:     d.ChunkSize,
		Logger:        logger,
	}
}

// SearchPatterns returns the glob patterns used for discovery.
func (d Device) SearchPatterns() []string {
	if len(d.Patterns) > 0 {
		return d.Patterns
	}
	if d.ExtendedPatterns {
		return fpga.ExtendedPatterns
	}
	return fpga.DefaultPatterns
}

// ReconnectDelay is the wait between streaming sessions.
func (d Device) ReconnectDelay() time.Duration {
	return time.Duration(d.ReconnectDelayMS) * time.Millisecond
}

// StallTimeout is how long a silent board is tolerated.
func (d Device) StallTimeout() time.Duration {
	return time.Duration(d.StallTimeoutMS) * time.Millisecond
}
