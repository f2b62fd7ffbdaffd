package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thiagojm/fpga_rng_linux/config"
	"github.com/Thiagojm/fpga_rng_linux/fpga"
	"github.com/Thiagojm/fpga_rng_linux/logging"
)

type commandContext struct {
	configFlag *string
	// open replaces the serial opener; nil uses the real ports.
	open fpga.Opener

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *zap.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	if cfg == nil {
		def := config.Default()
		return &def
	}
	return cfg
}

// log returns the process logger built from the [logging] section.
func (c *commandContext) log() *zap.Logger {
	c.loggerOnce.Do(func() {
		logger, err := logging.NewFromConfig(c.configValue())
		if err != nil {
			logger = zap.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) close() {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

func (c *commandContext) client() *fpga.Client {
	opts := c.configValue().Device.ClientOptions(c.log())
	opts.Open = c.open
	return fpga.New(opts)
}

// resolveDevice picks the explicit path, then the configured port, then
// the first board found by auto-detection, and returns it with its device
// lock held. Auto-detection locks each candidate before opening it and
// returns streaming boards untouched so start and stop can act on them.
func (c *commandContext) resolveDevice(ctx context.Context, client *fpga.Client, explicit string) (string, *fpga.DeviceLock, error) {
	path := strings.TrimSpace(explicit)
	cfg := c.configValue()
	if path == "" {
		path = cfg.Device.Port
	}
	if path != "" {
		lock, err := fpga.LockDevice(path)
		if err != nil {
			return "", nil, err
		}
		return path, lock, nil
	}
	path, lock, err := client.AutoDetectLocked(ctx, cfg.Device.SearchPatterns(), fpga.DetectOptions{AlreadyStreamingOK: true})
	if err != nil {
		return "", nil, fmt.Errorf("detect device: %w", err)
	}
	return path, lock, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
