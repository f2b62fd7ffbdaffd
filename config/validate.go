package config

import (
	"errors"
	"fmt"
	"strings"
)

// Providers accepted by the inference binary hook.
var Providers = []string{"uniform", "normal", "external-api"}

func (c *Config) normalize() error {
	var err error
	for _, field := range []struct {
		name  string
		value *string
	}{
		{"service.values_file", &c.Service.ValuesFile},
		{"service.draw_log", &c.Service.DrawLog},
		{"service.history_db", &c.Service.HistoryDB},
		{"service.access_log", &c.Service.AccessLog},
		{"runner.runs_dir", &c.Runner.RunsDir},
		{"logging.file", &c.Logging.File},
	} {
		*field.value = strings.TrimSpace(*field.value)
		if *field.value, err = expandPath(*field.value); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}
	c.Service.Mode = strings.ToLower(strings.TrimSpace(c.Service.Mode))
	c.Runner.Provider = strings.ToLower(strings.TrimSpace(c.Runner.Provider))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDevice(); err != nil {
		return err
	}
	if err := c.validateService(); err != nil {
		return err
	}
	if err := c.validateRunner(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDevice() error {
	d := c.Device
	switch {
	case d.DataBaud <= 0:
		return errors.New("device.data_baud must be positive")
	case d.SignalBaud <= 0:
		return errors.New("device.signal_baud must be positive")
	case d.ReadTimeoutMS <= 0:
		return errors.New("device.read_timeout_ms must be positive")
	case d.CheckDurationMS <= 0:
		return errors.New("device.check_duration_ms must be positive")
	case d.ChunkSize <= 0:
		return errors.New("device.chunk_size must be positive")
	case d.ReconnectDelayMS < 0 || d.StallTimeoutMS < 0:
		return errors.New("device reconnect and stall timeouts must not be negative")
	}
	return nil
}

func (c *Config) validateService() error {
	s := c.Service
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("service.port %d out of range", s.Port)
	}
	if s.BufferSize <= 0 {
		return errors.New("service.buffer_size must be positive")
	}
	switch s.Mode {
	case "hardware", "runtime":
	default:
		return fmt.Errorf("service.mode %q must be hardware or runtime", s.Mode)
	}
	return nil
}

func (c *Config) validateRunner() error {
	r := c.Runner
	if !ValidProvider(r.Provider) {
		return fmt.Errorf("runner.provider %q must be one of %s", r.Provider, strings.Join(Providers, ", "))
	}
	if r.Provider == "external-api" && r.APIURL == "" {
		return errors.New("runner.api_url is required for the external-api provider (or set LLAMA_RNG_API_URL)")
	}
	if r.ContextSize < 0 || r.Parallel < 0 || r.NPredict < 0 {
		return errors.New("runner numeric settings must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	return nil
}

// ValidProvider reports whether p names a known RNG provider.
func ValidProvider(p string) bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}
