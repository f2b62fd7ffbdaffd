// Package config loads the fpgarng TOML configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Device configures serial discovery and the streaming reader.
type Device struct {
	// Port pins the serial path; empty means auto-detect.
	Port             string   `toml:"port"`
	Patterns         []string `toml:"patterns"`
	ExtendedPatterns bool     `toml:"extended_patterns"`
	DataBaud         int      `toml:"data_baud"`
	SignalBaud       int      `toml:"signal_baud"`
	ReadTimeoutMS    int      `toml:"read_timeout_ms"`
	CheckDurationMS  int      `toml:"check_duration_ms"`
	ChunkSize        int      `toml:"chunk_size"`
	SendStart        bool     `toml:"send_start"`
	Lock             bool     `toml:"lock"`
	Hotplug          bool     `toml:"hotplug"`
	ReconnectDelayMS int      `toml:"reconnect_delay_ms"`
	StallTimeoutMS   int      `toml:"stall_timeout_ms"`
}

// Service configures the HTTP random endpoint.
type Service struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	// Mode is "hardware" or "runtime"; ValuesFile, when set, wins over both.
	Mode       string `toml:"mode"`
	ValuesFile string `toml:"values_file"`
	BufferSize int    `toml:"buffer_size"`
	DrawLog    string `toml:"draw_log"`
	HistoryDB  string `toml:"history_db"`
	AccessLog  string `toml:"access_log"`
	AccessLogs bool   `toml:"access_logs"`
	LiveStats  bool   `toml:"live_stats"`
}

// Runner configures the inference binary wrappers.
type Runner struct {
	Binary         string `toml:"binary"`
	ParallelBinary string `toml:"parallel_binary"`
	RunsDir        string `toml:"runs_dir"`
	Provider       string `toml:"provider"`
	APIURL         string `toml:"api_url"`
	ContextSize    int    `toml:"context_size"`
	Parallel       int    `toml:"parallel"`
	NPredict       int    `toml:"n_predict"`
}

// Logging configures log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// Config is the full configuration.
type Config struct {
	Device  Device  `toml:"device"`
	Service Service `toml:"service"`
	Runner  Runner  `toml:"runner"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path of the default config file.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/fpgarng/config.toml")
}

// Load parses path (or the default location when empty), applies
// environment overrides and validates the result. A missing file yields the
// defaults. exists reports whether a file was read.
func Load(path string) (cfg *Config, resolved string, exists bool, err error) {
	c := Default()

	resolved, exists, err = resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&c); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	c.applyEnv()
	if err := c.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := c.Validate(); err != nil {
		return nil, "", false, err
	}
	return &c, resolved, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return "", false, err
		}
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("FPGA_PORT"); ok && strings.TrimSpace(v) != "" {
		c.Device.Port = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv("LLAMA_RNG_API_URL"); ok && strings.TrimSpace(v) != "" {
		c.Runner.APIURL = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv("FPGA_RNG_LOG_LEVEL"); ok && strings.TrimSpace(v) != "" {
		c.Logging.Level = strings.TrimSpace(v)
	}
}

// Encode renders c as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath applies the config path rules (~ expansion, absolute) to p.
func ExpandPath(p string) (string, error) {
	return expandPath(p)
}

// CreateSample writes the annotated sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
