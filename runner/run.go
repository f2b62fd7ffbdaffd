// Package runner drives the external inference binaries with an RNG
// provider selected through environment variables, keeping every run's
// output, log and RNG values together in one directory.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/Thiagojm/fpga_rng_linux/analysis"
	"github.com/Thiagojm/fpga_rng_linux/config"
	"github.com/Thiagojm/fpga_rng_linux/drawlog"
	"github.com/Thiagojm/fpga_rng_linux/report"
)

// Environment variables read by the inference binary.
const (
	EnvProvider = "LLAMA_RNG_PROVIDER"
	EnvAPIURL   = "LLAMA_RNG_API_URL"
	EnvOutput   = "LLAMA_RNG_OUTPUT"
)

// Files created inside a run directory.
const (
	OutputFile = "output.txt"
	LogFile    = "log.txt"
	RNGFile    = "rng_values.txt"
	ConfigFile = "config.toml"
	ReportFile = "rng_distribution.xlsx"
)

// contextExceeded in the log marks a run that stopped at the context limit.
const contextExceeded = "context size exceeded"

var (
	ErrInvalidProvider = errors.New("invalid rng provider")
	ErrMissingAPIURL   = errors.New("api url is required for the external-api provider")
)

// RunConfig describes one single-prompt run. It is saved as config.toml in
// the run directory.
type RunConfig struct {
	Binary    string `toml:"binary"`
	Model     string `toml:"model"`
	Prompt    string `toml:"prompt"`
	Provider  string `toml:"provider"`
	APIURL    string `toml:"api_url,omitempty"`
	NumTokens int    `toml:"num_tokens,omitempty"`
	// RunDir overrides the generated run directory.
	RunDir   string `toml:"run_dir,omitempty"`
	RunsRoot string `toml:"runs_root"`
	// Report writes an xlsx distribution report of the RNG values.
	Report bool `toml:"report"`
}

// RunResult describes a finished run.
type RunResult struct {
	RunDir          string
	OutputFile      string
	LogFile         string
	RNGFile         string
	ReportFile      string
	ExitCode        int
	ContextExceeded bool
	Values          int
	Duration        time.Duration
}

// Validate checks the provider selection and required fields.
func (c RunConfig) Validate() error {
	if !config.ValidProvider(c.Provider) {
		return fmt.Errorf("%w %q (want one of %s)", ErrInvalidProvider, c.Provider, strings.Join(config.Providers, ", "))
	}
	if c.Provider == "external-api" && strings.TrimSpace(c.APIURL) == "" {
		return ErrMissingAPIURL
	}
	if c.Binary == "" {
		return errors.New("binary is required")
	}
	if c.Model == "" {
		return errors.New("model is required")
	}
	if c.NumTokens < 0 {
		return errors.New("num_tokens must not be negative")
	}
	return nil
}

// ModelName turns a model path into a directory-friendly name:
// "models/llama-3.2-1b.gguf" becomes "llama-3_2-1b".
func ModelName(model string) string {
	name := filepath.Base(model)
	name = strings.TrimSuffix(name, ".gguf")
	return strings.ReplaceAll(name, ".", "_")
}

// RunDirName returns <model>_<provider>_<YYYYmmdd_HHMMSS>.
func RunDirName(model, provider string, t time.Time) string {
	return fmt.Sprintf("%s_%s_%s", ModelName(model), provider, t.Format("20060102_150405"))
}

// Run executes the binary once. A non-zero exit whose log reports the
// context limit is treated as success.
func Run(ctx context.Context, cfg RunConfig, logger *zap.Logger) (*RunResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("runner")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.Model); err != nil {
		return nil, fmt.Errorf("model path %s: %w", cfg.Model, err)
	}
	binary, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("inference binary %s: %w", cfg.Binary, err)
	}

	runDir := cfg.RunDir
	if runDir == "" {
		runDir = filepath.Join(cfg.RunsRoot, RunDirName(cfg.Model, cfg.Provider, time.Now()))
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	res := &RunResult{
		RunDir:     runDir,
		OutputFile: filepath.Join(runDir, OutputFile),
		LogFile:    filepath.Join(runDir, LogFile),
		RNGFile:    filepath.Join(runDir, RNGFile),
	}

	snapshot, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode run config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, ConfigFile), snapshot, 0o644); err != nil {
		return nil, fmt.Errorf("write run config: %w", err)
	}

	args := []string{}
	if cfg.NumTokens > 0 {
		args = append(args, "-c", strconv.Itoa(cfg.NumTokens))
	}
	args = append(args, cfg.Model, cfg.Prompt)

	out, err := os.Create(res.OutputFile)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()
	logf, err := os.Create(res.LogFile)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	defer logf.Close()

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = out
	cmd.Stderr = logf
	cmd.Env = providerEnv(os.Environ(), cfg, res.RNGFile)

	logger.Info("running inference binary",
		zap.String("command", binary+" "+strings.Join(args, " ")),
		zap.String("provider", cfg.Provider),
		zap.String("run_dir", runDir))

	start := time.Now()
	runErr := cmd.Run()
	res.Duration = time.Since(start)

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return res, fmt.Errorf("run %s: %w", binary, runErr)
		}
		res.ExitCode = exitErr.ExitCode()
		logData, _ := os.ReadFile(res.LogFile)
		if !strings.Contains(string(logData), contextExceeded) {
			return res, fmt.Errorf("inference binary exited with code %d (see %s)", res.ExitCode, res.LogFile)
		}
		res.ContextExceeded = true
		logger.Info("model reached context size limit, treating as completed")
	}

	if info, err := os.Stat(res.RNGFile); err != nil || info.Size() == 0 {
		logger.Warn("no rng values were collected", zap.String("file", res.RNGFile))
		return res, nil
	}
	values, skipped, err := drawlog.ReadValues(res.RNGFile)
	if err != nil {
		logger.Warn("read rng values failed", zap.Error(err))
		return res, nil
	}
	res.Values = len(values)
	if skipped > 0 {
		logger.Warn("skipped malformed rng values", zap.Int("skipped", skipped))
	}

	if cfg.Report && len(values) > 0 {
		path := filepath.Join(runDir, ReportFile)
		err := report.WriteWorkbook(path, report.Workbook{
			Title:   fmt.Sprintf("%s / %s", ModelName(cfg.Model), cfg.Provider),
			Source:  res.RNGFile,
			Values:  values,
			Summary: analysis.AnalyzeUnit(values, analysis.DefaultBins),
		})
		if err != nil {
			logger.Warn("write rng distribution report failed", zap.Error(err))
		} else {
			res.ReportFile = path
		}
	}

	logger.Info("run completed",
		zap.String("output", res.OutputFile),
		zap.Int("rng_values", res.Values),
		zap.Duration("duration", res.Duration))
	return res, nil
}

func providerEnv(base []string, cfg RunConfig, rngFile string) []string {
	env := setEnv(base, EnvProvider, cfg.Provider)
	if cfg.Provider == "external-api" {
		env = setEnv(env, EnvAPIURL, cfg.APIURL)
	}
	return setEnv(env, EnvOutput, rngFile)
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return append(out, prefix+value)
}
