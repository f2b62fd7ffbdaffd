package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ParallelConfig describes a batch run of the parallel inference binary.
type ParallelConfig struct {
	Executable string
	Model      string
	Prompts    string
	Parallel   int
	NPredict   int
	// Output is passed through as -o.
	Output string
	// ResultsJSON receives a ParallelResult, on failure too.
	ResultsJSON string
	// Progress receives a progress bar; nil disables it.
	Progress io.Writer
	// Verbose logs every stdout line.
	Verbose bool
}

// ParallelResult is the JSON summary of a batch run.
type ParallelResult struct {
	Command           string  `json:"command"`
	TotalTime         float64 `json:"total_time"`
	PromptsProcessed  int     `json:"prompts_processed"`
	PromptsCompleted  int     `json:"prompts_completed"`
	PromptsPath       string  `json:"prompts_path"`
	TotalPromptTokens int     `json:"total_prompt_tokens"`
	TotalGenTokens    int     `json:"total_gen_tokens"`
	TotalTokens       int     `json:"total_tokens"`
	PromptsPerSecond  float64 `json:"prompts_per_second"`
	ParallelClients   int     `json:"parallel_clients"`
	NPredict          int     `json:"n_predict"`
	ModelPath         string  `json:"model_path"`
	Timestamp         string  `json:"timestamp"`
	Success           bool    `json:"success"`
	ErrorMessage      string  `json:"error_message"`
}

// IsProgressLine reports whether a stdout line marks a finished prompt.
func IsProgressLine(line string) bool {
	l := strings.ToLower(line)
	switch {
	case strings.Contains(l, "prompt") && strings.Contains(l, "processed"):
		return true
	case strings.Contains(l, "seq") && strings.Contains(l, "client"):
		return true
	case strings.Contains(l, "input:") && strings.Contains(l, "response:"):
		return true
	}
	return false
}

// CountPrompts returns the number of lines in the prompts file.
func CountPrompts(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}

func (c ParallelConfig) args() []string {
	args := []string{
		"--model", c.Model,
		"--file", c.Prompts,
		"--parallel", strconv.Itoa(c.Parallel),
		"--n-predict", strconv.Itoa(c.NPredict),
	}
	if c.Output != "" {
		args = append(args, "-o", c.Output)
	}
	return args
}

// RunParallel runs the batch binary over every prompt in cfg.Prompts,
// tracking progress from its stdout.
func RunParallel(ctx context.Context, cfg ParallelConfig, logger *zap.Logger) (*ParallelResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("parallel")
	if cfg.Parallel <= 0 {
		cfg.Parallel = 1
	}
	if cfg.NPredict <= 0 {
		cfg.NPredict = 128
	}

	res := &ParallelResult{
		PromptsPath:     cfg.Prompts,
		ParallelClients: cfg.Parallel,
		NPredict:        cfg.NPredict,
		ModelPath:       cfg.Model,
	}
	fail := func(err error) (*ParallelResult, error) {
		res.Success = false
		res.ErrorMessage = err.Error()
		res.Timestamp = time.Now().Format(time.RFC3339)
		if werr := writeResults(cfg.ResultsJSON, res); werr != nil {
			logger.Warn("write results failed", zap.Error(werr))
		}
		return res, err
	}

	for _, check := range []struct{ what, path string }{
		{"prompts file", cfg.Prompts},
		{"executable", cfg.Executable},
		{"model file", cfg.Model},
	} {
		if _, err := os.Stat(check.path); err != nil {
			return fail(fmt.Errorf("%s not found: %w", check.what, err))
		}
	}

	total, err := CountPrompts(cfg.Prompts)
	if err != nil {
		return fail(fmt.Errorf("count prompts: %w", err))
	}
	res.PromptsProcessed = total

	args := cfg.args()
	res.Command = cfg.Executable + " " + strings.Join(args, " ")
	logger.Info("processing prompts",
		zap.Int("prompts", total),
		zap.Int("parallel", cfg.Parallel),
		zap.String("command", res.Command))

	cmd := exec.CommandContext(ctx, cfg.Executable, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fail(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fail(err)
	}

	var bar *progressbar.ProgressBar
	if cfg.Progress != nil {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(cfg.Progress),
			progressbar.OptionSetDescription("Processing prompts"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
		)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return fail(fmt.Errorf("start %s: %w", cfg.Executable, err))
	}

	var (
		completed int
		errOut    bytes.Buffer
	)
	var g errgroup.Group
	g.Go(func() error {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if cfg.Verbose {
				logger.Info(strings.TrimSpace(line))
			}
			if !IsProgressLine(line) {
				continue
			}
			completed++
			if bar != nil && completed <= total {
				_ = bar.Add(1)
			}
		}
		return scanner.Err()
	})
	g.Go(func() error {
		_, err := io.Copy(&errOut, stderr)
		return err
	})
	readErr := g.Wait()
	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	res.TotalTime = elapsed.Seconds()
	res.PromptsCompleted = completed
	if bar != nil {
		if waitErr == nil && completed == 0 {
			_ = bar.Set(total)
		}
		_ = bar.Finish()
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			logger.Error("process failed",
				zap.Int("exit_code", exitErr.ExitCode()),
				zap.String("stderr", strings.TrimSpace(errOut.String())))
			return fail(fmt.Errorf("%s exited with code %d", cfg.Executable, exitErr.ExitCode()))
		}
		return fail(fmt.Errorf("wait %s: %w", cfg.Executable, waitErr))
	}
	if readErr != nil {
		logger.Warn("reading process output failed", zap.Error(readErr))
	}

	if res.TotalTime > 0 {
		res.PromptsPerSecond = float64(total) / res.TotalTime
	}
	res.Success = true
	res.Timestamp = time.Now().Format(time.RFC3339)
	logger.Info("execution completed",
		zap.Duration("elapsed", elapsed),
		zap.Float64("prompts_per_second", res.PromptsPerSecond))

	if err := writeResults(cfg.ResultsJSON, res); err != nil {
		return res, err
	}
	return res, nil
}

func writeResults(path string, res *ParallelResult) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write results %s: %w", path, err)
	}
	return nil
}
