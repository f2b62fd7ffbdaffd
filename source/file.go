package source

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrNoValues is returned when a values file holds nothing usable.
var ErrNoValues = errors.New("no valid random numbers in file")

// LoadValues reads one number per line from path. Blank lines are ignored;
// unparsable or out-of-range lines are skipped with a warning.
func LoadValues(path string, logger *zap.Logger) ([]float64, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open values file: %w", err)
	}
	defer f.Close()

	var values []float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			logger.Warn("skipping invalid line", zap.String("line", line))
			continue
		}
		if v < 0 || v > 1 {
			logger.Warn("skipping out-of-range value", zap.Float64("value", v))
			continue
		}
		values = append(values, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read values file: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoValues)
	}
	logger.Info("loaded random numbers", zap.Int("count", len(values)), zap.String("file", path))
	return values, nil
}

// File replays a fixed list of values, wrapping around at the end.
type File struct {
	mu     sync.Mutex
	values []float64
	index  int
	wraps  int
	logger *zap.Logger
}

// NewFile serves values in order. values must not be empty.
func NewFile(values []float64, logger *zap.Logger) *File {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &File{values: values, logger: logger}
}

func (f *File) Next() (float64, Origin) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index >= len(f.values) {
		f.logger.Warn("reached end of random number list, wrapping around")
		f.index = 0
		f.wraps++
	}
	v := f.values[f.index]
	f.index++
	return v, OriginFile
}

func (f *File) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Status{
		Mode:         ModeFile,
		TotalNumbers: len(f.values),
		CurrentIndex: f.index,
		Remaining:    len(f.values) - f.index,
		Wraps:        f.wraps,
	}
}
