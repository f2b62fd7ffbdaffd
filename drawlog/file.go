package drawlog

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FileSink appends "unix_millis,value" lines to a text file.
type FileSink struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
}

// OpenFile opens path for appending, creating parent directories.
func OpenFile(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure value log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open value log %s: %w", path, err)
	}
	return &FileSink{f: f, w: bufio.NewWriter(f), path: path}, nil
}

// Path returns the file location.
func (s *FileSink) Path() string { return s.path }

// Record appends d and flushes so tailing readers see it immediately.
func (s *FileSink) Record(_ context.Context, d Draw) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.WriteString(FormatLine(d)); err != nil {
		return err
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}
	return s.w.Flush()
}

// Close flushes and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}

// FormatLine renders d in the value log format.
func FormatLine(d Draw) string {
	return strconv.FormatInt(d.Time.UnixMilli(), 10) + "," + strconv.FormatFloat(d.Value, 'f', -1, 64)
}

// ParseLine parses a value log line. Both "timestamp,value" and bare "value"
// lines are accepted; blank and '#' lines are not.
func ParseLine(line string) (Draw, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Draw{}, fmt.Errorf("no value in line %q", line)
	}
	parts := strings.Split(line, ",")
	switch len(parts) {
	case 1:
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return Draw{}, err
		}
		return Draw{Value: v}, nil
	case 2:
		ts, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return Draw{}, err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return Draw{}, err
		}
		return Draw{Time: time.UnixMilli(ts), Value: v}, nil
	default:
		return Draw{}, fmt.Errorf("unexpected field count %d in line %q", len(parts), line)
	}
}

// ReadValues reads every parsable value from path, skipping comments and
// malformed lines. skipped counts the malformed ones.
func ReadValues(path string) (values []float64, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		d, perr := ParseLine(line)
		if perr != nil {
			skipped++
			continue
		}
		values = append(values, d.Value)
	}
	if err := scanner.Err(); err != nil {
		return values, skipped, fmt.Errorf("read %s: %w", path, err)
	}
	return values, skipped, nil
}
