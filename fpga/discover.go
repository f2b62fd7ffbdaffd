package fpga

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// DeviceInfo describes a candidate serial device.
type DeviceInfo struct {
	Path         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// String renders the device for listings.
func (d DeviceInfo) String() string {
	if !d.IsUSB {
		return d.Path
	}
	label := fmt.Sprintf("%s (%s:%s)", d.Path, d.VID, d.PID)
	if d.Product != "" {
		label += " " + d.Product
	}
	return label
}

// ListCandidates globs every pattern and returns the existing device paths,
// de-duplicated and sorted.
func ListCandidates(patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	seen := make(map[string]struct{})
	var devices []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			if _, err := os.Stat(m); err != nil {
				continue
			}
			seen[m] = struct{}{}
			devices = append(devices, m)
		}
	}
	sort.Strings(devices)
	return devices, nil
}

// Enumerate returns the candidates matching patterns, enriched with the USB
// metadata reported by the serial enumerator when available.
func Enumerate(patterns []string) ([]DeviceInfo, error) {
	paths, err := ListCandidates(patterns)
	if err != nil {
		return nil, err
	}

	details := map[string]*enumerator.PortDetails{}
	ports, err := enumerator.GetDetailedPortsList()
	if err == nil {
		for _, p := range ports {
			if p == nil {
				continue
			}
			details[p.Name] = p
		}
	}

	devices := make([]DeviceInfo, 0, len(paths))
	for _, path := range paths {
		devices = append(devices, describe(path, details[path]))
	}
	return devices, nil
}

func describe(path string, p *enumerator.PortDetails) DeviceInfo {
	info := DeviceInfo{Path: path}
	if p == nil || !p.IsUSB {
		return info
	}
	info.IsUSB = true
	info.VID = strings.ToUpper(p.VID)
	info.PID = strings.ToUpper(p.PID)
	info.SerialNumber = p.SerialNumber
	info.Product = p.Product
	return info
}
