package fpga

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// LockDir holds the per-device lock files.
var LockDir = os.TempDir()

// DeviceLock is an advisory lock on a serial device.
type DeviceLock struct {
	lock *flock.Flock
}

// LockPath returns the lock file used for device path.
func LockPath(path string) string {
	name := strings.Trim(strings.ReplaceAll(path, string(filepath.Separator), "_"), "_")
	return filepath.Join(LockDir, "fpga-rng-"+name+".lock")
}

// LockDevice takes the advisory lock for path without blocking.
func LockDevice(path string) (*DeviceLock, error) {
	fl := flock.New(LockPath(path))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrDeviceBusy)
	}
	return &DeviceLock{lock: fl}, nil
}

// Unlock releases the lock. Safe on nil.
func (l *DeviceLock) Unlock() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
