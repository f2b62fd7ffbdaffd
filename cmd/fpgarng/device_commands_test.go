package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thiagojm/fpga_rng_linux/fpga"
)

// deviceEnv writes a config with fast serial timings whose auto-detect
// pattern matches a single empty device node.
func deviceEnv(t *testing.T) (*cliEnv, string) {
	t.Helper()
	env := setupCLIEnv(t)
	devDir := filepath.Join(env.dir, "dev")
	require.NoError(t, os.MkdirAll(devDir, 0o755))
	device := filepath.Join(devDir, "ttyUSB0")
	require.NoError(t, os.WriteFile(device, nil, 0o600))
	env.writeConfig(t, fmt.Sprintf(`[device]
patterns = [%q]
read_timeout_ms = 1
check_duration_ms = 20
chunk_size = 16

[logging]
level = "error"
`, filepath.Join(devDir, "ttyUSB*")))
	return env, device
}

func TestStartAndStopCommands(t *testing.T) {
	env, device := deviceEnv(t)
	board := &fakeBoard{}
	opts := []rootOption{withOpener(board.open)}

	out, _, err := runCLIWith(t, env, opts, "start", "--device", device)
	require.NoError(t, err)
	assert.Contains(t, out, device+": streaming")
	streaming, toggles, _ := board.state()
	assert.True(t, streaming)
	assert.Equal(t, 1, toggles)

	out, _, err = runCLIWith(t, env, opts, "stop")
	require.NoError(t, err)
	assert.Contains(t, out, device+": stopped")
	streaming, toggles, _ = board.state()
	assert.False(t, streaming)
	assert.Equal(t, 2, toggles)

	// the lock is released after each command
	lock, err := fpga.LockDevice(device)
	require.NoError(t, err)
	require.NoError(t, lock.Unlock())
}

func TestStartLeavesLockedBoardUntouched(t *testing.T) {
	env, device := deviceEnv(t)
	board := &fakeBoard{streaming: true}
	opts := []rootOption{withOpener(board.open)}

	other, err := fpga.LockDevice(device)
	require.NoError(t, err)
	defer other.Unlock()

	_, _, err = runCLIWith(t, env, opts, "stop")
	require.Error(t, err)
	assert.ErrorIs(t, err, fpga.ErrNoDevice)
	assert.Contains(t, err.Error(), "locked by another process")

	_, _, err = runCLIWith(t, env, opts, "stop", "--device", device)
	assert.ErrorIs(t, err, fpga.ErrDeviceBusy)

	streaming, toggles, opens := board.state()
	assert.True(t, streaming)
	assert.Zero(t, toggles)
	assert.Zero(t, opens)
}

func TestReadCommandStartsAndStopsIdleBoard(t *testing.T) {
	env, device := deviceEnv(t)
	board := &fakeBoard{}

	out, _, err := runCLIWith(t, env, []rootOption{withOpener(board.open)}, "read", "--device", device, "--bytes", "16")
	require.NoError(t, err)
	assert.Contains(t, out, "from "+device)
	assert.Contains(t, out, "000102030405060708090a0b0c0d0e0f")

	streaming, toggles, _ := board.state()
	assert.False(t, streaming)
	assert.Equal(t, 2, toggles)
}

func TestReadCommandLeavesStreamingBoardOn(t *testing.T) {
	env, device := deviceEnv(t)
	board := &fakeBoard{streaming: true}

	_, _, err := runCLIWith(t, env, []rootOption{withOpener(board.open)}, "read", "--device", device, "--bytes", "8")
	require.NoError(t, err)

	streaming, toggles, _ := board.state()
	assert.True(t, streaming)
	assert.Zero(t, toggles)
}

func TestDistributionCommand(t *testing.T) {
	env, device := deviceEnv(t)
	board := &fakeBoard{}
	xlsx := filepath.Join(env.dir, "dist.xlsx")

	out, _, err := runCLIWith(t, env, []rootOption{withOpener(board.open)},
		"distribution", "--device", device, "--bytes", "512", "--xlsx", xlsx)
	require.NoError(t, err)
	assert.Contains(t, out, "Collecting 512 random bytes")
	assert.Contains(t, out, "Verdict:")
	assert.Contains(t, out, "Report written to "+xlsx)
	assert.FileExists(t, xlsx)

	streaming, toggles, _ := board.state()
	assert.False(t, streaming)
	assert.Equal(t, 2, toggles)
}
