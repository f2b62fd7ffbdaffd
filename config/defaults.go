package config

import (
	"github.com/Thiagojm/fpga_rng_linux/fpga"
)

const (
	defaultHost       = "127.0.0.1"
	defaultPort       = 8000
	defaultBufferSize = 65536
	defaultRunsDir    = "runs"
	defaultProvider   = "external-api"
	defaultAPIURL     = "http://127.0.0.1:8000/random"
	defaultBinary     = "llama-cli"
	defaultParallel   = "llama-parallel"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Device: Device{
			DataBaud:         fpga.DataBaud,
			SignalBaud:       fpga.SignalBaud,
			ReadTimeoutMS:    int(fpga.DefaultReadTimeout.Milliseconds()),
			CheckDurationMS:  int(fpga.DefaultCheckDuration.Milliseconds()),
			ChunkSize:        fpga.DefaultChunkSize,
			SendStart:        true,
			Lock:             true,
			Hotplug:          true,
			ReconnectDelayMS: 1000,
			StallTimeoutMS:   5000,
		},
		Service: Service{
			Host:       defaultHost,
			Port:       defaultPort,
			Mode:       "hardware",
			BufferSize: defaultBufferSize,
			AccessLogs: true,
			LiveStats:  true,
		},
		Runner: Runner{
			Binary:         defaultBinary,
			ParallelBinary: defaultParallel,
			RunsDir:        defaultRunsDir,
			Provider:       defaultProvider,
			APIURL:         defaultAPIURL,
			Parallel:       4,
			NPredict:       128,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}
