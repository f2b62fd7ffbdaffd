//go:build !linux

package fpga

import (
	"context"

	"go.uber.org/zap"
)

// HotplugEvent reports a serial device node appearing or disappearing.
type HotplugEvent struct {
	Action string
	Device string
}

// Hotplug is a no-op outside Linux.
type Hotplug struct{}

func NewHotplug(patterns []string, logger *zap.Logger, handler func(HotplugEvent)) *Hotplug {
	return nil
}

func (h *Hotplug) Start(ctx context.Context) error { return nil }
func (h *Hotplug) Stop()                           {}
func (h *Hotplug) Running() bool                   { return false }
