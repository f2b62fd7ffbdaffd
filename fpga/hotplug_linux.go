//go:build linux

package fpga

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"
	"go.uber.org/zap"
)

// HotplugEvent reports a serial device node appearing or disappearing.
type HotplugEvent struct {
	Action string
	Device string
}

// Hotplug listens for udev netlink events on tty devices matching the
// configured patterns.
type Hotplug struct {
	patterns []string
	logger   *zap.Logger
	handler  func(HotplugEvent)
	dial     func() (*netlink.UEventConn, error)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewHotplug creates a monitor delivering matching events to handler.
func NewHotplug(patterns []string, logger *zap.Logger, handler func(HotplugEvent)) *Hotplug {
	if handler == nil {
		return nil
	}
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hotplug{
		patterns: patterns,
		logger:   logger.Named("hotplug"),
		handler:  handler,
		dial:     dialUdev,
	}
}

func dialUdev() (*netlink.UEventConn, error) {
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, err
	}
	return conn, nil
}

// Start connects to the netlink socket. A failed connect is returned and
// leaves the monitor stopped.
func (h *Hotplug) Start(ctx context.Context) error {
	if h == nil {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return nil
	}

	conn, err := h.dial()
	if err != nil {
		return fmt.Errorf("connect netlink socket: %w", err)
	}

	h.conn = conn
	h.quit = make(chan struct{})
	h.running = true

	quit := h.quit
	go h.monitorLoop(ctx, conn, quit)

	h.logger.Info("hotplug monitor started", zap.Strings("patterns", h.patterns))
	return nil
}

// Stop shuts the monitor down.
func (h *Hotplug) Stop() {
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}
	if h.quit != nil {
		close(h.quit)
		h.quit = nil
	}
	if h.conn != nil {
		_ = h.conn.Close()
		h.conn = nil
	}
	h.running = false
	h.logger.Info("hotplug monitor stopped")
}

// Running reports whether the monitor is active.
func (h *Hotplug) Running() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *Hotplug) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, h.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			h.handleEvent(uevent)
		case err := <-errs:
			h.logger.Warn("netlink monitor error", zap.Error(err))
		}
	}
}

func (h *Hotplug) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "tty",
		},
	})
	return rules
}

func (h *Hotplug) handleEvent(uevent netlink.UEvent) {
	device := deviceNode(uevent.Env)
	if device == "" || !h.matches(device) {
		return
	}
	h.logger.Info("serial device event",
		zap.String("action", string(uevent.Action)),
		zap.String("device", device),
	)
	h.handler(HotplugEvent{Action: string(uevent.Action), Device: device})
}

func (h *Hotplug) matches(device string) bool {
	return matchesAny(h.patterns, device)
}

func matchesAny(patterns []string, device string) bool {
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, device); ok {
			return true
		}
	}
	return false
}

// deviceNode resolves /dev/<name> from DEVNAME or the last DEVPATH element.
func deviceNode(env map[string]string) string {
	if devname := env["DEVNAME"]; devname != "" {
		if strings.HasPrefix(devname, "/dev/") {
			return devname
		}
		return "/dev/" + devname
	}
	devpath := env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
