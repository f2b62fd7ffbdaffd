package main

import (
	"errors"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/Thiagojm/fpga_rng_linux/fpga"
)

// fakeBoard streams byte(i) patterns once toggled at the signal baud.
type fakeBoard struct {
	mu        sync.Mutex
	streaming bool
	toggles   int
	opens     int
}

func (b *fakeBoard) open(_ string, mode *serial.Mode) (fpga.Port, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opens++
	return &fakePort{board: b, baud: mode.BaudRate}, nil
}

func (b *fakeBoard) state() (streaming bool, toggles, opens int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streaming, b.toggles, b.opens
}

type fakePort struct {
	board   *fakeBoard
	baud    int
	timeout time.Duration
	closed  bool
}

func (p *fakePort) Read(buf []byte) (int, error) {
	if p.closed {
		return 0, errors.New("port closed")
	}
	p.board.mu.Lock()
	streaming := p.board.streaming
	p.board.mu.Unlock()
	if !streaming {
		time.Sleep(p.timeout)
		return 0, nil
	}
	for i := range buf {
		buf[i] = byte(i)
	}
	return len(buf), nil
}

func (p *fakePort) Write(data []byte) (int, error) {
	p.board.mu.Lock()
	defer p.board.mu.Unlock()
	for _, b := range data {
		if b == fpga.ToggleSignal && p.baud == fpga.SignalBaud {
			p.board.streaming = !p.board.streaming
			p.board.toggles++
		}
	}
	return len(data), nil
}

func (p *fakePort) Close() error                         { p.closed = true; return nil }
func (p *fakePort) SetReadTimeout(t time.Duration) error { p.timeout = t; return nil }
func (p *fakePort) ResetInputBuffer() error              { return nil }
func (p *fakePort) Drain() error                         { return nil }
