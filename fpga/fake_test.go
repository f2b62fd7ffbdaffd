package fpga

import (
	"errors"
	"sync"
	"time"

	"go.bug.st/serial"
)

// fakeBoard emulates the FPGA: the toggle byte written at the signal baud
// flips streaming on and off.
type fakeBoard struct {
	mu        sync.Mutex
	streaming bool
	deaf      bool
	toggles   int
	openErr   error
	bauds     []int
}

func (b *fakeBoard) open(mode *serial.Mode) (Port, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.bauds = append(b.bauds, mode.BaudRate)
	return &fakePort{board: b, baud: mode.BaudRate}, nil
}

func (b *fakeBoard) isStreaming() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streaming
}

func (b *fakeBoard) toggleCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.toggles
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
	if p.board.isStreaming() {
		for i := range buf {
			buf[i] = byte(i)
		}
		return len(buf), nil
	}
	time.Sleep(p.timeout)
	return 0, nil
}

func (p *fakePort) Write(data []byte) (int, error) {
	p.board.mu.Lock()
	defer p.board.mu.Unlock()
	for _, b := range data {
		if b == ToggleSignal && p.baud == SignalBaud && !p.board.deaf {
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

// fakeBus routes opens by device path.
type fakeBus struct {
	mu     sync.Mutex
	boards map[string]*fakeBoard
}

func newFakeBus() *fakeBus {
	return &fakeBus{boards: map[string]*fakeBoard{}}
}

func (f *fakeBus) add(path string, board *fakeBoard) *fakeBoard {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards[path] = board
	return board
}

func (f *fakeBus) open(name string, mode *serial.Mode) (Port, error) {
	f.mu.Lock()
	board, ok := f.boards[name]
	f.mu.Unlock()
	if !ok {
		return nil, errors.New("no such device")
	}
	return board.open(mode)
}

func (f *fakeBus) client() *Client {
	return New(Options{
		Open:          f.open,
		ReadTimeout:   2 * time.Millisecond,
		CheckDuration: 20 * time.Millisecond,
		ChunkSize:     16,
	})
}
