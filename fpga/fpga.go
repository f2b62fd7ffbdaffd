package fpga

import (
	"errors"
	"io"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// Serial parameters of the FPGA RNG board. The board only reacts to the
// toggle byte when it arrives at SignalBaud.
const (
	DataBaud   = 921600
	SignalBaud = 115200

	ToggleSignal byte = 0x42

	DefaultReadTimeout   = 100 * time.Millisecond
	DefaultCheckDuration = 100 * time.Millisecond
	DefaultChunkSize     = 1024
)

// DefaultPatterns are the device node globs scanned for candidate boards.
var DefaultPatterns = []string{
	"/dev/cu.usbserial*",
	"/dev/tty.usbserial*",
	"/dev/ttyUSB*",
	"/dev/cu.usbmodem*",
}

// ExtendedPatterns widens DefaultPatterns with CDC-ACM and Silicon Labs
// bridges. Used by the listing tools.
var ExtendedPatterns = append(append([]string{}, DefaultPatterns...),
	"/dev/ttyACM*",
	"/dev/cu.SLAB_USBtoUART*",
)

var (
	ErrNoDevice         = errors.New("no working FPGA device found")
	ErrAlreadyStreaming = errors.New("device is streaming before the start signal was sent")
	ErrNoData           = errors.New("no data received after sending start signal")
	ErrStillStreaming   = errors.New("device still streaming after stop signal")
	ErrDeviceBusy       = errors.New("device is locked by another process")
)

// Port is the subset of serial.Port used to talk to the board.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Drain() error
}

// Opener opens a serial device with the given mode.
type Opener func(name string, mode *serial.Mode) (Port, error)

// OpenSerial is the default Opener backed by go.bug.st/serial.
func OpenSerial(name string, mode *serial.Mode) (Port, error) {
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Options configures a Client. Zero values take the package defaults.
type Options struct {
	DataBaud      int
	SignalBaud    int
	Signal        byte
	ReadTimeout   time.Duration
	CheckDuration time.Duration
	ChunkSize     int
	Open          Opener
	Logger        *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.DataBaud <= 0 {
		o.DataBaud = DataBaud
	}
	if o.SignalBaud <= 0 {
		o.SignalBaud = SignalBaud
	}
	if o.Signal == 0 {
		o.Signal = ToggleSignal
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.CheckDuration <= 0 {
		o.CheckDuration = DefaultCheckDuration
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Open == nil {
		o.Open = OpenSerial
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Client probes and signals FPGA boards.
type Client struct {
	opts   Options
	logger *zap.Logger
}

// New returns a Client using opts.
func New(opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{opts: opts, logger: opts.Logger.Named("fpga")}
}

// Options returns the effective options, defaults applied.
func (c *Client) Options() Options {
	return c.opts
}

// DataMode is the serial mode used for reading the random stream.
func (c *Client) DataMode() *serial.Mode {
	return &serial.Mode{
		BaudRate: c.opts.DataBaud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
}

func (c *Client) signalMode() *serial.Mode {
	return &serial.Mode{
		BaudRate: c.opts.SignalBaud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
}

// OpenData opens path at the data baud rate with the configured read timeout.
func (c *Client) OpenData(path string) (Port, error) {
	port, err := c.opts.Open(path, c.DataMode())
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(c.opts.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, err
	}
	return port, nil
}

// Status classifies a probed device.
type Status int

const (
	StatusUnresponsive Status = iota
	StatusResponsive
	StatusStreaming
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusResponsive:
		return "responsive"
	case StatusStreaming:
		return "streaming"
	default:
		return "unresponsive"
	}
}
