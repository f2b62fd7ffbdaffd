//go:build !linux

package fpga

// ScanUSB is only implemented on Linux.
func ScanUSB() ([]USBBridge, error) { return nil, nil }
