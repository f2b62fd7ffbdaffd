// Package fpga discovers and drives an FPGA hardware random number source
// attached through a USB-serial bridge. The device idles until it receives a
// single toggle byte at the signal baud rate, after which it streams raw
// random bytes at the data baud rate until toggled again.
//
// Features:
//   - Glob-based candidate discovery with USB metadata enrichment
//   - libusb bridge scan on Linux
//   - Three-step connection probe (read, toggle, read)
//   - Auto-detection of the first responsive device
//   - Per-device advisory locking and udev hotplug notifications
package fpga
