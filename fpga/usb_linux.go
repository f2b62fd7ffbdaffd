//go:build linux

package fpga

import (
	"github.com/google/gousb"
)

// ScanUSB lists known USB-serial bridges attached to the bus using libusb.
// Devices are only inspected through their descriptors, never opened.
func ScanUSB() ([]USBBridge, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var found []USBBridge
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if b, ok := lookupBridge(uint16(desc.Vendor), uint16(desc.Product)); ok {
			b.Bus = desc.Bus
			b.Addr = desc.Address
			found = append(found, b)
		}
		return false
	})
	for _, d := range devs {
		_ = d.Close()
	}
	if err != nil && len(found) == 0 {
		return nil, err
	}
	return found, nil
}
