package fpga

import "fmt"

// USB-serial bridge chips commonly found on FPGA development boards.
var knownBridges = []USBBridge{
	{VID: 0x0403, PID: 0x6001, Name: "FTDI FT232R"},
	{VID: 0x0403, PID: 0x6010, Name: "FTDI FT2232H"},
	{VID: 0x0403, PID: 0x6011, Name: "FTDI FT4232H"},
	{VID: 0x0403, PID: 0x6014, Name: "FTDI FT232H"},
	{VID: 0x0403, PID: 0x6015, Name: "FTDI FT-X"},
	{VID: 0x10C4, PID: 0xEA60, Name: "Silicon Labs CP210x"},
	{VID: 0x1A86, PID: 0x7523, Name: "WCH CH340"},
}

// USBBridge identifies a USB-serial bridge attached to the bus.
type USBBridge struct {
	VID  uint16
	PID  uint16
	Bus  int
	Addr int
	Name string
}

// String renders the bridge for listings.
func (b USBBridge) String() string {
	return fmt.Sprintf("%04x:%04x %s (bus %d addr %d)", b.VID, b.PID, b.Name, b.Bus, b.Addr)
}

func lookupBridge(vid, pid uint16) (USBBridge, bool) {
	for _, b := range knownBridges {
		if b.VID == vid && b.PID == pid {
			return b, true
		}
	}
	return USBBridge{}, false
}
