package usbdev

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"
)

// Known describes a VID:PID pair worth reporting during discovery.
type Known struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

// Info describes one attached device that matched a Known entry.
type Info struct {
	Known
	Bus     int
	Address int
	Serial  string
}

// Label returns a human-readable summary of the device.
func (i Info) Label() string {
	label := fmt.Sprintf("%s (%04X:%04X) bus %d addr %d", i.Description, i.VendorID, i.ProductID, i.Bus, i.Address)
	if i.Serial != "" {
		label += " serial " + i.Serial
	}
	return label
}

// Discover lists attached devices matching any entry in known. Devices that
// cannot be opened for their serial number are still reported.
func Discover(ctx context.Context, known []Known) ([]Info, error) {
	usb := gousb.NewContext()
	defer usb.Close()

	var results []Info
	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		k, ok := match(known, uint16(desc.Vendor), uint16(desc.Product))
		if !ok {
			return false
		}
		results = append(results, Info{Known: k, Bus: desc.Bus, Address: desc.Address})
		return true
	})
	for _, dev := range devs {
		serial, _ := dev.SerialNumber()
		for i := range results {
			if results[i].Bus == dev.Desc.Bus && results[i].Address == dev.Desc.Address {
				results[i].Serial = serial
			}
		}
		dev.Close()
	}
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		return results, fmt.Errorf("usbdev: enumerate: %w", err)
	}
	return results, ctx.Err()
}

func match(known []Known, vid, pid uint16) (Known, bool) {
	for _, k := range known {
		if k.VendorID == vid && k.ProductID == pid {
			return k, true
		}
	}
	return Known{}, false
}
