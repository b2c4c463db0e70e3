package jtag

import (
	"context"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/blaster"
	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/fx2"
	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/usbdev"
)

// InterfaceKind categorizes what was found on the bus.
type InterfaceKind string

const (
	InterfaceKindBlaster InterfaceKind = "usb-blaster-ii"
	InterfaceKindFX2     InterfaceKind = "fx2-unconfigured"
	InterfaceKindSim     InterfaceKind = "simulator"
)

// InterfaceInfo describes a detected adapter.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Serial      string
	Bus         int
	Address     int
}

// Label returns a user-friendly description for the interface.
func (i InterfaceInfo) Label() string {
	if i.Kind == InterfaceKindSim {
		return i.Description
	}
	label := fmt.Sprintf("%s (%04X:%04X) bus %d addr %d", i.Description, i.VendorID, i.ProductID, i.Bus, i.Address)
	if i.Serial != "" {
		label += " serial " + i.Serial
	}
	return label
}

// KnownDevices lists the IDs a blaster shows before and after firmware load.
var KnownDevices = []usbdev.Known{
	{VendorID: blaster.VendorID, ProductID: blaster.ProductID, Description: "USB-Blaster II"},
	{VendorID: fx2.VendorID, ProductID: fx2.ProductID, Description: "USB-Blaster II (no firmware)"},
}

// DiscoverInterfaces enumerates attached blasters. It always returns the
// simulator entry last so callers can run without hardware.
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	found, err := usbdev.Discover(ctx, KnownDevices)
	results := make([]InterfaceInfo, 0, len(found)+1)
	for _, d := range found {
		results = append(results, classify(d))
	}
	results = append(results, InterfaceInfo{
		Kind:        InterfaceKindSim,
		Description: "Simulator (no hardware)",
	})
	return results, err
}

func classify(d usbdev.Info) InterfaceInfo {
	kind := InterfaceKindBlaster
	if d.ProductID == fx2.ProductID {
		kind = InterfaceKindFX2
	}
	return InterfaceInfo{
		Kind:        kind,
		Description: d.Description,
		VendorID:    d.VendorID,
		ProductID:   d.ProductID,
		Serial:      d.Serial,
		Bus:         d.Bus,
		Address:     d.Address,
	}
}
