package cmd

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/blaster"
	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/fx2"
	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/jtag"
)

func usbID(defVID, defPID uint16) (uint16, uint16) {
	vid, pid := defVID, defPID
	if vendorID != 0 {
		vid = vendorID
	}
	if productID != 0 {
		pid = productID
	}
	return vid, pid
}

// openController returns a controller on the selected adapter and the cable
// revision. Closing the controller releases the adapter.
func openController() (*jtag.Controller, string, error) {
	switch adapterType {
	case "sim", "simulator":
		s := blaster.NewSession(blaster.NewSimConn())
		rev, err := s.Revision()
		if err != nil {
			return nil, "", err
		}
		return jtag.NewController(s), rev, nil
	case "usb":
		vid, pid := usbID(blaster.VendorID, blaster.ProductID)
		s, rev, err := blaster.OpenID(vid, pid)
		if err != nil {
			return nil, "", err
		}
		return jtag.NewController(s), rev, nil
	}
	return nil, "", fmt.Errorf("unknown adapter %q (want usb or sim)", adapterType)
}

// openFX2 returns the control pipe of an unconfigured blaster and a release
// function.
func openFX2() (fx2.ControlConn, func() error, error) {
	switch adapterType {
	case "sim", "simulator":
		return fx2.NewSimConn(), func() error { return nil }, nil
	case "usb":
		vid, pid := usbID(fx2.VendorID, fx2.ProductID)
		dev, err := fx2.OpenID(vid, pid)
		if err != nil {
			return nil, nil, err
		}
		return dev, dev.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown adapter %q (want usb or sim)", adapterType)
}
