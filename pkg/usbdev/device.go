package usbdev

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/google/gousb"
)

const (
	rTypeControlIn  uint8 = gousb.ControlIn | gousb.ControlVendor | gousb.ControlInterface
	rTypeControlOut uint8 = gousb.ControlOut | gousb.ControlVendor | gousb.ControlInterface

	// DefaultPacketSize is assumed when the OUT endpoint descriptor reports no
	// max packet size, or when the device was opened without endpoints.
	DefaultPacketSize = 64
)

type options struct {
	config    int
	intfNum   int
	altNum    int
	reset     bool
	endpoints bool
	timeout   time.Duration
}

func defaultOptions() options {
	return options{
		config:    1,
		reset:     true,
		endpoints: true,
	}
}

// Option tunes how Open acquires the device.
type Option func(*options)

// WithInterface selects the interface and alternate setting to claim.
// The default is interface 0, alt setting 0.
func WithInterface(num, alt int) Option {
	return func(o *options) {
		o.intfNum = num
		o.altNum = alt
	}
}

// WithConfig selects the configuration number (default 1).
func WithConfig(cfg int) Option {
	return func(o *options) {
		if cfg > 0 {
			o.config = cfg
		}
	}
}

// WithoutReset skips the port reset normally issued right after opening.
func WithoutReset() Option {
	return func(o *options) { o.reset = false }
}

// ControlOnly opens the device for vendor control requests only and does not
// look for bulk endpoints. The FX2 loader needs nothing else.
func ControlOnly() Option {
	return func(o *options) { o.endpoints = false }
}

// WithTimeout bounds every transfer. Zero, the default, blocks until the
// transfer completes.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.timeout = d
		}
	}
}

// Device is an opened USB device with one claimed interface, its bulk OUT and
// bulk IN endpoints and the default control pipe. Read and Write move data on
// the bulk endpoints so a Device can be used as an io.ReadWriter.
//
// A Device is not safe for concurrent use.
type Device struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	packetSize int
	opts       options

	vid uint16
	pid uint16
}

// Open finds the first device with the given VID:PID, resets it, selects its
// configuration, claims the interface and locates the bulk endpoints.
// Every partially acquired resource is released on failure.
func Open(vid, pid uint16, opts ...Option) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	d := &Device{
		ctx:        gousb.NewContext(),
		packetSize: DefaultPacketSize,
		opts:       o,
		vid:        vid,
		pid:        pid,
	}

	dev, err := d.ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("usbdev: open %04X:%04X: %w", vid, pid, err)
	}
	if dev == nil {
		d.Close()
		return nil, fmt.Errorf("%w (VID:0x%04X PID:0x%04X)", ErrDeviceNotFound, vid, pid)
	}
	d.dev = dev
	d.dev.ControlTimeout = o.timeout

	// Not supported on every platform; the claim below reports real conflicts.
	_ = d.dev.SetAutoDetach(true)

	if o.reset {
		if err := d.dev.Reset(); err != nil {
			d.Close()
			return nil, fmt.Errorf("usbdev: reset %04X:%04X: %w", vid, pid, err)
		}
	}

	if o.endpoints {
		if err := d.claim(); err != nil {
			d.Close()
			return nil, err
		}
	}

	glog.V(1).Infof("usbdev: opened %04X:%04X (packet size %d)", vid, pid, d.packetSize)
	return d, nil
}

// claim selects the configuration, claims the interface and opens the first
// bulk OUT and bulk IN endpoints of its alternate setting.
func (d *Device) claim() error {
	cfg, err := d.dev.Config(d.opts.config)
	if err != nil {
		return fmt.Errorf("usbdev: set config %d: %w", d.opts.config, err)
	}
	d.cfg = cfg

	intf, err := cfg.Interface(d.opts.intfNum, d.opts.altNum)
	if err != nil {
		return fmt.Errorf("usbdev: claim interface %d/%d: %w", d.opts.intfNum, d.opts.altNum, err)
	}
	d.intf = intf

	outDesc, inDesc, err := bulkEndpoints(intf.Setting)
	if err != nil {
		return err
	}

	if d.epOut, err = intf.OutEndpoint(outDesc.Number); err != nil {
		return fmt.Errorf("usbdev: open OUT endpoint %d: %w", outDesc.Number, err)
	}
	if d.epIn, err = intf.InEndpoint(inDesc.Number); err != nil {
		return fmt.Errorf("usbdev: open IN endpoint %d: %w", inDesc.Number, err)
	}
	if outDesc.MaxPacketSize > 0 {
		d.packetSize = outDesc.MaxPacketSize
	}
	return nil
}

// bulkEndpoints returns the lowest-numbered bulk OUT and bulk IN endpoints.
func bulkEndpoints(setting gousb.InterfaceSetting) (out, in gousb.EndpointDesc, err error) {
	var haveOut, haveIn bool
	for _, ep := range setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionOut:
			if !haveOut || ep.Number < out.Number {
				out, haveOut = ep, true
			}
		case gousb.EndpointDirectionIn:
			if !haveIn || ep.Number < in.Number {
				in, haveIn = ep, true
			}
		}
	}
	if !haveOut {
		return out, in, fmt.Errorf("%w: no bulk OUT endpoint on interface %d", ErrEndpointMissing, setting.Number)
	}
	if !haveIn {
		return out, in, fmt.Errorf("%w: no bulk IN endpoint on interface %d", ErrEndpointMissing, setting.Number)
	}
	return out, in, nil
}

// MaxPacketSize reports the bulk OUT endpoint's max packet size.
func (d *Device) MaxPacketSize() int {
	return d.packetSize
}

func (d *Device) transferContext() (context.Context, context.CancelFunc) {
	if d.opts.timeout > 0 {
		return context.WithTimeout(context.Background(), d.opts.timeout)
	}
	return context.Background(), func() {}
}

// Write sends p on the bulk OUT endpoint in a single transfer.
func (d *Device) Write(p []byte) (int, error) {
	if d.epOut == nil {
		return 0, &TransferError{Op: "bulk-out", Len: len(p), Err: ErrEndpointMissing}
	}
	ctx, cancel := d.transferContext()
	defer cancel()

	n, err := d.epOut.WriteContext(ctx, p)
	if glog.V(2) {
		glog.Infof("[usb-bulk OUT] %d/%d bytes\n%s", n, len(p), hex.Dump(p))
	}
	if err != nil {
		return n, &TransferError{Op: "bulk-out", Len: len(p), Err: err}
	}
	if n != len(p) {
		return n, &TransferError{Op: "bulk-out", Len: len(p), Err: fmt.Errorf("short write: %d bytes", n)}
	}
	return n, nil
}

// Read performs one bulk IN transfer into p.
func (d *Device) Read(p []byte) (int, error) {
	if d.epIn == nil {
		return 0, &TransferError{Op: "bulk-in", Len: len(p), Err: ErrEndpointMissing}
	}
	ctx, cancel := d.transferContext()
	defer cancel()

	n, err := d.epIn.ReadContext(ctx, p)
	if glog.V(2) {
		glog.Infof("[usb-bulk IN] %d bytes\n%s", n, hex.Dump(p[:n]))
	}
	if err != nil {
		return n, &TransferError{Op: "bulk-in", Len: len(p), Err: err}
	}
	return n, nil
}

// ControlIn issues a vendor, interface-recipient IN request and fills p.
func (d *Device) ControlIn(request uint8, val uint16, p []byte) (int, error) {
	n, err := d.dev.Control(rTypeControlIn, request, val, 0, p)
	if err != nil {
		return n, &TransferError{Op: "control-in", Len: len(p), Err: err}
	}
	if glog.V(2) {
		glog.Infof("[usb-ctrl IN] request=0x%02X val=0x%04X\n%s", request, val, hex.Dump(p[:n]))
	}
	return n, nil
}

// ControlOut issues a vendor, interface-recipient OUT request carrying p.
func (d *Device) ControlOut(request uint8, val uint16, p []byte) (int, error) {
	n, err := d.dev.Control(rTypeControlOut, request, val, 0, p)
	if err != nil {
		return n, &TransferError{Op: "control-out", Len: len(p), Err: err}
	}
	if n != len(p) {
		return n, &TransferError{Op: "control-out", Len: len(p), Err: fmt.Errorf("short write: %d bytes", n)}
	}
	if glog.V(2) {
		glog.Infof("[usb-ctrl OUT] request=0x%02X val=0x%04X\n%s", request, val, hex.Dump(p))
	}
	return n, nil
}

// Close releases the interface, configuration, device and USB context.
func (d *Device) Close() error {
	if d.intf != nil {
		d.intf.Close()
		d.intf = nil
	}
	var err error
	if d.cfg != nil {
		err = d.cfg.Close()
		d.cfg = nil
	}
	if d.dev != nil {
		if cerr := d.dev.Close(); err == nil {
			err = cerr
		}
		d.dev = nil
	}
	if d.ctx != nil {
		if cerr := d.ctx.Close(); err == nil {
			err = cerr
		}
		d.ctx = nil
	}
	if d.vid != 0 || d.pid != 0 {
		glog.V(1).Infof("usbdev: closed %04X:%04X", d.vid, d.pid)
	}
	return err
}
