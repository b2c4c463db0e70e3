package jtag

import (
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/blaster"
	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/tap"
)

// Transport is the bit-level session a Controller drives. *blaster.Session
// implements it.
type Transport interface {
	TickTMS(bits []bool) error
	TickTDI(bits []bool) error
	RequestReadCapture(bits []bool) error
	TickExit(tdi, capture bool) error
	DrainCapture(n int) ([]bool, error)
	TickTDO(n int) ([]bool, error)
	LastTMS() bool
	Flush() error
	Close() error
}

var _ Transport = (*blaster.Session)(nil)

// Controller pairs a transport with a TAP state tracker so that every clock
// the hardware sees is mirrored in State. The tracker only advances after the
// transport accepted the write.
type Controller struct {
	mu sync.Mutex
	tr Transport
	sm *tap.StateMachine
}

// NewController starts tracking from Test-Logic-Reset. The first Reset call
// brings the real TAP in line with that assumption.
func NewController(tr Transport) *Controller {
	if tr == nil {
		panic("jtag: nil transport")
	}
	return &Controller{tr: tr, sm: tap.NewStateMachine()}
}

// State reports the tracked TAP state.
func (c *Controller) State() tap.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sm.State()
}

// WriteTMS clocks each TMS bit and advances the tracker.
func (c *Controller) WriteTMS(bits []bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeTMS(bits)
}

func (c *Controller) writeTMS(bits []bool) error {
	if err := c.tr.TickTMS(bits); err != nil {
		return err
	}
	c.sm.ClockAll(bits)
	return nil
}

// Write clocks TDI bits without sampling TDO. TMS holds its last level, and
// the tracker advances with it.
func (c *Controller) Write(bits []bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.tr.TickTDI(bits); err != nil {
		return err
	}
	c.clockHeld(len(bits))
	return nil
}

// WriteWithRead clocks TDI bits like Write and queues a TDO sample per bit
// for a later ReadFromBuffer.
func (c *Controller) WriteWithRead(bits []bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.tr.RequestReadCapture(bits); err != nil {
		return err
	}
	c.clockHeld(len(bits))
	return nil
}

// ReadFromBuffer collects n samples queued by WriteWithRead. No clocks are
// issued.
func (c *Controller) ReadFromBuffer(n int) ([]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tr.DrainCapture(n)
}

// Read clocks n ticks with TMS and TDI held and returns the TDO samples.
func (c *Controller) Read(n int) ([]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bits, err := c.tr.TickTDO(n)
	if err != nil {
		return nil, err
	}
	c.clockHeld(n)
	return bits, nil
}

// Reset clocks five TMS ones, which reaches Test-Logic-Reset from any state.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeTMS(tap.ResetTMS)
}

// GoTo walks the shortest TMS path from the tracked state to target.
func (c *Controller) GoTo(target tap.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.goTo(target)
}

func (c *Controller) goTo(target tap.State) error {
	if !target.Valid() {
		return fmt.Errorf("jtag: invalid target state %d", target)
	}
	seq, err := tap.Path(c.sm.State(), target)
	if err != nil {
		return err
	}
	if len(seq.TMS) == 0 {
		return nil
	}
	glog.V(2).Infof("jtag: %s -> %s via %v", c.sm.State(), target, seq.TMS)
	return c.writeTMS(seq.TMS)
}

// Idle moves to Run-Test/Idle and stays there for n additional clocks.
func (c *Controller) Idle(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 {
		return fmt.Errorf("jtag: negative idle count %d", n)
	}
	if err := c.goTo(tap.StateRunTestIdle); err != nil {
		return err
	}
	return c.writeTMS(make([]bool, n))
}

// ShiftIR shifts tdi through the instruction register, LSB first, and
// returns the bits captured on TDO. The TAP ends in Run-Test/Idle.
func (c *Controller) ShiftIR(tdi []bool) ([]bool, error) {
	return c.scan(tap.StateShiftIR, tdi)
}

// ShiftDR is ShiftIR for the currently selected data register.
func (c *Controller) ShiftDR(tdi []bool) ([]bool, error) {
	return c.scan(tap.StateShiftDR, tdi)
}

func (c *Controller) scan(shift tap.State, tdi []bool) ([]bool, error) {
	if len(tdi) == 0 {
		return nil, fmt.Errorf("jtag: empty %s scan", shift)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.goTo(shift); err != nil {
		return nil, err
	}
	n := len(tdi)
	if err := c.tr.RequestReadCapture(tdi[:n-1]); err != nil {
		return nil, err
	}
	c.clockHeld(n - 1)
	if err := c.tr.TickExit(tdi[n-1], true); err != nil {
		return nil, err
	}
	c.sm.Clock(true)
	tdo, err := c.tr.DrainCapture(n)
	if err != nil {
		return nil, err
	}
	if err := c.goTo(tap.StateRunTestIdle); err != nil {
		return nil, err
	}
	return tdo, nil
}

// Flush forces out any partially filled device buffer.
func (c *Controller) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tr.Flush()
}

// Close releases the transport.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tr.Close()
}

func (c *Controller) clockHeld(n int) {
	tms := c.tr.LastTMS()
	for i := 0; i < n; i++ {
		c.sm.Clock(tms)
	}
}
