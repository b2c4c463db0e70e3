// Package fx2 uploads firmware into the RAM of a Cypress FX2LP through its
// built-in vendor request, the way a USB-Blaster II is brought up before it
// enumerates as a JTAG cable.
//
// The upload is bracketed by holding the 8051 core in reset through the
// CPUCS register: nothing runs until every byte has been written, and any
// failure leaves the core held so that a partial image never executes.
package fx2

import (
	"bytes"
	"context"
	"fmt"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/ihex"
	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/usbdev"
)

const (
	// VendorID and ProductID identify a blaster whose FX2 has no firmware yet.
	VendorID  = 0x09FB
	ProductID = 0x6810

	// RequestFirmwareLoad reads (IN) or writes (OUT) internal memory at the
	// address given in wValue.
	RequestFirmwareLoad uint8 = 0xA0

	// CPUCSAddr is the CPU control/status register; writing 1 holds the
	// 8051 in reset, 0 releases it.
	CPUCSAddr uint16 = 0xE600

	// MaxChunk is the largest payload of one FW_LOAD transfer.
	MaxChunk = 4096
)

// ControlConn is the control pipe the loader drives. *usbdev.Device and
// *SimConn implement it.
type ControlConn interface {
	ControlIn(request uint8, val uint16, p []byte) (int, error)
	ControlOut(request uint8, val uint16, p []byte) (int, error)
}

// Loader writes Intel HEX images into FX2 RAM.
type Loader struct {
	conn   ControlConn
	config Config
}

// New returns a Loader driving conn.
func New(conn ControlConn, opts ...Option) *Loader {
	if conn == nil {
		panic("fx2: nil conn")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Loader{conn: conn, config: cfg}
}

// Open acquires the first unconfigured FX2 for control transfers only.
func Open(opts ...usbdev.Option) (*usbdev.Device, error) {
	return OpenID(VendorID, ProductID, opts...)
}

// OpenID is Open for an FX2 enumerating under a different VID:PID.
func OpenID(vid, pid uint16, opts ...usbdev.Option) (*usbdev.Device, error) {
	return usbdev.Open(vid, pid, append([]usbdev.Option{usbdev.ControlOnly()}, opts...)...)
}

// Load parses the image at path and uploads it. A parse failure returns
// before any transfer is made.
func (l *Loader) Load(ctx context.Context, path string) error {
	img, err := ihex.ParseFile(path)
	if err != nil {
		return err
	}
	return l.Upload(ctx, img)
}

// Upload holds the CPU in reset, writes every run in address order, verifies
// if configured and releases the CPU. On error the CPU stays in reset.
func (l *Loader) Upload(ctx context.Context, img *ihex.Image) error {
	if img == nil {
		return fmt.Errorf("fx2: nil image")
	}
	if l.config.Coalesce {
		img = img.Coalesce()
	}

	p := Progress{Phase: PhaseHold, BytesTotal: img.Size()}
	if err := l.HoldInReset(true); err != nil {
		return err
	}
	l.report(p)

	p.Phase = PhaseWriting
	for _, run := range img.Runs {
		err := l.eachChunk(ctx, run, func(addr uint16, chunk []byte) error {
			if err := l.WriteMemory(addr, chunk); err != nil {
				return err
			}
			p.Addr = addr
			p.BytesDone += len(chunk)
			p.ChunksIssued++
			l.report(p)
			return nil
		})
		if err != nil {
			return err
		}
	}

	if l.config.Verify {
		if err := l.verify(ctx, img, &p); err != nil {
			return err
		}
	}

	p.Phase = PhaseRelease
	if err := l.HoldInReset(false); err != nil {
		return err
	}
	l.report(p)

	p.Phase = PhaseComplete
	l.report(p)
	glog.V(1).Infof("fx2: uploaded %d bytes in %d runs, %d transfers", p.BytesDone, len(img.Runs), p.ChunksIssued)
	return nil
}

func (l *Loader) verify(ctx context.Context, img *ihex.Image, p *Progress) error {
	p.Phase = PhaseVerifying
	p.BytesDone = 0
	for _, run := range img.Runs {
		err := l.eachChunk(ctx, run, func(addr uint16, want []byte) error {
			got, err := l.ReadMemory(addr, len(want))
			if err != nil {
				return err
			}
			if !bytes.Equal(got, want) {
				for i := range want {
					if got[i] != want[i] {
						return &VerifyError{Addr: addr + uint16(i), Want: want[i], Got: got[i]}
					}
				}
			}
			p.Addr = addr
			p.BytesDone += len(want)
			l.report(*p)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// eachChunk splits run into ChunkSize pieces, checking ctx between them.
func (l *Loader) eachChunk(ctx context.Context, run ihex.Run, fn func(addr uint16, chunk []byte) error) error {
	data := run.Data
	addr := int(run.Addr)
	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("fx2: upload interrupted at 0x%04X: %w", addr, err)
		}
		n := min(len(data), l.config.ChunkSize)
		if err := fn(uint16(addr), data[:n]); err != nil {
			return err
		}
		data = data[n:]
		addr += n
	}
	return nil
}

// HoldInReset writes CPUCS: true stops the 8051, false lets it run.
func (l *Loader) HoldInReset(hold bool) error {
	v := byte(0)
	if hold {
		v = 1
	}
	if err := l.WriteMemory(CPUCSAddr, []byte{v}); err != nil {
		return fmt.Errorf("fx2: set CPUCS=%d: %w", v, err)
	}
	glog.V(1).Infof("fx2: CPUCS=%d", v)
	return nil
}

// WriteMemory stores p at addr in one control transfer.
func (l *Loader) WriteMemory(addr uint16, p []byte) error {
	if len(p) > MaxChunk {
		return fmt.Errorf("fx2: write of %d bytes exceeds %d", len(p), MaxChunk)
	}
	if _, err := l.conn.ControlOut(RequestFirmwareLoad, addr, p); err != nil {
		return fmt.Errorf("fx2: write 0x%04X+%d: %w", addr, len(p), err)
	}
	return nil
}

// ReadMemory fetches n bytes starting at addr in one control transfer.
func (l *Loader) ReadMemory(addr uint16, n int) ([]byte, error) {
	if n < 0 || n > MaxChunk {
		return nil, fmt.Errorf("fx2: read of %d bytes outside 0..%d", n, MaxChunk)
	}
	buf := make([]byte, n)
	got, err := l.conn.ControlIn(RequestFirmwareLoad, addr, buf)
	if err != nil {
		return nil, fmt.Errorf("fx2: read 0x%04X+%d: %w", addr, n, err)
	}
	if got != n {
		return nil, fmt.Errorf("fx2: read 0x%04X: got %d of %d bytes", addr, got, n)
	}
	return buf, nil
}

func (l *Loader) report(p Progress) {
	if l.config.ProgressCallback != nil {
		l.config.ProgressCallback(p)
	}
}
