package jtag

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/tap"
)

// Adapter is the scan-level surface scripts and commands drive. *Controller
// implements it.
type Adapter interface {
	State() tap.State
	Reset() error
	Idle(n int) error
	GoTo(target tap.State) error
	WriteTMS(bits []bool) error
	ShiftIR(tdi []bool) ([]bool, error)
	ShiftDR(tdi []bool) ([]bool, error)
}

var _ Adapter = (*Controller)(nil)

// ErrTooWide is returned when a register does not fit in a uint64.
var ErrTooWide = errors.New("jtag: register wider than 64 bits")

// BitsFromUint expands the low n bits of v, LSB first, which is the order
// they leave the shift register.
func BitsFromUint(v uint64, n int) []bool {
	bits := make([]bool, n)
	for i := range bits {
		bits[i] = i < 64 && v&(1<<uint(i)) != 0
	}
	return bits
}

// BitsToUint packs LSB-first bits into an integer.
func BitsToUint(bits []bool) (uint64, error) {
	if len(bits) > 64 {
		return 0, ErrTooWide
	}
	var v uint64
	for i, b := range bits {
		if b {
			v |= 1 << uint(i)
		}
	}
	return v, nil
}

// PackBits stores LSB-first bits into bytes, bit 0 of byte 0 first.
func PackBits(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// UnpackBits is the inverse of PackBits for a scan of the given length.
func UnpackBits(buf []byte, bits int) ([]bool, error) {
	if bits <= 0 {
		return nil, fmt.Errorf("jtag: bits must be positive, got %d", bits)
	}
	if required := (bits + 7) / 8; len(buf) < required {
		return nil, fmt.Errorf("jtag: buffer too short, need %d bytes", required)
	}
	out := make([]bool, bits)
	for i := range out {
		out[i] = buf[i/8]&(1<<uint(i%8)) != 0
	}
	return out, nil
}

// ScanIR shifts the low n bits of v into the instruction register and
// returns the captured value.
func ScanIR(a Adapter, v uint64, n int) (uint64, error) {
	return scanValue(a.ShiftIR, v, n)
}

// ScanDR is ScanIR for the selected data register.
func ScanDR(a Adapter, v uint64, n int) (uint64, error) {
	return scanValue(a.ShiftDR, v, n)
}

func scanValue(shift func([]bool) ([]bool, error), v uint64, n int) (uint64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("jtag: scan length must be positive, got %d", n)
	}
	if n > 64 {
		return 0, ErrTooWide
	}
	tdo, err := shift(BitsFromUint(v, n))
	if err != nil {
		return 0, err
	}
	return BitsToUint(tdo)
}
