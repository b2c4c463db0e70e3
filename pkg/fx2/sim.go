package fx2

import (
	"errors"
	"fmt"
	"sync"
)

// Transfer is one FW_LOAD control transfer seen by SimConn.
type Transfer struct {
	In   bool
	Addr uint16
	Data []byte
}

// SimConn emulates the FX2 firmware-load request against 64 KiB of RAM and
// records every transfer. Memory reads and writes go straight to RAM; a write
// to CPUCS updates the reset state.
type SimConn struct {
	// FailOutAt makes the Nth OUT transfer (1-based) fail. Zero disables.
	FailOutAt int
	// Corrupt flips the byte at this address on every read-back when set.
	Corrupt *uint16

	mu        sync.Mutex
	mem       [1 << 16]byte
	inReset   bool
	resets    int
	outs      int
	transfers []Transfer
}

// NewSimConn returns a simulator with the CPU running and RAM cleared.
func NewSimConn() *SimConn {
	return &SimConn{}
}

// ErrSimTransfer is the failure injected by FailOutAt.
var ErrSimTransfer = errors.New("fx2 sim: injected transfer failure")

func (s *SimConn) ControlOut(request uint8, val uint16, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if request != RequestFirmwareLoad {
		return 0, fmt.Errorf("fx2 sim: unsupported request 0x%02X", request)
	}
	s.outs++
	if s.FailOutAt > 0 && s.outs == s.FailOutAt {
		return 0, ErrSimTransfer
	}
	if int(val)+len(p) > len(s.mem) {
		return 0, fmt.Errorf("fx2 sim: write past end of memory")
	}
	s.transfers = append(s.transfers, Transfer{Addr: val, Data: append([]byte(nil), p...)})
	copy(s.mem[val:], p)
	if val == CPUCSAddr && len(p) == 1 {
		hold := p[0]&1 != 0
		if hold && !s.inReset {
			s.resets++
		}
		s.inReset = hold
	}
	return len(p), nil
}

func (s *SimConn) ControlIn(request uint8, val uint16, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if request != RequestFirmwareLoad {
		return 0, fmt.Errorf("fx2 sim: unsupported request 0x%02X", request)
	}
	if int(val)+len(p) > len(s.mem) {
		return 0, fmt.Errorf("fx2 sim: read past end of memory")
	}
	s.transfers = append(s.transfers, Transfer{In: true, Addr: val, Data: nil})
	n := copy(p, s.mem[val:])
	if s.Corrupt != nil {
		if off := int(*s.Corrupt) - int(val); off >= 0 && off < n {
			p[off] ^= 0xFF
		}
	}
	return n, nil
}

// InReset reports whether the last CPUCS write held the CPU.
func (s *SimConn) InReset() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inReset
}

// Memory returns a copy of n bytes of RAM at addr.
func (s *SimConn) Memory(addr uint16, n int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.mem[int(addr):int(addr)+n]...)
}

// Transfers returns every transfer recorded so far.
func (s *SimConn) Transfers() []Transfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transfer(nil), s.transfers...)
}

// Writes returns only the OUT transfers.
func (s *SimConn) Writes() []Transfer {
	var out []Transfer
	for _, t := range s.Transfers() {
		if !t.In {
			out = append(out, t)
		}
	}
	return out
}

// HoldCount reports how many times the CPU went from running to held.
func (s *SimConn) HoldCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}
