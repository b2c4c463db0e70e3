package blaster

import (
	"errors"
	"fmt"
	"sync"

	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/tap"
)

// Defaults for the simulated target: a single 10-bit-IR TAP whose IDCODE
// instruction is 0x006, as on Intel MAX 10 parts.
const (
	SimDefaultIDCode      uint32 = 0x031050DD
	SimDefaultIRLength           = 10
	SimDefaultIDCodeInstr uint64 = 0x006
	SimDefaultRevision           = "SIM01"
)

// WriteHook lets tests inspect or fail a bulk write before the simulator
// decodes it.
type WriteHook func(p []byte) error

// SimConn is an in-memory blaster with one TAP behind it. It decodes the
// bit-bang wire format, clocks the TAP on every TCK rising edge, queues a TDO
// sample for every byte with the read strobe set and releases queued samples
// to Read when it sees FlushMarker. Only IDCODE and BYPASS data registers are
// modelled.
//
// SimConn records every bulk write for inspection.
type SimConn struct {
	IDCode      uint32
	IRLength    int
	IDCodeInstr uint64
	RevisionStr string
	OnWrite     WriteHook

	mu     sync.Mutex
	tap    *tap.StateMachine
	tck    bool
	instr  uint64
	ir     []bool
	dr     []bool
	queued []byte
	ready  []byte

	writes [][]byte
	reads  int
	closed bool
}

// NewSimConn returns a simulator using the default target parameters.
func NewSimConn() *SimConn {
	s := &SimConn{
		IDCode:      SimDefaultIDCode,
		IRLength:    SimDefaultIRLength,
		IDCodeInstr: SimDefaultIDCodeInstr,
		RevisionStr: SimDefaultRevision,
		tap:         tap.NewStateMachine(),
	}
	s.instr = s.IDCodeInstr
	return s
}

// MaxPacketSize matches a full-speed bulk endpoint.
func (s *SimConn) MaxPacketSize() int { return DefaultFlushSize }

// State reports the simulated TAP state.
func (s *SimConn) State() tap.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tap.State()
}

// Instruction reports the instruction latched by the last Update-IR.
func (s *SimConn) Instruction() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instr
}

// Writes returns copies of every bulk write received so far.
func (s *SimConn) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	for i, w := range s.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// Reads reports how many bulk reads were served.
func (s *SimConn) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Pending reports TDO samples captured but not yet collected by Read.
func (s *SimConn) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queued) + len(s.ready)
}

// Write decodes one bulk OUT transfer.
func (s *SimConn) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("blaster sim: closed")
	}
	if s.OnWrite != nil {
		if err := s.OnWrite(p); err != nil {
			return 0, err
		}
	}
	s.writes = append(s.writes, append([]byte(nil), p...))

	for i, raw := range p {
		if raw == FlushMarker {
			s.ready = append(s.ready, s.queued...)
			s.queued = s.queued[:0]
			continue
		}
		b := ControlByte(raw)
		if b.ByteShift() {
			return i, fmt.Errorf("blaster sim: byte-shift mode not supported (byte 0x%02X at %d)", raw, i)
		}
		if b.Read() {
			s.queued = append(s.queued, s.tdo())
		}
		if b.TCK() && !s.tck {
			s.clock(b.TMS(), b.TDI())
		}
		s.tck = b.TCK()
	}
	return len(p), nil
}

// Read returns flushed TDO samples, one byte per sample with the level in
// bit 0. It never blocks; with nothing flushed it returns 0 bytes.
func (s *SimConn) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("blaster sim: closed")
	}
	s.reads++
	n := copy(p, s.ready)
	s.ready = s.ready[n:]
	return n, nil
}

// ControlIn answers the revision request.
func (s *SimConn) ControlIn(request uint8, val uint16, p []byte) (int, error) {
	if request != RequestRevision {
		return 0, fmt.Errorf("blaster sim: unsupported control request 0x%02X", request)
	}
	rev := make([]byte, revisionLen)
	copy(rev, s.RevisionStr)
	return copy(p, rev), nil
}

// Close marks the simulator closed.
func (s *SimConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// tdo is the level on TDO before the next rising edge. Outside the shift
// states the pin floats and reads high.
func (s *SimConn) tdo() byte {
	var reg []bool
	switch s.tap.State() {
	case tap.StateShiftIR:
		reg = s.ir
	case tap.StateShiftDR:
		reg = s.dr
	default:
		return 1
	}
	if len(reg) > 0 && reg[0] {
		return 1
	}
	return 0
}

// clock applies one rising edge: capture and shift act on the state being
// left, update and reset on the state entered.
func (s *SimConn) clock(tms, tdi bool) {
	switch s.tap.State() {
	case tap.StateCaptureIR:
		s.ir = make([]bool, s.IRLength)
		if s.IRLength > 0 {
			s.ir[0] = true
		}
	case tap.StateCaptureDR:
		s.dr = s.captureDR()
	case tap.StateShiftIR:
		s.ir = shiftIn(s.ir, tdi)
	case tap.StateShiftDR:
		s.dr = shiftIn(s.dr, tdi)
	}

	switch s.tap.Clock(tms) {
	case tap.StateUpdateIR:
		s.instr = 0
		for i, v := range s.ir {
			if v {
				s.instr |= 1 << uint(i)
			}
		}
	case tap.StateTestLogicReset:
		s.instr = s.IDCodeInstr
	}
}

func (s *SimConn) captureDR() []bool {
	if s.instr != s.IDCodeInstr {
		return []bool{false} // BYPASS
	}
	dr := make([]bool, 32)
	for i := range dr {
		dr[i] = s.IDCode&(1<<uint(i)) != 0
	}
	return dr
}

// shiftIn moves reg one place towards TDO and inserts tdi at the TDI end.
func shiftIn(reg []bool, tdi bool) []bool {
	if len(reg) == 0 {
		return reg
	}
	copy(reg, reg[1:])
	reg[len(reg)-1] = tdi
	return reg
}
