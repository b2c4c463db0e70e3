package blaster

import "fmt"

// ControlByte is one bit-bang command byte. In bit-bang mode (BitByteShift
// clear) each byte drives the JTAG pins directly; with BitRead set the device
// samples TDO and queues one response byte.
//
// Build values with MakeControlByte and the edge-pair helpers only, so the
// pin-to-bit mapping stays in this file.
type ControlByte byte

// Bit positions, MSB to LSB.
const (
	BitByteShift ControlByte = 1 << 7
	BitRead      ControlByte = 1 << 6
	BitLED       ControlByte = 1 << 5
	BitTDI       ControlByte = 1 << 4
	BitNCS       ControlByte = 1 << 3
	BitNCE       ControlByte = 1 << 2
	BitTMS       ControlByte = 1 << 1
	BitTCK       ControlByte = 1 << 0
)

// FlushMarker makes the device push any buffered TDO samples to the IN
// endpoint.
const FlushMarker byte = 0x5F

// MakeControlByte returns a bit-bang byte with TCK low, the activity LED on
// and the given TMS, TDI and read-request levels. All other fields are zero.
func MakeControlByte(tms, tdi, read bool) ControlByte {
	b := BitLED
	if read {
		b |= BitRead
	}
	if tms {
		b |= BitTMS
	}
	if tdi {
		b |= BitTDI
	}
	return b
}

func (b ControlByte) TMS() bool       { return b&BitTMS != 0 }
func (b ControlByte) TDI() bool       { return b&BitTDI != 0 }
func (b ControlByte) TCK() bool       { return b&BitTCK != 0 }
func (b ControlByte) Read() bool      { return b&BitRead != 0 }
func (b ControlByte) LED() bool       { return b&BitLED != 0 }
func (b ControlByte) ByteShift() bool { return b&BitByteShift != 0 }

func (b ControlByte) String() string {
	return fmt.Sprintf("0x%02X{tck=%d tms=%d tdi=%d read=%d}", byte(b), bit(b.TCK()), bit(b.TMS()), bit(b.TDI()), bit(b.Read()))
}

func bit(v bool) int {
	if v {
		return 1
	}
	return 0
}

// EdgePair is one JTAG clock tick: the pre-edge byte (TCK low) followed by the
// post-edge byte (TCK high), with TMS and TDI held across both.
type EdgePair [2]ControlByte

// ClockEdgePair returns b followed by b with TCK raised.
func ClockEdgePair(b ControlByte) EdgePair {
	pre := b &^ BitTCK
	return EdgePair{pre, pre | BitTCK}
}

// ReadEdgePair is a tick that samples TDO once. The read strobe rides on the
// rising-edge byte only, so n ticks queue exactly n response bytes.
func ReadEdgePair(tms, tdi bool) EdgePair {
	p := ClockEdgePair(MakeControlByte(tms, tdi, false))
	p[1] |= BitRead
	return p
}

// AppendTo appends the pair's two bytes to buf.
func (p EdgePair) AppendTo(buf []byte) []byte {
	return append(buf, byte(p[0]), byte(p[1]))
}
