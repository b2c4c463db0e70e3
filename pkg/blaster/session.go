package blaster

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/usbdev"
)

// USB identity of a configured blaster and its vendor requests.
const (
	VendorID  = 0x09FB
	ProductID = 0x6010

	// RequestRevision returns a 5-byte NUL-padded ASCII firmware revision.
	RequestRevision uint8 = 0x94
	revisionLen           = 5

	// DefaultFlushSize is the zero buffer written by Flush when the conn does
	// not report its packet size.
	DefaultFlushSize = 64
)

// ErrClosed is returned by operations on a closed Session.
var ErrClosed = errors.New("blaster: session closed")

// ShortReadError reports a TDO read whose byte count differs from the number
// of bits requested.
type ShortReadError struct {
	Want int
	Got  int
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("blaster: short read: want %d TDO bytes, got %d", e.Want, e.Got)
}

// Conn is the device link a Session drives: Write and Read are the bulk OUT
// and bulk IN endpoints, ControlIn the vendor control pipe. *usbdev.Device and
// *SimConn implement it.
type Conn interface {
	io.Reader
	io.Writer
	ControlIn(request uint8, val uint16, p []byte) (int, error)
}

type packetSizer interface {
	MaxPacketSize() int
}

// Option configures a Session.
type Option func(*Session)

// WithFlushSize overrides the size of the zero buffer written by Flush.
func WithFlushSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.flushSize = n
		}
	}
}

// Session turns JTAG pin activity into blaster bit-bang traffic.
//
// The wire format is differential: TCK toggles on every tick while TMS and
// TDI keep whatever level the previous call left them at. The session owns
// that latch, seeded low. Each public method writes its bytes as one bulk
// transfer, and the mutex keeps two calls from interleaving on the wire.
// Callers should still treat a Session as single-owner.
type Session struct {
	mu   sync.Mutex
	conn Conn

	lastTMS bool
	lastTDI bool

	flushSize int
	closed    bool
}

// NewSession wraps an already opened conn. No I/O is performed.
func NewSession(conn Conn, opts ...Option) *Session {
	s := &Session{
		conn:      conn,
		flushSize: DefaultFlushSize,
	}
	if ps, ok := conn.(packetSizer); ok && ps.MaxPacketSize() > 0 {
		s.flushSize = ps.MaxPacketSize()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open acquires the first attached blaster, reads its revision and returns a
// ready session. Close releases the device.
func Open(opts ...usbdev.Option) (*Session, string, error) {
	return OpenID(VendorID, ProductID, opts...)
}

// OpenID is Open for a blaster enumerating under a different VID:PID.
func OpenID(vid, pid uint16, opts ...usbdev.Option) (*Session, string, error) {
	dev, err := usbdev.Open(vid, pid, opts...)
	if err != nil {
		return nil, "", err
	}
	s := NewSession(dev)
	rev, err := s.Revision()
	if err != nil {
		s.Close()
		return nil, "", err
	}
	glog.V(1).Infof("blaster: revision %q", rev)
	return s, rev, nil
}

// LastTMS reports the TMS level currently latched on the wire.
func (s *Session) LastTMS() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTMS
}

// LastTDI reports the TDI level currently latched on the wire.
func (s *Session) LastTDI() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTDI
}

// Revision queries the device's firmware revision string.
func (s *Session) Revision() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	buf := make([]byte, revisionLen)
	n, err := s.conn.ControlIn(RequestRevision, 0, buf)
	if err != nil {
		return "", fmt.Errorf("blaster: read revision: %w", err)
	}
	return string(bytes.TrimRight(buf[:n], "\x00")), nil
}

// TickTMS clocks one tick per TMS bit, holding TDI at its latched level.
func (s *Session) TickTMS(bits []bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if len(bits) == 0 {
		return nil
	}

	buf := make([]byte, 0, 2*len(bits))
	for _, tms := range bits {
		buf = ClockEdgePair(MakeControlByte(tms, s.lastTDI, false)).AppendTo(buf)
	}
	if err := s.write("tick_tms", buf); err != nil {
		return err
	}
	s.lastTMS = bits[len(bits)-1]
	return nil
}

// TickTDI clocks one tick per TDI bit, holding TMS at its latched level. TDO
// is not sampled.
func (s *Session) TickTDI(bits []bool) error {
	return s.tickTDI("tick_tdi", bits, false)
}

// RequestReadCapture clocks TDI bits like TickTDI but asks the device to
// sample TDO on every tick. The samples stay queued in the device until
// DrainCapture collects them; every RequestReadCapture must be paired with a
// later DrainCapture for the combined bit count.
func (s *Session) RequestReadCapture(bits []bool) error {
	return s.tickTDI("capture", bits, true)
}

func (s *Session) tickTDI(op string, bits []bool, capture bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if len(bits) == 0 {
		return nil
	}

	buf := make([]byte, 0, 2*len(bits))
	tdi := s.lastTDI
	for _, tdi = range bits {
		if capture {
			buf = ReadEdgePair(s.lastTMS, tdi).AppendTo(buf)
		} else {
			buf = ClockEdgePair(MakeControlByte(s.lastTMS, tdi, false)).AppendTo(buf)
		}
	}
	if err := s.write(op, buf); err != nil {
		return err
	}
	s.lastTDI = tdi
	return nil
}

// TickExit clocks a single tick with TMS high and the given TDI, optionally
// sampling TDO. It shifts the final bit of a scan while leaving Shift-IR or
// Shift-DR.
func (s *Session) TickExit(tdi, capture bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	var pair EdgePair
	if capture {
		pair = ReadEdgePair(true, tdi)
	} else {
		pair = ClockEdgePair(MakeControlByte(true, tdi, false))
	}
	if err := s.write("tick_exit", pair.AppendTo(nil)); err != nil {
		return err
	}
	s.lastTMS = true
	s.lastTDI = tdi
	return nil
}

// DrainCapture pushes the flush marker and reads back n TDO samples queued by
// earlier RequestReadCapture or TickExit calls, in the order they were
// clocked.
func (s *Session) DrainCapture(n int) ([]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if n < 0 {
		return nil, fmt.Errorf("blaster: negative read length %d", n)
	}
	if err := s.write("drain", []byte{FlushMarker}); err != nil {
		return nil, err
	}
	return s.readBits(n)
}

// TickTDO clocks n ticks with TMS and TDI held, sampling TDO on each, and
// returns the samples in shift order. n == 0 sends only the flush marker.
func (s *Session) TickTDO(n int) ([]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if n < 0 {
		return nil, fmt.Errorf("blaster: negative read length %d", n)
	}

	pair := ReadEdgePair(s.lastTMS, s.lastTDI)
	buf := make([]byte, 0, 2*n+1)
	for i := 0; i < n; i++ {
		buf = pair.AppendTo(buf)
	}
	buf = append(buf, FlushMarker)
	if err := s.write("tick_tdo", buf); err != nil {
		return nil, err
	}
	return s.readBits(n)
}

// Flush writes one full packet of zeros, which the device treats as a no-op
// that forces out any partially filled buffer. Safe to repeat.
func (s *Session) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.write("flush", make([]byte, s.flushSize))
}

// Close flushes the device and closes the conn if it is an io.Closer. The
// conn is closed even when the flush fails.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	err := s.write("flush", make([]byte, s.flushSize))
	s.closed = true
	if c, ok := s.conn.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (s *Session) write(op string, buf []byte) error {
	glog.V(1).Infof("blaster: %s: %d bytes out", op, len(buf))
	if _, err := s.conn.Write(buf); err != nil {
		return fmt.Errorf("blaster: %s: %w", op, err)
	}
	return nil
}

// readBits performs exactly one bulk read of n bytes and keeps bit 0 of each.
func (s *Session) readBits(n int) ([]bool, error) {
	if n == 0 {
		return []bool{}, nil
	}
	buf := make([]byte, n)
	got, err := s.conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("blaster: read %d TDO bytes: %w", n, err)
	}
	glog.V(1).Infof("blaster: %d TDO bytes in", got)
	if got != n {
		return nil, &ShortReadError{Want: n, Got: got}
	}
	bits := make([]bool, n)
	for i, b := range buf {
		bits[i] = b&1 != 0
	}
	return bits, nil
}
