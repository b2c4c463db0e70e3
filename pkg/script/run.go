package script

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/tap"
)

// Result records one register scan.
type Result struct {
	Line     int
	Register string // "ir" or "dr"
	Length   int
	In       uint64
	Out      uint64
}

func (r Result) String() string {
	digits := (r.Length + 3) / 4
	return fmt.Sprintf("%s[%d] 0x%0*X -> 0x%0*X", r.Register, r.Length, digits, r.In, digits, r.Out)
}

// op is a validated statement ready to run.
type op struct {
	line  int
	kind  string
	count int
	bits  []bool
	state tap.State
	value uint64
}

// Run validates every statement and then executes them in order against a.
// Nothing is clocked if any statement is invalid. Scan results are written to
// out when it is not nil.
func Run(a jtag.Adapter, s *Script, out io.Writer) ([]Result, error) {
	ops, err := compile(s)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, o := range ops {
		glog.V(1).Infof("script: line %d: %s (state %s)", o.line, o.kind, a.State())
		res, err := exec(a, o)
		if err != nil {
			return results, fmt.Errorf("script: line %d: %s: %w", o.line, o.kind, err)
		}
		if res != nil {
			results = append(results, *res)
			if out != nil {
				fmt.Fprintln(out, res)
			}
		}
	}
	return results, nil
}

func exec(a jtag.Adapter, o op) (*Result, error) {
	switch o.kind {
	case "reset":
		return nil, a.Reset()
	case "idle":
		return nil, a.Idle(o.count)
	case "tms":
		return nil, a.WriteTMS(o.bits)
	case "goto":
		return nil, a.GoTo(o.state)
	case "ir", "dr":
		scan := jtag.ScanDR
		if o.kind == "ir" {
			scan = jtag.ScanIR
		}
		got, err := scan(a, o.value, o.count)
		if err != nil {
			return nil, err
		}
		return &Result{Line: o.line, Register: o.kind, Length: o.count, In: o.value, Out: got}, nil
	}
	return nil, fmt.Errorf("unknown statement %q", o.kind)
}

func compile(s *Script) ([]op, error) {
	if s == nil {
		return nil, fmt.Errorf("script: nil script")
	}
	ops := make([]op, 0, len(s.Statements))
	for _, st := range s.Statements {
		o, err := compileStatement(st)
		if err != nil {
			return nil, fmt.Errorf("script: line %d: %w", st.Pos.Line, err)
		}
		ops = append(ops, o)
	}
	return ops, nil
}

func compileStatement(st *Statement) (op, error) {
	o := op{line: st.Pos.Line}
	switch {
	case st.Reset:
		o.kind = "reset"
	case st.Idle != nil:
		o.kind = "idle"
		if st.Idle.Count != nil {
			n, err := parseNumber(*st.Idle.Count, 16)
			if err != nil {
				return o, err
			}
			o.count = int(n)
		}
	case st.TMS != nil:
		o.kind = "tms"
		bits, err := parseBitString(st.TMS.Bits)
		if err != nil {
			return o, err
		}
		o.bits = bits
	case st.GoTo != nil:
		o.kind = "goto"
		state, err := tap.ParseState(st.GoTo.State)
		if err != nil {
			return o, err
		}
		o.state = state
	case st.Scan != nil:
		o.kind = strings.ToLower(st.Scan.Reg)
		n, err := parseNumber(st.Scan.Length, 8)
		if err != nil {
			return o, err
		}
		if n < 1 || n > 64 {
			return o, fmt.Errorf("%s length %d outside 1..64", o.kind, n)
		}
		o.count = int(n)
		if st.Scan.Value != nil {
			v, err := parseNumber(*st.Scan.Value, 64)
			if err != nil {
				return o, err
			}
			if n < 64 && v>>n != 0 {
				return o, fmt.Errorf("value %s does not fit in %d bits", *st.Scan.Value, n)
			}
			o.value = v
		}
	default:
		return o, fmt.Errorf("empty statement")
	}
	return o, nil
}

func parseNumber(s string, bitSize int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bitSize)
	if err != nil {
		return 0, fmt.Errorf("bad number %q: %w", s, err)
	}
	return v, nil
}

// parseBitString reads a TMS pattern written in clock order.
func parseBitString(s string) ([]bool, error) {
	bits := make([]bool, 0, len(s))
	for _, r := range s {
		switch r {
		case '0':
			bits = append(bits, false)
		case '1':
			bits = append(bits, true)
		default:
			return nil, fmt.Errorf("tms pattern %q: only 0 and 1 allowed", s)
		}
	}
	return bits, nil
}
