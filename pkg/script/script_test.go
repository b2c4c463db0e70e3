package script

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/blaster"
	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/tap"
)

func mustParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser()
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}
	return p
}

func TestParseStatements(t *testing.T) {
	src := `
	# bring the chain up
	RESET
	idle 4; tms 0110
	goto Shift-DR
	ir 10 0x006
	dr 32
	`
	s, err := mustParser(t).ParseString("test", src)
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if len(s.Statements) != 6 {
		t.Fatalf("got %d statements, want 6", len(s.Statements))
	}
	st := s.Statements
	if !st[0].Reset || st[0].Pos.Line != 3 {
		t.Errorf("statement 0 = %+v", st[0])
	}
	if st[1].Idle == nil || *st[1].Idle.Count != "4" {
		t.Errorf("statement 1 = %+v", st[1])
	}
	if st[2].TMS == nil || st[2].TMS.Bits != "0110" || st[2].Pos.Line != 4 {
		t.Errorf("statement 2 = %+v", st[2])
	}
	if st[3].GoTo == nil || st[3].GoTo.State != "Shift-DR" {
		t.Errorf("statement 3 = %+v", st[3])
	}
	if st[4].Scan == nil || st[4].Scan.Reg != "ir" || *st[4].Scan.Value != "0x006" {
		t.Errorf("statement 4 = %+v", st[4])
	}
	if st[5].Scan == nil || st[5].Scan.Value != nil {
		t.Errorf("statement 5 = %+v", st[5])
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{"ir", "goto", "tms", "frobnicate", "dr 0x", "idcode"} {
		if _, err := mustParser(t).ParseString("test", src); err == nil {
			t.Errorf("%q parsed without error", src)
		}
	}
}

func TestRunAgainstSimulator(t *testing.T) {
	sim := blaster.NewSimConn()
	c := jtag.NewController(blaster.NewSession(sim))
	s, err := mustParser(t).ParseString("test", "reset\nir 10 0x006\ndr 32\nir 10 0x3FF\ndr 4 0b1011\ngoto shift_ir")
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	results, err := Run(c, s, &out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	if results[1].Out != uint64(blaster.SimDefaultIDCode) {
		t.Errorf("IDCODE = 0x%08X", results[1].Out)
	}
	if results[3].Out != 0b0110 {
		t.Errorf("BYPASS = %04b, want 0110", results[3].Out)
	}
	if c.State() != tap.StateShiftIR || sim.State() != tap.StateShiftIR {
		t.Errorf("state = %s / %s, want Shift-IR", c.State(), sim.State())
	}
	if !strings.Contains(out.String(), "dr[32] 0x00000000 -> 0x031050DD") {
		t.Errorf("output missing IDCODE line:\n%s", out.String())
	}
}

func TestInvalidScriptClocksNothing(t *testing.T) {
	tests := []string{
		"reset\ntms 012",
		"reset\ngoto Nowhere",
		"reset\nir 0",
		"reset\nir 65",
		"reset\ndr 4 0x10",
		"reset\nidle 70000",
	}
	for _, src := range tests {
		sim := blaster.NewSimConn()
		c := jtag.NewController(blaster.NewSession(sim))
		s, err := mustParser(t).ParseString("test", src)
		if err != nil {
			t.Fatalf("%q: parse: %v", src, err)
		}
		if _, err := Run(c, s, nil); err == nil || !strings.Contains(err.Error(), "line 2") {
			t.Errorf("%q: err = %v, want line 2 error", src, err)
		}
		if n := len(sim.Writes()); n != 0 {
			t.Errorf("%q: %d writes before validation failed", src, n)
		}
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bypass.jtag")
	if err := os.WriteFile(path, []byte("reset; idle\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := mustParser(t).ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Statements) != 2 || s.Statements[1].Idle == nil || s.Statements[1].Idle.Count != nil {
		t.Fatalf("statements = %+v", s.Statements)
	}
	if _, err := mustParser(t).ParseFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("missing file parsed")
	}
}
