package ihex

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `; leading comment lines are skipped
:0401000001020304F2
:0401040005060708DE
:02020000AABB97
:00000001FF
:0400100099999999C8
`

func TestParseSample(t *testing.T) {
	img, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(img.Runs) != 3 {
		t.Fatalf("got %d runs, want 3 (records after EOF must be ignored)", len(img.Runs))
	}
	if img.Runs[0].Addr != 0x100 || img.Runs[1].Addr != 0x104 || img.Runs[2].Addr != 0x200 {
		t.Fatalf("runs not sorted: %+v", img.Runs)
	}
	if img.Size() != 10 {
		t.Fatalf("Size() = %d, want 10", img.Size())
	}
	if b, ok := img.At(0x105); !ok || b != 0x06 {
		t.Fatalf("At(0x105) = 0x%02X, %v", b, ok)
	}
	if _, ok := img.At(0x108); ok {
		t.Fatal("At(0x108) reported a byte in a gap")
	}
}

func TestCoalesceAdjacentRuns(t *testing.T) {
	img := &Image{Runs: []Run{
		{Addr: 0x100, Data: []byte{1, 2, 3, 4}},
		{Addr: 0x104, Data: []byte{5, 6, 7, 8}},
	}}
	merged := img.Coalesce()
	if len(merged.Runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(merged.Runs))
	}
	r := merged.Runs[0]
	if r.Addr != 0x100 || !bytes.Equal(r.Data, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Fatalf("merged run = 0x%04X % X", r.Addr, r.Data)
	}
	if len(img.Runs[0].Data) != 4 {
		t.Fatal("Coalesce modified the source image")
	}
}

func TestCoalesceKeepsGaps(t *testing.T) {
	img := &Image{Runs: []Run{
		{Addr: 0x100, Data: []byte{1, 2, 3, 4}},
		{Addr: 0x105, Data: []byte{5, 6, 7, 8}},
	}}
	if merged := img.Coalesce(); len(merged.Runs) != 2 {
		t.Fatalf("runs with a one-byte gap merged: %+v", merged.Runs)
	}
}

func TestCoalesceChain(t *testing.T) {
	img, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	merged := img.Coalesce()
	if len(merged.Runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(merged.Runs))
	}
	if merged.Size() != img.Size() {
		t.Fatalf("Coalesce changed payload size %d -> %d", img.Size(), merged.Size())
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"truncated":         ":02",
		"count mismatch":    ":0201000001FC",
		"odd payload":       ":02010000010FC",
		"non-hex count":     ":ZZ010000010203F9",
		"non-hex payload":   ":020100000G02FA",
		"non-hex checksum":  ":0201000001020X",
		"extended linear":   ":020000040000FA",
		"empty data record": ":00010000FF",
		"past 64K":          ":02FFFF000102FD",
		"overlap":           ":0401000001020304F2\n:020102000506F0",
	}
	for name, src := range cases {
		_, err := Parse(strings.NewReader(src))
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("%s: err = %v, want ParseError", name, err)
			continue
		}
		if pe.Line < 1 {
			t.Errorf("%s: line = %d", name, pe.Line)
		}
	}
}

func TestParseErrorLineNumber(t *testing.T) {
	src := "\n:0401000001020304F2\n\n:0401040005\n"
	_, err := Parse(strings.NewReader(src))
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Line != 4 {
		t.Fatalf("err = %v, want ParseError on line 4", err)
	}
}

func TestChecksumNotValidated(t *testing.T) {
	// Correct checksum would be 0xF2.
	img, err := Parse(strings.NewReader(":0401000001020304AA\n:00000001FF\n"))
	if err != nil {
		t.Fatalf("record with wrong checksum rejected: %v", err)
	}
	if len(img.Runs) != 1 {
		t.Fatalf("got %d runs", len(img.Runs))
	}
}

func TestParseRecordFields(t *testing.T) {
	rec, err := ParseRecord(":0401040005060708DE", 7)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Count != 4 || rec.Address != 0x104 || rec.Type != RecordData || rec.Checksum != 0xDE || rec.Line != 7 {
		t.Fatalf("record = %+v", rec)
	}
	if !bytes.Equal(rec.Data, []byte{5, 6, 7, 8}) {
		t.Fatalf("data = % X", rec.Data)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw.hex")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	img, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(img.Runs) != 3 {
		t.Fatalf("got %d runs", len(img.Runs))
	}
	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.hex")); err == nil {
		t.Fatal("ParseFile of missing file succeeded")
	}
}
