package ihex

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Record types understood by the parser.
const (
	RecordData      = 0x00
	RecordEndOfFile = 0x01
)

// minRecordLen is ':' + count(2) + address(4) + type(2) + checksum(2).
const minRecordLen = 11

// ParseError reports a malformed record. Line is 1-based.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ihex: line %d: %s", e.Line, e.Reason)
}

// Record is one decoded line of an Intel HEX file.
//
// Checksum is decoded but never compared with the record contents, so a
// record with a corrupted checksum is accepted.
type Record struct {
	Line     int
	Count    int
	Address  uint16
	Type     int
	Data     []byte
	Checksum byte
}

// ParseRecord decodes a single line. The caller has already stripped
// whitespace and checked the leading ':'.
func ParseRecord(line string, lineNo int) (Record, error) {
	fail := func(format string, args ...any) (Record, error) {
		return Record{}, &ParseError{Line: lineNo, Reason: fmt.Sprintf(format, args...)}
	}

	if len(line) < minRecordLen {
		return fail("record too short (%d characters)", len(line))
	}
	count, err := strconv.ParseUint(line[1:3], 16, 8)
	if err != nil {
		return fail("bad byte count %q", line[1:3])
	}
	addr, err := strconv.ParseUint(line[3:7], 16, 16)
	if err != nil {
		return fail("bad address %q", line[3:7])
	}
	rtype, err := strconv.ParseUint(line[7:9], 16, 8)
	if err != nil {
		return fail("bad record type %q", line[7:9])
	}
	payload := line[9 : len(line)-2]
	if len(payload)%2 != 0 {
		return fail("odd number of payload digits (%d)", len(payload))
	}
	data, err := hex.DecodeString(payload)
	if err != nil {
		return fail("bad payload: %v", err)
	}
	sum, err := strconv.ParseUint(line[len(line)-2:], 16, 8)
	if err != nil {
		return fail("bad checksum %q", line[len(line)-2:])
	}
	if len(data) != int(count) {
		return fail("byte count %d but %d payload bytes", count, len(data))
	}

	return Record{
		Line:     lineNo,
		Count:    int(count),
		Address:  uint16(addr),
		Type:     int(rtype),
		Data:     data,
		Checksum: byte(sum),
	}, nil
}

// Parse reads an Intel HEX image. Lines not starting with ':' are ignored;
// an end-of-file record stops parsing. Only data and end-of-file records are
// accepted. Any malformed record fails the whole parse.
func Parse(r io.Reader) (*Image, error) {
	var runs []Run
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, ":") {
			continue
		}
		rec, err := ParseRecord(line, lineNo)
		if err != nil {
			return nil, err
		}
		if rec.Type == RecordEndOfFile {
			break
		}
		if rec.Type != RecordData {
			return nil, &ParseError{Line: lineNo, Reason: fmt.Sprintf("unsupported record type 0x%02X", rec.Type)}
		}
		if len(rec.Data) == 0 {
			return nil, &ParseError{Line: lineNo, Reason: "empty data record"}
		}
		if int(rec.Address)+len(rec.Data) > AddressSpace {
			return nil, &ParseError{Line: lineNo, Reason: fmt.Sprintf("record at 0x%04X runs past 0xFFFF", rec.Address)}
		}
		runs = append(runs, Run{Addr: rec.Address, Data: rec.Data, line: lineNo})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ihex: read: %w", err)
	}
	return newImage(runs)
}

// ParseFile opens and parses path.
func ParseFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ihex: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// AddressSpace is the size of the 16-bit load address space.
const AddressSpace = 1 << 16

// Run is a contiguous block of bytes starting at Addr.
type Run struct {
	Addr uint16
	Data []byte

	line int
}

// End returns the address one past the run's last byte.
func (r Run) End() int {
	return int(r.Addr) + len(r.Data)
}

// Image is a sparse memory image: runs sorted by address, pairwise
// non-overlapping.
type Image struct {
	Runs []Run
}

func newImage(runs []Run) (*Image, error) {
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Addr < runs[j].Addr })
	for i := 1; i < len(runs); i++ {
		prev, cur := runs[i-1], runs[i]
		if int(cur.Addr) < prev.End() {
			return nil, &ParseError{
				Line:   cur.line,
				Reason: fmt.Sprintf("record at 0x%04X overlaps 0x%04X-0x%04X from line %d", cur.Addr, prev.Addr, prev.End()-1, prev.line),
			}
		}
	}
	return &Image{Runs: runs}, nil
}

// Coalesce returns a new image in which runs that touch (zero gap) are merged
// into one, payloads concatenated in address order. Runs separated by any gap
// stay apart.
func (img *Image) Coalesce() *Image {
	out := &Image{}
	for _, r := range img.Runs {
		if n := len(out.Runs); n > 0 && out.Runs[n-1].End() == int(r.Addr) {
			last := &out.Runs[n-1]
			last.Data = append(last.Data, r.Data...)
			continue
		}
		out.Runs = append(out.Runs, Run{Addr: r.Addr, Data: append([]byte(nil), r.Data...), line: r.line})
	}
	return out
}

// Size returns the total number of payload bytes.
func (img *Image) Size() int {
	n := 0
	for _, r := range img.Runs {
		n += len(r.Data)
	}
	return n
}

// At returns the byte stored at addr and whether the image covers it.
func (img *Image) At(addr uint16) (byte, bool) {
	i := sort.Search(len(img.Runs), func(i int) bool { return img.Runs[i].End() > int(addr) })
	if i < len(img.Runs) && img.Runs[i].Addr <= addr {
		return img.Runs[i].Data[int(addr)-int(img.Runs[i].Addr)], true
	}
	return 0, false
}
