package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/fx2"
)

const testFirmware = `:0401000001020304F2
:0401040005060708DE
:03020000AABBCCCC
:00000001FF
`

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Capture stdout
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		buf.ReadFrom(r)
		close(done)
	}()

	// Reset flags to prevent accumulation between tests
	verbose = false
	adapterType = "usb"
	vendorID, productID = 0, 0
	chunkSize = fx2.MaxChunk
	noMerge = false
	verify = false
	expr = ""

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	w.Close()
	os.Stdout = old
	<-done
	return buf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCommandsE2E(t *testing.T) {
	hex := writeFile(t, "fw.hex", testFirmware)
	bad := writeFile(t, "bad.hex", ":0401000001020304F2\n:02\n")
	probe := writeFile(t, "probe.jtag", "# select IDCODE\nreset\nir 10 0x006\ndr 32\n")

	tests := []struct {
		name        string
		args        []string
		wantErr     bool
		wantContain []string
	}{
		{
			name:        "dump merges touching runs",
			args:        []string{"firmware", "dump", hex},
			wantContain: []string{"11 bytes in 2 runs", "0x0100-0x0107", "0x0200-0x0202"},
		},
		{
			name:        "dump without merge",
			args:        []string{"firmware", "dump", "--no-merge", hex},
			wantContain: []string{"11 bytes in 3 runs", "0x0104-0x0107"},
		},
		{
			name:        "load into simulator",
			args:        []string{"firmware", "load", "--adapter", "sim", "--verify", "-v", hex},
			wantContain: []string{"hold", "verifying", "complete", "Loaded 11 bytes"},
		},
		{
			name:    "load malformed image",
			args:    []string{"firmware", "load", "--adapter", "sim", bad},
			wantErr: true,
		},
		{
			name:    "load with bad chunk size",
			args:    []string{"firmware", "load", "--adapter", "sim", "--chunk-size", "5000", hex},
			wantErr: true,
		},
		{
			name:        "revision",
			args:        []string{"revision", "--adapter", "sim"},
			wantContain: []string{"Revision: SIM01"},
		},
		{
			name:        "run expression",
			args:        []string{"run", "--adapter", "sim", "-v", "-e", "reset; ir 10 0x3FF; dr 4 0b1011"},
			wantContain: []string{"revision SIM01", "ir[10] 0x3FF -> 0x001", "dr[4] 0xB -> 0x6", "Final state: RunTestIdle"},
		},
		{
			name:        "run file",
			args:        []string{"run", "--adapter", "sim", probe},
			wantContain: []string{"dr[32] 0x00000000 -> 0x031050DD"},
		},
		{
			name:    "run needs a script",
			args:    []string{"run", "--adapter", "sim"},
			wantErr: true,
		},
		{
			name:    "run rejects bad statement",
			args:    []string{"run", "--adapter", "sim", "-e", "goto Nowhere"},
			wantErr: true,
		},
		{
			name:    "unknown adapter",
			args:    []string{"revision", "--adapter", "ftdi"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := execute(t, tt.args...)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error but got none\nOutput: %s", output)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v\nOutput: %s", err, output)
				return
			}
			for _, want := range tt.wantContain {
				if !strings.Contains(output, want) {
					t.Errorf("Output missing expected string: %q\nGot:\n%s", want, output)
				}
			}
		})
	}
}
