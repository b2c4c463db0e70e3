package cmd

import (
	"fmt"
	"os"

	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/script"
	"github.com/spf13/cobra"
)

var expr string

var runCmd = &cobra.Command{
	Use:   "run [script-file]",
	Short: "Run a JTAG script",
	Long: `Run a JTAG script against the cable. A script is a list of statements separated
by newlines or semicolons; # starts a comment.

  reset             clock five TMS ones into Test-Logic-Reset
  idle [n]          go to Run-Test/Idle and stay for n clocks
  tms 0110          clock TMS bits in the order written
  goto Shift-DR     take the shortest path to a TAP state
  ir <len> [value]  shift a value through IR and print what was captured
  dr <len> [value]  same for the selected data register

Every statement is checked before the first clock is sent.

Examples:
  blaster run probe.jtag
  blaster run -e "reset; ir 10 0x006; dr 32"
  blaster run --adapter sim -e "reset; dr 32"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScript,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&expr, "expr", "e", "", "script text to run instead of a file")
}

func runScript(cmd *cobra.Command, args []string) error {
	if (expr == "") == (len(args) == 0) {
		return fmt.Errorf("need exactly one of a script file or -e")
	}

	parser, err := script.NewParser()
	if err != nil {
		return err
	}
	var s *script.Script
	if expr != "" {
		s, err = parser.ParseString("-e", expr)
	} else {
		s, err = parser.ParseFile(args[0])
	}
	if err != nil {
		return err
	}

	c, rev, err := openController()
	if err != nil {
		return err
	}
	defer c.Close()
	if verbose {
		fmt.Printf("Adapter %s, revision %s, %d statements\n", adapterType, rev, len(s.Statements))
	}

	if _, err := script.Run(c, s, os.Stdout); err != nil {
		return err
	}
	if verbose {
		fmt.Printf("Final state: %s\n", c.State())
	}
	return nil
}
