package cmd

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Global flags
	verbose     bool
	traceLevel  int
	adapterType string
	vendorID    uint16
	productID   uint16
)

var rootCmd = &cobra.Command{
	Use:   "blaster",
	Short: "USB-Blaster II firmware loader and JTAG driver",
	Long: `blaster brings up an Intel/Altera USB-Blaster II and drives its JTAG port.

A freshly plugged blaster enumerates as a bare Cypress FX2 (09FB:6810) and needs
its firmware uploaded before it reappears as a JTAG cable (09FB:6010).

Examples:
  blaster interfaces                          # List attached blasters
  blaster firmware load blaster_6810.hex      # Upload FX2 firmware
  blaster revision                            # Print the cable firmware revision
  blaster run -e "reset; dr 32"               # Shift out the data register selected at reset
  blaster run -e "reset; ir 10 0x006; dr 32"  # Run a JTAG script
  blaster run --adapter sim probe.jtag        # Run against the simulator`,
	Version: "0.1.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if traceLevel > 0 {
			flag.Set("logtostderr", "true")
			flag.Set("v", strconv.Itoa(traceLevel))
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().IntVar(&traceLevel, "trace", 0, "USB trace level (1 transfers, 2 hex dumps)")
	rootCmd.PersistentFlags().StringVarP(&adapterType, "adapter", "a", "usb", "adapter type (usb, sim)")
	rootCmd.PersistentFlags().Uint16Var(&vendorID, "vid", 0, "override the USB vendor ID")
	rootCmd.PersistentFlags().Uint16Var(&productID, "pid", 0, "override the USB product ID")
	addGlogFlags(rootCmd.PersistentFlags())
}

// addGlogFlags exposes glog's flags except -v, which is --verbose here and
// --trace for glog.
func addGlogFlags(fs *pflag.FlagSet) {
	flag.CommandLine.VisitAll(func(f *flag.Flag) {
		if f.Name == "v" {
			return
		}
		fs.AddGoFlag(f)
	})
}
