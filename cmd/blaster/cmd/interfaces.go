package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/jtag"
	"github.com/spf13/cobra"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List attached USB-Blaster II cables",
	Long: `Scan the host for USB-Blaster II cables, with or without firmware, and print a
summary. A cable listed as fx2-unconfigured needs "blaster firmware load" first.`,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	infos, err := jtag.DiscoverInterfaces(ctx)
	if err != nil {
		return fmt.Errorf("discover interfaces: %w", err)
	}

	fmt.Println("Detected interfaces:")
	for _, iface := range infos {
		fmt.Printf("  - %s [%s]\n", iface.Label(), iface.Kind)
	}
	return nil
}
