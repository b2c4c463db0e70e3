package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/fx2"
	"github.com/OpenTraceLab/OpenTraceBlaster/pkg/ihex"
	"github.com/spf13/cobra"
)

var firmwareCmd = &cobra.Command{
	Use:   "firmware",
	Short: "FX2 firmware operations",
	Long:  `Commands for inspecting Intel HEX firmware images and uploading them into a blaster's FX2.`,
}

var (
	chunkSize int
	noMerge   bool
	verify    bool
)

var firmwareLoadCmd = &cobra.Command{
	Use:   "load <firmware.hex>",
	Short: "Upload firmware into an unconfigured blaster",
	Long: `Parse an Intel HEX image and write it into FX2 RAM while the 8051 is held in
reset, then release the CPU. The whole file is parsed before the first transfer,
so a malformed image never touches the device. On any transfer failure the CPU
is left in reset.

Examples:
  blaster firmware load blaster_6810.hex
  blaster firmware load --verify --chunk-size 1024 blaster_6810.hex
  blaster firmware load --adapter sim -v blaster_6810.hex`,
	Args: cobra.ExactArgs(1),
	RunE: runFirmwareLoad,
}

var firmwareDumpCmd = &cobra.Command{
	Use:   "dump <firmware.hex>",
	Short: "Show the memory runs of an Intel HEX image",
	Args:  cobra.ExactArgs(1),
	RunE:  runFirmwareDump,
}

func init() {
	rootCmd.AddCommand(firmwareCmd)
	firmwareCmd.AddCommand(firmwareLoadCmd)
	firmwareCmd.AddCommand(firmwareDumpCmd)

	firmwareLoadCmd.Flags().IntVar(&chunkSize, "chunk-size", fx2.MaxChunk,
		"bytes per control transfer (1-4096)")
	firmwareLoadCmd.Flags().BoolVar(&noMerge, "no-merge", false,
		"write every record run separately instead of merging touching runs")
	firmwareLoadCmd.Flags().BoolVar(&verify, "verify", false,
		"read the image back before releasing the CPU")
	firmwareDumpCmd.Flags().BoolVar(&noMerge, "no-merge", false,
		"show record runs without merging")
}

func runFirmwareLoad(cmd *cobra.Command, args []string) error {
	if chunkSize < 1 || chunkSize > fx2.MaxChunk {
		return fmt.Errorf("--chunk-size %d outside 1..%d", chunkSize, fx2.MaxChunk)
	}

	// Parse first so a bad file fails before the device is opened.
	img, err := ihex.ParseFile(args[0])
	if err != nil {
		return err
	}

	conn, release, err := openFX2()
	if err != nil {
		return err
	}
	defer release()

	opts := []fx2.Option{
		fx2.WithChunkSize(chunkSize),
		fx2.WithCoalesce(!noMerge),
		fx2.WithVerify(verify),
	}
	if verbose {
		opts = append(opts, fx2.WithProgressCallback(func(p fx2.Progress) {
			fmt.Printf("  %-9s 0x%04X %6d/%d bytes (%.0f%%)\n", p.Phase, p.Addr, p.BytesDone, p.BytesTotal, p.Percentage())
		}))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := fx2.New(conn, opts...).Upload(ctx, img); err != nil {
		return fmt.Errorf("firmware load failed (CPU left in reset): %w", err)
	}
	fmt.Printf("Loaded %d bytes from %s\n", img.Size(), args[0])
	return nil
}

func runFirmwareDump(cmd *cobra.Command, args []string) error {
	img, err := ihex.ParseFile(args[0])
	if err != nil {
		return err
	}
	if !noMerge {
		img = img.Coalesce()
	}
	fmt.Printf("%s: %d bytes in %d runs\n", args[0], img.Size(), len(img.Runs))
	for _, r := range img.Runs {
		fmt.Printf("  0x%04X-0x%04X %5d bytes\n", r.Addr, r.End()-1, len(r.Data))
	}
	return nil
}
