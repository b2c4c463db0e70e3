package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var revisionCmd = &cobra.Command{
	Use:   "revision",
	Short: "Print the cable firmware revision",
	Args:  cobra.NoArgs,
	RunE:  runRevision,
}

func init() {
	rootCmd.AddCommand(revisionCmd)
}

func runRevision(cmd *cobra.Command, args []string) error {
	c, rev, err := openController()
	if err != nil {
		return err
	}
	defer c.Close()
	fmt.Printf("Revision: %s\n", rev)
	return nil
}
