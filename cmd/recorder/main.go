package main

import (
	"log"
	"os"

	"github.com/SofieTorch/cbba-mobility/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(config.Load()).Execute(); err != nil {
		log.Printf("recorder: %v", err)
		os.Exit(1)
	}
}

func newRootCmd(cfg config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:   "recorder",
		Short: "Record transit trips locally and sync them to the server",
		SilenceUsage: true,
	}

	root.AddCommand(newRecordCmd(cfg))
	root.AddCommand(newSyncCmd(cfg))
	root.AddCommand(newStatusCmd(cfg))
	return root
}
