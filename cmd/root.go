package cmd

import (
	"github.com/spf13/cobra"
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "takeout2immich",
	Short:   "Migrate Google Photos Takeout exports to an Immich server",
	Version: Version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// No args for root command, only subcommands
}
