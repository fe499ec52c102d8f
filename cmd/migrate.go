package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"takeout2immich/internal"
)

var (
	serverFlag    string
	apiKeyFlag    string
	workersFlag   int
	batchSizeFlag int
	timeoutFlag   int
	dryRunFlag    bool
	useExifTool   bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [takeout-folder]",
	Short: "Upload a Takeout export to Immich",
	Long: `Walk a Google Photos Takeout export, upload every media file with a
sidecar to the Immich server, reconcile timestamps and geodata against
pre-existing duplicates, and assign assets to their albums.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder := args[0]

		info, err := os.Stat(folder)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("takeout folder does not exist or is not a directory: %s", folder)
		}

		conf, err := internal.LoadConfig()
		if err != nil {
			return err
		}
		conf.TakeoutPath = folder

		if serverFlag != "" {
			conf.ServerURL = serverFlag
		}
		if apiKeyFlag != "" {
			conf.APIKey = apiKeyFlag
		}
		if workersFlag > 0 {
			conf.Workers = workersFlag
		}
		if batchSizeFlag > 0 {
			conf.BatchSize = batchSizeFlag
		}
		if timeoutFlag > 0 {
			conf.UploadTimeout = time.Duration(timeoutFlag) * time.Second
		}
		if dryRunFlag {
			conf.DryRun = true
		}
		if useExifTool {
			conf.UseExifTool = true
		}

		if conf.APIKey == "" && !conf.DryRun {
			return fmt.Errorf("missing API key: set --api-key or api_key in the config file")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		_, err = internal.RunMigration(ctx, conf)
		return err
	},
}

func init() {
	migrateCmd.Flags().StringVar(&serverFlag, "server", "", "Immich server URL")
	migrateCmd.Flags().StringVar(&apiKeyFlag, "api-key", "", "Immich API key")
	migrateCmd.Flags().IntVar(&workersFlag, "workers", 0, "Number of parallel upload workers")
	migrateCmd.Flags().IntVar(&batchSizeFlag, "batch-size", 0, "Batch size for processing")
	migrateCmd.Flags().IntVar(&timeoutFlag, "timeout", 0, "Upload timeout in seconds")
	migrateCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Simulate the migration without network calls")
	migrateCmd.Flags().BoolVar(&useExifTool, "exiftool", false, "Use the exiftool binary for capture-date fallback")

	rootCmd.AddCommand(migrateCmd)
}
