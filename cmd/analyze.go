package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"takeout2immich/internal"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [takeout-folder]",
	Short: "Analyze a Takeout export without uploading anything",
	Long: `Walk a Takeout export the same way the migration would and report what
discovery finds: matched and unmatched media files, per-extension counts,
and album titles. Makes no network calls.`,
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

		report, err := internal.AnalyzeTakeout(folder, conf)
		if err != nil {
			return fmt.Errorf("failed to analyze takeout: %w", err)
		}

		fmt.Printf("Takeout: %s\n", folder)
		fmt.Printf("Directories scanned:  %d\n", report.Directories)
		fmt.Printf("Media with sidecar:   %d\n", report.Matched)
		fmt.Printf("Media without sidecar: %d\n", report.Unmatched)
		fmt.Printf("Total media size:     %.2f MiB\n", float64(report.TotalSize)/(1024*1024))

		fmt.Println("\nBy extension:")
		exts := make([]string, 0, len(report.ByExtension))
		for ext := range report.ByExtension {
			exts = append(exts, ext)
		}
		sort.Strings(exts)
		for _, ext := range exts {
			fmt.Printf("  %-8s %d\n", ext, report.ByExtension[ext])
		}

		fmt.Printf("\nAlbums (%d):\n", len(report.Albums))
		for _, name := range report.Albums {
			fmt.Printf("  %s\n", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
