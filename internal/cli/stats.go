package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/repoindexer/repoindexer/internal/stats"
)

var statsWindow time.Duration

func init() {
	statsCmd.Flags().DurationVar(&statsWindow, "window", stats.DefaultWindow, "trailing window for the trend aggregate")
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate update metrics across every indexed repository",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			exitCode = 3
			return err
		}
		defer a.Close()

		records, err := a.Orchestrator.Catalog.List()
		if err != nil {
			exitCode = 3
			return err
		}

		m := stats.Aggregate(records, time.Now(), statsWindow)
		fmt.Printf("all-time:  updates=%d avg_duration_ms=%.1f files=%d chunks=%d success_rate=%.2f error_rate=%.2f\n",
			m.TotalUpdates, m.AverageDurationMs, m.TotalFilesProcessed, m.TotalChunksModified, m.SuccessRate, m.ErrorRate)
		fmt.Printf("trend:     updates=%d files=%d chunks=%d avg_duration_ms=%.1f error_rate=%.2f\n",
			m.Trend.UpdateCount, m.Trend.FilesProcessed, m.Trend.ChunksModified, m.Trend.AverageDurationMs, m.Trend.ErrorRate)
		return nil
	},
}
