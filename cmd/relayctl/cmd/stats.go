package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/campaignforge/hookrelay/internal/webhook"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show delivery statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		var stats webhook.Statistics
		if err := doRequest("GET", "/v1/stats", nil, &stats); err != nil {
			return fmt.Errorf("failed to fetch stats: %w", err)
		}

		if outputJSON {
			printOutput(stats)
			return nil
		}
		fmt.Printf("Subscriptions: %d total, %d active\n", stats.TotalSubscriptions, stats.ActiveSubscriptions)
		fmt.Printf("Deliveries: %d recorded\n", stats.TotalEvents)
		fmt.Printf("  Success rate: %.1f%%\n", stats.SuccessRate)
		fmt.Printf("  Failure rate: %.1f%%\n", stats.FailureRate)
		fmt.Printf("  Avg response time: %.1fms\n", stats.AverageResponseTimeMS)
		fmt.Printf("Dead letters: %d\n", stats.DeadLetterCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
