package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/campaignforge/hookrelay/internal/api"
)

var (
	historySubscriptionID string
	historyLimit          int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent delivery records",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("/v1/history?limit=%d", historyLimit)
		if historySubscriptionID != "" {
			path += "&subscription_id=" + historySubscriptionID
		}

		var resp api.HistoryResponse
		if err := doRequest("GET", path, nil, &resp); err != nil {
			return fmt.Errorf("failed to fetch history: %w", err)
		}

		if outputJSON {
			printOutput(resp)
			return nil
		}
		if len(resp.Records) == 0 {
			fmt.Println("No delivery records")
			return nil
		}
		for _, r := range resp.Records {
			line := fmt.Sprintf("%s  %-7s  %s  %s  http=%d  %dms  retries=%d",
				r.Timestamp.Format("2006-01-02 15:04:05"), r.Status, r.SubscriptionID,
				r.EventType, r.HTTPStatus, r.ResponseTimeMS, r.RetriesSoFar)
			if r.Error != "" {
				line += "  error=" + r.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historySubscriptionID, "subscription", "", "filter by subscription id")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 100, "maximum records to return")
}
