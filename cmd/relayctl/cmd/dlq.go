package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/campaignforge/hookrelay/internal/api"
)

var dlqLimit int

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and replay dead-lettered payloads",
}

var listDLQCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered payloads, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp api.DeadLettersResponse
		if err := doRequest("GET", fmt.Sprintf("/v1/dlq?limit=%d", dlqLimit), nil, &resp); err != nil {
			return fmt.Errorf("failed to list dead letters: %w", err)
		}

		if outputJSON {
			printOutput(resp)
			return nil
		}
		if len(resp.Payloads) == 0 {
			fmt.Println("Dead-letter queue is empty")
			return nil
		}
		for _, p := range resp.Payloads {
			fmt.Printf("%s  %s  %s\n", p.Timestamp.Format("2006-01-02 15:04:05"), p.ID, p.Event)
		}
		return nil
	},
}

var retryDLQCmd = &cobra.Command{
	Use:   "retry [payload-id]",
	Short: "Replay a dead-lettered payload to current subscribers",
	Long: `Remove a payload from the dead-letter queue and re-deliver it to every
active subscription currently declaring its event type. The payload leaves
the queue whether or not the replay succeeds; a terminal failure re-enters
it through the normal dead-letter path.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp api.RetryDeadLetterResponse
		if err := doRequest("POST", "/v1/dlq/"+args[0]+"/retry", nil, &resp); err != nil {
			return fmt.Errorf("failed to retry dead letter: %w", err)
		}

		if outputJSON {
			printOutput(resp)
			return nil
		}
		fmt.Printf("Replay started for payload %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(listDLQCmd)
	dlqCmd.AddCommand(retryDLQCmd)

	listDLQCmd.Flags().IntVar(&dlqLimit, "limit", 50, "maximum payloads to return")
}
