package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/campaignforge/hookrelay/internal/api"
)

var eventWorkflowID string

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Dispatch events to webhook subscribers",
}

var dispatchEventCmd = &cobra.Command{
	Use:   "dispatch [event-type] [json-data]",
	Short: "Dispatch an event to all matching subscriptions",
	Long: `Dispatch an event to every active subscription declaring its type.

Example:
  relayctl event dispatch content.published '{"post_id": 42}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := api.DispatchEventRequest{
			WorkflowID: eventWorkflowID,
			Type:       args[0],
		}
		if len(args) == 2 {
			if err := json.Unmarshal([]byte(args[1]), &req.Data); err != nil {
				return fmt.Errorf("invalid event data: %w", err)
			}
		}

		var resp api.DispatchEventResponse
		if err := doRequest("POST", "/v1/events", req, &resp); err != nil {
			return fmt.Errorf("failed to dispatch event: %w", err)
		}

		if outputJSON {
			printOutput(resp)
			return nil
		}
		if resp.Matched == 0 {
			fmt.Println("No active subscriptions matched the event")
			return nil
		}
		fmt.Printf("Dispatched payload %s to %d subscription(s)\n", resp.PayloadID, resp.Matched)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventCmd)
	eventCmd.AddCommand(dispatchEventCmd)

	dispatchEventCmd.Flags().StringVar(&eventWorkflowID, "workflow", "", "originating workflow id")
}
