package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/campaignforge/hookrelay/internal/api"
	"github.com/campaignforge/hookrelay/internal/webhook"
)

var (
	subWorkflowID    string
	subCustomHeaders []string
	subMaxRetries    int
	subMultiplier    float64
	subInitialDelay  int
)

var subscriptionCmd = &cobra.Command{
	Use:   "subscription",
	Short: "Manage webhook subscriptions",
	Long:  `Register, inspect, update, test, and remove webhook subscriptions.`,
}

var createSubscriptionCmd = &cobra.Command{
	Use:   "create [target-url] [event-type,...]",
	Short: "Register a new webhook subscription",
	Long: `Register a new webhook subscription for one or more event types.

The signing secret is printed exactly once; it cannot be recovered later.

Example:
  relayctl subscription create https://example.com/hook content.published,workflow.failed`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := api.RegisterSubscriptionRequest{
			WorkflowID: subWorkflowID,
			TargetURL:  args[0],
			EventTypes: strings.Split(args[1], ","),
		}
		if len(subCustomHeaders) > 0 {
			req.CustomHeaders = map[string]string{}
			for _, h := range subCustomHeaders {
				k, v, ok := strings.Cut(h, "=")
				if !ok {
					return fmt.Errorf("invalid header %q, want key=value", h)
				}
				req.CustomHeaders[k] = v
			}
		}
		if cmd.Flags().Changed("max-retries") || cmd.Flags().Changed("backoff-multiplier") || cmd.Flags().Changed("initial-delay-ms") {
			req.RetryPolicy = &webhook.RetryPolicy{
				MaxRetries:        subMaxRetries,
				BackoffMultiplier: subMultiplier,
				InitialDelayMS:    subInitialDelay,
			}
		}

		var resp api.RegisterSubscriptionResponse
		if err := doRequest("POST", "/v1/subscriptions", req, &resp); err != nil {
			return fmt.Errorf("failed to create subscription: %w", err)
		}

		if outputJSON {
			printOutput(resp)
			return nil
		}
		fmt.Printf("Created subscription: %s\n", resp.Subscription.ID)
		fmt.Printf("  Target URL: %s\n", resp.Subscription.TargetURL)
		fmt.Printf("  Event Types: %s\n", strings.Join(resp.Subscription.EventTypes, ", "))
		fmt.Printf("  Secret (save it now, shown only once): %s\n", resp.Secret)
		return nil
	},
}

var getSubscriptionCmd = &cobra.Command{
	Use:   "get [subscription-id]",
	Short: "Show a subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var sub webhook.Subscription
		if err := doRequest("GET", "/v1/subscriptions/"+args[0], nil, &sub); err != nil {
			return fmt.Errorf("failed to get subscription: %w", err)
		}

		if outputJSON {
			printOutput(sub)
			return nil
		}
		fmt.Printf("Subscription: %s\n", sub.ID)
		fmt.Printf("  Workflow: %s\n", sub.WorkflowID)
		fmt.Printf("  Target URL: %s\n", sub.TargetURL)
		fmt.Printf("  Event Types: %s\n", strings.Join(sub.EventTypes, ", "))
		fmt.Printf("  Active: %v\n", sub.Active)
		fmt.Printf("  Retry: %d attempts, x%.1f backoff from %dms\n",
			sub.RetryPolicy.MaxRetries, sub.RetryPolicy.BackoffMultiplier, sub.RetryPolicy.InitialDelayMS)
		fmt.Printf("  Created: %s\n", sub.CreatedAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

var updateSubscriptionCmd = &cobra.Command{
	Use:   "update [subscription-id] [json-patch]",
	Short: "Apply a partial update to a subscription",
	Long: `Apply a partial JSON update to a subscription. Omitted fields are left
unchanged; the secret can never be changed.

Example:
  relayctl subscription update sub-123 '{"active":false}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var req api.UpdateSubscriptionRequest
		if err := json.Unmarshal([]byte(args[1]), &req); err != nil {
			return fmt.Errorf("invalid patch: %w", err)
		}

		var sub webhook.Subscription
		if err := doRequest("PATCH", "/v1/subscriptions/"+args[0], req, &sub); err != nil {
			return fmt.Errorf("failed to update subscription: %w", err)
		}

		if outputJSON {
			printOutput(sub)
			return nil
		}
		fmt.Printf("Updated subscription: %s (active=%v)\n", sub.ID, sub.Active)
		return nil
	},
}

var deleteSubscriptionCmd = &cobra.Command{
	Use:   "delete [subscription-id]",
	Short: "Remove a subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doRequest("DELETE", "/v1/subscriptions/"+args[0], nil, nil); err != nil {
			return fmt.Errorf("failed to delete subscription: %w", err)
		}
		fmt.Printf("Deleted subscription: %s\n", args[0])
		return nil
	},
}

var testSubscriptionCmd = &cobra.Command{
	Use:   "test [subscription-id]",
	Short: "Send a test delivery to a subscription's endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var res webhook.TestResult
		if err := doRequest("POST", "/v1/subscriptions/"+args[0]+"/test", nil, &res); err != nil {
			return fmt.Errorf("test delivery failed: %w", err)
		}

		if outputJSON {
			printOutput(res)
			return nil
		}
		if res.Success {
			fmt.Printf("Test delivery succeeded: HTTP %d in %dms\n", res.StatusCode, res.ResponseTimeMS)
		} else {
			fmt.Printf("Test delivery failed: HTTP %d, error=%q\n", res.StatusCode, res.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(subscriptionCmd)
	subscriptionCmd.AddCommand(createSubscriptionCmd)
	subscriptionCmd.AddCommand(getSubscriptionCmd)
	subscriptionCmd.AddCommand(updateSubscriptionCmd)
	subscriptionCmd.AddCommand(deleteSubscriptionCmd)
	subscriptionCmd.AddCommand(testSubscriptionCmd)

	createSubscriptionCmd.Flags().StringVar(&subWorkflowID, "workflow", "", "owning workflow id")
	createSubscriptionCmd.Flags().StringArrayVar(&subCustomHeaders, "header", nil, "custom header key=value (repeatable)")
	createSubscriptionCmd.Flags().IntVar(&subMaxRetries, "max-retries", 5, "total delivery attempts per payload")
	createSubscriptionCmd.Flags().Float64Var(&subMultiplier, "backoff-multiplier", 2, "exponential backoff multiplier")
	createSubscriptionCmd.Flags().IntVar(&subInitialDelay, "initial-delay-ms", 1000, "delay before the first retry")
}
