package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/campaignforge/hookrelay/internal/health"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check service health",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st health.Status
		if err := doRequest("GET", "/healthz", nil, &st); err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		if outputJSON {
			printOutput(st)
			return nil
		}
		if st.OK {
			fmt.Printf("Service healthy (%d dead letters)\n", st.DeadLetters)
		} else {
			fmt.Printf("Service unhealthy: %s\n", st.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
