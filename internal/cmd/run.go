package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spatialpipe/spatialpipe/internal/models"
)

// newCmdRun creates the `run` command, which executes the full pipeline.
func newCmdRun(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the configured pipeline lanes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			composer, _, _, err := o.load()
			if err != nil {
				return err
			}

			result, err := composer.Run(cmd.Context())
			if result != nil {
				fmt.Printf("\nRun: %s\n", result.RunID)
				for _, lr := range result.Lanes {
					switch lr.Status {
					case models.LaneSkipped:
						fmt.Printf("  %-10s %s\n", lr.Lane, lr.Status)
					case models.LaneFailed:
						fmt.Printf("  %-10s %s: %s\n", lr.Lane, lr.Status, lr.Error)
					default:
						fmt.Printf("  %-10s %s (%.1fs)\n", lr.Lane, lr.Status, lr.DurationSec)
					}
				}
				fmt.Printf("Duration: %.1fs\n", result.TotalDurationSec)
			}
			return err
		},
	}
}
