package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nadim/fieldsync/internal/output"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show server dashboard: metrics, entity counts, recent batches",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		status, err := client.Status()
		if err != nil {
			output.Error("%v", err)
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(status)
		}

		mt := status.Metrics
		fmt.Printf("SERVER: %s (up %.0fs)\n\n", serverURL, mt.UptimeSeconds)
		fmt.Printf("requests %d, server errors %d, client errors %d\n",
			mt.Requests, mt.ServerErrors, mt.ClientErrors)
		fmt.Printf("batches %d, items accepted %d, failed %d, conflicts resolved %d\n",
			mt.BatchesProcessed, mt.ItemsAccepted, mt.ItemsFailed, mt.ConflictsResolved)
		fmt.Printf("appeals submitted %d, active zones %d\n", mt.AppealsSubmitted, status.ZoneCount)

		if len(status.EntityCounts) > 0 {
			fmt.Print(output.SectionHeader("entities"))
			keys := make([]string, 0, len(status.EntityCounts))
			for k := range status.EntityCounts {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				kind, state, _ := strings.Cut(k, "/")
				fmt.Printf("  %-12s %s %d\n", kind, output.FormatState(state), status.EntityCounts[k])
			}
		}

		if len(status.Batches) > 0 {
			fmt.Print(output.SectionHeader("recent batches"))
			for _, b := range status.Batches {
				fmt.Printf("  #%-4d %-20s %d items, %d ok, %d failed  %s\n",
					b.ID, b.DeviceID, b.TotalItems, b.SuccessCount, b.FailureCount, b.ReceivedAt)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "Output as JSON")
}
