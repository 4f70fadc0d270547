package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nadim/fieldsync/internal/output"
	"github.com/nadim/fieldsync/internal/syncclient"
)

var entitiesCmd = &cobra.Command{
	Use:     "entities <task|attendance|issue>",
	Short:   "List synced records by kind",
	GroupID: "review",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := args[0]
		state, _ := cmd.Flags().GetString("state")
		limit, _ := cmd.Flags().GetInt("limit")

		client := newClient()
		entities, err := client.ListEntities(kind, state, limit)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(entities)
		}

		if len(entities) == 0 {
			output.Info("no %s records", kind)
			return nil
		}
		for _, e := range entities {
			fmt.Println(output.FormatEntityShort(&e))
		}
		return nil
	},
}

var reviewCmd = &cobra.Command{
	Use:     "review <task|attendance> <id>",
	Short:   "Approve or reject a flagged record",
	GroupID: "review",
	Long: `Hand down a supervisor verdict on a completed task or a flagged
attendance record. Rejected records can still be appealed by the worker.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := args[0]
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid record ID %q", args[1])
		}

		approve, _ := cmd.Flags().GetBool("approve")
		reject, _ := cmd.Flags().GetBool("reject")
		if approve == reject {
			return fmt.Errorf("pass exactly one of --approve or --reject")
		}
		notes, _ := cmd.Flags().GetString("notes")

		client := newClient()
		var e *syncclient.Entity
		switch kind {
		case "task":
			e, err = client.ReviewTask(id, approve, notes)
		case "attendance":
			e, err = client.ReviewAttendance(id, approve, notes)
		default:
			return fmt.Errorf("unknown kind %q (want task or attendance)", kind)
		}
		if err != nil {
			output.Error("%v", err)
			return err
		}

		output.Success("%s #%d is now %s (v%d)", kind, e.ServerID, e.State, e.Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(entitiesCmd)
	entitiesCmd.Flags().String("state", "", "Filter by state")
	entitiesCmd.Flags().Int("limit", 100, "Maximum records to list")
	entitiesCmd.Flags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(reviewCmd)
	reviewCmd.Flags().Bool("approve", false, "Approve the record")
	reviewCmd.Flags().Bool("reject", false, "Reject the record")
	reviewCmd.Flags().String("notes", "", "Review notes")
}
