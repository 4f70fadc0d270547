package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nadim/fieldsync/internal/output"
)

var appealsCmd = &cobra.Command{
	Use:     "appeals",
	Short:   "Work through worker appeals against automatic rejections",
	GroupID: "review",
}

var appealsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List appeals",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		client := newClient()
		appeals, err := client.ListAppeals(status)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(appeals)
		}

		if len(appeals) == 0 {
			output.Info("no appeals")
			return nil
		}
		for _, a := range appeals {
			fmt.Println(output.FormatAppealShort(&a))
		}
		return nil
	},
}

var appealsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one appeal with its full explanation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid appeal ID %q", args[0])
		}

		client := newClient()
		a, err := client.GetAppeal(id)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(a)
		}

		fmt.Printf("appeal %d  %s #%d  worker %d  %s\n",
			a.ID, a.EntityKind, a.EntityID, a.WorkerID, output.FormatState(a.Status))
		fmt.Printf("submitted %s\n", a.SubmittedAt)
		if a.EvidenceURL != "" {
			fmt.Printf("evidence: %s\n", a.EvidenceURL)
		}

		// Explanations are free text from the field, often multi-line
		fmt.Print(output.SectionHeader("explanation"))
		fmt.Println(output.RenderMarkdown(a.Explanation))

		if a.ReviewedBy != 0 {
			fmt.Print(output.SectionHeader("review"))
			fmt.Printf("reviewed by %d at %s\n", a.ReviewedBy, a.ReviewedAt)
			if a.ReviewNotes != "" {
				fmt.Println(output.IndentString(a.ReviewNotes, 2))
			}
		}
		return nil
	},
}

var appealsSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit an appeal on behalf of a worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		entityID, _ := cmd.Flags().GetInt64("entity")
		workerID, _ := cmd.Flags().GetInt64("worker")
		explanation, _ := cmd.Flags().GetString("explanation")
		evidence, _ := cmd.Flags().GetString("evidence")

		if entityID == 0 || workerID == 0 || explanation == "" {
			return fmt.Errorf("--entity, --worker and --explanation are required")
		}

		client := newClient()
		a, err := client.SubmitAppeal(kind, entityID, workerID, explanation, evidence)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		output.Success("appeal %d submitted for %s #%d", a.ID, a.EntityKind, a.EntityID)
		return nil
	},
}

var appealsReviewCmd = &cobra.Command{
	Use:   "review <id>",
	Short: "Approve or deny an appeal",
	Long: `Approve or deny a pending appeal. Approving reinstates the appealed
record to its approved state; denying leaves the rejection in place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid appeal ID %q", args[0])
		}

		approve, _ := cmd.Flags().GetBool("approve")
		deny, _ := cmd.Flags().GetBool("deny")
		if approve == deny {
			return fmt.Errorf("pass exactly one of --approve or --deny")
		}
		reviewerID, _ := cmd.Flags().GetInt64("reviewer")
		notes, _ := cmd.Flags().GetString("notes")

		client := newClient()
		a, err := client.ReviewAppeal(id, reviewerID, approve, notes)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if approve {
			output.Success("appeal %d approved, %s #%d reinstated", a.ID, a.EntityKind, a.EntityID)
		} else {
			output.Success("appeal %d denied", a.ID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(appealsCmd)

	appealsCmd.AddCommand(appealsListCmd)
	appealsListCmd.Flags().String("status", "", "Filter by status (pending, approved, denied)")
	appealsListCmd.Flags().Bool("json", false, "Output as JSON")

	appealsCmd.AddCommand(appealsShowCmd)
	appealsShowCmd.Flags().Bool("json", false, "Output as JSON")

	appealsCmd.AddCommand(appealsSubmitCmd)
	appealsSubmitCmd.Flags().String("kind", "task", "Entity kind (task or attendance)")
	appealsSubmitCmd.Flags().Int64("entity", 0, "Server ID of the rejected record")
	appealsSubmitCmd.Flags().Int64("worker", 0, "Worker ID the appeal belongs to")
	appealsSubmitCmd.Flags().String("explanation", "", "Why the rejection should be overturned")
	appealsSubmitCmd.Flags().String("evidence", "", "URL of supporting evidence")

	appealsCmd.AddCommand(appealsReviewCmd)
	appealsReviewCmd.Flags().Bool("approve", false, "Approve the appeal")
	appealsReviewCmd.Flags().Bool("deny", false, "Deny the appeal")
	appealsReviewCmd.Flags().Int64("reviewer", 0, "Reviewer worker ID")
	appealsReviewCmd.Flags().String("notes", "", "Review notes")
}
