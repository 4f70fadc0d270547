package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nadim/fieldsync/internal/output"
	"github.com/nadim/fieldsync/internal/syncclient"
)

var workersCmd = &cobra.Command{
	Use:     "workers",
	Short:   "Manage field worker accounts",
	GroupID: "admin",
}

var workersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workers and their warning counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		workers, err := client.ListWorkers()
		if err != nil {
			output.Error("%v", err)
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(workers)
		}

		if len(workers) == 0 {
			output.Info("no workers registered")
			return nil
		}
		for _, w := range workers {
			line := fmt.Sprintf("#%-4d %-24s", w.ID, w.Name)
			if w.DeviceID != "" {
				line += fmt.Sprintf("  device %s", w.DeviceID)
			}
			if w.WarningCount > 0 {
				line += fmt.Sprintf("  %d warnings (last: %s)", w.WarningCount, w.LastWarningReason)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var workersAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deviceID, _ := cmd.Flags().GetString("device")

		client := newClient()
		id, err := client.CreateWorker(args[0], deviceID)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		output.Success("worker %d registered", id)
		return nil
	},
}

var templatesCmd = &cobra.Command{
	Use:     "templates",
	Short:   "Manage recurring task templates",
	GroupID: "admin",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List task templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		templates, err := client.ListTemplates()
		if err != nil {
			output.Error("%v", err)
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(templates)
		}

		if len(templates) == 0 {
			output.Info("no templates configured")
			return nil
		}
		for _, t := range templates {
			state := "active"
			if !t.Active {
				state = "inactive"
			}
			fmt.Printf("#%-4d %-32s every %dm  zone %d  assignee %d  [%s]\n",
				t.ID, t.Title, t.IntervalMinutes, t.ZoneID, t.AssigneeID, state)
		}
		return nil
	},
}

var templatesAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a recurring task template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		zoneID, _ := cmd.Flags().GetInt64("zone")
		assigneeID, _ := cmd.Flags().GetInt64("assignee")
		interval, _ := cmd.Flags().GetInt("interval")

		if interval <= 0 {
			return fmt.Errorf("--interval must be a positive number of minutes")
		}

		client := newClient()
		id, err := client.CreateTemplate(syncclient.TaskTemplate{
			Title:           args[0],
			Description:     description,
			ZoneID:          zoneID,
			AssigneeID:      assigneeID,
			IntervalMinutes: interval,
			Active:          true,
		})
		if err != nil {
			output.Error("%v", err)
			return err
		}

		output.Success("template %d created", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workersCmd)
	workersCmd.AddCommand(workersListCmd)
	workersListCmd.Flags().Bool("json", false, "Output as JSON")
	workersCmd.AddCommand(workersAddCmd)
	workersAddCmd.Flags().String("device", "", "Device ID assigned to the worker")

	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesListCmd)
	templatesListCmd.Flags().Bool("json", false, "Output as JSON")
	templatesCmd.AddCommand(templatesAddCmd)
	templatesAddCmd.Flags().String("description", "", "Template description")
	templatesAddCmd.Flags().Int64("zone", 0, "Zone the generated tasks belong to")
	templatesAddCmd.Flags().Int64("assignee", 0, "Worker the generated tasks are assigned to")
	templatesAddCmd.Flags().Int("interval", 1440, "Generation interval in minutes")
}
