package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nadim/fieldsync/internal/output"
	"github.com/nadim/fieldsync/internal/syncclient"
)

var zonesCmd = &cobra.Command{
	Use:     "zones",
	Short:   "Manage authorization zones",
	GroupID: "admin",
}

var zonesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List zones known to the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		zs, err := client.ListZones()
		if err != nil {
			output.Error("%v", err)
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(zs)
		}

		if len(zs) == 0 {
			output.Info("no zones configured")
			return nil
		}
		for _, z := range zs {
			fmt.Println(output.FormatZoneShort(&z))
		}
		return nil
	},
}

var zonesImportCmd = &cobra.Command{
	Use:   "import <zones.json>",
	Short: "Import or update zones from a JSON file",
	Long: `Import zones from a JSON file. Each zone needs a code, a name and a
closed polygon ring of at least three vertices.

With --replace, active zones missing from the file are deactivated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}

		var zs []syncclient.Zone
		if err := json.Unmarshal(data, &zs); err != nil {
			output.Error("parse zone file: %v", err)
			return err
		}
		if len(zs) == 0 {
			output.Warning("zone file contains no zones")
			return nil
		}

		replace, _ := cmd.Flags().GetBool("replace")
		yes, _ := cmd.Flags().GetBool("yes")

		if replace && !yes {
			confirmed := false
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Replace the zone set with %d zones?", len(zs))).
					Description("Active zones not present in the file will be deactivated. Pending check-ins against them will fail validation.").
					Value(&confirmed),
			))
			if err := form.Run(); err != nil {
				return err
			}
			if !confirmed {
				output.Info("import cancelled")
				return nil
			}
		}

		client := newClient()
		if err := client.ImportZones(zs, replace); err != nil {
			output.Error("%v", err)
			return err
		}

		output.Success("imported %d zones", len(zs))
		return nil
	},
}

var zonesDeactivateCmd = &cobra.Command{
	Use:   "deactivate <code>",
	Short: "Deactivate a zone by code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code := args[0]
		yes, _ := cmd.Flags().GetBool("yes")

		if !yes {
			confirmed := false
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Deactivate zone %s?", code)).
					Description("Check-ins inside this zone will no longer validate.").
					Value(&confirmed),
			))
			if err := form.Run(); err != nil {
				return err
			}
			if !confirmed {
				output.Info("cancelled")
				return nil
			}
		}

		client := newClient()
		if err := client.DeactivateZone(code); err != nil {
			output.Error("%v", err)
			return err
		}

		output.Success("zone %s deactivated", code)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(zonesCmd)

	zonesCmd.AddCommand(zonesListCmd)
	zonesListCmd.Flags().Bool("json", false, "Output as JSON")

	zonesCmd.AddCommand(zonesImportCmd)
	zonesImportCmd.Flags().Bool("replace", false, "Deactivate active zones missing from the file")
	zonesImportCmd.Flags().Bool("yes", false, "Skip confirmation prompt")

	zonesCmd.AddCommand(zonesDeactivateCmd)
	zonesDeactivateCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
}
