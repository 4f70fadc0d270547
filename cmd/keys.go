package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nadim/fieldsync/internal/output"
)

var keysCmd = &cobra.Command{
	Use:     "keys",
	Short:   "Manage device API keys",
	GroupID: "admin",
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List device keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		device, _ := cmd.Flags().GetString("device")

		client := newClient()
		keys, err := client.ListDeviceKeys(device)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(keys)
		}

		if len(keys) == 0 {
			output.Info("no device keys provisioned")
			return nil
		}
		for _, k := range keys {
			line := fmt.Sprintf("%-12s %-20s %s…", k.ID, k.DeviceID, k.KeyPrefix)
			if k.Name != "" {
				line += "  " + k.Name
			}
			if k.LastUsedAt != "" {
				line += fmt.Sprintf("  last used %s", k.LastUsedAt)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var keysCreateCmd = &cobra.Command{
	Use:   "create <device-id>",
	Short: "Provision a device key",
	Long: `Provision an API key for a field device. The plaintext key is shown
once and cannot be recovered afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")

		client := newClient()
		plaintext, meta, err := client.CreateDeviceKey(args[0], name)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		output.Success("key %s created for device %s", meta.ID, meta.DeviceID)
		fmt.Println(plaintext)
		output.Warning("store this key now; it cannot be shown again")
		return nil
	},
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id>",
	Short: "Revoke a device key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyID := args[0]
		yes, _ := cmd.Flags().GetBool("yes")

		if !yes {
			confirmed := false
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Revoke key %s?", keyID)).
					Description("The device will no longer be able to sync until a new key is provisioned.").
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
		if err := client.RevokeDeviceKey(keyID); err != nil {
			output.Error("%v", err)
			return err
		}

		output.Success("key %s revoked", keyID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)

	keysCmd.AddCommand(keysListCmd)
	keysListCmd.Flags().String("device", "", "Filter by device ID")
	keysListCmd.Flags().Bool("json", false, "Output as JSON")

	keysCmd.AddCommand(keysCreateCmd)
	keysCreateCmd.Flags().String("name", "", "Human-readable key name")

	keysCmd.AddCommand(keysRevokeCmd)
	keysRevokeCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
}
