// Package cmd implements the fieldops CLI for operating a fieldsync server.
package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nadim/fieldsync/internal/syncclient"
)

var (
	version string

	serverURL  string
	deviceKey  string
	adminToken string
)

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "fieldops",
	Short: "Operations CLI for a fieldsync server",
	Long: `fieldops - operate a fieldsync synchronization server.

Push offline batches, manage authorization zones, review flagged task
completions and attendance records, and work through worker appeals.

The server address and credentials can also be set via the environment:
  FIELDOPS_SERVER, FIELDOPS_DEVICE_KEY, FIELDOPS_ADMIN_TOKEN`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newClient builds an API client from the persistent flags and environment
func newClient() *syncclient.Client {
	return syncclient.New(serverURL, deviceKey, adminToken)
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		envDefault("FIELDOPS_SERVER", "http://localhost:8080"), "fieldsync server base URL")
	rootCmd.PersistentFlags().StringVar(&deviceKey, "device-key",
		os.Getenv("FIELDOPS_DEVICE_KEY"), "device API key for sync endpoints")
	rootCmd.PersistentFlags().StringVar(&adminToken, "admin-token",
		os.Getenv("FIELDOPS_ADMIN_TOKEN"), "admin token for management endpoints")

	// Accept underscores in flag names (device_key works like device-key)
	rootCmd.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "review", Title: "Review Commands:"},
		&cobra.Group{ID: "admin", Title: "Admin Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)

	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetCompletionCommandGroupID("system")
}
