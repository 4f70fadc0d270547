package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nadim/fieldsync/internal/output"
	"github.com/nadim/fieldsync/internal/syncclient"
)

// Demo dataset: two downtown zones, two workers, one recurring template.
var seedZones = []syncclient.Zone{
	{
		Code:     "Z-CENTRAL",
		Name:     "Central District",
		District: "downtown",
		Active:   true,
		Ring: []syncclient.Vertex{
			{Lat: 31.900, Lon: 35.200},
			{Lat: 31.910, Lon: 35.200},
			{Lat: 31.910, Lon: 35.210},
			{Lat: 31.900, Lon: 35.210},
		},
	},
	{
		Code:     "Z-MARKET",
		Name:     "Market Quarter",
		District: "downtown",
		Active:   true,
		Ring: []syncclient.Vertex{
			{Lat: 31.890, Lon: 35.195},
			{Lat: 31.899, Lon: 35.195},
			{Lat: 31.899, Lon: 35.205},
			{Lat: 31.890, Lon: 35.205},
		},
	},
}

var seedCmd = &cobra.Command{
	Use:     "seed",
	Short:   "Load a small demo dataset into the server",
	GroupID: "system",
	Long: `Load demonstration data for trying out a fresh server: two zones, two
workers and a recurring inspection template. Running seed twice updates the
zones in place and registers the workers and template again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		if err := client.ImportZones(seedZones, false); err != nil {
			output.Error("import zones: %v", err)
			return err
		}
		output.Success("imported %d zones", len(seedZones))

		workers := []struct{ name, device string }{
			{"Amal Haddad", "dev-1"},
			{"Omar Khalil", "dev-2"},
		}
		for _, w := range workers {
			id, err := client.CreateWorker(w.name, w.device)
			if err != nil {
				output.Error("create worker %s: %v", w.name, err)
				return err
			}
			fmt.Printf("  worker %d: %s (%s)\n", id, w.name, w.device)
		}

		zs, err := client.ListZones()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		var centralID int64
		for _, z := range zs {
			if z.Code == "Z-CENTRAL" {
				centralID = z.ID
			}
		}

		tmplID, err := client.CreateTemplate(syncclient.TaskTemplate{
			Title:           "Daily street light inspection",
			Description:     "Walk the assigned block and log any broken fixtures.",
			ZoneID:          centralID,
			IntervalMinutes: 1440,
			Active:          true,
		})
		if err != nil {
			output.Error("create template: %v", err)
			return err
		}
		fmt.Printf("  template %d: daily inspection in Z-CENTRAL\n", tmplID)

		output.Success("seed complete")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Print the fieldops version",
	GroupID: "system",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(versionCmd)
}
