package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/nadim/fieldsync/internal/api"
	"github.com/nadim/fieldsync/internal/store"
	"github.com/nadim/fieldsync/internal/zones"
)

// Local bootstrap commands that talk to the database directly. Useful for
// provisioning the first device key before the HTTP surface is reachable.
func runAdmin(args []string) {
	if len(args) == 0 {
		printAdminUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "create-key":
		runAdminCreateKey(args[1:])
	case "import-zones":
		runAdminImportZones(args[1:])
	case "add-worker":
		runAdminAddWorker(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown admin command: %s\n", args[0])
		printAdminUsage()
		os.Exit(1)
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, `Usage: fieldsync admin <command> [flags]

Commands:
  create-key    Provision a device API key
  import-zones  Load zones from a JSON file
  add-worker    Register a field worker`)
}

func openStore(dbPath string) *store.Store {
	if dbPath == "" {
		cfg := api.LoadConfig()
		dbPath = cfg.DBPath
	}
	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open database: %v\n", err)
		os.Exit(1)
	}
	return st
}

func runAdminCreateKey(args []string) {
	fs := flag.NewFlagSet("admin create-key", flag.ExitOnError)
	deviceID := fs.String("device", "", "device ID the key belongs to")
	name := fs.String("name", "", "human-readable key name")
	dbPath := fs.String("db", "", "path to the database (default: from FIELDSYNC_DB_PATH)")
	fs.Parse(args)

	if *deviceID == "" {
		fmt.Fprintln(os.Stderr, "error: --device is required")
		fs.Usage()
		os.Exit(1)
	}

	st := openStore(*dbPath)
	defer st.Close()

	plaintext, meta, err := st.GenerateDeviceKey(context.Background(), *deviceID, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("key %s created for device %s\n", meta.ID, meta.DeviceID)
	fmt.Println(plaintext)
	fmt.Fprintln(os.Stderr, "store this key now; it cannot be shown again")
}

func runAdminImportZones(args []string) {
	fs := flag.NewFlagSet("admin import-zones", flag.ExitOnError)
	file := fs.String("file", "", "JSON file of zones")
	dbPath := fs.String("db", "", "path to the database (default: from FIELDSYNC_DB_PATH)")
	fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "error: --file is required")
		fs.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var zs []zones.Zone
	if err := json.Unmarshal(data, &zs); err != nil {
		fmt.Fprintf(os.Stderr, "error: parse zone file: %v\n", err)
		os.Exit(1)
	}

	st := openStore(*dbPath)
	defer st.Close()

	ctx := context.Background()
	for _, z := range zs {
		if _, err := st.UpsertZone(ctx, z); err != nil {
			fmt.Fprintf(os.Stderr, "error: zone %s: %v\n", z.Code, err)
			os.Exit(1)
		}
	}

	fmt.Printf("imported %d zones\n", len(zs))
}

func runAdminAddWorker(args []string) {
	fs := flag.NewFlagSet("admin add-worker", flag.ExitOnError)
	name := fs.String("name", "", "worker name")
	deviceID := fs.String("device", "", "device ID assigned to the worker")
	dbPath := fs.String("db", "", "path to the database (default: from FIELDSYNC_DB_PATH)")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "error: --name is required")
		fs.Usage()
		os.Exit(1)
	}

	st := openStore(*dbPath)
	defer st.Close()

	id, err := st.CreateWorker(context.Background(), *name, *deviceID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("worker %d registered\n", id)
}
