package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds the persistent flags shared by every command
type GlobalFlags struct {
	ConfigPath string
	DBPath     string // overrides database.path from the config file
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "medtrack",
		Short: "Track medicines and their expiry dates",
		Long: `medtrack keeps a list of medicines and shows which ones are expired or about
to expire. The web UI can fill in a medicine's name or expiry date from a photo.

Examples:
  medtrack serve                          # start the web server
  medtrack add --name="Aspirin 325mg" --expiry=2026-03-31
  medtrack list
  medtrack delete --id=<id>`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to JSON config file (default: $MEDTRACK_CONFIG, config/config.json or config.json)")
	root.PersistentFlags().StringVar(&globalFlags.DBPath, "db", "", "path to the SQLite database (overrides the config file)")

	root.AddCommand(
		createServeCommand(globalFlags),
		createListCommand(globalFlags),
		createAddCommand(globalFlags),
		createUpdateCommand(globalFlags),
		createDeleteCommand(globalFlags),
		createScansCommand(globalFlags),
	)
	return root
}
