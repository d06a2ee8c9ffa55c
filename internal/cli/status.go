package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show storage engine and migration status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	status := store.Status(cmd.Context())
	out := cmd.OutOrStdout()

	if statusJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	fmt.Fprintf(out, "Origin:    %s\n", cfg.Origin)
	fmt.Fprintf(out, "Database:  %s\n", cfg.DatabasePath())
	if !status.EngineAvailable {
		fmt.Fprintf(out, "Engine:    unavailable (%s)\n", status.EngineError)
		return nil
	}
	fmt.Fprintf(out, "Engine:    available\n")
	fmt.Fprintf(out, "Migration: version %d\n", status.MigrationVersion)
	fmt.Fprintf(out, "Session:   %t\n", status.SessionStored)
	fmt.Fprintf(out, "History:   %d chats\n", status.HistoryEntries)
	return nil
}
