package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show or clear the active session transcript",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the session transcript as JSON",
	Args:  cobra.NoArgs,
	RunE:  runSessionShow,
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the session transcript",
	Args:  cobra.NoArgs,
	RunE:  runSessionClear,
}

func init() {
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionClearCmd)
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	msgs, outcome := store.GetSessionMessages(cmd.Context())
	warnDegraded(cmd, outcome)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(msgs); err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return nil
}

func runSessionClear(cmd *cobra.Command, args []string) error {
	if err := requirePersisted(cmd, store.ClearSessionMessages(cmd.Context())); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Session cleared.")
	return nil
}
