package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyClearForce bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List, delete, clear or export saved chats",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved chats, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete saved chats by id",
	Long: `Delete saved chats by id. Unknown ids are ignored.

Examples:
  chatvault history delete 3f1c9e2a-7d7b-4e0f-9c8e-2b8a0b1f5d11
  chatvault history delete id-1 id-2`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHistoryDelete,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every saved chat",
	Long: `Delete every saved chat.
Requires confirmation unless --force is used.`,
	Args: cobra.NoArgs,
	RunE: runHistoryClear,
}

var historyExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export saved chats as a JSON array",
	Long: `Export saved chats as a JSON array, newest first, in the same format as the
flat chat-history blob. Writes to stdout when no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistoryExport,
}

func init() {
	historyClearCmd.Flags().BoolVarP(&historyClearForce, "force", "f", false, "skip confirmation")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyClearCmd)
	historyCmd.AddCommand(historyExportCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	entries, outcome := store.GetAllHistory(cmd.Context())
	warnDegraded(cmd, outcome)

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No saved chats.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSAVED\tMODEL\tMESSAGES\tTITLE")
	for _, e := range entries {
		saved := time.UnixMilli(e.SavedAt).Format(time.DateTime)
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", e.ID, saved, e.Model, len(e.Messages), e.Title)
	}
	return w.Flush()
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	if err := requirePersisted(cmd, store.DeleteHistoryChats(cmd.Context(), args)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d chat(s).\n", len(args))
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	if !historyClearForce {
		fmt.Fprint(cmd.OutOrStdout(), "Delete every saved chat? [y/N]: ")

		reader := bufio.NewReader(cmd.InOrStdin())
		response, err := reader.ReadString('\n')
		if err != nil && response == "" {
			return fmt.Errorf("read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))

		if response != "y" && response != "yes" {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}
	}

	if err := requirePersisted(cmd, store.ClearAllHistory(cmd.Context())); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
	return nil
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	entries, outcome := store.GetAllHistory(cmd.Context())
	warnDegraded(cmd, outcome)

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	if len(args) == 1 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d chat(s) to %s\n", len(entries), args[0])
	}
	return nil
}
