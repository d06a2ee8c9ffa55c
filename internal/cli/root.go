// Package cli provides the operator command line for chatvault.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	app "chatvault/cmd"
	"chatvault/internal/chatdb"
	"chatvault/internal/config"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	envFile string
	verbose bool

	cfg        config.Config
	store      *chatdb.ChatDB
	closeStore func() error
	closeLog   func() error
)

var rootCmd = &cobra.Command{
	Use:   "chatvault",
	Short: "Inspect and manage stored chats",
	Long: `Chatvault inspects the chat storage of one origin: the active session
transcript and the archive of saved chats.

The origin and data directory come from CHATVAULT_ORIGIN and CHATVAULT_ROOT,
optionally loaded from an env file with --env.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(envFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		closeLog = func() error { return nil }
		if verbose {
			logger, closeLog = config.SetupLogger(cfg.LogFile(), slog.LevelDebug)
		}

		store, closeStore, err = app.OpenChatDB(cfg, logger)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeStore != nil {
			if err := closeStore(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close storage: %v\n", err)
			}
			closeStore = nil
		}
		if closeLog != nil {
			closeLog() //nolint:errcheck
			closeLog = nil
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "path to load env from")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log storage activity")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(historyCmd)
}

// warnDegraded tells the operator when a command was not served by the
// database.
func warnDegraded(cmd *cobra.Command, outcome chatdb.Outcome) {
	if !outcome.Degraded() {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Warning: served by %s storage: %v\n", outcome.Path, outcome.Err)
}

// requirePersisted turns a failed write into a command error.
func requirePersisted(cmd *cobra.Command, outcome chatdb.Outcome) error {
	if outcome.Path == chatdb.PathFailed {
		return fmt.Errorf("write failed: %w", outcome.Err)
	}
	warnDegraded(cmd, outcome)
	return nil
}
