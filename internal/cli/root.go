// Package cli implements the drift command tree.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftnotes/drift/internal/engine"
	"github.com/driftnotes/drift/internal/logging"
)

var (
	cfgPath string
	verbose bool

	cfg    *engine.Config
	eng    *engine.Engine
	logger logging.Logger
)

var rootCmd = &cobra.Command{
	Use:           "drift",
	Short:         "End-to-end encrypted notes sync over nostr relays",
	Long:          "Drift keeps a directory of markdown notes synchronized through nostr relays.\nEverything leaving the machine is encrypted to your own key; sharing encrypts\nto the recipient instead.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = engine.LoadConfig(cfgPath)
		if err != nil {
			return err
		}
		out := io.Discard
		if verbose {
			out = os.Stderr
		}
		logger = logging.NewTextLogger(out, slog.LevelDebug)
		eng, err = engine.New(cfg, logger)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if eng != nil {
			return eng.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to a JSON config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(vaultCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(muteCmd)
	rootCmd.AddCommand(prefsCmd)
}

// Execute runs the command tree and returns a process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
