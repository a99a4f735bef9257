// Package cmd wires the kugutsushi subcommands onto a cobra root
// command. Each subcommand loads configuration, opens the catalogue
// and indices under --data-dir, and drives exactly one operation of
// the retrieval core before exiting.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kugutsushi/engine/internal/config"
	"github.com/kugutsushi/engine/internal/logging"
)

var (
	flagConfigPath string
	flagDataDir    string
	flagDebug      bool

	cfg    config.Config
	logger *slog.Logger
)

// NewRootCmd builds the kugutsushi root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kugutsushi",
		Short:         "Manual harness for the hybrid retrieval core",
		Long:          "kugutsushi indexes a directory of PDFs and runs queries against the resulting catalogue and indices. It exists to drive the core for manual verification, not as a product surface.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			loaded := config.Default()
			if flagConfigPath != "" {
				var err error
				loaded, err = config.Load(flagConfigPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			if flagDataDir != "" {
				loaded.Paths.DataDir = flagDataDir
			}
			if err := loaded.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			cfg = loaded

			level := "info"
			if flagDebug {
				level = "debug"
			}
			l, _, err := logging.Setup(logging.Config{Level: level, WriteToStderr: true})
			if err != nil {
				return fmt.Errorf("set up logging: %w", err)
			}
			// Every invocation gets its own run id, following the
			// request-id pattern the pack uses to correlate log lines
			// from a single operation.
			logger = l.With(slog.String("run_id", uuid.NewString()))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to a YAML config file (defaults built in)")
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "directory holding the catalogue and indices (overrides config)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	root.AddCommand(newIndexCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newVerifyCmd())

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// colorize wraps s in the given ANSI code when stdout is a terminal,
// following the teacher's isatty-gated color decision.
func colorize(s, code string) string {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}
