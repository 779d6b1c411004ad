// Package cmd provides the fre CLI commands.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/logger"
)

// app carries state shared by all subcommands.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	cfg        *config.Config
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "fre",
		Short: "File retrieval engine",
		Long: `fre builds an in-memory inverted index over the text files below a
directory and answers AND-joined term queries ranked by term frequency.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to a YAML or legacy JSON config file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Override logging.format (json, text)")

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newIndexCmd(a))
	cmd.AddCommand(newEventsCmd(a))
	cmd.AddCommand(newRunsCmd(a))
	cmd.AddCommand(newLoadtestCmd())
	return cmd
}

// Execute runs the root command with a context cancelled on SIGINT or
// SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	// Logs go to stderr so command output on stdout stays parseable.
	logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	a.cfg = cfg
	return nil
}
