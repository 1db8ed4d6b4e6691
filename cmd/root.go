// Package cmd defines and implements the CLI commands for the hnmirror executable.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hnmirror/internal/app"
	"github.com/JakeFAU/hnmirror/internal/config"
	"github.com/JakeFAU/hnmirror/internal/logging"
)

// newApp is the application factory. It's a variable so tests can inject options.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// rootState carries what PersistentPreRunE builds to the subcommands.
type rootState struct {
	cfgFile string
	cfg     config.Config
	app     *app.App
}

func (s *rootState) close() {
	if s.app != nil {
		s.app.Close()
		s.app = nil
	}
}

func newRootCmd() (*cobra.Command, *rootState) {
	state := &rootState{}
	cmd := &cobra.Command{
		Use:   "hnmirror",
		Short: "Mirrors the Hacker News item graph into a relational store.",
		Long: `hnmirror periodically fetches the ranked story lists of each category,
crawls every story's comment tree, resolves the authors and upserts the
result level by level into Postgres or SQLite.`,
		SilenceUsage: true,

		// Config is loaded and services are built before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(state.cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			state.cfg = cfg
			state.app = a
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&state.cfgFile, "config", "", "config file (YAML); env vars use the HNMIRROR_ prefix")

	cmd.AddCommand(
		newRunCmd(state),
		newCrawlCmd(state),
		newMigrateCmd(state),
		newStatusCmd(state),
	)
	return cmd, state
}

func execute(ctx context.Context, args []string, out io.Writer) error {
	cmd, state := newRootCmd()
	defer state.close()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(out)
	return cmd.ExecuteContext(ctx)
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
