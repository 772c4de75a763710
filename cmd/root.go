// Package cmd defines the stockd CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/garden-stock/internal/config"
	"github.com/JakeFAU/garden-stock/internal/logging"
	"github.com/JakeFAU/garden-stock/internal/server"
	"github.com/JakeFAU/garden-stock/internal/stock"
)

// sessionKeyType is the key for storing the session in the context.
type sessionKeyType string

const sessionKey sessionKeyType = "session"

// session holds what PersistentPreRunE builds and the subcommand must release.
type session struct {
	app    App
	logger *zap.Logger
}

func (s session) close() {
	s.app.Close()
	// Sync on a console sink returns EINVAL on some platforms.
	_ = s.logger.Sync()
}

// App is what the subcommands need from the assembled service. Tests swap in
// a fake through newApp.
type App interface {
	Run(ctx context.Context) error
	Refresh(ctx context.Context) (stock.Snapshot, error)
	Close()
}

var newApp = func(cfg config.Config, logger *zap.Logger) (App, error) {
	return server.Build(cfg, nil, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "stockd",
		Short: "Serves Grow a Garden shop stock as JSON.",
		Long: `stockd scrapes the public Grow a Garden stock page, extracts the gear,
egg and seed shop listings, and serves the latest snapshot over a small
read-only HTTP API.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), sessionKey, session{app: appInstance, logger: logger}))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")
	cmd.AddCommand(newServeCmd(), newScrapeCmd())
	return cmd
}

// withApp adapts run into a RunE that releases the app and flushes the logger
// however run returns. Cobra skips PersistentPostRun after a RunE error, so
// the release cannot live there.
func withApp(run func(cmd *cobra.Command, app App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		sess, ok := cmd.Context().Value(sessionKey).(session)
		if !ok || sess.app == nil {
			return errors.New("application services not initialized")
		}
		defer sess.close()
		return run(cmd, sess.app)
	}
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
