// Package cmd defines and implements the CLI commands for the sourceapi executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notaspider/comick-source-api/internal/api"
	"github.com/notaspider/comick-source-api/internal/config"
	"github.com/notaspider/comick-source-api/internal/logging"
	"github.com/notaspider/comick-source-api/internal/scraper"
	"github.com/notaspider/comick-source-api/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	Run(ctx context.Context) error
	Close(ctx context.Context)
	Descriptors() []scraper.Descriptor
	Health() api.HealthService
	Search() api.Searcher
	Logger() *zap.Logger
}

type builtApp struct {
	*server.App
}

func (b builtApp) Descriptors() []scraper.Descriptor { return b.Registry().Descriptors() }
func (b builtApp) Health() api.HealthService         { return b.App.Health() }
func (b builtApp) Search() api.Searcher              { return b.App.Search() }

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgFile string) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app, err := server.Build(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return builtApp{App: app}, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "sourceapi",
		Short: "Search and read manga across scanlator and aggregator sites.",
		Long: `sourceapi fronts a set of manga source adapters behind one HTTP API.
It searches every source at once, lists and normalizes chapters, extracts
chapter page images and reports the reachability of each source.`,
		SilenceUsage: true,

		// Runs before every subcommand's RunE and injects the application.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close(cmd.Context())
				_ = appInstance.Logger().Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, /etc/sourceapi, $HOME/.sourceapi)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSourcesCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newSearchCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
