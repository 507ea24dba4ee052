// Package cmd defines and implements the CLI commands for the contentpipeline executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/carelane/content-pipeline/internal/app"
	"github.com/carelane/content-pipeline/internal/config"
	"github.com/carelane/content-pipeline/internal/pipeline"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the subset of the application container the commands drive. It is
// an interface so tests can inject a mock app.
type App interface {
	Run(ctx context.Context) error
	RunBatch(ctx context.Context, tasks []pipeline.Task) (app.BatchSummary, error)
	Close(ctx context.Context) error
}

// buildApp is the application factory. It's a variable so we can replace it
// with a mock factory in our tests.
var buildApp func(ctx context.Context, cfg config.Config) (App, error) = func(ctx context.Context, cfg config.Config) (App, error) {
	return app.Build(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contentpipeline",
		Short: "Content processing pipeline for medical web pages.",
		Long: `contentpipeline keeps a RAG knowledge base in sync with its source websites.
It fetches diabetes patient-education pages, detects meaningful content
changes, extracts semantic structure, and publishes retrieval-ready chunks
for embedding and indexing.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs after flag parsing but before the subcommand's RunE; builds
		// the application and injects it for subcommands to use.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (overrides PIPELINE_* environment variables)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newProcessCmd())

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
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "contentpipeline: %v\n", err)
		os.Exit(1)
	}
}
