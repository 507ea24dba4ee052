package cmd

import (
	"github.com/spf13/cobra"
)

// newServeCmd creates and configures the 'serve' subcommand. It runs the
// pipeline as a long-lived service: the HTTP API accepts document
// submissions and the worker pool processes them until shutdown.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline as an HTTP service",
		Long: `Starts the worker pool and the HTTP API. Documents are submitted via
POST /v1/documents and processed continuously until the process receives
SIGINT or SIGTERM, at which point in-flight work drains and the service
shuts down cleanly.`,

		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	// Run blocks until shutdown and closes the application itself.
	return appInstance.Run(cmd.Context())
}
