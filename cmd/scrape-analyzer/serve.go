package main

import (
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/bootstrap"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the optional scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(app *bootstrap.App) error {
				return app.Serve(cmd.Context())
			})
		},
	}
}
