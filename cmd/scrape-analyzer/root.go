package main

import (
	"fmt"

	"github.com/spf13/cobra"

	infraconfig "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/config"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/bootstrap"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const defaultConfigPath = "config.yml"

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "scrape-analyzer",
		Short: "Ingest scraped items and analyze them with an LLM",
		Long: `scrape-analyzer pulls items from a hosted scraping task into PostgreSQL,
then summarizes each record, assigns a sentiment and extracts keywords
through a completion API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", infraconfig.GetConfigPath(defaultConfigPath),
		"config file (env CONFIG_PATH)")

	root.AddCommand(
		newServeCommand(opts),
		newIngestCommand(opts),
		newAnalyzeCommand(opts),
		newRecordsCommand(opts),
		newTokenCommand(opts),
		newVersionCommand(),
	)

	return root
}

// withApp builds the application for one command and closes it afterwards.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(app *bootstrap.App) error) error {
	app, err := bootstrap.New(cmd.Context(), opts.configPath)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer func() { _ = app.Close() }()

	return fn(app)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "scrape-analyzer %s\n", version)
		},
	}
}
