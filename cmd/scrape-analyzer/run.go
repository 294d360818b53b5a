package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/domain"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/service"
)

func newIngestCommand(opts *rootOptions) *cobra.Command {
	var datasetID string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run the scraping task and store new items",
		Long: `Starts a run of the configured task, waits for it and inserts every
dataset item whose id is not stored yet. With --dataset-id an existing
dataset is read instead and no run is started.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(app *bootstrap.App) error {
				result, err := app.Ingester.Ingest(cmd.Context(), service.IngestOptions{
					DatasetID: datasetID,
					Progress:  progressLogger(app.Logger, "ingest"),
				})
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				renderIngestResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&datasetID, "dataset-id", "", "read this existing dataset instead of starting a run")
	return cmd
}

func newAnalyzeCommand(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a batch of unanalyzed records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(app *bootstrap.App) error {
				svc, err := app.Analysis()
				if err != nil {
					return err
				}

				result, err := svc.Analyze(cmd.Context(), service.AnalyzeOptions{
					Limit:    limit,
					Progress: progressLogger(app.Logger, "analyze"),
				})
				if result != nil {
					renderAnalyzeResult(cmd.OutOrStdout(), result)
				}
				if err != nil {
					return fmt.Errorf("analyze: %w", err)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "records to analyze (default analysis.batch_size, max 100)")
	return cmd
}

func progressLogger(log infralogger.Logger, kind string) service.ProgressFunc {
	return func(processed, succeeded, failed, total int) {
		log.Info("Progress",
			infralogger.String("kind", kind),
			infralogger.Int("processed", processed),
			infralogger.Int("succeeded", succeeded),
			infralogger.Int("failed", failed),
			infralogger.Int("total", total),
		)
	}
}

func renderIngestResult(w io.Writer, r *domain.IngestResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Dataset", "Fetched", "Inserted", "Duplicates", "Invalid"})
	t.AppendRow(table.Row{r.RunID, r.DatasetID, r.Fetched, r.Inserted, r.Duplicates, r.Invalid})
	t.Render()
}

func renderAnalyzeResult(w io.Writer, r *domain.AnalyzeResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Selected", "Analyzed", "Failed", "Skipped"})
	t.AppendRow(table.Row{r.Selected, r.Analyzed, r.Failed, r.Skipped})
	t.Render()

	if len(r.Failures) == 0 {
		return
	}

	f := table.NewWriter()
	f.SetOutputMirror(w)
	f.SetStyle(table.StyleLight)
	f.AppendHeader(table.Row{"Record", "Error"})
	for _, failure := range r.Failures {
		f.AppendRow(table.Row{failure.RecordID, failure.Error})
	}
	f.Render()
}
