package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/domain"
)

const (
	defaultRecordsLimit = 20
	maxRecordsLimit     = 100
	summaryColumnWidth  = 60
)

var errNegativeOffset = errors.New("--offset must not be negative")

func newRecordsCommand(opts *rootOptions) *cobra.Command {
	var (
		limit    int
		offset   int
		analyzed string
	)

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List stored records, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 || limit > maxRecordsLimit {
				return fmt.Errorf("--limit must be between 1 and %d", maxRecordsLimit)
			}
			if offset < 0 {
				return errNegativeOffset
			}

			filter := domain.RecordFilter{Limit: limit, Offset: offset}
			if analyzed != "" {
				v, err := strconv.ParseBool(analyzed)
				if err != nil {
					return fmt.Errorf("--analyzed must be true or false: %w", err)
				}
				filter.Analyzed = &v
			}

			return withApp(cmd, opts, func(app *bootstrap.App) error {
				page, err := app.Repository.ListRecords(cmd.Context(), filter)
				if err != nil {
					return fmt.Errorf("list records: %w", err)
				}
				renderRecords(cmd.OutOrStdout(), page)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", defaultRecordsLimit, "records per page")
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")
	cmd.Flags().StringVar(&analyzed, "analyzed", "", "filter on analysis state (true|false)")
	return cmd
}

func renderRecords(w io.Writer, page *domain.RecordPage) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "External ID", "Sentiment", "Keywords", "Summary", "Created"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Summary", WidthMax: summaryColumnWidth, WidthMaxEnforcer: text.WrapSoft},
	})

	for i := range page.Records {
		r := &page.Records[i]
		sentiment, keywords, summary := "-", "", ""
		if r.Analysis != nil {
			sentiment = string(r.Analysis.Sentiment)
			keywords = strings.Join(r.Analysis.Keywords, ", ")
			summary = r.Analysis.Summary
		}
		t.AppendRow(table.Row{
			r.ID.String(),
			r.ExternalID,
			sentiment,
			keywords,
			summary,
			r.CreatedAt.Format("2006-01-02 15:04"),
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d of %d", len(page.Records), page.Total), ""})
	t.Render()
}
