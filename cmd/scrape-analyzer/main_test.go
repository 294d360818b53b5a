package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/domain"
)

func TestRootCommand_Subcommands(t *testing.T) {
	t.Parallel()

	root := newRootCommand()
	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}

	for _, want := range []string{"serve", "ingest", "analyze", "records", "token", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "scrape-analyzer dev\n", out.String())
}

func TestRecordsCommand_RejectsBadAnalyzedFlag(t *testing.T) {
	t.Parallel()

	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"records", "--analyzed", "maybe"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--analyzed")
}

func TestRecordsCommand_RejectsBadPaging(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{
		{"records", "--limit", "0"},
		{"records", "--limit", "-5"},
		{"records", "--limit", "101"},
		{"records", "--offset", "-1"},
	} {
		root := newRootCommand()
		root.SetOut(&bytes.Buffer{})
		root.SetArgs(args)

		err := root.Execute()
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "must", args)
	}
}

func TestRenderRecords(t *testing.T) {
	t.Parallel()

	analyzedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	page := &domain.RecordPage{
		Records: []domain.Record{
			{
				ID:         uuid.New(),
				ExternalID: "post-1",
				Analysis: &domain.Analysis{
					Summary:   "Prices fell.",
					Sentiment: domain.SentimentNegative,
					Keywords:  []string{"prices", "markets"},
				},
				AnalyzedAt: &analyzedAt,
				CreatedAt:  analyzedAt,
			},
			{ID: uuid.New(), ExternalID: "post-2", CreatedAt: analyzedAt},
		},
		Total: 7,
		Limit: 2,
	}

	var out bytes.Buffer
	renderRecords(&out, page)

	s := out.String()
	assert.Contains(t, s, "post-1")
	assert.Contains(t, s, "negative")
	assert.Contains(t, s, "prices, markets")
	assert.Contains(t, s, "post-2")
	assert.Contains(t, strings.ToLower(s), "2 of 7")
	assert.Equal(t, 1, strings.Count(s, "Prices fell."))
}

func TestRenderAnalyzeResult_ListsFailures(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	renderAnalyzeResult(&out, &domain.AnalyzeResult{
		Selected: 3,
		Analyzed: 2,
		Failed:   1,
		Failures: []domain.RecordFailure{{RecordID: "rec-9", Error: "completion: rate limited"}},
	})

	assert.Contains(t, out.String(), "rec-9")
	assert.Contains(t, out.String(), "completion: rate limited")
}
