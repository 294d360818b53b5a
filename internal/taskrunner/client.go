package taskrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/circuitbreaker"
	infraerrors "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/errors"
	infrahttp "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/http"
	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
)

// PollObserver is told about every status seen while waiting for a run.
type PollObserver func(run *Run)

// Client is an Apify API client bound to one actor task.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	logger     infralogger.Logger
	observer   PollObserver
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPollObserver registers a callback for run status changes.
func WithPollObserver(fn PollObserver) Option {
	return func(c *Client) { c.observer = fn }
}

// WithLogger sets the logger.
func WithLogger(log infralogger.Logger) Option {
	return func(c *Client) { c.logger = log }
}

// WithBreaker replaces the circuit breaker.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// NewClient creates a client. Missing credentials are reported per call.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.setDefaults()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:    cfg,
		logger: infralogger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = infrahttp.NewClient(&infrahttp.ClientConfig{Timeout: cfg.HTTPTimeout})
	}
	if c.breaker == nil {
		c.breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: 5,
			Timeout:          time.Minute,
			IsFailure:        isUpstreamFailure,
			OnStateChange: func(from, to circuitbreaker.State) {
				c.logger.Warn("Task runner circuit breaker state changed",
					infralogger.String("from", from.String()),
					infralogger.String("to", to.String()),
				)
			},
		})
	}

	return c
}

// isUpstreamFailure trips the breaker on network errors and 5xx, not on
// 4xx caller errors such as a bad token or unknown task.
func isUpstreamFailure(err error) bool {
	if code, ok := infraerrors.GetHTTPStatusCode(err); ok {
		return code >= http.StatusInternalServerError
	}
	return true
}

// Configured reports whether token and task id are set.
func (c *Client) Configured() bool {
	return c.cfg.Token != "" && c.cfg.TaskID != ""
}

// StartTask starts a run of the configured task. input overrides the task's
// saved input; nil sends an empty object.
func (c *Client) StartTask(ctx context.Context, input map[string]any) (*Run, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	if input == nil {
		input = map[string]any{}
	}
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("start task: encode input: %w", err)
	}

	path := "/v2/actor-tasks/" + url.PathEscape(c.cfg.TaskID) + "/runs"

	var out envelope[Run]
	if err = c.do(ctx, http.MethodPost, path, nil, body, &out); err != nil {
		return nil, fmt.Errorf("start task: %w", err)
	}

	c.logger.Info("Task run started",
		infralogger.RunID(out.Data.ID),
		infralogger.String("task_id", c.cfg.TaskID),
		infralogger.String("status", out.Data.Status),
	)
	return &out.Data, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, runID string) (*Run, error) {
	if c.cfg.Token == "" {
		return nil, ErrNotConfigured
	}

	var out envelope[Run]
	if err := c.do(ctx, http.MethodGet, "/v2/actor-runs/"+url.PathEscape(runID), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return &out.Data, nil
}

// WaitForRun polls until the run reaches a terminal status or RunTimeout passes.
func (c *Client) WaitForRun(ctx context.Context, runID string) (*Run, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.RunTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	lastStatus := ""
	for {
		run, err := c.GetRun(waitCtx, runID)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case waitCtx.Err() != nil:
			return nil, fmt.Errorf("%w: run %s after %s", ErrRunTimeout, runID, c.cfg.RunTimeout)
		default:
			return nil, err
		}

		if run.Status != lastStatus {
			lastStatus = run.Status
			c.logger.Debug("Task run status", infralogger.RunID(runID), infralogger.String("status", run.Status))
		}
		if c.observer != nil {
			c.observer(run)
		}

		if run.IsTerminal() {
			if run.Status != StatusSucceeded {
				return run, fmt.Errorf("%w: run %s finished with status %s", ErrRunFailed, runID, run.Status)
			}
			return run, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: run %s last status %s", ErrRunTimeout, runID, run.Status)
		case <-ticker.C:
		}
	}
}

// paginationTotalHeader carries the dataset's item count on every page.
const paginationTotalHeader = "X-Apify-Pagination-Total"

// ListDatasetItems reads every item of a dataset, one page at a time. With
// clean=true empty items are skipped, so a page may be short while more
// items follow; paging stops at the reported total or at an empty page.
// Numbers are kept as json.Number so large ids survive intact.
func (c *Client) ListDatasetItems(ctx context.Context, datasetID string) ([]map[string]any, error) {
	if c.cfg.Token == "" {
		return nil, ErrNotConfigured
	}

	path := "/v2/datasets/" + url.PathEscape(datasetID) + "/items"
	limit := c.cfg.DatasetPageSize

	var items []map[string]any
	for offset := 0; ; offset += limit {
		query := url.Values{
			"format": []string{"json"},
			"clean":  []string{"true"},
			"offset": []string{strconv.Itoa(offset)},
			"limit":  []string{strconv.Itoa(limit)},
		}

		var page []map[string]any
		header, err := c.request(ctx, http.MethodGet, path, query, nil, &page)
		if err != nil {
			return nil, fmt.Errorf("list dataset %s items (offset %d): %w", datasetID, offset, err)
		}

		items = append(items, page...)
		if len(page) == 0 {
			break
		}
		if total, ok := paginationTotal(header); ok && offset+limit >= total {
			break
		}
	}

	c.logger.Debug("Dataset items fetched",
		infralogger.String("dataset_id", datasetID),
		infralogger.Int("count", len(items)),
	)
	return items, nil
}

func paginationTotal(header http.Header) (int, bool) {
	raw := header.Get(paginationTotalHeader)
	if raw == "" {
		return 0, false
	}
	total, err := strconv.Atoi(raw)
	if err != nil || total < 0 {
		return 0, false
	}
	return total, true
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	_, err := c.request(ctx, method, path, query, body, out)
	return err
}

// request performs one call through the breaker, decodes the JSON body into
// out and returns the response headers.
func (c *Client) request(
	ctx context.Context,
	method, path string,
	query url.Values,
	body []byte,
	out any,
) (http.Header, error) {
	endpoint := c.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var header http.Header
	err := c.breaker.Execute(ctx, func() error {
		var reader io.Reader = http.NoBody
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request %s: %w", path, err)
		}
		defer resp.Body.Close()

		if httpErr := infraerrors.ParseHTTPError(resp); httpErr != nil {
			return httpErr
		}

		header = resp.Header

		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()
		if decodeErr := dec.Decode(out); decodeErr != nil && !errors.Is(decodeErr, io.EOF) {
			return fmt.Errorf("decode response: %w", decodeErr)
		}
		return nil
	})
	return header, err
}
