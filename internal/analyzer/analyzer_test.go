package analyzer_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/analyzer"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/domain"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/llm"
)

const validAnswer = `{"summary":"Short summary.","sentiment":"negative","keywords":["storm","power outage"]}`

// scriptedCompleter returns the queued results in order, repeating the last one.
type scriptedCompleter struct {
	mu      sync.Mutex
	results []result
	calls   int
	last    llm.Request
}

type result struct {
	text string
	err  error
}

func (c *scriptedCompleter) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = req
	r := c.results[min(c.calls, len(c.results)-1)]
	c.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &llm.Response{Text: r.text, Model: "test-model"}, nil
}

type recordingSleep struct {
	delays []time.Duration
}

func (s *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func rateLimited(after time.Duration) error {
	return &llm.StatusError{Provider: "openai", StatusCode: http.StatusTooManyRequests, RetryAfter: after}
}

type countingObserver struct {
	completions int
	retries     []int
}

func (o *countingObserver) CompletionFinished(time.Duration, error) { o.completions++ }
func (o *countingObserver) RateLimited(n int, _ time.Duration)     { o.retries = append(o.retries, n) }

func TestAnalyze_Success(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{results: []result{{text: validAnswer}}}
	a := analyzer.New(completer, analyzer.Options{})

	got, err := a.Analyze(context.Background(), "<p>Storm knocks out power</p>")
	require.NoError(t, err)

	assert.Equal(t, &domain.Analysis{
		Summary:   "Short summary.",
		Sentiment: domain.SentimentNegative,
		Keywords:  []string{"storm", "power outage"},
	}, got)
	assert.True(t, completer.last.JSON)
	assert.Contains(t, completer.last.Prompt, "Storm knocks out power")
	assert.NotContains(t, completer.last.Prompt, "<p>")
	assert.Equal(t, analyzer.DefaultMaxTokens, completer.last.MaxTokens)
}

func TestAnalyze_EmptyContent(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{results: []result{{text: validAnswer}}}
	a := analyzer.New(completer, analyzer.Options{})

	_, err := a.Analyze(context.Background(), "<div>  </div>")
	require.ErrorIs(t, err, analyzer.ErrEmptyContent)
	assert.Zero(t, completer.calls)
}

func TestAnalyze_RetriesRateLimitWithBackoff(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{results: []result{
		{err: rateLimited(0)},
		{err: rateLimited(0)},
		{text: validAnswer},
	}}
	sleeper := &recordingSleep{}
	observer := &countingObserver{}
	a := analyzer.New(completer, analyzer.Options{},
		analyzer.WithSleep(sleeper.sleep),
		analyzer.WithObserver(observer),
	)

	_, err := a.Analyze(context.Background(), "text")
	require.NoError(t, err)

	assert.Equal(t, 3, completer.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
	assert.Equal(t, 3, observer.completions)
	assert.Equal(t, []int{0, 1}, observer.retries)
}

func TestAnalyze_RetryAfterWinsWhenLonger(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{results: []result{{err: rateLimited(3 * time.Second)}}}
	sleeper := &recordingSleep{}
	a := analyzer.New(completer, analyzer.Options{}, analyzer.WithSleep(sleeper.sleep))

	_, err := a.Analyze(context.Background(), "text")
	require.Error(t, err)

	assert.Equal(t, 4, completer.calls, "one attempt plus three retries")
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second, 4 * time.Second}, sleeper.delays)
	require.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)

	statusErr, ok := llm.AsStatusError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
}

func TestAnalyze_OtherStatusNotRetried(t *testing.T) {
	t.Parallel()

	upstream := &llm.StatusError{Provider: "openai", StatusCode: http.StatusInternalServerError}
	completer := &scriptedCompleter{results: []result{{err: upstream}}}
	sleeper := &recordingSleep{}
	a := analyzer.New(completer, analyzer.Options{}, analyzer.WithSleep(sleeper.sleep))

	_, err := a.Analyze(context.Background(), "text")
	require.ErrorIs(t, err, upstream)
	assert.NotErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	assert.Equal(t, 1, completer.calls)
	assert.Empty(t, sleeper.delays)
}

func TestAnalyze_InvalidCompletionNotRetried(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{results: []result{{text: "I'd rather not."}}}
	a := analyzer.New(completer, analyzer.Options{})

	_, err := a.Analyze(context.Background(), "text")
	require.ErrorIs(t, err, analyzer.ErrInvalidCompletion)
	assert.Equal(t, 1, completer.calls)
}

func TestAnalyze_CancelledWhileWaiting(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{results: []result{{err: rateLimited(time.Hour)}}}
	ctx, cancel := context.WithCancel(context.Background())
	a := analyzer.New(completer, analyzer.Options{}, analyzer.WithSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}))

	_, err := a.Analyze(ctx, "text")
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, errors.Is(err, retry.ErrContextCancelled))
	assert.Equal(t, 1, completer.calls)
}
