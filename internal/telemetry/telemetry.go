// Package telemetry exposes the Prometheus metrics and tracing used by the
// ingest and analyze operations.
package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/domain"
)

const (
	serviceName = "scrape-analyzer"
	namespace   = "scrape_analyzer"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	Items              *prometheus.CounterVec
	Analyses           *prometheus.CounterVec
	RateLimitedRetries prometheus.Counter
	CompletionDuration *prometheus.HistogramVec
	Jobs               *prometheus.CounterVec
	JobDuration        *prometheus.HistogramVec
}

// Provider bundles metrics and a tracer. A nil *Provider is valid and
// records nothing, which keeps tests and CLI one-shots free of wiring.
type Provider struct {
	Tracer  trace.Tracer
	Metrics *Metrics
}

// NewProvider registers the collectors on reg. Pass the registry served on
// /metrics; use a fresh prometheus.NewRegistry in tests.
func NewProvider(reg prometheus.Registerer) *Provider {
	return &Provider{
		Tracer:  otel.Tracer(serviceName),
		Metrics: initMetrics(promauto.With(reg)),
	}
}

func initMetrics(factory promauto.Factory) *Metrics {
	return &Metrics{
		Items: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_items_total",
			Help:      "Dataset items seen by ingest, by outcome (fetched, inserted, duplicate, invalid).",
		}, []string{"outcome"}),
		Analyses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Records processed by analyze, by outcome (analyzed, failed, skipped).",
		}, []string{"outcome"}),
		RateLimitedRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_rate_limited_retries_total",
			Help:      "Completion calls retried after a 429 answer.",
		}),
		CompletionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_completion_duration_seconds",
			Help:      "Latency of single completion calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"status"}),
		Jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished jobs by kind and status.",
		}, []string{"kind", "status"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of finished jobs by kind.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"kind"}),
	}
}

// RecordIngest adds one ingest run's counts.
func (p *Provider) RecordIngest(r *domain.IngestResult) {
	if p == nil || r == nil {
		return
	}
	p.Metrics.Items.WithLabelValues("fetched").Add(float64(r.Fetched))
	p.Metrics.Items.WithLabelValues("inserted").Add(float64(r.Inserted))
	p.Metrics.Items.WithLabelValues("duplicate").Add(float64(r.Duplicates))
	p.Metrics.Items.WithLabelValues("invalid").Add(float64(r.Invalid))
}

// RecordAnalyze adds one analysis batch's counts.
func (p *Provider) RecordAnalyze(r *domain.AnalyzeResult) {
	if p == nil || r == nil {
		return
	}
	p.Metrics.Analyses.WithLabelValues("analyzed").Add(float64(r.Analyzed))
	p.Metrics.Analyses.WithLabelValues("failed").Add(float64(r.Failed))
	p.Metrics.Analyses.WithLabelValues("skipped").Add(float64(r.Skipped))
}

// RecordJob counts a finished job.
func (p *Provider) RecordJob(kind, status string, d time.Duration) {
	if p == nil {
		return
	}
	p.Metrics.Jobs.WithLabelValues(kind, status).Inc()
	p.Metrics.JobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// CompletionFinished observes one completion call.
func (p *Provider) CompletionFinished(d time.Duration, err error) {
	if p == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.Metrics.CompletionDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RateLimited counts a 429 retry.
func (p *Provider) RateLimited(int, time.Duration) {
	if p == nil {
		return
	}
	p.Metrics.RateLimitedRetries.Inc()
}

// StartSpan starts a span; the caller ends it. A nil Provider uses the
// global tracer, which is a no-op unless an SDK is installed.
//
//nolint:spancheck // Caller is responsible for ending the span
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(serviceName)
	if p != nil && p.Tracer != nil {
		tracer = p.Tracer
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
