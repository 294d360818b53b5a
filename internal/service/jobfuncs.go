package service

import "context"

// IngestJob adapts an ingest run to a JobFunc.
func IngestJob(ingester *Ingester, opts IngestOptions) JobFunc {
	return func(ctx context.Context, progress ProgressFunc) (any, error) {
		opts.Progress = progress
		result, err := ingester.Ingest(ctx, opts)
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

// AnalyzeJob adapts an analysis batch to a JobFunc. A batch interrupted
// by shutdown still reports its partial counts.
func AnalyzeJob(svc *AnalysisService, opts AnalyzeOptions) JobFunc {
	return func(ctx context.Context, progress ProgressFunc) (any, error) {
		opts.Progress = progress
		result, err := svc.Analyze(ctx, opts)
		if result == nil {
			return nil, err
		}
		return result, err
	}
}
