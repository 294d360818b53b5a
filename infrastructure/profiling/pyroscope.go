package profiling

import (
	"fmt"
	"os"
	"runtime"

	"github.com/grafana/pyroscope-go"

	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
)

// PyroscopeProfiler wraps a running profiler. A nil value is safe to Stop.
type PyroscopeProfiler struct {
	profiler *pyroscope.Profiler
}

// StartPyroscope starts continuous profiling when enabled and returns nil otherwise.
func StartPyroscope(serviceName, version string, cfg Config, log infralogger.Logger) (*PyroscopeProfiler, error) {
	if !cfg.PyroscopeEnabled {
		return nil, nil //nolint:nilnil // disabled is not an error
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "north-cloud." + serviceName,
		ServerAddress:   cfg.PyroscopeServerURL,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
		Tags: map[string]string{
			"environment": cfg.PyroscopeEnvironment,
			"version":     version,
			"hostname":    hostname,
			"go_version":  runtime.Version(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("start pyroscope profiler: %w", err)
	}

	log.Info("Pyroscope continuous profiling started",
		infralogger.String("server", cfg.PyroscopeServerURL),
		infralogger.String("environment", cfg.PyroscopeEnvironment),
	)

	return &PyroscopeProfiler{profiler: profiler}, nil
}

// Stop flushes and stops the profiler.
func (p *PyroscopeProfiler) Stop() error {
	if p == nil || p.profiler == nil {
		return nil
	}
	return p.profiler.Stop()
}
