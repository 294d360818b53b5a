package monitoring

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// MemoryMonitor compares heap and goroutine counts against a baseline
// taken after warmup. Long analyze batches hold LLM responses in memory,
// so growth past the threshold usually means a leaked job.
type MemoryMonitor struct {
	mu                 sync.RWMutex
	baselineHeap       uint64
	baselineGoroutines int
	threshold          float64
	interval           time.Duration
	warn               func(report string)
}

// NewMemoryMonitor returns a monitor that calls warn when heap or goroutines
// grow past threshold times the baseline.
func NewMemoryMonitor(threshold float64, interval time.Duration, warn func(string)) *MemoryMonitor {
	return &MemoryMonitor{threshold: threshold, interval: interval, warn: warn}
}

// EstablishBaseline records the current heap and goroutine count.
func (m *MemoryMonitor) EstablishBaseline() {
	runtime.GC()

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	m.mu.Lock()
	m.baselineHeap = stats.Alloc
	m.baselineGoroutines = runtime.NumGoroutine()
	m.mu.Unlock()
}

// CheckForLeaks reports growth beyond the threshold. It returns false until a baseline exists.
func (m *MemoryMonitor) CheckForLeaks() (leaked bool, report string) {
	m.mu.RLock()
	baselineHeap, baselineGoroutines := m.baselineHeap, m.baselineGoroutines
	m.mu.RUnlock()

	if baselineHeap == 0 || baselineGoroutines == 0 {
		return false, ""
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	if growth := float64(stats.Alloc) / float64(baselineHeap); growth > m.threshold {
		return true, fmt.Sprintf("heap grew %.2fx (%.2f MB to %.2f MB)",
			growth, float64(baselineHeap)/bytesPerMB, float64(stats.Alloc)/bytesPerMB)
	}

	goroutines := runtime.NumGoroutine()
	if growth := float64(goroutines) / float64(baselineGoroutines); growth > m.threshold {
		return true, fmt.Sprintf("goroutines grew %.2fx (%d to %d)", growth, baselineGoroutines, goroutines)
	}

	return false, ""
}

// Run establishes the baseline after warmup, then checks every interval until ctx ends.
func (m *MemoryMonitor) Run(ctx context.Context, warmup time.Duration) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(warmup):
	}
	m.EstablishBaseline()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if leaked, report := m.CheckForLeaks(); leaked && m.warn != nil {
				m.warn(report)
			}
		}
	}
}
