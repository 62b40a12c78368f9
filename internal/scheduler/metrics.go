package scheduler

import (
	"sync"
	"time"
)

// SchedulerMetrics holds real-time counters for the scheduler.
type SchedulerMetrics struct {
	mu sync.RWMutex

	// Execution counts by outcome
	ExecutionsRunning   int64
	ExecutionsCompleted int64
	ExecutionsFailed    int64
	ExecutionsSkipped   int64

	// Aggregates
	TotalExecutions   int64
	TotalBooksCrawled int64
	AverageDurationMs float64

	LastFireAt        time.Time
	LastMetricsUpdate time.Time
}

// ExecutionStarted marks one more in-flight execution.
func (m *SchedulerMetrics) ExecutionStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExecutionsRunning++
	m.TotalExecutions++
	m.LastFireAt = time.Now()
}

// ExecutionCompleted folds a finished run into the counters.
func (m *SchedulerMetrics) ExecutionCompleted(booksCrawled int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExecutionsRunning--
	m.ExecutionsCompleted++
	m.TotalBooksCrawled += int64(booksCrawled)
	m.foldDuration(duration)
}

// ExecutionFailed folds a failed run into the counters.
func (m *SchedulerMetrics) ExecutionFailed(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExecutionsRunning--
	m.ExecutionsFailed++
	m.foldDuration(duration)
}

// ExecutionSkipped counts a fire suppressed by max_instances or misfire
// grace. Skipped fires never enter the running count.
func (m *SchedulerMetrics) ExecutionSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExecutionsSkipped++
	m.LastMetricsUpdate = time.Now()
}

// foldDuration updates the running average. Callers hold the lock.
func (m *SchedulerMetrics) foldDuration(duration time.Duration) {
	finished := m.ExecutionsCompleted + m.ExecutionsFailed
	if finished <= 0 {
		return
	}
	ms := float64(duration.Milliseconds())
	m.AverageDurationMs += (ms - m.AverageDurationMs) / float64(finished)
	m.LastMetricsUpdate = time.Now()
}

// Snapshot returns a copy of the current metrics (thread-safe).
func (m *SchedulerMetrics) Snapshot() SchedulerMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return SchedulerMetrics{
		ExecutionsRunning:   m.ExecutionsRunning,
		ExecutionsCompleted: m.ExecutionsCompleted,
		ExecutionsFailed:    m.ExecutionsFailed,
		ExecutionsSkipped:   m.ExecutionsSkipped,
		TotalExecutions:     m.TotalExecutions,
		TotalBooksCrawled:   m.TotalBooksCrawled,
		AverageDurationMs:   m.AverageDurationMs,
		LastFireAt:          m.LastFireAt,
		LastMetricsUpdate:   m.LastMetricsUpdate,
	}
}
