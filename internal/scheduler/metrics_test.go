package scheduler

import (
	"sync"
	"testing"
	"time"
)

func TestSchedulerMetricsCountsOutcomes(t *testing.T) {
	m := &SchedulerMetrics{}

	m.ExecutionStarted()
	m.ExecutionCompleted(12, 100*time.Millisecond)

	m.ExecutionStarted()
	m.ExecutionFailed(200 * time.Millisecond)

	m.ExecutionSkipped()

	snap := m.Snapshot()
	if snap.ExecutionsRunning != 0 {
		t.Errorf("ExecutionsRunning = %d, want 0", snap.ExecutionsRunning)
	}
	if snap.ExecutionsCompleted != 1 {
		t.Errorf("ExecutionsCompleted = %d, want 1", snap.ExecutionsCompleted)
	}
	if snap.ExecutionsFailed != 1 {
		t.Errorf("ExecutionsFailed = %d, want 1", snap.ExecutionsFailed)
	}
	if snap.ExecutionsSkipped != 1 {
		t.Errorf("ExecutionsSkipped = %d, want 1", snap.ExecutionsSkipped)
	}
	if snap.TotalExecutions != 2 {
		t.Errorf("TotalExecutions = %d, want 2", snap.TotalExecutions)
	}
	if snap.TotalBooksCrawled != 12 {
		t.Errorf("TotalBooksCrawled = %d, want 12", snap.TotalBooksCrawled)
	}
	// Running average of 100ms and 200ms.
	if snap.AverageDurationMs != 150 {
		t.Errorf("AverageDurationMs = %f, want 150", snap.AverageDurationMs)
	}
	if snap.LastFireAt.IsZero() {
		t.Error("LastFireAt should be set after a start")
	}
}

func TestSchedulerMetricsRunningBalance(t *testing.T) {
	m := &SchedulerMetrics{}

	m.ExecutionStarted()
	m.ExecutionStarted()
	if got := m.Snapshot().ExecutionsRunning; got != 2 {
		t.Fatalf("ExecutionsRunning = %d, want 2", got)
	}

	m.ExecutionCompleted(1, time.Millisecond)
	if got := m.Snapshot().ExecutionsRunning; got != 1 {
		t.Fatalf("ExecutionsRunning = %d, want 1", got)
	}

	m.ExecutionFailed(time.Millisecond)
	if got := m.Snapshot().ExecutionsRunning; got != 0 {
		t.Fatalf("ExecutionsRunning = %d, want 0", got)
	}
}

func TestSchedulerMetricsSnapshotIsCopy(t *testing.T) {
	m := &SchedulerMetrics{}
	m.ExecutionStarted()

	snap := m.Snapshot()
	m.ExecutionCompleted(5, time.Millisecond)

	if snap.ExecutionsCompleted != 0 {
		t.Error("snapshot should not see later updates")
	}
	if m.Snapshot().ExecutionsCompleted != 1 {
		t.Error("live metrics should see the update")
	}
}

func TestSchedulerMetricsConcurrentUpdates(t *testing.T) {
	m := &SchedulerMetrics{}

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.ExecutionStarted()
				m.ExecutionCompleted(1, time.Millisecond)
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.TotalExecutions != workers*perWorker {
		t.Errorf("TotalExecutions = %d, want %d", snap.TotalExecutions, workers*perWorker)
	}
	if snap.ExecutionsRunning != 0 {
		t.Errorf("ExecutionsRunning = %d, want 0", snap.ExecutionsRunning)
	}
	if snap.TotalBooksCrawled != workers*perWorker {
		t.Errorf("TotalBooksCrawled = %d, want %d", snap.TotalBooksCrawled, workers*perWorker)
	}
}
