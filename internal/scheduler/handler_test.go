package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonesrussell/bookwatch/internal/domain"
	"github.com/jonesrussell/bookwatch/internal/logger"
)

// scriptedHandler returns canned results in order, repeating the last one.
type scriptedHandler struct {
	results []*JobResult
	calls   int
	panics  bool
}

func (h *scriptedHandler) Execute(_ context.Context, _ *JobContext) *JobResult {
	h.calls++
	if h.panics {
		panic("exploded")
	}
	if len(h.results) == 0 {
		return nil
	}
	if h.calls <= len(h.results) {
		res := *h.results[h.calls-1]
		return &res
	}
	res := *h.results[len(h.results)-1]
	return &res
}

func (h *scriptedHandler) Name() string { return "scripted" }

type hookRecorder struct {
	successes int
	failures  int
	retries   []int
	waits     []time.Duration
}

func (r *hookRecorder) hooks() Hooks {
	return Hooks{
		OnSuccess: func(*JobContext, *JobResult) { r.successes++ },
		OnFailure: func(*JobContext, *JobResult) { r.failures++ },
		OnRetry: func(_ *JobContext, attempt int, wait time.Duration) {
			r.retries = append(r.retries, attempt)
			r.waits = append(r.waits, wait)
		},
	}
}

func setBaseRetryDelay(t *testing.T, d time.Duration) {
	t.Helper()
	orig := baseRetryDelay
	baseRetryDelay = d
	t.Cleanup(func() { baseRetryDelay = orig })
}

func TestExecuteWithRetrySucceedsFirstTry(t *testing.T) {
	h := &scriptedHandler{results: []*JobResult{{Success: true, BooksCrawled: 4}}}
	rec := &hookRecorder{}

	result := ExecuteWithRetry(context.Background(), h, &JobContext{MaxRetries: 3}, rec.hooks())

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", result.Attempts)
	}
	if h.calls != 1 {
		t.Errorf("handler ran %d times, want 1", h.calls)
	}
	if rec.successes != 1 || rec.failures != 0 || len(rec.retries) != 0 {
		t.Errorf("hooks = %d success, %d failure, %d retry; want 1/0/0",
			rec.successes, rec.failures, len(rec.retries))
	}
}

func TestExecuteWithRetryRetriesRetryableFailure(t *testing.T) {
	setBaseRetryDelay(t, time.Millisecond)

	h := &scriptedHandler{results: []*JobResult{
		{Success: false, Error: "overloaded", Retryable: true},
		{Success: true, BooksCrawled: 2},
	}}
	rec := &hookRecorder{}

	result := ExecuteWithRetry(context.Background(), h, &JobContext{MaxRetries: 3}, rec.hooks())

	if !result.Success {
		t.Fatalf("expected eventual success, got %q", result.Error)
	}
	if result.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", result.Attempts)
	}
	if len(rec.retries) != 1 || rec.retries[0] != 1 {
		t.Fatalf("retries = %v, want [1]", rec.retries)
	}
	if rec.waits[0] != time.Millisecond {
		t.Errorf("first wait = %v, want %v", rec.waits[0], time.Millisecond)
	}
	if rec.successes != 1 || rec.failures != 0 {
		t.Errorf("hooks = %d success, %d failure; want 1/0", rec.successes, rec.failures)
	}
}

func TestExecuteWithRetryStopsOnNonRetryable(t *testing.T) {
	h := &scriptedHandler{results: []*JobResult{
		{Success: false, Error: "unknown task", Retryable: false},
	}}
	rec := &hookRecorder{}

	result := ExecuteWithRetry(context.Background(), h, &JobContext{MaxRetries: 5}, rec.hooks())

	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Attempts != 1 || h.calls != 1 {
		t.Errorf("Attempts = %d, calls = %d, want 1/1", result.Attempts, h.calls)
	}
	if len(rec.retries) != 0 {
		t.Errorf("retries = %v, want none", rec.retries)
	}
	if rec.failures != 1 {
		t.Errorf("failures = %d, want 1", rec.failures)
	}
}

func TestExecuteWithRetryExhaustsAttempts(t *testing.T) {
	setBaseRetryDelay(t, time.Millisecond)

	h := &scriptedHandler{results: []*JobResult{
		{Success: false, Error: "still down", Retryable: true},
	}}
	rec := &hookRecorder{}

	result := ExecuteWithRetry(context.Background(), h, &JobContext{MaxRetries: 2}, rec.hooks())

	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Attempts != 3 || h.calls != 3 {
		t.Errorf("Attempts = %d, calls = %d, want 3/3", result.Attempts, h.calls)
	}
	if len(rec.retries) != 2 || rec.retries[0] != 1 || rec.retries[1] != 2 {
		t.Errorf("retries = %v, want [1 2]", rec.retries)
	}
	if rec.failures != 1 || rec.successes != 0 {
		t.Errorf("hooks = %d success, %d failure; want 0/1", rec.successes, rec.failures)
	}
}

func TestExecuteWithRetryNegativeMaxRetriesRunsOnce(t *testing.T) {
	h := &scriptedHandler{results: []*JobResult{
		{Success: false, Error: "boom", Retryable: true},
	}}

	result := ExecuteWithRetry(context.Background(), h, &JobContext{MaxRetries: -4}, Hooks{})

	if result.Attempts != 1 || h.calls != 1 {
		t.Errorf("Attempts = %d, calls = %d, want 1/1", result.Attempts, h.calls)
	}
}

func TestExecuteWithRetryPanicBecomesFailure(t *testing.T) {
	h := &scriptedHandler{panics: true}
	rec := &hookRecorder{}

	result := ExecuteWithRetry(context.Background(), h, &JobContext{MaxRetries: 0}, rec.hooks())

	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, "panicked") {
		t.Errorf("Error = %q, want panic message", result.Error)
	}
	if result.Retryable {
		t.Error("panics must not be retryable")
	}
	if rec.failures != 1 {
		t.Errorf("failures = %d, want 1", rec.failures)
	}
}

func TestExecuteWithRetryNilResultBecomesFailure(t *testing.T) {
	h := &scriptedHandler{}

	result := ExecuteWithRetry(context.Background(), h, &JobContext{MaxRetries: 0}, Hooks{})

	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, "returned no result") {
		t.Errorf("Error = %q, want missing-result message", result.Error)
	}
}

func TestExecuteWithRetryContextCancelAbortsBackoff(t *testing.T) {
	setBaseRetryDelay(t, time.Minute)

	h := &scriptedHandler{results: []*JobResult{
		{Success: false, Error: "down", Retryable: true},
	}}
	rec := &hookRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	result := ExecuteWithRetry(ctx, h, &JobContext{MaxRetries: 3}, rec.hooks())

	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("backoff not aborted, took %v", elapsed)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, "retry aborted") {
		t.Errorf("Error = %q, want retry-aborted suffix", result.Error)
	}
	if result.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", result.Attempts)
	}
	if rec.failures != 1 {
		t.Errorf("failures = %d, want 1", rec.failures)
	}
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
		{7, maxRetryBackoff},
		{16, maxRetryBackoff},
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffDelayNeverOverflows(t *testing.T) {
	// Shifts past 63 bits used to wrap negative and produce hot retry
	// loops; every attempt count must yield a positive, capped wait.
	for _, attempt := range []int{17, 35, 63, 64, 65, 128, 1 << 20} {
		got := backoffDelay(attempt)
		if got <= 0 {
			t.Fatalf("backoffDelay(%d) = %v, want positive", attempt, got)
		}
		if got != maxRetryBackoff {
			t.Errorf("backoffDelay(%d) = %v, want cap %v", attempt, got, maxRetryBackoff)
		}
	}
}

type fakeRunner struct {
	lastTask string
	result   *domain.CrawlResult
}

func (r *fakeRunner) Run(_ context.Context, taskID string) *domain.CrawlResult {
	r.lastTask = taskID
	return r.result
}

func TestCrawlHandlerMapsResult(t *testing.T) {
	runner := &fakeRunner{result: &domain.CrawlResult{
		Success:       false,
		TaskID:        "top-weekly",
		BooksCrawled:  3,
		ExecutionTime: 2 * time.Second,
		Error:         "fetching page: 503",
		Retryable:     true,
	}}
	h := NewCrawlHandler(runner, logger.NewNoOp())

	if h.Name() != "crawl" {
		t.Errorf("Name() = %q, want crawl", h.Name())
	}

	result := h.Execute(context.Background(), &JobContext{JobID: "j1", TaskID: "top-weekly"})

	if runner.lastTask != "top-weekly" {
		t.Errorf("runner task = %q, want top-weekly", runner.lastTask)
	}
	if result.Success || result.BooksCrawled != 3 || !result.Retryable {
		t.Errorf("result = %+v, want mapped crawl outcome", result)
	}
	if result.Duration != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", result.Duration)
	}
	if result.Error != "fetching page: 503" {
		t.Errorf("Error = %q, want propagated message", result.Error)
	}
}

func TestNewHandlerUnknownType(t *testing.T) {
	_, err := NewHandler(HandlerType("reindex"), HandlerDeps{Logger: logger.NewNoOp()})
	if !errors.Is(err, ErrUnknownHandlerType) {
		t.Errorf("err = %v, want ErrUnknownHandlerType", err)
	}
}

func TestHandlerTypeFor(t *testing.T) {
	tests := []struct {
		name string
		data domain.JSONBMap
		want HandlerType
	}{
		{"default", nil, HandlerTypeCrawl},
		{"override", domain.JSONBMap{"handler": "custom"}, HandlerType("custom")},
		{"empty override", domain.JSONBMap{"handler": ""}, HandlerTypeCrawl},
		{"non-string override", domain.JSONBMap{"handler": 7}, HandlerTypeCrawl},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &domain.Job{Data: tt.data}
			if got := handlerTypeFor(job); got != tt.want {
				t.Errorf("handlerTypeFor = %q, want %q", got, tt.want)
			}
		})
	}
}
