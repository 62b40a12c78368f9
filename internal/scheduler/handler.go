package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/bookwatch/internal/domain"
	"github.com/jonesrussell/bookwatch/internal/logger"
)

const (
	// maxRetryBackoff caps the doubling delay between handler attempts.
	maxRetryBackoff = 60 * time.Second
)

// baseRetryDelay is the delay before the first handler retry. Tests shrink it.
var baseRetryDelay = time.Second

// ErrUnknownHandlerType is returned when no factory is registered for a type.
var ErrUnknownHandlerType = errors.New("unknown handler type")

// HandlerType names a registered handler implementation.
type HandlerType string

// HandlerTypeCrawl runs the crawl orchestrator.
const HandlerTypeCrawl HandlerType = "crawl"

// JobContext carries everything a handler needs for one firing.
type JobContext struct {
	JobID       string
	ScheduledAt time.Time
	TriggeredAt time.Time
	TaskID      string
	Data        map[string]any
	MaxRetries  int
}

// JobResult reports the outcome of one firing.
type JobResult struct {
	Success      bool
	BooksCrawled int
	// Attempts is how many handler executions ran, 1 when the first try
	// succeeded.
	Attempts int
	Duration time.Duration
	Error    string
	// Retryable marks failures worth another attempt. Only the handler can
	// classify this; ExecuteWithRetry never inspects Error text.
	Retryable bool
}

// Handler executes one scheduled job occurrence.
type Handler interface {
	Execute(ctx context.Context, jobCtx *JobContext) *JobResult
	Name() string
}

// Hooks observe handler lifecycle events. Nil hooks are skipped.
type Hooks struct {
	OnSuccess func(jobCtx *JobContext, result *JobResult)
	OnFailure func(jobCtx *JobContext, result *JobResult)
	OnRetry   func(jobCtx *JobContext, attempt int, wait time.Duration)
}

// ExecuteWithRetry runs the handler up to MaxRetries+1 times, doubling the
// wait between attempts (1s, 2s, 4s, capped at 60s). Only results the handler
// marked retryable get another attempt. It always returns a JobResult and
// never panics: a panicking handler yields a failed, non-retryable result.
func ExecuteWithRetry(ctx context.Context, h Handler, jobCtx *JobContext, hooks Hooks) *JobResult {
	start := time.Now()
	attempts := jobCtx.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var result *JobResult
	for attempt := 1; attempt <= attempts; attempt++ {
		result = runAttempt(ctx, h, jobCtx)
		result.Attempts = attempt

		if result.Success {
			result.Duration = time.Since(start)
			if hooks.OnSuccess != nil {
				hooks.OnSuccess(jobCtx, result)
			}
			return result
		}

		if !result.Retryable || attempt == attempts {
			break
		}

		wait := backoffDelay(attempt)
		if hooks.OnRetry != nil {
			hooks.OnRetry(jobCtx, attempt, wait)
		}

		select {
		case <-ctx.Done():
			result.Error = fmt.Sprintf("%s (retry aborted: %v)", result.Error, ctx.Err())
			result.Duration = time.Since(start)
			if hooks.OnFailure != nil {
				hooks.OnFailure(jobCtx, result)
			}
			return result
		case <-time.After(wait):
		}
	}

	result.Duration = time.Since(start)
	if hooks.OnFailure != nil {
		hooks.OnFailure(jobCtx, result)
	}
	return result
}

// runAttempt executes the handler once, converting a panic into a failed
// result so a broken handler cannot take the scheduler down.
func runAttempt(ctx context.Context, h Handler, jobCtx *JobContext) (result *JobResult) {
	defer func() {
		if r := recover(); r != nil {
			result = &JobResult{
				Success: false,
				Error:   fmt.Sprintf("handler %s panicked: %v", h.Name(), r),
			}
		}
	}()

	result = h.Execute(ctx, jobCtx)
	if result == nil {
		result = &JobResult{Success: false, Error: fmt.Sprintf("handler %s returned no result", h.Name())}
	}
	return result
}

// maxBackoffShift bounds the doubling exponent; past it the shift would
// wrap time.Duration negative.
const maxBackoffShift = 16

// backoffDelay returns the capped doubling delay before the next attempt.
func backoffDelay(attempt int) time.Duration {
	if attempt > maxBackoffShift {
		return maxRetryBackoff
	}
	wait := baseRetryDelay << (attempt - 1)
	if wait <= 0 || wait > maxRetryBackoff {
		wait = maxRetryBackoff
	}
	return wait
}

// CrawlRunner is the orchestrator surface the crawl handler needs.
type CrawlRunner interface {
	Run(ctx context.Context, taskID string) *domain.CrawlResult
}

// CrawlHandler binds job execution to the crawl orchestrator.
type CrawlHandler struct {
	runner CrawlRunner
	logger logger.Interface
}

// NewCrawlHandler creates a crawl handler.
func NewCrawlHandler(runner CrawlRunner, log logger.Interface) *CrawlHandler {
	return &CrawlHandler{runner: runner, logger: log}
}

// Name returns the handler type name.
func (h *CrawlHandler) Name() string {
	return string(HandlerTypeCrawl)
}

// Execute runs one crawl for the job's task.
func (h *CrawlHandler) Execute(ctx context.Context, jobCtx *JobContext) *JobResult {
	h.logger.Info("Executing crawl job",
		"job_id", jobCtx.JobID,
		"task_id", jobCtx.TaskID)

	result := h.runner.Run(ctx, jobCtx.TaskID)

	return &JobResult{
		Success:      result.Success,
		BooksCrawled: result.BooksCrawled,
		Duration:     result.ExecutionTime,
		Error:        result.Error,
		Retryable:    result.Retryable,
	}
}

// HandlerDeps carries the dependencies handler factories may draw from.
type HandlerDeps struct {
	Runner CrawlRunner
	Logger logger.Interface
}

// handlerFactories maps each handler type to its constructor. Dispatch is a
// plain map lookup resolved when the job registers.
var handlerFactories = map[HandlerType]func(deps HandlerDeps) Handler{
	HandlerTypeCrawl: func(deps HandlerDeps) Handler {
		return NewCrawlHandler(deps.Runner, deps.Logger)
	},
}

// NewHandler constructs the handler registered for the given type.
func NewHandler(t HandlerType, deps HandlerDeps) (Handler, error) {
	factory, ok := handlerFactories[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandlerType, t)
	}
	return factory(deps), nil
}

// handlerTypeFor picks the handler type for a job. Jobs may override the
// default crawl handler through their data map.
func handlerTypeFor(job *domain.Job) HandlerType {
	if raw, ok := job.Data["handler"]; ok {
		if name, ok := raw.(string); ok && name != "" {
			return HandlerType(name)
		}
	}
	return HandlerTypeCrawl
}
