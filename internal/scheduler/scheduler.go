// Package scheduler provides the durable cron-backed job scheduler that
// drives crawl executions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/bookwatch/internal/config"
	"github.com/jonesrussell/bookwatch/internal/database"
	"github.com/jonesrussell/bookwatch/internal/domain"
	"github.com/jonesrussell/bookwatch/internal/logger"
	"github.com/jonesrussell/bookwatch/internal/metrics"
	"github.com/jonesrussell/bookwatch/internal/tasks"
)

// Scheduler errors.
var (
	// ErrInvalidTrigger is returned when a job's trigger definition is unusable.
	ErrInvalidTrigger = errors.New("invalid trigger")
	// ErrBatchNotFound is returned when a batch id matches no jobs.
	ErrBatchNotFound = errors.New("batch not found")
)

// taskAll expands to every configured crawl task in batch submissions.
const taskAll = "all"

// SchedulerStatus is a point-in-time view of the scheduler.
type SchedulerStatus struct {
	Running     bool   `json:"running"`
	JobCount    int    `json:"job_count"`
	RunningJobs int    `json:"running_jobs"`
	PausedJobs  int    `json:"paused_jobs"`
	Uptime      string `json:"uptime"`
}

// BatchInfo summarizes the jobs created by one batch submission.
type BatchInfo struct {
	BatchID   string `json:"batch_id"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Running   int    `json:"running"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

// Batch status values.
const (
	BatchStatusRunning   = "running"
	BatchStatusCompleted = "completed"
)

// Scheduler owns the live triggers for all enabled jobs. The job store is the
// single source of truth: every mutation lands there first and the live cron
// entries are rebuilt from it at Start.
type Scheduler struct {
	logger   logger.Interface
	jobs     database.JobStore
	execs    database.ExecutionStore
	registry *tasks.Registry
	prom     *metrics.Metrics
	config   config.SchedulerConfig
	deps     HandlerDeps
	metrics  *SchedulerMetrics

	cron       *cron.Cron
	cronParser cron.Parser

	mu        sync.RWMutex
	entries   map[string]cron.EntryID
	timers    map[string]*time.Timer
	handlers  map[string]Handler
	active    map[string]int
	running   bool
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler backed by the given stores.
func NewScheduler(
	log logger.Interface,
	jobs database.JobStore,
	execs database.ExecutionStore,
	registry *tasks.Registry,
	prom *metrics.Metrics,
	cfg config.SchedulerConfig,
	deps HandlerDeps,
) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	// Standard 5-field cron format (minute hour day month weekday).
	cronParser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(cronParser), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	if deps.Logger == nil {
		deps.Logger = log
	}

	return &Scheduler{
		logger:     log,
		jobs:       jobs,
		execs:      execs,
		registry:   registry,
		prom:       prom,
		config:     cfg,
		deps:       deps,
		metrics:    &SchedulerMetrics{},
		cron:       c,
		cronParser: cronParser,
		entries:    make(map[string]cron.EntryID),
		timers:     make(map[string]*time.Timer),
		handlers:   make(map[string]Handler),
		active:     make(map[string]int),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start loads every enabled job from the store and registers its live
// trigger, then starts the cron engine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("Starting scheduler")

	jobs, err := s.jobs.ListEnabled(ctx)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("failed to load enabled jobs: %w", err)
	}

	for _, job := range jobs {
		if regErr := s.registerJob(job); regErr != nil {
			s.logger.Error("Failed to register job", "job_id", job.ID, "error", regErr)
			continue
		}
		// Stored fire times predate this process; recompute them.
		next := s.computeNextRun(job, time.Now())
		if updErr := s.jobs.UpdateRunTimes(ctx, job.ID, nil, next); updErr != nil {
			s.logger.Error("Failed to refresh next run time", "job_id", job.ID, "error", updErr)
		}
	}

	s.cron.Start()
	s.logger.Info("Scheduler started", "jobs", len(jobs))
	return nil
}

// Stop ceases new triggers, waits for in-flight executions, and releases the
// scheduler's lifecycle context. Cooperative only: running handlers finish
// their current work.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	timers := make([]*time.Timer, 0, len(s.timers))
	for id, timer := range s.timers {
		timers = append(timers, timer)
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler")

	for _, timer := range timers {
		timer.Stop()
	}

	cronCtx := s.cron.Stop()
	<-cronCtx.Done()

	s.wg.Wait()
	s.cancel()

	s.logger.Info("Scheduler stopped")
	return nil
}

// AddJob validates and persists a job, then registers its live trigger. The
// job exists only once the store write succeeded.
func (s *Scheduler) AddJob(ctx context.Context, job *domain.Job) error {
	if err := s.validateJob(job); err != nil {
		return err
	}

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.MaxRetries < 0 {
		job.MaxRetries = s.config.DefaultMaxRetries
	}
	if job.MaxInstances <= 0 {
		job.MaxInstances = s.config.DefaultMaxInstances
	}
	if job.MaxInstances <= 0 {
		job.MaxInstances = 1
	}

	now := time.Now()
	if job.Enabled {
		job.Status = string(StateScheduled)
		job.NextRunAt = s.computeNextRun(job, now)
	} else {
		job.Status = string(StatePaused)
		job.NextRunAt = nil
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to persist job: %w", err)
	}

	if !job.Enabled {
		s.logger.Info("Job persisted paused", "job_id", job.ID, "task_id", job.TaskID)
		return nil
	}

	if err := s.registerJob(job); err != nil {
		msg := err.Error()
		if updErr := s.jobs.UpdateStatus(ctx, job.ID, string(StateFailed), &msg); updErr != nil {
			s.logger.Error("Failed to mark unregistrable job", "job_id", job.ID, "error", updErr)
		}
		return fmt.Errorf("failed to register job trigger: %w", err)
	}

	s.logger.Info("Job scheduled",
		"job_id", job.ID,
		"task_id", job.TaskID,
		"trigger", string(job.TriggerType))
	return nil
}

// AddBatchJobs creates one immediate one-off job per task, all sharing the
// batch id. The literal task id "all" expands to every configured task.
// Returns how many jobs were created and how many task submissions failed.
func (s *Scheduler) AddBatchJobs(ctx context.Context, taskIDs []string, batchID string) (int, int, error) {
	if batchID == "" {
		return 0, 0, errors.New("batch id must not be empty")
	}

	expanded := make([]string, 0, len(taskIDs))
	for _, id := range taskIDs {
		if id == taskAll {
			expanded = append(expanded, s.registry.IDs()...)
			continue
		}
		expanded = append(expanded, id)
	}
	if len(expanded) == 0 {
		return 0, 0, errors.New("no tasks to submit")
	}

	var created, failed int
	for _, taskID := range expanded {
		runAt := time.Now()
		job := &domain.Job{
			Name:        fmt.Sprintf("batch %s %s", batchID, taskID),
			TaskID:      taskID,
			TriggerType: domain.TriggerDate,
			RunAt:       &runAt,
			Enabled:     true,
			BatchID:     &batchID,
		}
		if err := s.AddJob(ctx, job); err != nil {
			s.logger.Error("Failed to add batch job",
				"batch_id", batchID,
				"task_id", taskID,
				"error", err)
			failed++
			continue
		}
		created++
	}

	s.logger.Info("Batch submitted", "batch_id", batchID, "created", created, "failed", failed)
	return created, failed, nil
}

// RemoveJob deletes the job from the store and drops its live trigger.
func (s *Scheduler) RemoveJob(ctx context.Context, id string) error {
	if err := s.jobs.Delete(ctx, id); err != nil {
		return err
	}
	s.unregisterJob(id)
	s.logger.Info("Job removed", "job_id", id)
	return nil
}

// PauseJob disables a job: the row survives, the live trigger goes away.
func (s *Scheduler) PauseJob(ctx context.Context, id string) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := ValidateStateTransition(JobState(job.Status), StatePaused); err != nil {
		return err
	}

	job.Enabled = false
	job.Status = string(StatePaused)
	job.NextRunAt = nil
	if err := s.jobs.Update(ctx, job); err != nil {
		return err
	}

	s.unregisterJob(id)
	s.logger.Info("Job paused", "job_id", id)
	return nil
}

// ResumeJob re-enables a paused job and registers its trigger again.
func (s *Scheduler) ResumeJob(ctx context.Context, id string) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := ValidateStateTransition(JobState(job.Status), StateScheduled); err != nil {
		return err
	}

	job.Enabled = true
	job.Status = string(StateScheduled)
	job.NextRunAt = s.computeNextRun(job, time.Now())
	if err := s.jobs.Update(ctx, job); err != nil {
		return err
	}

	if s.isRunning() {
		if regErr := s.registerJob(job); regErr != nil {
			return fmt.Errorf("failed to register resumed job: %w", regErr)
		}
	}

	s.logger.Info("Job resumed", "job_id", id)
	return nil
}

// ModifyJob replaces a job's definition. The stored row is updated first,
// then the live trigger is rebuilt.
func (s *Scheduler) ModifyJob(ctx context.Context, job *domain.Job) error {
	existing, err := s.jobs.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if !CanModify(existing) {
		return fmt.Errorf("job %s is running and cannot be modified", job.ID)
	}
	if err := s.validateJob(job); err != nil {
		return err
	}

	if job.Enabled {
		job.Status = string(StateScheduled)
		job.NextRunAt = s.computeNextRun(job, time.Now())
	} else {
		job.Status = string(StatePaused)
		job.NextRunAt = nil
	}

	if err := s.jobs.Update(ctx, job); err != nil {
		return err
	}

	s.unregisterJob(job.ID)
	if job.Enabled && s.isRunning() {
		if regErr := s.registerJob(job); regErr != nil {
			return fmt.Errorf("failed to register modified job: %w", regErr)
		}
	}

	s.logger.Info("Job modified", "job_id", job.ID)
	return nil
}

// Status reports the scheduler's current shape.
func (s *Scheduler) Status(ctx context.Context) (*SchedulerStatus, error) {
	jobCount, err := s.jobs.Count(ctx, "")
	if err != nil {
		return nil, err
	}
	pausedCount, err := s.jobs.Count(ctx, string(StatePaused))
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	running := s.running
	startedAt := s.startedAt
	inFlight := 0
	for _, n := range s.active {
		inFlight += n
	}
	s.mu.RUnlock()

	uptime := ""
	if running {
		uptime = time.Since(startedAt).Round(time.Second).String()
	}

	return &SchedulerStatus{
		Running:     running,
		JobCount:    jobCount,
		RunningJobs: inFlight,
		PausedJobs:  pausedCount,
		Uptime:      uptime,
	}, nil
}

// BatchStatus reports the aggregate state of one batch submission.
func (s *Scheduler) BatchStatus(ctx context.Context, batchID string) (*BatchInfo, error) {
	jobs, err := s.jobs.ListByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}

	info := &BatchInfo{BatchID: batchID, Total: len(jobs)}
	for _, job := range jobs {
		switch JobState(job.Status) {
		case StateCompleted:
			info.Completed++
		case StateFailed:
			info.Failed++
		default:
			info.Running++
		}
	}

	if info.Running == 0 {
		info.Status = BatchStatusCompleted
	} else {
		info.Status = BatchStatusRunning
	}
	return info, nil
}

// Metrics returns a snapshot of the scheduler's in-memory counters.
func (s *Scheduler) Metrics() SchedulerMetrics {
	return s.metrics.Snapshot()
}

func (s *Scheduler) isRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// validateJob rejects jobs no trigger could ever fire.
func (s *Scheduler) validateJob(job *domain.Job) error {
	if job.TaskID == "" {
		return fmt.Errorf("%w: job has no task id", ErrInvalidTrigger)
	}
	if _, err := s.registry.Get(job.TaskID); err != nil {
		return fmt.Errorf("task %q: %w", job.TaskID, err)
	}

	switch job.TriggerType {
	case domain.TriggerCron:
		if job.CronExpression == nil || *job.CronExpression == "" {
			return fmt.Errorf("%w: cron trigger requires cron_expression", ErrInvalidTrigger)
		}
		if _, err := s.cronParser.Parse(*job.CronExpression); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
		}
	case domain.TriggerInterval:
		if job.IntervalSeconds == nil || *job.IntervalSeconds <= 0 {
			return fmt.Errorf("%w: interval trigger requires positive interval_seconds", ErrInvalidTrigger)
		}
	case domain.TriggerDate:
		if job.RunAt == nil {
			return fmt.Errorf("%w: date trigger requires run_at", ErrInvalidTrigger)
		}
	default:
		return fmt.Errorf("%w: unsupported trigger type %q", ErrInvalidTrigger, job.TriggerType)
	}

	if _, ok := handlerFactories[handlerTypeFor(job)]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandlerType, handlerTypeFor(job))
	}
	return nil
}

// registerJob resolves the job's handler and installs its live trigger.
// An existing registration for the same id is replaced.
func (s *Scheduler) registerJob(job *domain.Job) error {
	handler, err := NewHandler(handlerTypeFor(job), s.deps)
	if err != nil {
		return err
	}

	s.unregisterJob(job.ID)

	jobID := job.ID
	switch job.TriggerType {
	case domain.TriggerCron:
		entryID, addErr := s.cron.AddFunc(*job.CronExpression, func() { s.fire(jobID) })
		if addErr != nil {
			return fmt.Errorf("failed to add cron entry: %w", addErr)
		}
		s.mu.Lock()
		s.entries[jobID] = entryID
		s.handlers[jobID] = handler
		s.mu.Unlock()

	case domain.TriggerInterval:
		spec := fmt.Sprintf("@every %ds", *job.IntervalSeconds)
		entryID, addErr := s.cron.AddFunc(spec, func() { s.fire(jobID) })
		if addErr != nil {
			return fmt.Errorf("failed to add interval entry: %w", addErr)
		}
		s.mu.Lock()
		s.entries[jobID] = entryID
		s.handlers[jobID] = handler
		s.mu.Unlock()

	case domain.TriggerDate:
		// A past run_at fires immediately; the misfire grace check decides
		// whether the run still happens.
		timer := time.AfterFunc(time.Until(*job.RunAt), func() { s.fire(jobID) })
		s.mu.Lock()
		s.timers[jobID] = timer
		s.handlers[jobID] = handler
		s.mu.Unlock()

	default:
		return fmt.Errorf("%w: unsupported trigger type %q", ErrInvalidTrigger, job.TriggerType)
	}

	return nil
}

// unregisterJob drops any live trigger for the id. The stored row is
// untouched.
func (s *Scheduler) unregisterJob(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
	delete(s.handlers, id)
}

// fire runs one trigger occurrence: misfire and max-instances checks, the
// execution history row, then the handler in its own goroutine. Errors stay
// inside; nothing propagates to cron.
func (s *Scheduler) fire(jobID string) {
	s.mu.Lock()
	if !s.running {
		// Stop cannot cancel a date-timer callback that has already
		// started; nothing may touch the store once the scheduler is down.
		s.mu.Unlock()
		return
	}
	// Taken under the same lock Stop uses to flip running, so Stop's
	// wg.Wait covers every fire that got past the check.
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx := s.ctx

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		s.logger.Error("Failed to load job for firing", "job_id", jobID, "error", err)
		return
	}

	now := time.Now()
	scheduledAt := now
	if job.NextRunAt != nil {
		scheduledAt = *job.NextRunAt
	}

	if s.config.MisfireGrace > 0 && now.Sub(scheduledAt) > s.config.MisfireGrace {
		reason := fmt.Sprintf("misfired: fired %s after scheduled time", now.Sub(scheduledAt).Round(time.Second))
		s.recordSkip(ctx, job, scheduledAt, now, reason)
		s.settleMissedFire(ctx, job, now, reason)
		return
	}

	maxInstances := job.MaxInstances
	if maxInstances <= 0 {
		maxInstances = 1
	}

	s.mu.Lock()
	if s.active[jobID] >= maxInstances {
		s.mu.Unlock()
		s.recordSkip(ctx, job, scheduledAt, now, "max instances reached")
		return
	}
	s.active[jobID]++
	handler := s.handlers[jobID]
	s.mu.Unlock()

	if handler == nil {
		// The entry fired while the job was being removed.
		s.releaseSlot(jobID)
		return
	}

	number, err := s.execs.CountByJobID(ctx, jobID)
	if err != nil {
		s.logger.Error("Failed to count executions", "job_id", jobID, "error", err)
		number = 0
	}

	execution := &domain.JobExecution{
		ID:              uuid.New().String(),
		JobID:           jobID,
		ExecutionNumber: number + 1,
		Status:          domain.ExecutionStatusPending,
		ScheduledAt:     scheduledAt,
		StartedAt:       now,
		Metadata:        domain.JSONBMap{"task_id": job.TaskID},
	}
	if err := s.execs.Create(ctx, execution); err != nil {
		s.logger.Error("Failed to create execution record", "job_id", jobID, "error", err)
		s.releaseSlot(jobID)
		return
	}

	next := s.computeNextRunAfterFire(job, now)
	if err := s.jobs.UpdateStatus(ctx, jobID, string(StateRunning), nil); err != nil {
		s.logger.Error("Failed to mark job running", "job_id", jobID, "error", err)
	}
	if err := s.jobs.UpdateRunTimes(ctx, jobID, &now, next); err != nil {
		s.logger.Error("Failed to update run times", "job_id", jobID, "error", err)
	}

	execution.Status = domain.ExecutionStatusRunning
	if err := s.execs.Update(ctx, execution); err != nil {
		s.logger.Error("Failed to mark execution running", "job_id", jobID, "error", err)
	}

	jobCtx := &JobContext{
		JobID:       jobID,
		ScheduledAt: scheduledAt,
		TriggeredAt: now,
		TaskID:      job.TaskID,
		Data:        job.Data,
		MaxRetries:  job.MaxRetries,
	}

	s.metrics.ExecutionStarted()
	s.prom.ExecutionStarted()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.releaseSlot(jobID)

		result := ExecuteWithRetry(s.ctx, handler, jobCtx, s.execHooks())
		s.finalize(job, execution, result)
	}()
}

// finalize writes the execution outcome and settles the job row after a run.
func (s *Scheduler) finalize(job *domain.Job, execution *domain.JobExecution, result *JobResult) {
	ctx := s.ctx
	completedAt := time.Now()
	durationMs := result.Duration.Milliseconds()

	execution.CompletedAt = &completedAt
	execution.DurationMs = &durationMs
	execution.BooksCrawled = result.BooksCrawled
	execution.Attempts = result.Attempts

	var errMsg *string
	if result.Success {
		execution.Status = domain.ExecutionStatusCompleted
	} else {
		execution.Status = domain.ExecutionStatusFailed
		msg := result.Error
		execution.ErrorMessage = &msg
		errMsg = &msg
	}

	if err := s.execs.Update(ctx, execution); err != nil {
		s.logger.Error("Failed to record execution outcome", "job_id", job.ID, "error", err)
	}

	var jobStatus JobState
	switch {
	case job.TriggerType == domain.TriggerDate && result.Success:
		jobStatus = StateCompleted
	case job.TriggerType == domain.TriggerDate:
		jobStatus = StateFailed
	default:
		// Recurring jobs go back to waiting for their next fire; the error
		// message survives on the row.
		jobStatus = StateScheduled
	}
	if err := ValidateStateTransition(StateRunning, jobStatus); err != nil {
		s.logger.Warn("Job state transition out of order", "job_id", job.ID, "error", err)
	}
	if err := s.jobs.UpdateStatus(ctx, job.ID, string(jobStatus), errMsg); err != nil {
		s.logger.Error("Failed to settle job status", "job_id", job.ID, "error", err)
	}

	if job.TriggerType == domain.TriggerDate {
		s.unregisterJob(job.ID)
	}

	if result.Success {
		s.metrics.ExecutionCompleted(result.BooksCrawled, result.Duration)
		s.prom.IncExecution(domain.ExecutionStatusCompleted)
		s.logger.Info("Job execution completed",
			"job_id", job.ID,
			"books_crawled", result.BooksCrawled,
			"attempts", result.Attempts,
			"duration", result.Duration.String())
	} else {
		s.metrics.ExecutionFailed(result.Duration)
		s.prom.IncExecution(domain.ExecutionStatusFailed)
		s.logger.Error("Job execution failed",
			"job_id", job.ID,
			"attempts", result.Attempts,
			"error", result.Error)
	}
	s.prom.ExecutionFinished()
}

// recordSkip writes a skipped execution row for a fire that never ran.
func (s *Scheduler) recordSkip(ctx context.Context, job *domain.Job, scheduledAt, now time.Time, reason string) {
	s.logger.Warn("Skipping job fire", "job_id", job.ID, "reason", reason)
	s.metrics.ExecutionSkipped()
	s.prom.IncExecution(domain.ExecutionStatusSkipped)

	number, err := s.execs.CountByJobID(ctx, job.ID)
	if err != nil {
		number = 0
	}

	execution := &domain.JobExecution{
		ID:              uuid.New().String(),
		JobID:           job.ID,
		ExecutionNumber: number + 1,
		Status:          domain.ExecutionStatusSkipped,
		ScheduledAt:     scheduledAt,
		StartedAt:       now,
		ErrorMessage:    &reason,
		Metadata:        domain.JSONBMap{"task_id": job.TaskID},
	}
	if err := s.execs.Create(ctx, execution); err != nil {
		s.logger.Error("Failed to record skipped execution", "job_id", job.ID, "error", err)
	}
}

// settleMissedFire advances a job whose occurrence was skipped by the misfire
// grace: recurring jobs wait for the next occurrence, one-off jobs are done.
func (s *Scheduler) settleMissedFire(ctx context.Context, job *domain.Job, now time.Time, reason string) {
	if job.TriggerType == domain.TriggerDate {
		if err := s.jobs.UpdateStatus(ctx, job.ID, string(StateFailed), &reason); err != nil {
			s.logger.Error("Failed to settle missed one-off", "job_id", job.ID, "error", err)
		}
		if err := s.jobs.UpdateRunTimes(ctx, job.ID, nil, nil); err != nil {
			s.logger.Error("Failed to clear run times", "job_id", job.ID, "error", err)
		}
		s.unregisterJob(job.ID)
		return
	}

	next := s.computeNextRunAfterFire(job, now)
	if err := s.jobs.UpdateRunTimes(ctx, job.ID, nil, next); err != nil {
		s.logger.Error("Failed to advance run times", "job_id", job.ID, "error", err)
	}
}

// execHooks returns the lifecycle hooks shared by all executions.
func (s *Scheduler) execHooks() Hooks {
	return Hooks{
		OnRetry: func(jobCtx *JobContext, attempt int, wait time.Duration) {
			s.logger.Warn("Retrying job execution",
				"job_id", jobCtx.JobID,
				"attempt", attempt,
				"wait", wait.String())
		},
	}
}

func (s *Scheduler) releaseSlot(jobID string) {
	s.mu.Lock()
	if s.active[jobID] > 0 {
		s.active[jobID]--
	}
	if s.active[jobID] == 0 {
		delete(s.active, jobID)
	}
	s.mu.Unlock()
}

// computeNextRun returns the first fire time at or after from. Date triggers
// report their run_at even when it already passed so a late fire can be told
// from an on-time one.
func (s *Scheduler) computeNextRun(job *domain.Job, from time.Time) *time.Time {
	switch job.TriggerType {
	case domain.TriggerCron:
		if job.CronExpression == nil {
			return nil
		}
		schedule, err := s.cronParser.Parse(*job.CronExpression)
		if err != nil {
			return nil
		}
		next := schedule.Next(from)
		return &next
	case domain.TriggerInterval:
		if job.IntervalSeconds == nil {
			return nil
		}
		next := from.Add(time.Duration(*job.IntervalSeconds) * time.Second)
		return &next
	case domain.TriggerDate:
		if job.RunAt == nil {
			return nil
		}
		runAt := *job.RunAt
		return &runAt
	}
	return nil
}

// computeNextRunAfterFire returns the fire time following an occurrence at
// now. One-off jobs have none.
func (s *Scheduler) computeNextRunAfterFire(job *domain.Job, now time.Time) *time.Time {
	if job.TriggerType == domain.TriggerDate {
		return nil
	}
	return s.computeNextRun(job, now)
}
