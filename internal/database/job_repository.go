package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/bookwatch/internal/domain"
)

// ErrJobNotFound is returned when a job id matches no row.
var ErrJobNotFound = errors.New("job not found")

// JobRepository handles database operations for jobs.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job into the database.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			id, name, task_id,
			trigger_type, cron_expression, interval_seconds, run_at,
			enabled, max_retries, max_instances,
			batch_id, data, status, next_run_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		job.ID,
		job.Name,
		job.TaskID,
		job.TriggerType,
		job.CronExpression,
		job.IntervalSeconds,
		job.RunAt,
		job.Enabled,
		job.MaxRetries,
		job.MaxInstances,
		job.BatchID,
		job.Data,
		job.Status,
		job.NextRunAt,
	).Scan(&job.CreatedAt, &job.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	query := `
		SELECT id, name, task_id,
		       trigger_type, cron_expression, interval_seconds, run_at,
		       enabled, max_retries, max_instances,
		       batch_id, data, status,
		       last_run_at, next_run_at, error_message,
		       created_at, updated_at
		FROM jobs
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &job, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// List retrieves jobs with optional status filtering.
func (r *JobRepository) List(ctx context.Context, status string, limit, offset int) ([]*domain.Job, error) {
	var jobs []*domain.Job
	var query string
	var args []any

	if status != "" {
		query = `
			SELECT id, name, task_id,
			       trigger_type, cron_expression, interval_seconds, run_at,
			       enabled, max_retries, max_instances,
			       batch_id, data, status,
			       last_run_at, next_run_at, error_message,
			       created_at, updated_at
			FROM jobs
			WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3
		`
		args = []any{status, limit, offset}
	} else {
		query = `
			SELECT id, name, task_id,
			       trigger_type, cron_expression, interval_seconds, run_at,
			       enabled, max_retries, max_instances,
			       batch_id, data, status,
			       last_run_at, next_run_at, error_message,
			       created_at, updated_at
			FROM jobs
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2
		`
		args = []any{limit, offset}
	}

	err := r.db.SelectContext(ctx, &jobs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	if jobs == nil {
		jobs = []*domain.Job{}
	}

	return jobs, nil
}

// ListEnabled retrieves every enabled job. The scheduler rebuilds its live
// triggers from this set at startup.
func (r *JobRepository) ListEnabled(ctx context.Context) ([]*domain.Job, error) {
	var jobs []*domain.Job
	query := `
		SELECT id, name, task_id,
		       trigger_type, cron_expression, interval_seconds, run_at,
		       enabled, max_retries, max_instances,
		       batch_id, data, status,
		       last_run_at, next_run_at, error_message,
		       created_at, updated_at
		FROM jobs
		WHERE enabled = true
		ORDER BY created_at ASC
	`

	err := r.db.SelectContext(ctx, &jobs, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled jobs: %w", err)
	}

	if jobs == nil {
		jobs = []*domain.Job{}
	}

	return jobs, nil
}

// ListByBatchID retrieves all jobs created by one batch submission.
func (r *JobRepository) ListByBatchID(ctx context.Context, batchID string) ([]*domain.Job, error) {
	var jobs []*domain.Job
	query := `
		SELECT id, name, task_id,
		       trigger_type, cron_expression, interval_seconds, run_at,
		       enabled, max_retries, max_instances,
		       batch_id, data, status,
		       last_run_at, next_run_at, error_message,
		       created_at, updated_at
		FROM jobs
		WHERE batch_id = $1
		ORDER BY created_at ASC
	`

	err := r.db.SelectContext(ctx, &jobs, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch jobs: %w", err)
	}

	if jobs == nil {
		jobs = []*domain.Job{}
	}

	return jobs, nil
}

// Update updates an existing job.
func (r *JobRepository) Update(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET name = $1,
		    task_id = $2,
		    trigger_type = $3,
		    cron_expression = $4,
		    interval_seconds = $5,
		    run_at = $6,
		    enabled = $7,
		    max_retries = $8,
		    max_instances = $9,
		    data = $10,
		    status = $11,
		    next_run_at = $12,
		    updated_at = NOW()
		WHERE id = $13
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		job.Name,
		job.TaskID,
		job.TriggerType,
		job.CronExpression,
		job.IntervalSeconds,
		job.RunAt,
		job.Enabled,
		job.MaxRetries,
		job.MaxInstances,
		job.Data,
		job.Status,
		job.NextRunAt,
		job.ID,
	)

	return execRequireRows(result, err, fmt.Errorf("%w: %s", ErrJobNotFound, job.ID))
}

// UpdateStatus sets a job's status and error message.
func (r *JobRepository) UpdateStatus(ctx context.Context, id, status string, errorMessage *string) error {
	query := `
		UPDATE jobs
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, status, errorMessage, id)
	return execRequireRows(result, err, fmt.Errorf("%w: %s", ErrJobNotFound, id))
}

// UpdateRunTimes records when a job last fired and when it fires next. A nil
// nextRunAt clears the column (paused and exhausted one-off jobs).
func (r *JobRepository) UpdateRunTimes(ctx context.Context, id string, lastRunAt, nextRunAt *time.Time) error {
	query := `
		UPDATE jobs
		SET last_run_at = COALESCE($1, last_run_at), next_run_at = $2, updated_at = NOW()
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, lastRunAt, nextRunAt, id)
	return execRequireRows(result, err, fmt.Errorf("%w: %s", ErrJobNotFound, id))
}

// Delete removes a job from the database.
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM jobs WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	return execRequireRows(result, err, fmt.Errorf("%w: %s", ErrJobNotFound, id))
}

// Count returns the total number of jobs, optionally filtered by status.
func (r *JobRepository) Count(ctx context.Context, status string) (int, error) {
	var count int
	var err error

	if status != "" {
		err = r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM jobs WHERE status = $1`, status)
	} else {
		err = r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM jobs`)
	}

	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	return count, nil
}
