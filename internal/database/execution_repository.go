package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/bookwatch/internal/domain"
)

// ErrExecutionNotFound is returned when an execution id matches no row.
var ErrExecutionNotFound = errors.New("execution not found")

// ExecutionRepository handles database operations for job executions.
type ExecutionRepository struct {
	db *sqlx.DB
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sqlx.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Create inserts a new execution record into the database.
func (r *ExecutionRepository) Create(ctx context.Context, execution *domain.JobExecution) error {
	query := `
		INSERT INTO job_executions (
			id, job_id, execution_number, status,
			scheduled_at, started_at,
			books_crawled, attempts, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		execution.ID,
		execution.JobID,
		execution.ExecutionNumber,
		execution.Status,
		execution.ScheduledAt,
		execution.StartedAt,
		execution.BooksCrawled,
		execution.Attempts,
		execution.Metadata,
	)

	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

// Update updates an existing execution record.
func (r *ExecutionRepository) Update(ctx context.Context, execution *domain.JobExecution) error {
	query := `
		UPDATE job_executions
		SET status = $1,
		    completed_at = $2,
		    duration_ms = $3,
		    books_crawled = $4,
		    attempts = $5,
		    error_message = $6,
		    metadata = $7
		WHERE id = $8
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		execution.Status,
		execution.CompletedAt,
		execution.DurationMs,
		execution.BooksCrawled,
		execution.Attempts,
		execution.ErrorMessage,
		execution.Metadata,
		execution.ID,
	)

	return execRequireRows(result, err, fmt.Errorf("%w: %s", ErrExecutionNotFound, execution.ID))
}

// ListByJobID retrieves executions for a specific job with pagination, most
// recent first.
func (r *ExecutionRepository) ListByJobID(ctx context.Context, jobID string, limit, offset int) ([]*domain.JobExecution, error) {
	var executions []*domain.JobExecution
	query := `
		SELECT id, job_id, execution_number, status,
		       scheduled_at, started_at, completed_at, duration_ms,
		       books_crawled, attempts, error_message, metadata
		FROM job_executions
		WHERE job_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`

	err := r.db.SelectContext(ctx, &executions, query, jobID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	if executions == nil {
		executions = []*domain.JobExecution{}
	}

	return executions, nil
}

// CountByJobID returns the total number of executions for a job.
func (r *ExecutionRepository) CountByJobID(ctx context.Context, jobID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM job_executions WHERE job_id = $1`

	err := r.db.GetContext(ctx, &count, query, jobID)
	if err != nil {
		return 0, fmt.Errorf("failed to count executions: %w", err)
	}

	return count, nil
}

// GetLatestByJobID retrieves the most recent execution for a job.
func (r *ExecutionRepository) GetLatestByJobID(ctx context.Context, jobID string) (*domain.JobExecution, error) {
	var execution domain.JobExecution
	query := `
		SELECT id, job_id, execution_number, status,
		       scheduled_at, started_at, completed_at, duration_ms,
		       books_crawled, attempts, error_message, metadata
		FROM job_executions
		WHERE job_id = $1
		ORDER BY started_at DESC
		LIMIT 1
	`

	err := r.db.GetContext(ctx, &execution, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no executions for job %s", ErrExecutionNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get latest execution: %w", err)
	}

	return &execution, nil
}

// GetJobStats returns aggregate statistics for a specific job.
func (r *ExecutionRepository) GetJobStats(ctx context.Context, jobID string) (*domain.JobStats, error) {
	var stats domain.JobStats

	query := `
		SELECT
			COUNT(*) as total_executions,
			COUNT(*) FILTER (WHERE status = 'completed') as successful_runs,
			COUNT(*) FILTER (WHERE status = 'failed') as failed_runs,
			COALESCE(AVG(duration_ms) FILTER (WHERE duration_ms IS NOT NULL), 0) as average_duration_ms,
			MAX(started_at) as last_execution_at
		FROM job_executions
		WHERE job_id = $1
	`

	err := r.db.QueryRowContext(ctx, query, jobID).Scan(
		&stats.TotalExecutions,
		&stats.SuccessfulRuns,
		&stats.FailedRuns,
		&stats.AverageDurationMs,
		&stats.LastExecutionAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}

	if stats.TotalExecutions > 0 {
		stats.SuccessRate = float64(stats.SuccessfulRuns) / float64(stats.TotalExecutions)
	}

	return &stats, nil
}

// GetAggregateStats returns system-wide execution statistics.
func (r *ExecutionRepository) GetAggregateStats(ctx context.Context) (*domain.AggregateStats, error) {
	var stats domain.AggregateStats

	execQuery := `
		SELECT
			COUNT(*) as total_executions,
			COALESCE(AVG(duration_ms) FILTER (WHERE duration_ms IS NOT NULL), 0) as avg_duration_ms,
			COUNT(*) FILTER (WHERE status = 'completed') as completed,
			COUNT(*) FILTER (WHERE status = 'failed') as failed
		FROM job_executions
	`

	var completed, failed int64
	err := r.db.QueryRowContext(ctx, execQuery).Scan(
		&stats.TotalExecutions,
		&stats.AvgDurationMs,
		&completed,
		&failed,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate execution stats: %w", err)
	}

	total := completed + failed
	if total > 0 {
		stats.SuccessRate = float64(completed) / float64(total)
		stats.FailureRate = float64(failed) / float64(total)
	}

	todayQuery := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'completed') as completed_today,
			COUNT(*) FILTER (WHERE status = 'failed') as failed_today
		FROM job_executions
		WHERE started_at >= CURRENT_DATE
	`

	err = r.db.QueryRowContext(ctx, todayQuery).Scan(
		&stats.CompletedToday,
		&stats.FailedToday,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get today stats: %w", err)
	}

	return &stats, nil
}
