// Package domain provides domain models used across the application.
package domain

import (
	"time"
)

// Execution statuses recorded in the history table.
const (
	ExecutionStatusPending   = "pending"
	ExecutionStatusRunning   = "running"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusFailed    = "failed"
	ExecutionStatusSkipped   = "skipped"
)

// JobExecution represents a single execution of a job.
// This tracks the history of each job run with detailed metrics.
type JobExecution struct {
	// Identity
	ID              string `db:"id"               json:"id"`
	JobID           string `db:"job_id"           json:"job_id"`
	ExecutionNumber int    `db:"execution_number" json:"execution_number"` // Nth execution of this job

	// Status
	Status string `db:"status" json:"status"`

	// Timing
	ScheduledAt time.Time  `db:"scheduled_at" json:"scheduled_at"`
	StartedAt   time.Time  `db:"started_at"   json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	DurationMs  *int64     `db:"duration_ms"  json:"duration_ms,omitempty"`

	// Results
	BooksCrawled int     `db:"books_crawled" json:"books_crawled"`
	Attempts     int     `db:"attempts"      json:"attempts"` // 1 = first try succeeded
	ErrorMessage *string `db:"error_message" json:"error_message,omitempty"`

	// Metadata
	Metadata JSONBMap `db:"metadata" json:"metadata,omitempty"`
}

// JobStats represents aggregate statistics for a job.
type JobStats struct {
	TotalExecutions   int        `json:"total_executions"`
	SuccessfulRuns    int        `json:"successful_runs"`
	FailedRuns        int        `json:"failed_runs"`
	AverageDurationMs float64    `json:"average_duration_ms"`
	LastExecutionAt   *time.Time `json:"last_execution_at"`
	SuccessRate       float64    `json:"success_rate"` // 0.0 to 1.0
}

// AggregateStats represents system-wide scheduler statistics.
type AggregateStats struct {
	TotalExecutions int64   `json:"total_executions"`
	AvgDurationMs   float64 `json:"average_duration_ms"`
	SuccessRate     float64 `json:"success_rate"`
	FailureRate     float64 `json:"failure_rate"`
	CompletedToday  int64   `json:"completed_today"`
	FailedToday     int64   `json:"failed_today"`
}
