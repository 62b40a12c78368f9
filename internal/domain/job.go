// Package domain provides domain models used across the application.
package domain

import (
	"time"
)

// TriggerType identifies how a job is scheduled.
type TriggerType string

const (
	// TriggerCron fires on a five-field cron expression.
	TriggerCron TriggerType = "cron"
	// TriggerInterval fires every fixed number of seconds.
	TriggerInterval TriggerType = "interval"
	// TriggerDate fires once at a specific time.
	TriggerDate TriggerType = "date"
)

// Job represents a scheduled crawl job. The database row is the source of
// truth; live trigger registrations are rebuilt from it on startup.
type Job struct {
	// Identity
	ID     string `db:"id"      json:"id"`
	Name   string `db:"name"    json:"name"`
	TaskID string `db:"task_id" json:"task_id"`

	// Trigger
	TriggerType     TriggerType `db:"trigger_type"     json:"trigger_type"`
	CronExpression  *string     `db:"cron_expression"  json:"cron_expression,omitempty"`
	IntervalSeconds *int        `db:"interval_seconds" json:"interval_seconds,omitempty"`
	RunAt           *time.Time  `db:"run_at"           json:"run_at,omitempty"`

	// Execution policy
	Enabled      bool `db:"enabled"       json:"enabled"`
	MaxRetries   int  `db:"max_retries"   json:"max_retries"`
	MaxInstances int  `db:"max_instances" json:"max_instances"`

	// Batch membership, set for jobs created through a batch submission.
	BatchID *string `db:"batch_id" json:"batch_id,omitempty"`

	// Data is passed to the handler on every trigger fire.
	Data JSONBMap `db:"data" json:"data,omitempty"`

	// Bookkeeping
	Status       string     `db:"status"        json:"status"`
	LastRunAt    *time.Time `db:"last_run_at"   json:"last_run_at,omitempty"`
	NextRunAt    *time.Time `db:"next_run_at"   json:"next_run_at,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"    json:"updated_at"`
}

// HasTrigger reports whether the job carries the trigger field matching its
// declared type.
func (j *Job) HasTrigger() bool {
	switch j.TriggerType {
	case TriggerCron:
		return j.CronExpression != nil && *j.CronExpression != ""
	case TriggerInterval:
		return j.IntervalSeconds != nil && *j.IntervalSeconds > 0
	case TriggerDate:
		return j.RunAt != nil
	default:
		return false
	}
}
