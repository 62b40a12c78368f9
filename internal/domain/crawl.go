// Package domain provides domain models used across the application.
package domain

import (
	"time"
)

// CrawlResult summarizes one orchestrator run. Failures are reported here,
// never raised: a run always produces a result.
type CrawlResult struct {
	Success       bool          `json:"success"`
	TaskID        string        `json:"task_id"`
	BooksCrawled  int           `json:"books_crawled"`
	ExecutionTime time.Duration `json:"execution_time"`
	// Error holds the failure message when Success is false.
	Error string `json:"error,omitempty"`
	// Retryable marks failures a job-level retry could plausibly cure,
	// fetch-layer transients as opposed to unknown tasks or storage errors.
	Retryable bool `json:"retryable,omitempty"`
}
