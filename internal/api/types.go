package api

import (
	"time"

	"github.com/jonesrussell/bookwatch/internal/domain"
)

// ExecutionsListResponse represents a page of job executions.
type ExecutionsListResponse struct {
	Executions []*domain.JobExecution `json:"executions"`
	Total      int                    `json:"total"`
	Limit      int                    `json:"limit"`
	Offset     int                    `json:"offset"`
}

// SchedulerMetricsResponse represents the scheduler metrics payload.
type SchedulerMetricsResponse struct {
	Executions struct {
		Running   int64 `json:"running"`
		Completed int64 `json:"completed"`
		Failed    int64 `json:"failed"`
		Skipped   int64 `json:"skipped"`
		Total     int64 `json:"total"`
	} `json:"executions"`
	BooksCrawled      int64     `json:"books_crawled"`
	AverageDurationMs float64   `json:"average_duration_ms"`
	LastFireAt        time.Time `json:"last_fire_at"`
	LastMetricsUpdate time.Time `json:"last_metrics_update"`
}

// BookTrendResponse represents a book's snapshot history.
type BookTrendResponse struct {
	Book   *domain.Book             `json:"book"`
	Days   int                      `json:"days"`
	Points []*domain.BookTrendPoint `json:"points"`
}

// RankingSnapshotResponse represents the latest capture of one ranking.
type RankingSnapshotResponse struct {
	Ranking *domain.Ranking           `json:"ranking"`
	Entries []*domain.RankingSnapshot `json:"entries"`
}
