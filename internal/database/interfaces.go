package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/bookwatch/internal/domain"
)

// JobStore defines the contract for job persistence.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, status string, limit, offset int) ([]*domain.Job, error)
	ListEnabled(ctx context.Context) ([]*domain.Job, error)
	ListByBatchID(ctx context.Context, batchID string) ([]*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
	UpdateStatus(ctx context.Context, id, status string, errorMessage *string) error
	UpdateRunTimes(ctx context.Context, id string, lastRunAt, nextRunAt *time.Time) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context, status string) (int, error)
}

// ExecutionStore defines the contract for execution history persistence.
type ExecutionStore interface {
	Create(ctx context.Context, execution *domain.JobExecution) error
	Update(ctx context.Context, execution *domain.JobExecution) error
	ListByJobID(ctx context.Context, jobID string, limit, offset int) ([]*domain.JobExecution, error)
	CountByJobID(ctx context.Context, jobID string) (int, error)
	GetLatestByJobID(ctx context.Context, jobID string) (*domain.JobExecution, error)
	GetJobStats(ctx context.Context, jobID string) (*domain.JobStats, error)
	GetAggregateStats(ctx context.Context) (*domain.AggregateStats, error)
}

// SnapshotStorage defines the contract for persisting and querying crawl
// snapshots.
type SnapshotStorage interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	CreateOrUpdateBook(ctx context.Context, tx *sqlx.Tx, book *domain.Book) error
	CreateOrUpdateRanking(ctx context.Context, tx *sqlx.Tx, ranking *domain.Ranking) error
	InsertBookSnapshots(ctx context.Context, tx *sqlx.Tx, snapshots []*domain.BookSnapshot) error
	InsertRankingSnapshots(ctx context.Context, tx *sqlx.Tx, snapshots []*domain.RankingSnapshot) error
	GetBook(ctx context.Context, id string) (*domain.Book, error)
	GetRanking(ctx context.Context, id int64) (*domain.Ranking, error)
	ListRankings(ctx context.Context) ([]*domain.Ranking, error)
	BookTrend(ctx context.Context, bookID string, since time.Time) ([]*domain.BookTrendPoint, error)
	LatestRankingSnapshot(ctx context.Context, rankingID int64) ([]*domain.RankingSnapshot, error)
	TopMovers(ctx context.Context, rankingID int64, limit int) ([]*domain.RankingMover, error)
}

// Compile-time checks that the concrete repositories satisfy their contracts.
var (
	_ JobStore        = (*JobRepository)(nil)
	_ ExecutionStore  = (*ExecutionRepository)(nil)
	_ SnapshotStorage = (*SnapshotStore)(nil)
)
