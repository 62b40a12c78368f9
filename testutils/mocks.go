// Package testutils provides shared testing utilities across the application.
package testutils

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/jonesrussell/bookwatch/internal/database"
	"github.com/jonesrussell/bookwatch/internal/domain"
)

// Compile-time checks that the mocks satisfy the store contracts.
var (
	_ database.JobStore        = (*MockJobStore)(nil)
	_ database.ExecutionStore  = (*MockExecutionStore)(nil)
	_ database.SnapshotStorage = (*MockSnapshotStorage)(nil)
)

// MockJobStore is a mock implementation of database.JobStore.
type MockJobStore struct {
	mock.Mock
}

// Create persists a new job.
func (m *MockJobStore) Create(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// GetByID retrieves a job by its identifier.
func (m *MockJobStore) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	args := m.Called(ctx, id)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	job, _ := args.Get(0).(*domain.Job)
	return job, nil
}

// List returns jobs filtered by status.
func (m *MockJobStore) List(ctx context.Context, status string, limit, offset int) ([]*domain.Job, error) {
	args := m.Called(ctx, status, limit, offset)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	jobs, _ := args.Get(0).([]*domain.Job)
	return jobs, nil
}

// ListEnabled returns all enabled jobs.
func (m *MockJobStore) ListEnabled(ctx context.Context) ([]*domain.Job, error) {
	args := m.Called(ctx)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	jobs, _ := args.Get(0).([]*domain.Job)
	return jobs, nil
}

// ListByBatchID returns the jobs submitted under one batch.
func (m *MockJobStore) ListByBatchID(ctx context.Context, batchID string) ([]*domain.Job, error) {
	args := m.Called(ctx, batchID)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	jobs, _ := args.Get(0).([]*domain.Job)
	return jobs, nil
}

// Update overwrites a job row.
func (m *MockJobStore) Update(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// UpdateStatus sets a job's status and error message.
func (m *MockJobStore) UpdateStatus(ctx context.Context, id, status string, errorMessage *string) error {
	args := m.Called(ctx, id, status, errorMessage)
	return args.Error(0)
}

// UpdateRunTimes records a job's last and next run times.
func (m *MockJobStore) UpdateRunTimes(ctx context.Context, id string, lastRunAt, nextRunAt *time.Time) error {
	args := m.Called(ctx, id, lastRunAt, nextRunAt)
	return args.Error(0)
}

// Delete removes a job.
func (m *MockJobStore) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Count returns the number of jobs with the given status.
func (m *MockJobStore) Count(ctx context.Context, status string) (int, error) {
	args := m.Called(ctx, status)
	return args.Int(0), args.Error(1)
}

// MockExecutionStore is a mock implementation of database.ExecutionStore.
type MockExecutionStore struct {
	mock.Mock
}

// Create persists a new execution record.
func (m *MockExecutionStore) Create(ctx context.Context, execution *domain.JobExecution) error {
	args := m.Called(ctx, execution)
	return args.Error(0)
}

// Update overwrites an execution record.
func (m *MockExecutionStore) Update(ctx context.Context, execution *domain.JobExecution) error {
	args := m.Called(ctx, execution)
	return args.Error(0)
}

// ListByJobID returns a job's execution history.
func (m *MockExecutionStore) ListByJobID(ctx context.Context, jobID string, limit, offset int) ([]*domain.JobExecution, error) {
	args := m.Called(ctx, jobID, limit, offset)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	executions, _ := args.Get(0).([]*domain.JobExecution)
	return executions, nil
}

// CountByJobID returns how many executions a job has recorded.
func (m *MockExecutionStore) CountByJobID(ctx context.Context, jobID string) (int, error) {
	args := m.Called(ctx, jobID)
	return args.Int(0), args.Error(1)
}

// GetLatestByJobID returns a job's most recent execution.
func (m *MockExecutionStore) GetLatestByJobID(ctx context.Context, jobID string) (*domain.JobExecution, error) {
	args := m.Called(ctx, jobID)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	execution, _ := args.Get(0).(*domain.JobExecution)
	return execution, nil
}

// GetJobStats returns aggregate counters for one job.
func (m *MockExecutionStore) GetJobStats(ctx context.Context, jobID string) (*domain.JobStats, error) {
	args := m.Called(ctx, jobID)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	stats, _ := args.Get(0).(*domain.JobStats)
	return stats, nil
}

// GetAggregateStats returns counters across all jobs.
func (m *MockExecutionStore) GetAggregateStats(ctx context.Context) (*domain.AggregateStats, error) {
	args := m.Called(ctx)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	stats, _ := args.Get(0).(*domain.AggregateStats)
	return stats, nil
}

// MockSnapshotStorage is a mock implementation of database.SnapshotStorage.
type MockSnapshotStorage struct {
	mock.Mock
}

// WithTx runs fn inside a mock transaction.
func (m *MockSnapshotStorage) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

// CreateOrUpdateBook upserts a book row.
func (m *MockSnapshotStorage) CreateOrUpdateBook(ctx context.Context, tx *sqlx.Tx, book *domain.Book) error {
	args := m.Called(ctx, tx, book)
	return args.Error(0)
}

// CreateOrUpdateRanking upserts a ranking row.
func (m *MockSnapshotStorage) CreateOrUpdateRanking(ctx context.Context, tx *sqlx.Tx, ranking *domain.Ranking) error {
	args := m.Called(ctx, tx, ranking)
	return args.Error(0)
}

// InsertBookSnapshots appends book snapshot rows.
func (m *MockSnapshotStorage) InsertBookSnapshots(ctx context.Context, tx *sqlx.Tx, snapshots []*domain.BookSnapshot) error {
	args := m.Called(ctx, tx, snapshots)
	return args.Error(0)
}

// InsertRankingSnapshots appends ranking snapshot rows.
func (m *MockSnapshotStorage) InsertRankingSnapshots(ctx context.Context, tx *sqlx.Tx, snapshots []*domain.RankingSnapshot) error {
	args := m.Called(ctx, tx, snapshots)
	return args.Error(0)
}

// GetBook retrieves a book by identifier.
func (m *MockSnapshotStorage) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	args := m.Called(ctx, id)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	book, _ := args.Get(0).(*domain.Book)
	return book, nil
}

// GetRanking retrieves a ranking by identifier.
func (m *MockSnapshotStorage) GetRanking(ctx context.Context, id int64) (*domain.Ranking, error) {
	args := m.Called(ctx, id)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	ranking, _ := args.Get(0).(*domain.Ranking)
	return ranking, nil
}

// ListRankings returns all known rankings.
func (m *MockSnapshotStorage) ListRankings(ctx context.Context) ([]*domain.Ranking, error) {
	args := m.Called(ctx)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	rankings, _ := args.Get(0).([]*domain.Ranking)
	return rankings, nil
}

// BookTrend returns a book's snapshot history since the given time.
func (m *MockSnapshotStorage) BookTrend(ctx context.Context, bookID string, since time.Time) ([]*domain.BookTrendPoint, error) {
	args := m.Called(ctx, bookID, since)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	points, _ := args.Get(0).([]*domain.BookTrendPoint)
	return points, nil
}

// LatestRankingSnapshot returns the most recent capture of a ranking.
func (m *MockSnapshotStorage) LatestRankingSnapshot(ctx context.Context, rankingID int64) ([]*domain.RankingSnapshot, error) {
	args := m.Called(ctx, rankingID)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	snapshots, _ := args.Get(0).([]*domain.RankingSnapshot)
	return snapshots, nil
}

// TopMovers returns the books with the largest recent position changes.
func (m *MockSnapshotStorage) TopMovers(ctx context.Context, rankingID int64, limit int) ([]*domain.RankingMover, error) {
	args := m.Called(ctx, rankingID, limit)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	movers, _ := args.Get(0).([]*domain.RankingMover)
	return movers, nil
}
