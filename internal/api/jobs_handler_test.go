package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"

	"github.com/jonesrussell/bookwatch/internal/api"
	"github.com/jonesrussell/bookwatch/internal/database"
	"github.com/jonesrussell/bookwatch/internal/domain"
	"github.com/jonesrussell/bookwatch/internal/logger"
	"github.com/jonesrussell/bookwatch/internal/scheduler"
	"github.com/jonesrussell/bookwatch/testutils"
)

// errMockNoData is returned by fake methods that have no scripted reply.
var errMockNoData = errors.New("mock: no data")

// fakeScheduler implements api.Scheduler for testing.
type fakeScheduler struct {
	statusFunc  func(ctx context.Context) (*scheduler.SchedulerStatus, error)
	batchFunc   func(ctx context.Context, batchID string) (*scheduler.BatchInfo, error)
	metricsFunc func() scheduler.SchedulerMetrics
}

func (f *fakeScheduler) Status(ctx context.Context) (*scheduler.SchedulerStatus, error) {
	if f.statusFunc != nil {
		return f.statusFunc(ctx)
	}
	return nil, errMockNoData
}

func (f *fakeScheduler) BatchStatus(ctx context.Context, batchID string) (*scheduler.BatchInfo, error) {
	if f.batchFunc != nil {
		return f.batchFunc(ctx, batchID)
	}
	return nil, errMockNoData
}

func (f *fakeScheduler) Metrics() scheduler.SchedulerMetrics {
	if f.metricsFunc != nil {
		return f.metricsFunc()
	}
	return scheduler.SchedulerMetrics{}
}

func newTestRouter(deps api.Deps) *gin.Engine {
	return api.SetupRouter(logger.NewNoOp(), deps)
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestJobsHandler_ListJobs(t *testing.T) {
	t.Helper()

	jobs := &testutils.MockJobStore{}
	jobs.On("List", mock.Anything, "", 50, 0).Return([]*domain.Job{
		{ID: "job-1", TaskID: "top-weekly", Status: "scheduled"},
		{ID: "job-2", TaskID: "top-monthly", Status: "paused"},
	}, nil)
	jobs.On("Count", mock.Anything, "").Return(2, nil)

	router := newTestRouter(api.Deps{Jobs: jobs})
	w := get(router, "/api/v1/jobs")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Jobs  []*domain.Job `json:"jobs"`
		Total int           `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Total != 2 || len(body.Jobs) != 2 {
		t.Errorf("expected 2 jobs with total 2, got %d jobs total %d", len(body.Jobs), body.Total)
	}
	jobs.AssertExpectations(t)
}

func TestJobsHandler_ListJobs_BadPagingFallsBack(t *testing.T) {
	t.Helper()

	// The mock only answers the default limit and offset; a handler that
	// forwarded the malformed values would panic with an unexpected call.
	jobs := &testutils.MockJobStore{}
	jobs.On("List", mock.Anything, "failed", 50, 0).Return([]*domain.Job{}, nil)
	jobs.On("Count", mock.Anything, "failed").Return(0, nil)

	router := newTestRouter(api.Deps{Jobs: jobs})
	w := get(router, "/api/v1/jobs?status=failed&limit=abc&offset=-3")

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	jobs.AssertExpectations(t)
}

func TestJobsHandler_GetJob(t *testing.T) {
	t.Helper()

	jobs := &testutils.MockJobStore{}
	jobs.On("GetByID", mock.Anything, "job-1").Return(&domain.Job{
		ID:     "job-1",
		TaskID: "top-weekly",
		Status: "scheduled",
	}, nil)

	router := newTestRouter(api.Deps{Jobs: jobs})
	w := get(router, "/api/v1/jobs/job-1")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var job domain.Job
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if job.ID != "job-1" || job.TaskID != "top-weekly" {
		t.Errorf("unexpected job payload: %+v", job)
	}
}

func TestJobsHandler_GetJob_NotFound(t *testing.T) {
	t.Helper()

	jobs := &testutils.MockJobStore{}
	jobs.On("GetByID", mock.Anything, "missing").
		Return(nil, fmt.Errorf("%w: missing", database.ErrJobNotFound))

	router := newTestRouter(api.Deps{Jobs: jobs})
	w := get(router, "/api/v1/jobs/missing")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestJobsHandler_GetJob_UndefinedID(t *testing.T) {
	t.Helper()

	router := newTestRouter(api.Deps{Jobs: &testutils.MockJobStore{}})
	w := get(router, "/api/v1/jobs/undefined")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for undefined id, got %d", w.Code)
	}
}

func TestJobsHandler_GetJob_StoreError(t *testing.T) {
	t.Helper()

	jobs := &testutils.MockJobStore{}
	jobs.On("GetByID", mock.Anything, "job-1").Return(nil, errMockNoData)

	router := newTestRouter(api.Deps{Jobs: jobs})
	w := get(router, "/api/v1/jobs/job-1")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d: %s", w.Code, w.Body.String())
	}
}

func TestJobsHandler_GetJobExecutions(t *testing.T) {
	t.Helper()

	completed := domain.ExecutionStatusCompleted
	executions := &testutils.MockExecutionStore{}
	executions.On("ListByJobID", mock.Anything, "job-1", 5, 0).Return([]*domain.JobExecution{
		{ID: "exec-1", JobID: "job-1", ExecutionNumber: 1, Status: completed},
		{ID: "exec-2", JobID: "job-1", ExecutionNumber: 2, Status: completed},
	}, nil)
	executions.On("CountByJobID", mock.Anything, "job-1").Return(7, nil)

	router := newTestRouter(api.Deps{Executions: executions})
	w := get(router, "/api/v1/jobs/job-1/executions?limit=5")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var body api.ExecutionsListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Total != 7 || len(body.Executions) != 2 || body.Limit != 5 || body.Offset != 0 {
		t.Errorf("unexpected page envelope: %+v", body)
	}
}

func TestJobsHandler_GetLatestExecution(t *testing.T) {
	t.Helper()

	executions := &testutils.MockExecutionStore{}
	executions.On("GetLatestByJobID", mock.Anything, "job-1").Return(&domain.JobExecution{
		ID:              "exec-9",
		JobID:           "job-1",
		ExecutionNumber: 9,
		Status:          domain.ExecutionStatusCompleted,
		BooksCrawled:    50,
	}, nil)

	router := newTestRouter(api.Deps{Executions: executions})
	w := get(router, "/api/v1/jobs/job-1/executions/latest")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var execution domain.JobExecution
	if err := json.Unmarshal(w.Body.Bytes(), &execution); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if execution.ID != "exec-9" || execution.ExecutionNumber != 9 {
		t.Errorf("unexpected execution payload: %+v", execution)
	}
}

func TestJobsHandler_GetLatestExecution_NotFound(t *testing.T) {
	t.Helper()

	executions := &testutils.MockExecutionStore{}
	executions.On("GetLatestByJobID", mock.Anything, "job-9").
		Return(nil, fmt.Errorf("%w: no executions for job %s", database.ErrExecutionNotFound, "job-9"))

	router := newTestRouter(api.Deps{Executions: executions})
	w := get(router, "/api/v1/jobs/job-9/executions/latest")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestJobsHandler_GetLatestExecution_UndefinedID(t *testing.T) {
	t.Helper()

	router := newTestRouter(api.Deps{Executions: &testutils.MockExecutionStore{}})
	w := get(router, "/api/v1/jobs/undefined/executions/latest")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for undefined id, got %d", w.Code)
	}
}

func TestJobsHandler_GetJobStats(t *testing.T) {
	t.Helper()

	executions := &testutils.MockExecutionStore{}
	executions.On("GetJobStats", mock.Anything, "job-1").Return(&domain.JobStats{
		TotalExecutions: 4,
	}, nil)

	router := newTestRouter(api.Deps{Executions: executions})
	w := get(router, "/api/v1/jobs/job-1/stats")

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestJobsHandler_GetExecutionStats(t *testing.T) {
	t.Helper()

	executions := &testutils.MockExecutionStore{}
	executions.On("GetAggregateStats", mock.Anything).Return(&domain.AggregateStats{
		TotalExecutions: 25,
		AvgDurationMs:   1800,
		SuccessRate:     0.92,
		FailureRate:     0.08,
		CompletedToday:  6,
		FailedToday:     1,
	}, nil)

	router := newTestRouter(api.Deps{Executions: executions})
	w := get(router, "/api/v1/executions/stats")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var stats domain.AggregateStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if stats.TotalExecutions != 25 || stats.SuccessRate != 0.92 {
		t.Errorf("unexpected stats payload: %+v", stats)
	}
}

func TestJobsHandler_GetExecutionStats_StoreError(t *testing.T) {
	t.Helper()

	executions := &testutils.MockExecutionStore{}
	executions.On("GetAggregateStats", mock.Anything).Return(nil, errMockNoData)

	router := newTestRouter(api.Deps{Executions: executions})
	w := get(router, "/api/v1/executions/stats")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d: %s", w.Code, w.Body.String())
	}
}

func TestJobsHandler_GetBatch(t *testing.T) {
	t.Helper()

	sched := &fakeScheduler{
		batchFunc: func(ctx context.Context, batchID string) (*scheduler.BatchInfo, error) {
			return &scheduler.BatchInfo{
				BatchID:   batchID,
				Status:    scheduler.BatchStatusRunning,
				Total:     3,
				Running:   1,
				Completed: 2,
			}, nil
		},
	}

	router := newTestRouter(api.Deps{Scheduler: sched})
	w := get(router, "/api/v1/batches/batch-1")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var info scheduler.BatchInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if info.BatchID != "batch-1" || info.Total != 3 {
		t.Errorf("unexpected batch payload: %+v", info)
	}
}

func TestJobsHandler_GetBatch_NotFound(t *testing.T) {
	t.Helper()

	sched := &fakeScheduler{
		batchFunc: func(ctx context.Context, batchID string) (*scheduler.BatchInfo, error) {
			return nil, fmt.Errorf("%w: %s", scheduler.ErrBatchNotFound, batchID)
		},
	}

	router := newTestRouter(api.Deps{Scheduler: sched})
	w := get(router, "/api/v1/batches/nope")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestJobsHandler_GetSchedulerStatus(t *testing.T) {
	t.Helper()

	sched := &fakeScheduler{
		statusFunc: func(ctx context.Context) (*scheduler.SchedulerStatus, error) {
			return &scheduler.SchedulerStatus{Running: true, JobCount: 5, Uptime: "2h"}, nil
		},
	}

	router := newTestRouter(api.Deps{Scheduler: sched})
	w := get(router, "/api/v1/scheduler/status")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var status scheduler.SchedulerStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !status.Running || status.JobCount != 5 {
		t.Errorf("unexpected status payload: %+v", status)
	}
}

func TestJobsHandler_SchedulerUnavailable(t *testing.T) {
	t.Helper()

	router := newTestRouter(api.Deps{})

	for _, path := range []string{
		"/api/v1/scheduler/status",
		"/api/v1/scheduler/metrics",
		"/api/v1/batches/batch-1",
	} {
		w := get(router, path)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected status 503 without a scheduler, got %d", path, w.Code)
		}
	}
}

func TestJobsHandler_GetSchedulerMetrics(t *testing.T) {
	t.Helper()

	sched := &fakeScheduler{
		metricsFunc: func() scheduler.SchedulerMetrics {
			return scheduler.SchedulerMetrics{
				ExecutionsCompleted: 9,
				ExecutionsFailed:    1,
				TotalExecutions:     10,
				TotalBooksCrawled:   420,
				AverageDurationMs:   1250,
				LastFireAt:          time.Now(),
			}
		},
	}

	router := newTestRouter(api.Deps{Scheduler: sched})
	w := get(router, "/api/v1/scheduler/metrics")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var body api.SchedulerMetricsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Executions.Completed != 9 || body.Executions.Total != 10 {
		t.Errorf("unexpected execution counters: %+v", body.Executions)
	}
	if body.BooksCrawled != 420 {
		t.Errorf("expected 420 books crawled, got %d", body.BooksCrawled)
	}
}
