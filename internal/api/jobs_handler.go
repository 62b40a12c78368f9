package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/bookwatch/internal/database"
	"github.com/jonesrussell/bookwatch/internal/scheduler"
)

// JobsHandler handles job-related HTTP requests.
type JobsHandler struct {
	jobs       database.JobStore
	executions database.ExecutionStore
	scheduler  Scheduler
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(jobs database.JobStore, executions database.ExecutionStore, sched Scheduler) *JobsHandler {
	return &JobsHandler{
		jobs:       jobs,
		executions: executions,
		scheduler:  sched,
	}
}

// ListJobs handles GET /api/v1/jobs
func (h *JobsHandler) ListJobs(c *gin.Context) {
	status := c.Query("status")
	limit, offset := pageParams(c)

	jobs, err := h.jobs.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve jobs",
		})
		return
	}

	total, err := h.jobs.Count(c.Request.Context(), status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get total count",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": total,
	})
}

// GetJob handles GET /api/v1/jobs/:id
func (h *JobsHandler) GetJob(c *gin.Context) {
	id := c.Param("id")
	if id == "" || id == "undefined" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid job ID",
		})
		return
	}

	job, err := h.jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve job",
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

// GetJobExecutions handles GET /api/v1/jobs/:id/executions
func (h *JobsHandler) GetJobExecutions(c *gin.Context) {
	id := c.Param("id")
	if id == "" || id == "undefined" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid job ID",
		})
		return
	}

	limit, offset := pageParams(c)

	executions, err := h.executions.ListByJobID(c.Request.Context(), id, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve executions",
		})
		return
	}

	total, err := h.executions.CountByJobID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get total count",
		})
		return
	}

	c.JSON(http.StatusOK, ExecutionsListResponse{
		Executions: executions,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	})
}

// GetLatestExecution handles GET /api/v1/jobs/:id/executions/latest
func (h *JobsHandler) GetLatestExecution(c *gin.Context) {
	id := c.Param("id")
	if id == "" || id == "undefined" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid job ID",
		})
		return
	}

	execution, err := h.executions.GetLatestByJobID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrExecutionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "No executions found for job",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve execution",
		})
		return
	}

	c.JSON(http.StatusOK, execution)
}

// GetJobStats handles GET /api/v1/jobs/:id/stats
func (h *JobsHandler) GetJobStats(c *gin.Context) {
	id := c.Param("id")
	if id == "" || id == "undefined" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid job ID",
		})
		return
	}

	stats, err := h.executions.GetJobStats(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve job statistics",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetExecutionStats handles GET /api/v1/executions/stats
func (h *JobsHandler) GetExecutionStats(c *gin.Context) {
	stats, err := h.executions.GetAggregateStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve execution statistics",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetBatch handles GET /api/v1/batches/:id
func (h *JobsHandler) GetBatch(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Scheduler not available",
		})
		return
	}

	id := c.Param("id")
	info, err := h.scheduler.BatchStatus(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, scheduler.ErrBatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Batch not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve batch",
		})
		return
	}

	c.JSON(http.StatusOK, info)
}

// GetSchedulerStatus handles GET /api/v1/scheduler/status
func (h *JobsHandler) GetSchedulerStatus(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Scheduler not available",
		})
		return
	}

	status, err := h.scheduler.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read scheduler status",
		})
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetSchedulerMetrics handles GET /api/v1/scheduler/metrics
func (h *JobsHandler) GetSchedulerMetrics(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Scheduler not available",
		})
		return
	}

	metrics := h.scheduler.Metrics()

	response := SchedulerMetricsResponse{}
	response.Executions.Running = metrics.ExecutionsRunning
	response.Executions.Completed = metrics.ExecutionsCompleted
	response.Executions.Failed = metrics.ExecutionsFailed
	response.Executions.Skipped = metrics.ExecutionsSkipped
	response.Executions.Total = metrics.TotalExecutions
	response.BooksCrawled = metrics.TotalBooksCrawled
	response.AverageDurationMs = metrics.AverageDurationMs
	response.LastFireAt = metrics.LastFireAt
	response.LastMetricsUpdate = metrics.LastMetricsUpdate

	c.JSON(http.StatusOK, response)
}

// pageParams reads limit and offset, falling back to the defaults on
// missing or malformed values.
func pageParams(c *gin.Context) (limit, offset int) {
	limitStr := c.DefaultQuery("limit", strconv.Itoa(defaultLimit))
	offsetStr := c.DefaultQuery("offset", strconv.Itoa(defaultOffset))

	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}

	offset, err = strconv.Atoi(offsetStr)
	if err != nil || offset < 0 {
		offset = defaultOffset
	}

	return limit, offset
}
