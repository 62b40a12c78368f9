// Package api implements the read-only HTTP API over crawl snapshots and
// scheduler state.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/bookwatch/internal/breaker"
	"github.com/jonesrussell/bookwatch/internal/database"
	"github.com/jonesrussell/bookwatch/internal/logger"
	"github.com/jonesrussell/bookwatch/internal/scheduler"
)

const (
	readHeaderTimeout = 10 * time.Second

	defaultLimit      = 50
	defaultOffset     = 0
	defaultTrendDays  = 30
	defaultMoverLimit = 10
)

// Scheduler is the subset of scheduler operations the API exposes.
type Scheduler interface {
	Status(ctx context.Context) (*scheduler.SchedulerStatus, error)
	BatchStatus(ctx context.Context, batchID string) (*scheduler.BatchInfo, error)
	Metrics() scheduler.SchedulerMetrics
}

// BreakerStats reports the fetch circuit breaker snapshot.
type BreakerStats interface {
	GetStats() breaker.Stats
}

// Deps carries everything the router serves from. Scheduler, Breaker and
// Gatherer may be nil; the matching endpoints degrade instead of panicking.
type Deps struct {
	Jobs       database.JobStore
	Executions database.ExecutionStore
	Snapshots  database.SnapshotStorage
	Scheduler  Scheduler
	Breaker    BreakerStats
	Gatherer   prometheus.Gatherer
}

// SetupRouter creates and configures the Gin router with all routes.
func SetupRouter(log logger.Interface, deps Deps) *gin.Engine {
	// Disable Gin's default logging
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(log))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	jobs := NewJobsHandler(deps.Jobs, deps.Executions, deps.Scheduler)
	snapshots := NewSnapshotsHandler(deps.Snapshots)

	v1 := router.Group("/api/v1")

	v1.GET("/jobs", jobs.ListJobs)
	v1.GET("/jobs/:id", jobs.GetJob)
	v1.GET("/jobs/:id/executions", jobs.GetJobExecutions)
	v1.GET("/jobs/:id/executions/latest", jobs.GetLatestExecution)
	v1.GET("/jobs/:id/stats", jobs.GetJobStats)
	v1.GET("/executions/stats", jobs.GetExecutionStats)
	v1.GET("/batches/:id", jobs.GetBatch)
	v1.GET("/scheduler/status", jobs.GetSchedulerStatus)
	v1.GET("/scheduler/metrics", jobs.GetSchedulerMetrics)

	v1.GET("/rankings", snapshots.ListRankings)
	v1.GET("/rankings/:id/latest", snapshots.GetLatestRanking)
	v1.GET("/rankings/:id/movers", snapshots.GetTopMovers)
	v1.GET("/books/:id", snapshots.GetBook)
	v1.GET("/books/:id/trend", snapshots.GetBookTrend)

	v1.GET("/breaker", breakerStats(deps.Breaker))

	return router
}

// loggingMiddleware creates a middleware that logs HTTP requests
func loggingMiddleware(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		log.Info("HTTP Request",
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", statusCode,
			"latency", latency,
		)
	}
}

// breakerStats creates a handler reporting the circuit breaker snapshot.
func breakerStats(stats BreakerStats) gin.HandlerFunc {
	return func(c *gin.Context) {
		if stats == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Breaker not available",
			})
			return
		}
		c.JSON(http.StatusOK, stats.GetStats())
	}
}
