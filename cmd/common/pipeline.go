package common

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonesrussell/bookwatch/internal/breaker"
	"github.com/jonesrussell/bookwatch/internal/crawler"
	"github.com/jonesrussell/bookwatch/internal/database"
	"github.com/jonesrussell/bookwatch/internal/fetch"
	"github.com/jonesrussell/bookwatch/internal/metrics"
	"github.com/jonesrussell/bookwatch/internal/tasks"
)

// Pipeline holds the crawl pipeline wired from configuration: the task
// registry, the guarded HTTP client and the orchestrator on top of them.
type Pipeline struct {
	Registry     *tasks.Registry
	PromRegistry *prometheus.Registry
	Metrics      *metrics.Metrics
	Breaker      *breaker.Breaker
	Fetcher      *fetch.Client
	Orchestrator *crawler.Orchestrator
}

// NewPipeline builds the crawl pipeline. The snapshot store is injected so
// each command decides how it connects.
func NewPipeline(deps CommandDeps, store database.SnapshotStorage) (*Pipeline, error) {
	registry, err := tasks.NewLoader(deps.Config.Crawler.TasksFile).Load()
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	m := metrics.NewMetrics(promRegistry)

	log := deps.Logger
	breakerCfg := deps.Config.Crawler.Breaker.Breaker()
	breakerCfg.OnStateChange = func(from, to breaker.State) {
		log.Warn("Circuit breaker state change", "from", from.String(), "to", to.String())
		m.IncBreakerTransition(from.String(), to.String())
		m.SetBreakerState(float64(to))
	}
	brk := breaker.New(breakerCfg)

	client := fetch.NewClient(deps.Config.Crawler.Fetch, brk, deps.Logger, m)

	orchestrator := crawler.NewOrchestrator(crawler.Deps{
		Config: crawler.Config{
			Concurrency: deps.Config.Crawler.Concurrency,
			BatchDelay:  deps.Config.Crawler.Fetch.BatchDelay,
		},
		Registry: registry,
		Fetcher:  client,
		Store:    store,
		Logger:   deps.Logger,
		Metrics:  m,
	})

	return &Pipeline{
		Registry:     registry,
		PromRegistry: promRegistry,
		Metrics:      m,
		Breaker:      brk,
		Fetcher:      client,
		Orchestrator: orchestrator,
	}, nil
}
