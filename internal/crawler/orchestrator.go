// Package crawler runs crawl tasks end to end: resolve the task, fetch and
// parse its ranking page, fan out book detail fetches, persist one snapshot
// batch. Failures come back inside the CrawlResult, never as an error, so
// job-level retry logic can act on the Retryable flag.
package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/semaphore"

	"github.com/jonesrussell/bookwatch/internal/database"
	"github.com/jonesrussell/bookwatch/internal/domain"
	"github.com/jonesrussell/bookwatch/internal/fetch"
	"github.com/jonesrussell/bookwatch/internal/logger"
	"github.com/jonesrussell/bookwatch/internal/metrics"
	"github.com/jonesrussell/bookwatch/internal/parser"
	"github.com/jonesrussell/bookwatch/internal/tasks"
)

// maxConcurrency is the absolute cap on simultaneous detail fetches, no
// matter what the configuration asks for.
const maxConcurrency = 10

// Fetcher is the fetch-layer surface the orchestrator needs.
type Fetcher interface {
	FetchOne(ctx context.Context, url string) ([]byte, error)
}

// Config tunes the detail fan-out.
type Config struct {
	// Concurrency is both the batch size and the in-flight bound for
	// detail fetches. Values above maxConcurrency are clamped.
	Concurrency int

	// BatchDelay is the pause between detail batches.
	BatchDelay time.Duration
}

// Deps carries the collaborators an Orchestrator needs.
type Deps struct {
	Config   Config
	Registry *tasks.Registry
	Fetcher  Fetcher
	Parser   *parser.Parser
	Store    database.SnapshotStorage
	Logger   logger.Interface
	Metrics  *metrics.Metrics
}

// Orchestrator executes crawl tasks against the platform API and records
// the results as snapshot rows.
type Orchestrator struct {
	config   Config
	registry *tasks.Registry
	fetcher  Fetcher
	parser   *parser.Parser
	store    database.SnapshotStorage
	logger   logger.Interface
	metrics  *metrics.Metrics
}

// NewOrchestrator wires a crawl pipeline. Logger, parser and metrics may be
// nil; the zero Config falls back to serial fetching.
func NewOrchestrator(deps Deps) *Orchestrator {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOp()
	}
	p := deps.Parser
	if p == nil {
		p = parser.New(log)
	}
	return &Orchestrator{
		config:   deps.Config,
		registry: deps.Registry,
		fetcher:  deps.Fetcher,
		parser:   p,
		store:    deps.Store,
		logger:   log,
		metrics:  deps.Metrics,
	}
}

// Run executes one crawl task and reports the outcome. Individual book
// detail failures reduce BooksCrawled; unknown tasks, page fetch errors and
// storage errors fail the whole run.
func (o *Orchestrator) Run(ctx context.Context, taskID string) *domain.CrawlResult {
	start := time.Now()

	task, err := o.registry.Get(taskID)
	if err != nil {
		return o.fail(taskID, start, false, "resolving task: %v", err)
	}

	url, err := o.registry.BuildURL(task)
	if err != nil {
		return o.fail(taskID, start, false, "building url: %v", err)
	}

	o.logger.Info("starting crawl", "task_id", taskID, "url", url)

	body, err := o.fetcher.FetchOne(ctx, url)
	if err != nil {
		return o.fail(taskID, start, fetch.IsRetryable(err), "fetching page: %v", err)
	}

	page, err := o.parser.Parse(body, parser.Context{TaskID: taskID, Kind: parser.PageKind(task.Kind)})
	if err != nil {
		return o.fail(taskID, start, false, "parsing page: %v", err)
	}

	details := o.fetchDetails(ctx, taskID, page.BookIDs())

	crawled, err := o.persist(ctx, page.Rankings, details)
	if err != nil {
		return o.fail(taskID, start, false, "persisting snapshots: %v", err)
	}

	elapsed := time.Since(start)
	o.metrics.ObserveCrawl("success", crawled, elapsed)
	o.logger.Info("crawl finished",
		"task_id", taskID,
		"rankings", len(page.Rankings),
		"books_crawled", crawled,
		"duration", elapsed,
	)

	return &domain.CrawlResult{
		Success:       true,
		TaskID:        taskID,
		BooksCrawled:  crawled,
		ExecutionTime: elapsed,
	}
}

// fail folds an error into a terminal CrawlResult.
func (o *Orchestrator) fail(taskID string, start time.Time, retryable bool, format string, args ...any) *domain.CrawlResult {
	elapsed := time.Since(start)
	msg := fmt.Sprintf(format, args...)

	o.metrics.ObserveCrawl("failed", 0, elapsed)
	o.logger.Error("crawl failed", "task_id", taskID, "retryable", retryable, "error", msg)

	return &domain.CrawlResult{
		TaskID:        taskID,
		ExecutionTime: elapsed,
		Error:         msg,
		Retryable:     retryable,
	}
}

// fetchDetails fans out detail fetches for the deduplicated ids, batch by
// batch. A failed item is logged and dropped; its siblings keep going.
// Results correlate by book id, never by slice position.
func (o *Orchestrator) fetchDetails(ctx context.Context, taskID string, bookIDs []string) map[string]*domain.BookRecord {
	if len(bookIDs) == 0 {
		return nil
	}

	concurrency := o.config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	if concurrency > maxConcurrency {
		concurrency = maxConcurrency
	}

	var (
		mu      sync.Mutex
		records = make(map[string]*domain.BookRecord, len(bookIDs))
	)
	sem := semaphore.NewWeighted(int64(concurrency))

	for offset := 0; offset < len(bookIDs); offset += concurrency {
		if offset > 0 && o.config.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return records
			case <-time.After(o.config.BatchDelay):
			}
		}

		end := offset + concurrency
		if end > len(bookIDs) {
			end = len(bookIDs)
		}

		var wg sync.WaitGroup
		for _, id := range bookIDs[offset:end] {
			if err := sem.Acquire(ctx, 1); err != nil {
				o.logger.Warn("detail fan-out interrupted", "task_id", taskID, "error", err)
				wg.Wait()
				return records
			}
			wg.Add(1)
			go func(bookID string) {
				defer wg.Done()
				defer sem.Release(1)
				if record := o.fetchDetail(ctx, taskID, bookID); record != nil {
					mu.Lock()
					records[bookID] = record
					mu.Unlock()
				}
			}(id)
		}
		wg.Wait()
	}

	return records
}

// fetchDetail loads one book's detail page. Every failure is absorbed here
// so one bad book never sinks the task.
func (o *Orchestrator) fetchDetail(ctx context.Context, taskID, bookID string) *domain.BookRecord {
	url, err := o.registry.BookDetailURL(bookID)
	if err != nil {
		o.logger.Warn("skipping book detail", "task_id", taskID, "book_id", bookID, "error", err)
		return nil
	}

	body, err := o.fetcher.FetchOne(ctx, url)
	if err != nil {
		o.logger.Warn("book detail fetch failed", "task_id", taskID, "book_id", bookID, "error", err)
		return nil
	}

	page, err := o.parser.Parse(body, parser.Context{TaskID: taskID, Kind: parser.PageKindBook})
	if err != nil {
		o.logger.Warn("book detail parse failed", "task_id", taskID, "book_id", bookID, "error", err)
		return nil
	}
	if len(page.Books) == 0 {
		o.logger.Warn("book detail payload empty", "task_id", taskID, "book_id", bookID)
		return nil
	}

	record := page.Books[0]
	if record.Book.ID != bookID {
		o.logger.Warn("book detail id mismatch",
			"task_id", taskID,
			"requested", bookID,
			"received", record.Book.ID,
		)
		return nil
	}
	return &record
}

// persist writes rankings, books and both snapshot kinds in one transaction
// sharing a single capture timestamp. Books whose detail fetch failed keep
// the summary fields the ranking carried; only detailed books count as
// crawled.
func (o *Orchestrator) persist(ctx context.Context, rankings []domain.RankingRecord, details map[string]*domain.BookRecord) (int, error) {
	capturedAt := time.Now().UTC()
	crawled := 0

	err := o.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		crawled = 0
		seen := make(map[string]bool)
		bookSnaps := make([]*domain.BookSnapshot, 0, len(details))
		var rankSnaps []*domain.RankingSnapshot

		for i := range rankings {
			rec := &rankings[i]
			ranking := &domain.Ranking{
				Code:     rec.Code,
				Title:    rec.Title,
				PageKind: rec.PageKind,
			}
			if err := o.store.CreateOrUpdateRanking(ctx, tx, ranking); err != nil {
				return fmt.Errorf("upserting ranking %s: %w", rec.Code, err)
			}

			for _, entry := range rec.Entries {
				if !seen[entry.BookID] {
					seen[entry.BookID] = true

					detail := details[entry.BookID]
					if err := o.store.CreateOrUpdateBook(ctx, tx, bookRow(entry, detail)); err != nil {
						return fmt.Errorf("upserting book %s: %w", entry.BookID, err)
					}
					if detail != nil {
						snap := detail.Snapshot
						snap.CapturedAt = capturedAt
						bookSnaps = append(bookSnaps, &snap)
						crawled++
					}
				}

				rankSnaps = append(rankSnaps, &domain.RankingSnapshot{
					RankingID:  ranking.ID,
					BookID:     entry.BookID,
					Position:   entry.Position,
					Score:      entry.Score,
					CapturedAt: capturedAt,
				})
			}
		}

		if err := o.store.InsertBookSnapshots(ctx, tx, bookSnaps); err != nil {
			return fmt.Errorf("inserting book snapshots: %w", err)
		}
		if err := o.store.InsertRankingSnapshots(ctx, tx, rankSnaps); err != nil {
			return fmt.Errorf("inserting ranking snapshots: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return crawled, nil
}

// bookRow builds the upsert row for one referenced book: detail fields when
// the fetch succeeded, the ranking's summary fields otherwise.
func bookRow(entry domain.RankingEntry, detail *domain.BookRecord) *domain.Book {
	if detail != nil {
		book := detail.Book
		return &book
	}
	return &domain.Book{
		ID:     entry.BookID,
		Title:  entry.Title,
		Author: entry.Author,
	}
}
