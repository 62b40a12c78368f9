package crawler_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/bookwatch/internal/crawler"
	"github.com/jonesrussell/bookwatch/internal/database"
	"github.com/jonesrussell/bookwatch/internal/domain"
	"github.com/jonesrussell/bookwatch/internal/fetch"
	"github.com/jonesrussell/bookwatch/internal/logger"
	"github.com/jonesrussell/bookwatch/internal/tasks"
)

const (
	listURL       = "https://api.test/rank?page=1"
	detailURLBase = "https://api.test/book/"
)

func detailURL(bookID string) string {
	return detailURLBase + bookID
}

func newTestRegistry() *tasks.Registry {
	templates := map[string]string{
		"rank_list":          "https://api.test/rank?page={page}",
		tasks.DetailTemplate: "https://api.test/book/{book_id}",
	}
	defs := []tasks.Task{{
		ID:       "top-weekly",
		Name:     "Top weekly boards",
		Kind:     tasks.KindRankingList,
		Template: "rank_list",
		Params:   map[string]string{"page": "1"},
	}}
	return tasks.NewRegistry(templates, defs)
}

// listBody references books 101..104 across two boards; 103 sits on both.
func listBody() []byte {
	return []byte(`{"code":0,"data":[
		{"rank_id":1,"title":"Weekly Hot","books":[
			{"book_id":"101","title":"First","author":"Ann","position":1,"score":98.5},
			{"book_id":"102","title":"Second","author":"Ben","position":2},
			{"book_id":"103","title":"Third","author":"Cil","position":3}]},
		{"rank_id":2,"title":"Weekly New","books":[
			{"book_id":"103","title":"Third","author":"Cil","position":1},
			{"book_id":"104","title":"Fourth","author":"Dov","position":2}]}
	]}`)
}

func detailBody(bookID string) []byte {
	return []byte(fmt.Sprintf(
		`{"code":0,"data":{"book_id":%q,"title":"Book %s","author":"Ann","word_count":"120,000","click_count":1000,"favorite_count":10,"ticket_count":5,"comment_count":2,"chapter_click_count":300}}`,
		bookID, bookID,
	))
}

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string][]byte
	errs      map[string]error
	calls     []string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeFetcher() *fakeFetcher {
	f := &fakeFetcher{
		responses: map[string][]byte{listURL: listBody()},
		errs:      map[string]error{},
	}
	for _, id := range []string{"101", "102", "103", "104"} {
		f.responses[detailURL(id)] = detailBody(id)
	}
	return f
}

func (f *fakeFetcher) FetchOne(_ context.Context, url string) ([]byte, error) {
	cur := f.inFlight.Add(1)
	for {
		prev := f.maxInFlight.Load()
		if cur <= prev || f.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	defer f.inFlight.Add(-1)

	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	body, ok := f.responses[url]
	if !ok {
		return nil, &fetch.FetchError{Kind: fetch.KindPermanent, URL: url, StatusCode: http.StatusNotFound, Err: errors.New("no fixture")}
	}
	return body, nil
}

func (f *fakeFetcher) detailCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, url := range f.calls {
		if url != listURL {
			out = append(out, url)
		}
	}
	return out
}

var errNoFakeData = errors.New("no fake data")

type fakeStore struct {
	mu         sync.Mutex
	txErr      error
	bookErr    error
	nextRankID int64

	books     []*domain.Book
	rankings  []*domain.Ranking
	bookSnaps []*domain.BookSnapshot
	rankSnaps []*domain.RankingSnapshot
}

var _ database.SnapshotStorage = (*fakeStore)(nil)

func (f *fakeStore) WithTx(_ context.Context, fn func(tx *sqlx.Tx) error) error {
	if f.txErr != nil {
		return f.txErr
	}
	return fn(nil)
}

func (f *fakeStore) CreateOrUpdateBook(_ context.Context, _ *sqlx.Tx, book *domain.Book) error {
	if f.bookErr != nil {
		return f.bookErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.books = append(f.books, book)
	return nil
}

func (f *fakeStore) CreateOrUpdateRanking(_ context.Context, _ *sqlx.Tx, ranking *domain.Ranking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextRankID++
	ranking.ID = f.nextRankID
	f.rankings = append(f.rankings, ranking)
	return nil
}

func (f *fakeStore) InsertBookSnapshots(_ context.Context, _ *sqlx.Tx, snaps []*domain.BookSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookSnaps = append(f.bookSnaps, snaps...)
	return nil
}

func (f *fakeStore) InsertRankingSnapshots(_ context.Context, _ *sqlx.Tx, snaps []*domain.RankingSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rankSnaps = append(f.rankSnaps, snaps...)
	return nil
}

func (f *fakeStore) GetBook(context.Context, string) (*domain.Book, error) {
	return nil, errNoFakeData
}

func (f *fakeStore) GetRanking(context.Context, int64) (*domain.Ranking, error) {
	return nil, errNoFakeData
}

func (f *fakeStore) ListRankings(context.Context) ([]*domain.Ranking, error) {
	return nil, errNoFakeData
}

func (f *fakeStore) BookTrend(context.Context, string, time.Time) ([]*domain.BookTrendPoint, error) {
	return nil, errNoFakeData
}

func (f *fakeStore) LatestRankingSnapshot(context.Context, int64) ([]*domain.RankingSnapshot, error) {
	return nil, errNoFakeData
}

func (f *fakeStore) TopMovers(context.Context, int64, int) ([]*domain.RankingMover, error) {
	return nil, errNoFakeData
}

func newTestOrchestrator(f *fakeFetcher, store *fakeStore, concurrency int) *crawler.Orchestrator {
	return crawler.NewOrchestrator(crawler.Deps{
		Config:   crawler.Config{Concurrency: concurrency},
		Registry: newTestRegistry(),
		Fetcher:  f,
		Store:    store,
		Logger:   logger.NewNoOp(),
	})
}

func TestRunFetchesEachReferencedBookOnce(t *testing.T) {
	fetcher := newFakeFetcher()
	store := &fakeStore{}
	o := newTestOrchestrator(fetcher, store, 2)

	result := o.Run(context.Background(), "top-weekly")

	require.True(t, result.Success, "unexpected failure: %s", result.Error)
	assert.Equal(t, "top-weekly", result.TaskID)
	assert.Equal(t, 4, result.BooksCrawled)

	// 103 appears on both boards but gets exactly one detail fetch.
	assert.Len(t, fetcher.detailCalls(), 4)
	assert.Len(t, store.rankings, 2)
	assert.Len(t, store.books, 4)
	assert.Len(t, store.bookSnaps, 4)
	assert.Len(t, store.rankSnaps, 5)

	require.NotEmpty(t, store.rankSnaps)
	capturedAt := store.rankSnaps[0].CapturedAt
	for _, snap := range store.rankSnaps {
		assert.Equal(t, capturedAt, snap.CapturedAt)
		assert.NotZero(t, snap.RankingID)
	}
	for _, snap := range store.bookSnaps {
		assert.Equal(t, capturedAt, snap.CapturedAt)
	}
}

func TestRunBoundsDetailConcurrency(t *testing.T) {
	fetcher := newFakeFetcher()
	store := &fakeStore{}
	o := newTestOrchestrator(fetcher, store, 2)

	result := o.Run(context.Background(), "top-weekly")

	require.True(t, result.Success)
	assert.LessOrEqual(t, fetcher.maxInFlight.Load(), int32(2))
}

func TestRunDetailFailureDoesNotSinkTask(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.errs[detailURL("102")] = &fetch.FetchError{
		Kind:       fetch.KindTransient,
		URL:        detailURL("102"),
		StatusCode: http.StatusBadGateway,
		Err:        errors.New("bad gateway"),
	}
	store := &fakeStore{}
	o := newTestOrchestrator(fetcher, store, 4)

	result := o.Run(context.Background(), "top-weekly")

	require.True(t, result.Success)
	assert.Equal(t, 3, result.BooksCrawled)

	// The failed book still gets a row from the ranking's summary fields,
	// just no snapshot.
	var summary *domain.Book
	for _, book := range store.books {
		if book.ID == "102" {
			summary = book
		}
	}
	require.NotNil(t, summary)
	assert.Equal(t, "Second", summary.Title)
	assert.Equal(t, "Ben", summary.Author)

	for _, snap := range store.bookSnaps {
		assert.NotEqual(t, "102", snap.BookID)
	}
	assert.Len(t, store.bookSnaps, 3)
	assert.Len(t, store.rankSnaps, 5)
}

func TestRunDetailIDMismatchDropped(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.responses[detailURL("104")] = detailBody("999")
	store := &fakeStore{}
	o := newTestOrchestrator(fetcher, store, 4)

	result := o.Run(context.Background(), "top-weekly")

	require.True(t, result.Success)
	assert.Equal(t, 3, result.BooksCrawled)
	for _, snap := range store.bookSnaps {
		assert.NotEqual(t, "104", snap.BookID)
		assert.NotEqual(t, "999", snap.BookID)
	}
}

func TestRunUnknownTaskFails(t *testing.T) {
	fetcher := newFakeFetcher()
	store := &fakeStore{}
	o := newTestOrchestrator(fetcher, store, 2)

	result := o.Run(context.Background(), "no-such-task")

	require.False(t, result.Success)
	assert.False(t, result.Retryable)
	assert.Contains(t, result.Error, "resolving task")
	assert.Empty(t, fetcher.calls)
	assert.Empty(t, store.rankings)
}

func TestRunPageFetchErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		kind      fetch.Kind
		retryable bool
	}{
		{"transient", fetch.KindTransient, true},
		{"overload", fetch.KindOverload, true},
		{"permanent", fetch.KindPermanent, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fetcher := newFakeFetcher()
			fetcher.errs[listURL] = &fetch.FetchError{
				Kind: tc.kind,
				URL:  listURL,
				Err:  errors.New("upstream"),
			}
			store := &fakeStore{}
			o := newTestOrchestrator(fetcher, store, 2)

			result := o.Run(context.Background(), "top-weekly")

			require.False(t, result.Success)
			assert.Equal(t, tc.retryable, result.Retryable)
			assert.Contains(t, result.Error, "fetching page")
			assert.Zero(t, result.BooksCrawled)
		})
	}
}

func TestRunPlatformErrorCodeFails(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.responses[listURL] = []byte(`{"code":1001,"message":"rate limited"}`)
	store := &fakeStore{}
	o := newTestOrchestrator(fetcher, store, 2)

	result := o.Run(context.Background(), "top-weekly")

	require.False(t, result.Success)
	assert.False(t, result.Retryable)
	assert.Contains(t, result.Error, "parsing page")
}

func TestRunStorageErrorFailsRun(t *testing.T) {
	fetcher := newFakeFetcher()
	store := &fakeStore{txErr: errors.New("connection reset")}
	o := newTestOrchestrator(fetcher, store, 2)

	result := o.Run(context.Background(), "top-weekly")

	require.False(t, result.Success)
	assert.False(t, result.Retryable)
	assert.Contains(t, result.Error, "persisting snapshots")
	assert.Zero(t, result.BooksCrawled)
	assert.Empty(t, store.bookSnaps)
	assert.Empty(t, store.rankSnaps)
}

func TestRunPartialStorageFailureRollsBack(t *testing.T) {
	fetcher := newFakeFetcher()
	store := &fakeStore{bookErr: errors.New("duplicate key")}
	o := newTestOrchestrator(fetcher, store, 2)

	result := o.Run(context.Background(), "top-weekly")

	require.False(t, result.Success)
	assert.Contains(t, result.Error, "persisting snapshots")
	// The transaction callback bailed before any snapshot insert.
	assert.Empty(t, store.bookSnaps)
	assert.Empty(t, store.rankSnaps)
}
