package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/bookwatch/internal/domain"
)

// Lookup errors for catalog rows.
var (
	// ErrBookNotFound is returned when a book id matches no row.
	ErrBookNotFound = errors.New("book not found")
	// ErrRankingNotFound is returned when a ranking id matches no row.
	ErrRankingNotFound = errors.New("ranking not found")
)

// SnapshotStore persists crawl output: the book and ranking catalogs plus
// their timestamped snapshots. All writes from one crawl run go through a
// single transaction via WithTx.
type SnapshotStore struct {
	db *sqlx.DB
}

// NewSnapshotStore creates a new snapshot store.
func NewSnapshotStore(db *sqlx.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// WithTx runs fn inside one transaction. An error from fn rolls everything
// back; otherwise the transaction is committed.
func (s *SnapshotStore) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to rollback after %v: %w", fnErr, rbErr)
		}
		return fnErr
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// CreateOrUpdateBook upserts a catalog row keyed by the platform book id.
// Detail fields only overwrite when the new crawl actually carries them.
func (s *SnapshotStore) CreateOrUpdateBook(ctx context.Context, tx *sqlx.Tx, book *domain.Book) error {
	query := `
		INSERT INTO books (id, title, author, category, status, first_seen_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title,
		    author = EXCLUDED.author,
		    category = COALESCE(EXCLUDED.category, books.category),
		    status = COALESCE(EXCLUDED.status, books.status),
		    updated_at = NOW()
	`

	_, err := tx.ExecContext(ctx, query, book.ID, book.Title, book.Author, book.Category, book.Status)
	if err != nil {
		return fmt.Errorf("failed to upsert book %s: %w", book.ID, err)
	}

	return nil
}

// CreateOrUpdateRanking upserts a ranking catalog row keyed by its natural
// code and fills in ranking.ID from the surviving row.
func (s *SnapshotStore) CreateOrUpdateRanking(ctx context.Context, tx *sqlx.Tx, ranking *domain.Ranking) error {
	query := `
		INSERT INTO rankings (code, title, page_kind, first_seen_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (code) DO UPDATE
		SET title = EXCLUDED.title,
		    updated_at = NOW()
		RETURNING id
	`

	err := tx.QueryRowContext(ctx, query, ranking.Code, ranking.Title, ranking.PageKind).Scan(&ranking.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert ranking %s: %w", ranking.Code, err)
	}

	return nil
}

// InsertBookSnapshots inserts all book snapshots from one capture in a single
// multi-row statement.
func (s *SnapshotStore) InsertBookSnapshots(ctx context.Context, tx *sqlx.Tx, snapshots []*domain.BookSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	const cols = 9
	args := make([]any, 0, len(snapshots)*cols)
	for _, snap := range snapshots {
		args = append(args,
			snap.BookID,
			snap.CapturedAt,
			snap.WordCount,
			snap.ClickCount,
			snap.FavoriteCount,
			snap.TicketCount,
			snap.CommentCount,
			snap.ChapterClicks,
			snap.Extra,
		)
	}

	query := `
		INSERT INTO book_snapshots (
			book_id, captured_at,
			word_count, click_count, favorite_count, ticket_count, comment_count,
			chapter_clicks, extra
		)
		VALUES ` + valuesClause(len(snapshots), cols)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert book snapshots: %w", err)
	}

	return nil
}

// InsertRankingSnapshots inserts all position rows from one capture in a
// single multi-row statement.
func (s *SnapshotStore) InsertRankingSnapshots(ctx context.Context, tx *sqlx.Tx, snapshots []*domain.RankingSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	const cols = 5
	args := make([]any, 0, len(snapshots)*cols)
	for _, snap := range snapshots {
		args = append(args,
			snap.RankingID,
			snap.BookID,
			snap.Position,
			snap.Score,
			snap.CapturedAt,
		)
	}

	query := `
		INSERT INTO ranking_snapshots (ranking_id, book_id, position, score, captured_at)
		VALUES ` + valuesClause(len(snapshots), cols)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert ranking snapshots: %w", err)
	}

	return nil
}

// GetBook retrieves a catalog row by platform book id.
func (s *SnapshotStore) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	var book domain.Book
	query := `
		SELECT id, title, author, category, status, first_seen_at, updated_at
		FROM books
		WHERE id = $1
	`

	err := s.db.GetContext(ctx, &book, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrBookNotFound, id)
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}

	return &book, nil
}

// GetRanking retrieves a ranking catalog row by id.
func (s *SnapshotStore) GetRanking(ctx context.Context, id int64) (*domain.Ranking, error) {
	var ranking domain.Ranking
	query := `
		SELECT id, code, title, page_kind, first_seen_at, updated_at
		FROM rankings
		WHERE id = $1
	`

	err := s.db.GetContext(ctx, &ranking, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrRankingNotFound, id)
		}
		return nil, fmt.Errorf("failed to get ranking: %w", err)
	}

	return &ranking, nil
}

// ListRankings retrieves the full ranking catalog.
func (s *SnapshotStore) ListRankings(ctx context.Context) ([]*domain.Ranking, error) {
	var rankings []*domain.Ranking
	query := `
		SELECT id, code, title, page_kind, first_seen_at, updated_at
		FROM rankings
		ORDER BY code ASC
	`

	err := s.db.SelectContext(ctx, &rankings, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rankings: %w", err)
	}

	if rankings == nil {
		rankings = []*domain.Ranking{}
	}

	return rankings, nil
}

// BookTrend returns a book's counter history since the given time, oldest
// first.
func (s *SnapshotStore) BookTrend(ctx context.Context, bookID string, since time.Time) ([]*domain.BookTrendPoint, error) {
	var points []*domain.BookTrendPoint
	query := `
		SELECT captured_at, word_count, click_count, favorite_count, ticket_count, comment_count
		FROM book_snapshots
		WHERE book_id = $1 AND captured_at >= $2
		ORDER BY captured_at ASC
	`

	err := s.db.SelectContext(ctx, &points, query, bookID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get book trend: %w", err)
	}

	if points == nil {
		points = []*domain.BookTrendPoint{}
	}

	return points, nil
}

// LatestRankingSnapshot returns the most recent capture of a ranking board,
// ordered by position.
func (s *SnapshotStore) LatestRankingSnapshot(ctx context.Context, rankingID int64) ([]*domain.RankingSnapshot, error) {
	var snapshots []*domain.RankingSnapshot
	query := `
		SELECT id, ranking_id, book_id, position, score, captured_at
		FROM ranking_snapshots
		WHERE ranking_id = $1
		  AND captured_at = (SELECT MAX(captured_at) FROM ranking_snapshots WHERE ranking_id = $1)
		ORDER BY position ASC
	`

	err := s.db.SelectContext(ctx, &snapshots, query, rankingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest ranking snapshot: %w", err)
	}

	if snapshots == nil {
		snapshots = []*domain.RankingSnapshot{}
	}

	return snapshots, nil
}

// TopMovers compares the two most recent captures of a ranking and returns
// the books that climbed the most.
func (s *SnapshotStore) TopMovers(ctx context.Context, rankingID int64, limit int) ([]*domain.RankingMover, error) {
	var movers []*domain.RankingMover
	query := `
		WITH latest AS (
			SELECT book_id, position
			FROM ranking_snapshots
			WHERE ranking_id = $1
			  AND captured_at = (SELECT MAX(captured_at) FROM ranking_snapshots WHERE ranking_id = $1)
		), previous AS (
			SELECT book_id, position
			FROM ranking_snapshots
			WHERE ranking_id = $1
			  AND captured_at = (
				SELECT MAX(captured_at) FROM ranking_snapshots
				WHERE ranking_id = $1
				  AND captured_at < (SELECT MAX(captured_at) FROM ranking_snapshots WHERE ranking_id = $1)
			  )
		)
		SELECT l.book_id,
		       p.position AS previous_position,
		       l.position AS current_position,
		       p.position - l.position AS delta
		FROM latest l
		JOIN previous p ON p.book_id = l.book_id
		ORDER BY delta DESC
		LIMIT $2
	`

	err := s.db.SelectContext(ctx, &movers, query, rankingID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top movers: %w", err)
	}

	if movers == nil {
		movers = []*domain.RankingMover{}
	}

	return movers, nil
}
