package database_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/bookwatch/internal/database"
	"github.com/jonesrussell/bookwatch/internal/domain"
)

func TestSnapshotStore_WithTx_Commit(t *testing.T) {
	db, mock := newMockDB(t)
	store := database.NewSnapshotStore(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO books").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return store.CreateOrUpdateBook(ctx, tx, &domain.Book{
			ID:     "100001",
			Title:  "The Iron Harvest",
			Author: "wen_zhou",
		})
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSnapshotStore_WithTx_RollbackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	store := database.NewSnapshotStore(db)
	ctx := context.Background()

	captured := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO rankings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO ranking_snapshots").
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	ranking := &domain.Ranking{Code: "monthly_ticket:3", Title: "Monthly Ticket", PageKind: "ranking_list"}

	err := store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := store.CreateOrUpdateRanking(ctx, tx, ranking); err != nil {
			return err
		}
		return store.InsertRankingSnapshots(ctx, tx, []*domain.RankingSnapshot{
			{RankingID: ranking.ID, BookID: "100001", Position: 1, CapturedAt: captured},
		})
	})
	if err == nil {
		t.Fatal("expected error to surface from WithTx")
	}
	if !strings.Contains(err.Error(), "deadlock detected") {
		t.Errorf("expected wrapped insert error, got %v", err)
	}

	if ranking.ID != 7 {
		t.Errorf("expected ranking.ID backfilled to 7, got %d", ranking.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSnapshotStore_InsertBookSnapshots_MultiRow(t *testing.T) {
	db, mock := newMockDB(t)
	store := database.NewSnapshotStore(db)
	ctx := context.Background()

	captured := time.Now()
	snapshots := []*domain.BookSnapshot{
		{BookID: "100001", CapturedAt: captured, WordCount: 520000, ClickCount: 85221},
		{BookID: "100002", CapturedAt: captured, WordCount: 12000, FavoriteCount: 93},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO book_snapshots").
		WithArgs(
			"100001", captured, int64(520000), int64(85221), int64(0), int64(0), int64(0), int64(0), sqlmock.AnyArg(),
			"100002", captured, int64(12000), int64(0), int64(93), int64(0), int64(0), int64(0), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return store.InsertBookSnapshots(ctx, tx, snapshots)
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSnapshotStore_InsertBookSnapshots_EmptyIsNoop(t *testing.T) {
	db, mock := newMockDB(t)
	store := database.NewSnapshotStore(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return store.InsertBookSnapshots(ctx, tx, nil)
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSnapshotStore_BookTrend(t *testing.T) {
	db, mock := newMockDB(t)
	store := database.NewSnapshotStore(db)
	ctx := context.Background()

	since := time.Now().Add(-30 * 24 * time.Hour)
	early := since.Add(24 * time.Hour)
	late := since.Add(48 * time.Hour)

	rows := sqlmock.NewRows([]string{
		"captured_at", "word_count", "click_count", "favorite_count", "ticket_count", "comment_count",
	}).
		AddRow(early, 500000, 80000, 1200, 40, 300).
		AddRow(late, 520000, 85221, 1250, 45, 310)

	mock.ExpectQuery("SELECT (.+) FROM book_snapshots").
		WithArgs("100001", since).
		WillReturnRows(rows)

	points, err := store.BookTrend(ctx, "100001", since)
	if err != nil {
		t.Fatalf("BookTrend() error = %v", err)
	}

	if len(points) != 2 {
		t.Fatalf("expected 2 trend points, got %d", len(points))
	}
	if !points[0].CapturedAt.Before(points[1].CapturedAt) {
		t.Error("expected points ordered oldest first")
	}
	if points[1].ClickCount != 85221 {
		t.Errorf("expected click_count=85221, got %d", points[1].ClickCount)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSnapshotStore_GetBook_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	store := database.NewSnapshotStore(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT (.+) FROM books").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetBook(ctx, "missing")
	if !errors.Is(err, database.ErrBookNotFound) {
		t.Errorf("expected ErrBookNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSnapshotStore_TopMovers(t *testing.T) {
	db, mock := newMockDB(t)
	store := database.NewSnapshotStore(db)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"book_id", "previous_position", "current_position", "delta"}).
		AddRow("100007", 9, 2, 7).
		AddRow("100003", 5, 4, 1)

	mock.ExpectQuery("WITH latest AS").
		WithArgs(int64(3), 10).
		WillReturnRows(rows)

	movers, err := store.TopMovers(ctx, 3, 10)
	if err != nil {
		t.Fatalf("TopMovers() error = %v", err)
	}

	if len(movers) != 2 {
		t.Fatalf("expected 2 movers, got %d", len(movers))
	}
	if movers[0].Delta != 7 {
		t.Errorf("expected top delta=7, got %d", movers[0].Delta)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
