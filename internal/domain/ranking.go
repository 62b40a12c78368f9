// Package domain provides domain models used across the application.
package domain

import (
	"time"
)

// Ranking is the durable identity record for a platform ranking board. Code
// is the natural key, a slug derived from the task and the platform's board
// identifier.
type Ranking struct {
	ID    int64  `db:"id"    json:"id"`
	Code  string `db:"code"  json:"code"`
	Title string `db:"title" json:"title"`
	// PageKind names the endpoint family the ranking came from.
	PageKind string `db:"page_kind" json:"page_kind"`

	FirstSeenAt time.Time `db:"first_seen_at" json:"first_seen_at"`
	UpdatedAt   time.Time `db:"updated_at"    json:"updated_at"`
}

// RankingSnapshot records a book holding a position on a ranking board at
// capture time.
type RankingSnapshot struct {
	ID         int64     `db:"id"          json:"id"`
	RankingID  int64     `db:"ranking_id"  json:"ranking_id"`
	BookID     string    `db:"book_id"     json:"book_id"`
	Position   int       `db:"position"    json:"position"`
	Score      *float64  `db:"score"       json:"score,omitempty"`
	CapturedAt time.Time `db:"captured_at" json:"captured_at"`
}

// RankingMover compares a book's position between the two most recent
// captures of a ranking. Delta is positive when the book climbed.
type RankingMover struct {
	BookID           string `db:"book_id"           json:"book_id"`
	PreviousPosition int    `db:"previous_position" json:"previous_position"`
	CurrentPosition  int    `db:"current_position"  json:"current_position"`
	Delta            int    `db:"delta"             json:"delta"`
}
