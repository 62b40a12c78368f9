// Package domain provides domain models used across the application.
package domain

import (
	"time"
)

// Book is the durable identity record for a platform book. Mutable catalog
// fields hold the most recent observation; historical values live in
// BookSnapshot rows.
type Book struct {
	// ID is the platform's book identifier, not a generated surrogate.
	ID       string  `db:"id"       json:"id"`
	Title    string  `db:"title"    json:"title"`
	Author   string  `db:"author"   json:"author"`
	Category *string `db:"category" json:"category,omitempty"`
	// Status is the platform's serialization state, e.g. ongoing or finished.
	Status *string `db:"status" json:"status,omitempty"`

	FirstSeenAt time.Time `db:"first_seen_at" json:"first_seen_at"`
	UpdatedAt   time.Time `db:"updated_at"    json:"updated_at"`
}

// BookSnapshot is one time-stamped observation of a book's counters.
type BookSnapshot struct {
	ID         int64     `db:"id"          json:"id"`
	BookID     string    `db:"book_id"     json:"book_id"`
	CapturedAt time.Time `db:"captured_at" json:"captured_at"`

	WordCount     int64 `db:"word_count"     json:"word_count"`
	ClickCount    int64 `db:"click_count"    json:"click_count"`
	FavoriteCount int64 `db:"favorite_count" json:"favorite_count"`
	TicketCount   int64 `db:"ticket_count"   json:"ticket_count"`
	CommentCount  int64 `db:"comment_count"  json:"comment_count"`
	// ChapterClicks is the per-chapter average click figure when the platform
	// reports one.
	ChapterClicks int64 `db:"chapter_clicks" json:"chapter_clicks"`

	// Extra carries platform fields with no dedicated column.
	Extra JSONBMap `db:"extra" json:"extra,omitempty"`
}

// BookTrendPoint is one row of a book's counter time series.
type BookTrendPoint struct {
	CapturedAt    time.Time `db:"captured_at"    json:"captured_at"`
	WordCount     int64     `db:"word_count"     json:"word_count"`
	ClickCount    int64     `db:"click_count"    json:"click_count"`
	FavoriteCount int64     `db:"favorite_count" json:"favorite_count"`
	TicketCount   int64     `db:"ticket_count"   json:"ticket_count"`
	CommentCount  int64     `db:"comment_count"  json:"comment_count"`
}
