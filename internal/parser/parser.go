// Package parser decodes platform API payloads into typed records. Shape
// discrimination between endpoint families happens here, not in the
// orchestrator.
package parser

import (
	"encoding/json"
	"fmt"

	"github.com/jonesrussell/bookwatch/internal/domain"
	"github.com/jonesrussell/bookwatch/internal/logger"
)

// PageKind names the endpoint family a payload came from.
type PageKind string

const (
	// PageKindRankingList is a list of ranking boards with embedded book
	// summaries.
	PageKindRankingList PageKind = "ranking-list"
	// PageKindRanking is a single board with its book list.
	PageKindRanking PageKind = "ranking"
	// PageKindBook is a single book detail object.
	PageKindBook PageKind = "book"
)

// Context tells the parser how to interpret a payload.
type Context struct {
	TaskID string
	Kind   PageKind
}

// ParseError reports an envelope-level failure: undecodable payload, a
// non-zero platform status code, or an unknown page kind.
type ParseError struct {
	TaskID  string
	Code    int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse task %s: %v", e.TaskID, e.Err)
	}
	return fmt.Sprintf("parse task %s: platform code %d: %s", e.TaskID, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// envelope is the platform's response wrapper. Code zero means success.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// rankingPayload is one board as the platform serializes it.
type rankingPayload struct {
	ID    any                  `json:"rank_id"`
	Title string               `json:"title"`
	Books []bookSummaryPayload `json:"books"`
}

// bookSummaryPayload is a board entry. IDs, positions and scores arrive as
// numbers or strings depending on the endpoint.
type bookSummaryPayload struct {
	ID       any    `json:"book_id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Position any    `json:"position"`
	Score    any    `json:"score"`
}

// bookDetailPayload is the detail endpoint's book object.
type bookDetailPayload struct {
	ID            any    `json:"book_id"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	Category      any    `json:"category"`
	Status        any    `json:"status"`
	WordCount     any    `json:"word_count"`
	ClickCount    any    `json:"click_count"`
	FavoriteCount any    `json:"favorite_count"`
	TicketCount   any    `json:"ticket_count"`
	CommentCount  any    `json:"comment_count"`
	ChapterClicks any    `json:"chapter_click_count"`
}

// detailFields are the keys the detail payload maps onto dedicated columns.
// Everything else lands in the snapshot's extra map.
var detailFields = map[string]struct{}{
	"book_id":             {},
	"title":               {},
	"author":              {},
	"category":            {},
	"status":              {},
	"word_count":          {},
	"click_count":         {},
	"favorite_count":      {},
	"ticket_count":        {},
	"comment_count":       {},
	"chapter_click_count": {},
}

// Parser decodes raw payloads.
type Parser struct {
	logger logger.Interface
}

// New creates a parser.
func New(log logger.Interface) *Parser {
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Parser{logger: log}
}

// Parse decodes one fetched payload. Item-scoped decode failures are logged
// and skipped; only envelope-level problems return an error.
func (p *Parser) Parse(raw []byte, pctx Context) (*domain.ParsedPage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ParseError{TaskID: pctx.TaskID, Err: fmt.Errorf("decoding envelope: %w", err)}
	}
	if env.Code != 0 {
		return nil, &ParseError{TaskID: pctx.TaskID, Code: env.Code, Message: env.Message}
	}

	switch pctx.Kind {
	case PageKindRankingList:
		return p.parseRankingList(env.Data, pctx)
	case PageKindRanking:
		return p.parseSingleRanking(env.Data, pctx)
	case PageKindBook:
		return p.parseBookDetail(env.Data, pctx)
	default:
		return nil, &ParseError{TaskID: pctx.TaskID, Err: fmt.Errorf("unknown page kind %q", pctx.Kind)}
	}
}

func (p *Parser) parseRankingList(data json.RawMessage, pctx Context) (*domain.ParsedPage, error) {
	var boards []json.RawMessage
	if err := json.Unmarshal(data, &boards); err != nil {
		return nil, &ParseError{TaskID: pctx.TaskID, Err: fmt.Errorf("decoding ranking list: %w", err)}
	}

	page := &domain.ParsedPage{}
	for i, raw := range boards {
		var board rankingPayload
		if err := json.Unmarshal(raw, &board); err != nil {
			p.logger.Warn("skipping undecodable ranking", "task_id", pctx.TaskID, "index", i, "error", err)
			continue
		}
		page.Rankings = append(page.Rankings, p.toRankingRecord(board, pctx))
	}
	return page, nil
}

func (p *Parser) parseSingleRanking(data json.RawMessage, pctx Context) (*domain.ParsedPage, error) {
	var board rankingPayload
	if err := json.Unmarshal(data, &board); err != nil {
		return nil, &ParseError{TaskID: pctx.TaskID, Err: fmt.Errorf("decoding ranking: %w", err)}
	}

	return &domain.ParsedPage{
		Rankings: []domain.RankingRecord{p.toRankingRecord(board, pctx)},
	}, nil
}

func (p *Parser) parseBookDetail(data json.RawMessage, pctx Context) (*domain.ParsedPage, error) {
	var detail bookDetailPayload
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil, &ParseError{TaskID: pctx.TaskID, Err: fmt.Errorf("decoding book detail: %w", err)}
	}

	id := asID(detail.ID)
	if id == "" {
		return nil, &ParseError{TaskID: pctx.TaskID, Err: fmt.Errorf("book detail missing book_id")}
	}

	book := domain.Book{
		ID:     id,
		Title:  detail.Title,
		Author: detail.Author,
	}
	if category := asString(detail.Category); category != "" {
		book.Category = &category
	}
	if status := asString(detail.Status); status != "" {
		book.Status = &status
	}

	snapshot := domain.BookSnapshot{
		BookID:        id,
		WordCount:     ParseCount(detail.WordCount),
		ClickCount:    ParseCount(detail.ClickCount),
		FavoriteCount: ParseCount(detail.FavoriteCount),
		TicketCount:   ParseCount(detail.TicketCount),
		CommentCount:  ParseCount(detail.CommentCount),
		ChapterClicks: ParseCount(detail.ChapterClicks),
		Extra:         extraFields(data),
	}

	return &domain.ParsedPage{
		Books: []domain.BookRecord{{Book: book, Snapshot: snapshot}},
	}, nil
}

// toRankingRecord converts a board payload, skipping entries without a book
// id. Positions default to list order when the payload omits them.
func (p *Parser) toRankingRecord(board rankingPayload, pctx Context) domain.RankingRecord {
	rec := domain.RankingRecord{
		Code:     fmt.Sprintf("%s:%s", pctx.TaskID, asID(board.ID)),
		Title:    board.Title,
		PageKind: string(pctx.Kind),
	}

	for i, entry := range board.Books {
		id := asID(entry.ID)
		if id == "" {
			p.logger.Warn("skipping ranking entry without book id",
				"task_id", pctx.TaskID,
				"ranking", rec.Code,
				"index", i,
			)
			continue
		}

		position := int(ParseCountDefault(entry.Position, int64(i+1)))
		if position <= 0 {
			position = i + 1
		}

		rec.Entries = append(rec.Entries, domain.RankingEntry{
			BookID:   id,
			Position: position,
			Score:    asFloat(entry.Score),
			Title:    entry.Title,
			Author:   entry.Author,
		})
	}

	return rec
}

// extraFields collects detail payload keys that have no dedicated column.
func extraFields(data json.RawMessage) domain.JSONBMap {
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil
	}

	extra := domain.JSONBMap{}
	for k, v := range all {
		if _, known := detailFields[k]; known {
			continue
		}
		extra[k] = v
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}
