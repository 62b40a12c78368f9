package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/bookwatch/internal/database"
)

// SnapshotsHandler serves the snapshot read models: rankings, books and
// their histories.
type SnapshotsHandler struct {
	store database.SnapshotStorage
}

// NewSnapshotsHandler creates a new snapshots handler.
func NewSnapshotsHandler(store database.SnapshotStorage) *SnapshotsHandler {
	return &SnapshotsHandler{store: store}
}

// ListRankings handles GET /api/v1/rankings
func (h *SnapshotsHandler) ListRankings(c *gin.Context) {
	rankings, err := h.store.ListRankings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve rankings",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rankings": rankings,
		"total":    len(rankings),
	})
}

// GetLatestRanking handles GET /api/v1/rankings/:id/latest
func (h *SnapshotsHandler) GetLatestRanking(c *gin.Context) {
	id, ok := rankingID(c)
	if !ok {
		return
	}

	ranking, err := h.store.GetRanking(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrRankingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Ranking not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve ranking",
		})
		return
	}

	entries, err := h.store.LatestRankingSnapshot(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve ranking snapshot",
		})
		return
	}

	c.JSON(http.StatusOK, RankingSnapshotResponse{
		Ranking: ranking,
		Entries: entries,
	})
}

// GetTopMovers handles GET /api/v1/rankings/:id/movers
func (h *SnapshotsHandler) GetTopMovers(c *gin.Context) {
	id, ok := rankingID(c)
	if !ok {
		return
	}

	limitStr := c.DefaultQuery("limit", strconv.Itoa(defaultMoverLimit))
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = defaultMoverLimit
	}

	movers, err := h.store.TopMovers(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve movers",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ranking_id": id,
		"movers":     movers,
	})
}

// GetBook handles GET /api/v1/books/:id
func (h *SnapshotsHandler) GetBook(c *gin.Context) {
	id := c.Param("id")
	if id == "" || id == "undefined" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid book ID",
		})
		return
	}

	book, err := h.store.GetBook(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrBookNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Book not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve book",
		})
		return
	}

	c.JSON(http.StatusOK, book)
}

// GetBookTrend handles GET /api/v1/books/:id/trend
func (h *SnapshotsHandler) GetBookTrend(c *gin.Context) {
	id := c.Param("id")
	if id == "" || id == "undefined" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid book ID",
		})
		return
	}

	book, err := h.store.GetBook(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrBookNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Book not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve book",
		})
		return
	}

	daysStr := c.DefaultQuery("days", strconv.Itoa(defaultTrendDays))
	days, err := strconv.Atoi(daysStr)
	if err != nil || days <= 0 {
		days = defaultTrendDays
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	points, err := h.store.BookTrend(c.Request.Context(), id, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve trend",
		})
		return
	}

	c.JSON(http.StatusOK, BookTrendResponse{
		Book:   book,
		Days:   days,
		Points: points,
	})
}

// rankingID parses the :id path segment. It writes the error response
// itself so handlers can bail on !ok.
func rankingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid ranking ID",
		})
		return 0, false
	}
	return id, true
}
