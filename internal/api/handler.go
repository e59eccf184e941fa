package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/docsync/internal/aggregator"
	"github.com/kurihiro0119/docsync/internal/domain"
	apperrors "github.com/kurihiro0119/docsync/internal/errors"
	"github.com/kurihiro0119/docsync/internal/scheduler"
)

// Store is the read side of the persistence layer the API serves
type Store interface {
	GetRepository(ctx context.Context, id string) (*domain.Repository, error)
	ListRepositories(ctx context.Context) ([]*domain.Repository, error)
	ListSyncRecords(ctx context.Context, repositoryID string, limit int) ([]*domain.SyncRecord, error)
	LiveCatalog(ctx context.Context, repositoryID string) ([]*domain.CatalogNode, error)
	GetCatalogContent(ctx context.Context, nodeID string) (*domain.CatalogContent, error)
	ListChangelog(ctx context.Context, repositoryID string, limit int) ([]*domain.ChangelogEntry, error)
}

// Trigger queues a manual sync
type Trigger interface {
	Trigger(repositoryID string) error
}

// Handler handles API requests
type Handler struct {
	store      Store
	aggregator aggregator.Aggregator
	trigger    Trigger
}

// NewHandler creates a new API handler. trigger may be nil when no scheduler runs in the process.
func NewHandler(store Store, agg aggregator.Aggregator, trigger Trigger) *Handler {
	return &Handler{
		store:      store,
		aggregator: agg,
		trigger:    trigger,
	}
}

// ListRepositories returns every tracked repository
// GET /api/v1/repositories
func (h *Handler) ListRepositories(c *gin.Context) {
	repos, err := h.store.ListRepositories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": repos,
	})
}

// GetRepository returns one repository with its sync statistics
// GET /api/v1/repositories/:id
func (h *Handler) GetRepository(c *gin.Context) {
	id := c.Param("id")

	repo, err := h.store.GetRepository(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	stats, err := h.aggregator.RepositoryStats(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  repo,
		"stats": stats,
	})
}

// ListSyncRecords returns the newest sync records of a repository
// GET /api/v1/repositories/:id/syncs
func (h *Handler) ListSyncRecords(c *gin.Context) {
	id := c.Param("id")
	limit := parseIntQuery(c, "limit", 20)

	if _, err := h.store.GetRepository(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	records, err := h.store.ListSyncRecords(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": records,
	})
}

// TriggerSync queues a manual sync served by the scheduler loop
// POST /api/v1/repositories/:id/sync
func (h *Handler) TriggerSync(c *gin.Context) {
	id := c.Param("id")

	if h.trigger == nil {
		respondError(c, apperrors.NewUnavailableError("scheduler is not running"))
		return
	}
	if _, err := h.store.GetRepository(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	if err := h.trigger.Trigger(id); err != nil {
		if errors.Is(err, scheduler.ErrTriggerQueueFull) {
			respondError(c, apperrors.NewUnavailableError(err.Error()))
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"data": gin.H{
			"repository_id": id,
			"status":        "queued",
		},
	})
}

// GetCatalog returns the live catalog as a nested tree
// GET /api/v1/repositories/:id/catalog
func (h *Handler) GetCatalog(c *gin.Context) {
	id := c.Param("id")

	if _, err := h.store.GetRepository(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	nodes, err := h.store.LiveCatalog(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": domain.BuildCatalogTree(nodes),
	})
}

// GetCatalogContent returns the generated page of one catalog node
// GET /api/v1/repositories/:id/catalog/:node_id
func (h *Handler) GetCatalogContent(c *gin.Context) {
	content, err := h.store.GetCatalogContent(c.Request.Context(), c.Param("node_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if content.RepositoryID != c.Param("id") {
		respondError(c, apperrors.NewNotFoundError("catalog content "+c.Param("node_id")))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": content,
	})
}

// ListChangelog returns the newest changelog entries of a repository
// GET /api/v1/repositories/:id/changelog
func (h *Handler) ListChangelog(c *gin.Context) {
	id := c.Param("id")
	limit := parseIntQuery(c, "limit", 50)

	if _, err := h.store.GetRepository(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	entries, err := h.store.ListChangelog(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": entries,
	})
}

// GetStats returns sync statistics of every repository
// GET /api/v1/stats
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.aggregator.AllStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": stats,
	})
}

// GetTimeline returns sync outcomes per period
// GET /api/v1/stats/timeline?repository_id=&start=&end=&granularity=
func (h *Handler) GetTimeline(c *gin.Context) {
	timeRange := parseTimeRange(c)

	timeline, err := h.aggregator.Timeline(c.Request.Context(), c.Query("repository_id"), timeRange)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": timeline,
	})
}

// HealthCheck returns the health status of the API
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// parseIntQuery parses an integer query parameter with a default value
func parseIntQuery(c *gin.Context, key string, defaultValue int) int {
	valueStr := c.Query(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

// parseTimeRange parses time range from query parameters
func parseTimeRange(c *gin.Context) domain.TimeRange {
	// Default to last 30 days
	now := time.Now().UTC()
	start := now.AddDate(0, -1, 0)
	end := now

	if s := c.Query("start"); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			start = t
		}
	}
	if s := c.Query("end"); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			end = t
		}
	}

	// Validate granularity
	granularity := c.DefaultQuery("granularity", "day")
	if granularity != "day" && granularity != "week" && granularity != "month" {
		granularity = "day"
	}

	return domain.TimeRange{
		Start:       start,
		End:         end,
		Granularity: granularity,
	}
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.ErrCodeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrCodeBadRequest:
			status = http.StatusBadRequest
		case apperrors.ErrCodeUnavailable:
			status = http.StatusServiceUnavailable
		case apperrors.ErrCodeTransient:
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    apperrors.ErrCodeInternal,
			"message": err.Error(),
		},
	})
}
