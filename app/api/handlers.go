package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/rss-sync/app/core"
	"github.com/lysyi3m/rss-sync/app/database"
)

// NewHandler creates the HTTP handlers. runner may be nil when periodic
// ingestion is disabled.
func NewHandler(service ServiceInterface, runner HealthReporter) *Handler {
	return &Handler{
		service: service,
		runner:  runner,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if categories, err := h.service.ListCategories(c.Request.Context()); err == nil {
		health["categories"] = len(categories)
	} else {
		health["status"] = "degraded"
		slog.Error("Database error", "operation", "health", "error", err)
	}

	if h.runner != nil {
		health["scheduler"] = h.runner.Health()
	}

	c.JSON(http.StatusOK, health)
}

// GetEntries serves one page of a category. last_id and last_pd together
// form the cursor returned with the previous page.
func (h *Handler) GetEntries(c *gin.Context) {
	categoryID, ok := idParam(c, "category")
	if !ok {
		return
	}

	cursor, err := parseCursor(c.Query("last_id"), c.Query("last_pd"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
	}

	page, err := h.service.GetPage(c.Request.Context(), categoryID, limit, cursor, c.Query("q"))
	if err != nil {
		h.respondError(c, "get_page", err)
		return
	}

	c.Header("X-Feed-Items", strconv.Itoa(len(page.Entries)))
	c.JSON(http.StatusOK, fetchResponse{FeedItems: page.Entries, Next: page.Next})
}

func parseCursor(lastID, lastPD string) (*database.Cursor, error) {
	if lastID == "" && lastPD == "" {
		return nil, nil
	}
	if lastID == "" || lastPD == "" {
		return nil, errors.New("last_id and last_pd must be given together")
	}

	id, err := strconv.ParseInt(lastID, 10, 64)
	if err != nil {
		return nil, errors.New("invalid last_id parameter")
	}
	published, err := time.Parse(time.RFC3339Nano, lastPD)
	if err != nil {
		return nil, errors.New("invalid last_pd parameter, expected an RFC 3339 timestamp")
	}

	return &database.Cursor{PublishedDate: published, ID: id}, nil
}

func (h *Handler) IngestCategory(c *gin.Context) {
	categoryID, ok := idParam(c, "id")
	if !ok {
		return
	}

	report, err := h.service.IngestCategory(c.Request.Context(), categoryID)
	if err != nil {
		h.respondError(c, "ingest_category", err)
		return
	}

	c.JSON(http.StatusOK, newReportResponse(report))
}

func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.service.ListCategories(c.Request.Context())
	if err != nil {
		h.respondError(c, "list_categories", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (h *Handler) AddCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	category, err := h.service.AddCategory(c.Request.Context(), req.Name)
	if err != nil {
		h.respondError(c, "add_category", err)
		return
	}

	c.JSON(http.StatusCreated, category)
}

func (h *Handler) RemoveCategory(c *gin.Context) {
	categoryID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.RemoveCategory(c.Request.Context(), categoryID); err != nil {
		h.respondError(c, "remove_category", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Category removed successfully"})
}

func (h *Handler) ListSources(c *gin.Context) {
	categoryID, ok := idParam(c, "id")
	if !ok {
		return
	}

	sources, err := h.service.ListSources(c.Request.Context(), categoryID)
	if err != nil {
		h.respondError(c, "list_sources", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

func (h *Handler) AddSource(c *gin.Context) {
	categoryID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	source, err := h.service.AddSource(c.Request.Context(), categoryID, req.Name, req.URL)
	if err != nil {
		h.respondError(c, "add_source", err)
		return
	}

	c.JSON(http.StatusCreated, source)
}

func (h *Handler) RemoveSource(c *gin.Context) {
	sourceID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.RemoveSource(c.Request.Context(), sourceID); err != nil {
		h.respondError(c, "remove_source", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Source removed successfully"})
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name + " parameter"})
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(c *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("Database error", "operation", operation, "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
