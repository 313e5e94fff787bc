package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/openfoi/foiportal/internal/search"
)

// SearchService runs full-text queries over public requests.
type SearchService interface {
	Search(ctx context.Context, filter search.Filter) ([]search.Result, error)
}

// SearchHandler handles the search endpoint.
type SearchHandler struct {
	service SearchService
	logger  zerolog.Logger
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(service SearchService, logger zerolog.Logger) *SearchHandler {
	return &SearchHandler{
		service: service,
		logger:  logger.With().Str("component", "search_handler").Logger(),
	}
}

// RegisterRoutes registers the search route.
func (h *SearchHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/search", h.Search)
}

// Search returns public requests matching the query.
// GET /search?q=&status=&limit=&offset=
func (h *SearchHandler) Search(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	results, err := h.service.Search(c.Request.Context(), search.Filter{
		Query:  c.Query("q"),
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(c, h.logger, err, "search failed")
		return
	}
	if results == nil {
		results = []search.Result{}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
