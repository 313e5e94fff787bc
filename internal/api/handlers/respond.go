// Package handlers implements the HTTP endpoints of the FOI portal API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfoi/foiportal/internal/apperr"
)

// respondError translates a service error into an HTTP response. The
// error taxonomy maps onto status codes; anything unclassified is a
// 500 with the cause logged but not leaked.
func respondError(c *gin.Context, logger zerolog.Logger, err error, fallback string) {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperr.KindForbidden:
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case apperr.KindValidation:
		body := gin.H{"error": err.Error()}
		var e *apperr.Error
		if errors.As(err, &e) && e.Field != "" {
			body["field"] = e.Field
		}
		c.JSON(http.StatusBadRequest, body)
	case apperr.KindConflict:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case apperr.KindRateLimited:
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

// parseUUIDParam reads a UUID path parameter, answering 400 on
// malformed input. The second return is false when the response was
// already written.
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
