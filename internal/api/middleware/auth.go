// Package middleware provides HTTP middleware for the FOI portal API.
package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfoi/foiportal/internal/auth"
	"github.com/openfoi/foiportal/internal/models"
)

// UserStore is the interface for resolving session users to accounts.
type UserStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// ContextKey is the type for context keys used by this package.
type ContextKey string

// UserContextKey is the context key for the authenticated user.
const UserContextKey ContextKey = "user"

// Auth returns a Gin middleware that requires authentication, either
// an operator bearer token or a session cookie. The resolved account
// is stored in the Gin context.
func Auth(sessions *auth.SessionStore, tokens *auth.TokenValidator, store UserStore, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "auth_middleware").Logger()

	return func(c *gin.Context) {
		user := resolveUser(c, sessions, tokens, store, log)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(string(UserContextKey), user)
		c.Next()
	}
}

// OptionalAuth loads the account if credentials are present but lets
// anonymous requests through. Public listings and search use it.
func OptionalAuth(sessions *auth.SessionStore, tokens *auth.TokenValidator, store UserStore, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "auth_middleware").Logger()

	return func(c *gin.Context) {
		if user := resolveUser(c, sessions, tokens, store, log); user != nil {
			c.Set(string(UserContextKey), user)
		}
		c.Next()
	}
}

func resolveUser(c *gin.Context, sessions *auth.SessionStore, tokens *auth.TokenValidator, store UserStore, log zerolog.Logger) *models.User {
	if header := c.GetHeader("Authorization"); header != "" && tokens != nil {
		token := auth.ExtractBearerToken(header)
		if token != "" {
			user, err := tokens.ValidateToken(c.Request.Context(), token)
			if err == nil && user != nil {
				return user
			}
		}
		log.Debug().Str("path", c.Request.URL.Path).Msg("invalid operator token")
		return nil
	}

	if sessions == nil {
		return nil
	}
	sessionUser, err := sessions.GetUser(c.Request)
	if err != nil {
		return nil
	}
	user, err := store.GetUserByID(c.Request.Context(), sessionUser.ID)
	if err != nil {
		log.Warn().
			Str("user_id", sessionUser.ID.String()).
			Msg("session user not found, clearing stale session")
		if clearErr := sessions.ClearUser(c.Request, c.Writer); clearErr != nil {
			log.Warn().Err(clearErr).Msg("failed to clear stale session")
		}
		return nil
	}
	return user
}

// GetUser retrieves the authenticated user from the Gin context.
// Returns nil if no user is authenticated.
func GetUser(c *gin.Context) *models.User {
	v, exists := c.Get(string(UserContextKey))
	if !exists {
		return nil
	}
	user, ok := v.(*models.User)
	if !ok {
		return nil
	}
	return user
}

// RequireUser is a helper that gets the authenticated user or aborts with 401.
// Use this in handlers that expect Auth to have already run.
func RequireUser(c *gin.Context) *models.User {
	user := GetUser(c)
	if user == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return nil
	}
	return user
}
