package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfoi/foiportal/internal/api/middleware"
	"github.com/openfoi/foiportal/internal/auth"
	"github.com/openfoi/foiportal/internal/models"
)

// AuthUserStore defines the user persistence the auth endpoints need.
type AuthUserStore interface {
	GetUserByOIDCSubject(ctx context.Context, subject string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
}

// UserConfirmer activates an account and releases any requests held
// on the unconfirmed address.
type UserConfirmer interface {
	ConfirmUser(ctx context.Context, userID uuid.UUID) error
}

// AuthHandler handles authentication HTTP endpoints.
type AuthHandler struct {
	oidc      *auth.OIDC
	sessions  *auth.SessionStore
	store     AuthUserStore
	confirmer UserConfirmer
	logger    zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(oidc *auth.OIDC, sessions *auth.SessionStore, store AuthUserStore, confirmer UserConfirmer, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		oidc:      oidc,
		sessions:  sessions,
		store:     store,
		confirmer: confirmer,
		logger:    logger.With().Str("component", "auth_handler").Logger(),
	}
}

// RegisterRoutes registers the auth routes on the given router group.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/login", h.Login)
	r.GET("/callback", h.Callback)
	r.POST("/logout", h.Logout)
	r.GET("/me", h.Me)
}

// RegisterAPIRoutes registers the account management routes that live
// under the authenticated API group.
func (h *AuthHandler) RegisterAPIRoutes(r *gin.RouterGroup) {
	r.POST("/users/:id/confirm", h.ConfirmUser)
}

// Login initiates the OIDC authentication flow.
// GET /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	state, err := auth.GenerateState()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to generate state")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initiate login"})
		return
	}

	if err := h.sessions.SetOIDCState(c.Request, c.Writer, state); err != nil {
		h.logger.Error().Err(err).Msg("failed to save state to session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initiate login"})
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, h.oidc.AuthorizationURL(state))
}

// Callback handles the OIDC callback. The account is created on first
// login; a verified email claim confirms the account and releases any
// held requests.
// GET /auth/callback
func (h *AuthHandler) Callback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		h.logger.Warn().
			Str("error", errParam).
			Str("description", c.Query("error_description")).
			Msg("OIDC provider returned error")
		c.JSON(http.StatusBadRequest, gin.H{"error": errParam})
		return
	}

	state := c.Query("state")
	if state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing state parameter"})
		return
	}
	savedState, err := h.sessions.GetOIDCState(c.Request, c.Writer)
	if err != nil || state != savedState {
		h.logger.Warn().Msg("state parameter mismatch")
		c.JSON(http.StatusBadRequest, gin.H{"error": "state mismatch"})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing authorization code"})
		return
	}

	token, err := h.oidc.Exchange(c.Request.Context(), code)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to exchange authorization code")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
		return
	}

	claims, err := h.oidc.VerifyIDToken(c.Request.Context(), token)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to verify ID token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
		return
	}

	user, err := h.findOrCreateUser(c.Request.Context(), claims)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to find or create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
		return
	}

	if claims.EmailVerified && !user.Active {
		if err := h.confirmer.ConfirmUser(c.Request.Context(), user.ID); err != nil {
			h.logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to confirm user")
		} else {
			h.logger.Info().Str("user_id", user.ID.String()).Msg("account confirmed via verified email claim")
		}
	}

	sessionUser := &auth.SessionUser{
		ID:              user.ID,
		Email:           user.Email,
		Name:            user.FullName(),
		AuthenticatedAt: time.Now().UTC(),
	}
	if err := h.sessions.SetUser(c.Request, c.Writer, sessionUser); err != nil {
		h.logger.Error().Err(err).Msg("failed to save user to session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
		return
	}

	h.logger.Info().
		Str("user_id", user.ID.String()).
		Str("email", user.Email).
		Msg("user authenticated")
	c.Redirect(http.StatusTemporaryRedirect, "/")
}

// findOrCreateUser resolves the OIDC subject to an account, creating
// one on first login.
func (h *AuthHandler) findOrCreateUser(ctx context.Context, claims *auth.IDTokenClaims) (*models.User, error) {
	user, err := h.store.GetUserByOIDCSubject(ctx, claims.Subject)
	if err == nil {
		return user, nil
	}

	first, last := splitName(claims)
	user = models.NewUser(claims.Email, first, last)
	user.OIDCSubject = claims.Subject
	if err := h.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	h.logger.Info().
		Str("user_id", user.ID.String()).
		Str("email", user.Email).
		Msg("created new user")
	return user, nil
}

// splitName derives first/last name from the claims, preferring the
// structured given/family fields over the display name.
func splitName(claims *auth.IDTokenClaims) (string, string) {
	if claims.GivenName != "" || claims.FamilyName != "" {
		return claims.GivenName, claims.FamilyName
	}
	parts := strings.Fields(claims.Name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// Logout terminates the session.
// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if sessionUser, err := h.sessions.GetUser(c.Request); err == nil {
		h.logger.Info().Str("user_id", sessionUser.ID.String()).Msg("user logging out")
	}

	if err := h.sessions.ClearUser(c.Request, c.Writer); err != nil {
		h.logger.Error().Err(err).Msg("failed to clear session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the authenticated account.
// GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	sessionUser, err := h.sessions.GetUser(c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	user, err := h.store.GetUserByID(c.Request.Context(), sessionUser.ID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// ConfirmUser manually confirms an account. Staff only; the OIDC
// verified-email path is the normal route.
// POST /api/v1/users/:id/confirm
func (h *AuthHandler) ConfirmUser(c *gin.Context) {
	caller := middleware.RequireUser(c)
	if caller == nil {
		return
	}
	if !caller.IsStaff() {
		c.JSON(http.StatusForbidden, gin.H{"error": "staff privilege required"})
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.confirmer.ConfirmUser(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, "failed to confirm user")
		return
	}

	h.logger.Info().Str("user_id", id.String()).Msg("account confirmed by staff")
	c.JSON(http.StatusOK, gin.H{"message": "user confirmed"})
}
