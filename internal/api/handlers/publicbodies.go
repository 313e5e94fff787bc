package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfoi/foiportal/internal/api/middleware"
	"github.com/openfoi/foiportal/internal/models"
)

// PublicBodyStore defines the persistence surface for the public body
// directory.
type PublicBodyStore interface {
	ListPublicBodies(ctx context.Context) ([]*models.PublicBody, error)
	GetPublicBodyByID(ctx context.Context, id uuid.UUID) (*models.PublicBody, error)
	GetPublicBodyBySlug(ctx context.Context, slug string) (*models.PublicBody, error)
	CreatePublicBody(ctx context.Context, pb *models.PublicBody) error
	ListJurisdictions(ctx context.Context) ([]*models.Jurisdiction, error)
	CreateJurisdiction(ctx context.Context, j *models.Jurisdiction) error
	GetLawByID(ctx context.Context, id uuid.UUID) (*models.Law, error)
	GetMetaLawForJurisdiction(ctx context.Context, jurisdictionID uuid.UUID) (*models.Law, error)
	CreateLaw(ctx context.Context, l *models.Law) error
}

// PublicBodyConfirmer confirms user-suggested bodies and releases
// their held requests.
type PublicBodyConfirmer interface {
	ConfirmPublicBody(ctx context.Context, caller *models.User, publicBodyID uuid.UUID) error
}

// PublicBodiesHandler handles the public body directory endpoints.
type PublicBodiesHandler struct {
	store     PublicBodyStore
	confirmer PublicBodyConfirmer
	logger    zerolog.Logger
}

// NewPublicBodiesHandler creates a new PublicBodiesHandler.
func NewPublicBodiesHandler(store PublicBodyStore, confirmer PublicBodyConfirmer, logger zerolog.Logger) *PublicBodiesHandler {
	return &PublicBodiesHandler{
		store:     store,
		confirmer: confirmer,
		logger:    logger.With().Str("component", "publicbodies_handler").Logger(),
	}
}

// RegisterPublicRoutes registers the directory read endpoints.
func (h *PublicBodiesHandler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/publicbodies", h.List)
	r.GET("/publicbodies/:id", h.Get)
	r.GET("/publicbodies/slug/:slug", h.GetBySlug)
	r.GET("/jurisdictions", h.ListJurisdictions)
	r.GET("/jurisdictions/:id/metalaw", h.GetMetaLaw)
	r.GET("/laws/:id", h.GetLaw)
}

// RegisterRoutes registers the authenticated directory routes.
func (h *PublicBodiesHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/publicbodies", h.Create)
	r.POST("/publicbodies/:id/confirm", h.Confirm)
	r.POST("/jurisdictions", h.CreateJurisdiction)
	r.POST("/laws", h.CreateLaw)
}

// List returns all public bodies.
// GET /api/v1/publicbodies
func (h *PublicBodiesHandler) List(c *gin.Context) {
	bodies, err := h.store.ListPublicBodies(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "failed to list public bodies")
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_bodies": bodies})
}

// Get returns a single public body by ID.
// GET /api/v1/publicbodies/:id
func (h *PublicBodiesHandler) Get(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	pb, err := h.store.GetPublicBodyByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to get public body")
		return
	}
	c.JSON(http.StatusOK, pb)
}

// GetBySlug returns a single public body by its slug.
// GET /api/v1/publicbodies/slug/:slug
func (h *PublicBodiesHandler) GetBySlug(c *gin.Context) {
	pb, err := h.store.GetPublicBodyBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, h.logger, err, "failed to get public body")
		return
	}
	c.JSON(http.StatusOK, pb)
}

type createPublicBodyBody struct {
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	URL            string    `json:"url"`
	OtherEmails    []string  `json:"other_emails"`
	JurisdictionID uuid.UUID `json:"jurisdiction_id"`
	DefaultLawID   uuid.UUID `json:"default_law_id"`
	// Confirmed may only be set by staff. User submissions always start
	// unconfirmed.
	Confirmed bool `json:"confirmed"`
}

// Create adds a public body to the directory. Staff create confirmed
// bodies; regular users suggest unconfirmed ones that hold requests
// until vetted.
// POST /api/v1/publicbodies
func (h *PublicBodiesHandler) Create(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	var body createPublicBodyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Name == "" || body.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and email are required"})
		return
	}

	pb := models.NewPublicBody(body.Name, body.Email, body.JurisdictionID, body.DefaultLawID)
	pb.URL = body.URL
	pb.OtherEmails = body.OtherEmails
	pb.Confirmed = user.IsStaff() && body.Confirmed

	if err := h.store.CreatePublicBody(c.Request.Context(), pb); err != nil {
		respondError(c, h.logger, err, "failed to create public body")
		return
	}

	h.logger.Info().Str("public_body_id", pb.ID.String()).Str("name", pb.Name).Bool("confirmed", pb.Confirmed).Msg("public body created")
	c.JSON(http.StatusCreated, pb)
}

// Confirm vets a user-suggested public body and dispatches any
// requests held on it.
// POST /api/v1/publicbodies/:id/confirm
func (h *PublicBodiesHandler) Confirm(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.confirmer.ConfirmPublicBody(c.Request.Context(), user, id); err != nil {
		respondError(c, h.logger, err, "failed to confirm public body")
		return
	}

	h.logger.Info().Str("public_body_id", id.String()).Msg("public body confirmed")
	c.JSON(http.StatusOK, gin.H{"message": "public body confirmed"})
}

// ListJurisdictions returns all jurisdictions.
// GET /api/v1/jurisdictions
func (h *PublicBodiesHandler) ListJurisdictions(c *gin.Context) {
	jurisdictions, err := h.store.ListJurisdictions(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "failed to list jurisdictions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"jurisdictions": jurisdictions})
}

type createJurisdictionBody struct {
	Name string `json:"name"`
}

// CreateJurisdiction adds a jurisdiction. Staff only.
// POST /api/v1/jurisdictions
func (h *PublicBodiesHandler) CreateJurisdiction(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	if !user.IsStaff() {
		c.JSON(http.StatusForbidden, gin.H{"error": "staff privilege required"})
		return
	}

	var body createJurisdictionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	j := &models.Jurisdiction{
		ID:   uuid.New(),
		Name: body.Name,
		Slug: models.Slugify(body.Name),
	}
	if err := h.store.CreateJurisdiction(c.Request.Context(), j); err != nil {
		respondError(c, h.logger, err, "failed to create jurisdiction")
		return
	}
	c.JSON(http.StatusCreated, j)
}

// GetMetaLaw returns the jurisdiction-wide composite law, if one
// exists.
// GET /api/v1/jurisdictions/:id/metalaw
func (h *PublicBodiesHandler) GetMetaLaw(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	l, err := h.store.GetMetaLawForJurisdiction(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to get meta law")
		return
	}
	c.JSON(http.StatusOK, l)
}

// GetLaw returns a law by ID.
// GET /api/v1/laws/:id
func (h *PublicBodiesHandler) GetLaw(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	l, err := h.store.GetLawByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to get law")
		return
	}
	c.JSON(http.StatusOK, l)
}

type createLawBody struct {
	Name                string              `json:"name"`
	JurisdictionID      uuid.UUID           `json:"jurisdiction_id"`
	LetterStart         string              `json:"letter_start"`
	LetterEnd           string              `json:"letter_end"`
	MaxResponseTime     int                 `json:"max_response_time"`
	MaxResponseTimeUnit models.DeadlineUnit `json:"max_response_time_unit"`
	MediatorID          *uuid.UUID          `json:"mediator_id"`
	Meta                bool                `json:"meta"`
	CombinedIDs         []uuid.UUID         `json:"combined_ids"`
}

// CreateLaw adds a law. Staff only.
// POST /api/v1/laws
func (h *PublicBodiesHandler) CreateLaw(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	if !user.IsStaff() {
		c.JSON(http.StatusForbidden, gin.H{"error": "staff privilege required"})
		return
	}

	var body createLawBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if !body.MaxResponseTimeUnit.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid max_response_time_unit"})
		return
	}

	l := models.NewLaw(body.Name, body.JurisdictionID, body.MaxResponseTime, body.MaxResponseTimeUnit)
	l.LetterStart = body.LetterStart
	l.LetterEnd = body.LetterEnd
	l.MediatorID = body.MediatorID
	l.Meta = body.Meta
	l.CombinedIDs = body.CombinedIDs

	if err := h.store.CreateLaw(c.Request.Context(), l); err != nil {
		respondError(c, h.logger, err, "failed to create law")
		return
	}

	h.logger.Info().Str("law_id", l.ID.String()).Str("name", l.Name).Msg("law created")
	c.JSON(http.StatusCreated, l)
}
