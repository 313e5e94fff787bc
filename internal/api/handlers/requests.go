package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfoi/foiportal/internal/api/middleware"
	"github.com/openfoi/foiportal/internal/lifecycle"
	"github.com/openfoi/foiportal/internal/models"
)

// RequestService is the lifecycle surface the request endpoints drive.
type RequestService interface {
	SubmitRequest(ctx context.Context, caller *models.User, input lifecycle.SubmitInput) (*models.Request, error)
	SetStatus(ctx context.Context, requestID uuid.UUID, caller *models.User, status models.Status, costs *float64, resolution models.Resolution, redirectTarget *uuid.UUID) (*models.Request, error)
	SetLaw(ctx context.Context, requestID uuid.UUID, caller *models.User, lawID uuid.UUID) (*models.Request, error)
	SuggestPublicBody(ctx context.Context, requestID uuid.UUID, caller *models.User, publicBodyID uuid.UUID, reason string) (*models.PublicBodySuggestion, error)
	SetPublicBody(ctx context.Context, requestID uuid.UUID, caller *models.User, publicBodyID uuid.UUID) (*models.Request, error)
	Escalate(ctx context.Context, requestID uuid.UUID, caller *models.User, subject, body string) (*models.Message, error)
	Package(ctx context.Context, requestID uuid.UUID) ([]byte, error)
	MakeSameRequest(ctx context.Context, templateMessageID uuid.UUID, caller *models.User) (*models.Request, error)
	IdenticalCount(ctx context.Context, requestID uuid.UUID) (int, error)
	ExtendDeadline(ctx context.Context, requestID uuid.UUID, caller *models.User, months int) (*models.Request, error)
	SetTags(ctx context.Context, requestID uuid.UUID, caller *models.User, tagList string) (*models.Request, error)
	SetSummary(ctx context.Context, requestID uuid.UUID, caller *models.User, summary string) (*models.Request, error)
	MarkNotFOI(ctx context.Context, requestID uuid.UUID, caller *models.User) (*models.Request, error)
	MarkChecked(ctx context.Context, requestID uuid.UUID, caller *models.User) (*models.Request, error)
	MakePublic(ctx context.Context, requestID uuid.UUID, caller *models.User) (*models.Request, error)
}

// RequestStore covers the read-only queries the request endpoints
// serve directly, without going through the lifecycle service.
type RequestStore interface {
	GetRequestByID(ctx context.Context, id uuid.UUID) (*models.Request, error)
	GetRequestBySlug(ctx context.Context, slug string) (*models.Request, error)
	ListPublicRequests(ctx context.Context, limit, offset int) ([]*models.Request, error)
	ListRequestsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Request, error)
	ListSuggestions(ctx context.Context, requestID uuid.UUID) ([]*models.PublicBodySuggestion, error)
}

// RequestsHandler handles request lifecycle HTTP endpoints.
type RequestsHandler struct {
	service RequestService
	store   RequestStore
	logger  zerolog.Logger
}

// NewRequestsHandler creates a new RequestsHandler.
func NewRequestsHandler(service RequestService, store RequestStore, logger zerolog.Logger) *RequestsHandler {
	return &RequestsHandler{
		service: service,
		store:   store,
		logger:  logger.With().Str("component", "requests_handler").Logger(),
	}
}

// RegisterPublicRoutes registers the read endpoints that anonymous
// visitors may hit. Visibility checks still apply per request.
func (h *RequestsHandler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/requests", h.ListPublic)
	r.GET("/requests/:id", h.Get)
	r.GET("/requests/slug/:slug", h.GetBySlug)
	r.GET("/requests/:id/identical", h.Identical)
	r.GET("/requests/:id/suggestions", h.ListSuggestions)
	r.GET("/requests/:id/package", h.Package)
}

// RegisterRoutes registers the authenticated request routes.
func (h *RequestsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/requests", h.Submit)
	r.GET("/requests/mine", h.ListMine)

	req := r.Group("/requests/:id")
	{
		req.POST("/status", h.SetStatus)
		req.POST("/law", h.SetLaw)
		req.POST("/publicbody", h.SetPublicBody)
		req.POST("/suggestions", h.Suggest)
		req.POST("/escalate", h.Escalate)
		req.POST("/extend", h.Extend)
		req.PUT("/tags", h.SetTags)
		req.PUT("/summary", h.SetSummary)
		req.POST("/public", h.MakePublic)
		req.POST("/not-foi", h.MarkNotFOI)
		req.POST("/checked", h.MarkChecked)
	}

	r.POST("/messages/:id/same", h.MakeSame)
}

// canView reports whether the caller may read the request at all.
func canView(req *models.Request, user *models.User) bool {
	if req.Public() {
		return true
	}
	if user == nil {
		return false
	}
	return user.IsStaff() || user.ID == req.UserID
}

type submitRequestBody struct {
	PublicBodyID *uuid.UUID `json:"public_body_id"`
	LawID        *uuid.UUID `json:"law_id"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	FullText     bool       `json:"full_text"`
	Public       bool       `json:"public"`
}

// Submit files a new request.
// POST /api/v1/requests
func (h *RequestsHandler) Submit(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	var body submitRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.service.SubmitRequest(c.Request.Context(), user, lifecycle.SubmitInput{
		PublicBodyID: body.PublicBodyID,
		LawID:        body.LawID,
		Title:        body.Title,
		Body:         body.Body,
		FullText:     body.FullText,
		Public:       body.Public,
	})
	if err != nil {
		respondError(c, h.logger, err, "failed to submit request")
		return
	}

	h.logger.Info().Str("request_id", req.ID.String()).Int64("number", req.Number).Msg("request submitted")
	c.JSON(http.StatusCreated, req)
}

// ListPublic returns publicly listed requests, newest first.
// GET /api/v1/requests?limit=&offset=
func (h *RequestsHandler) ListPublic(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}

	requests, err := h.store.ListPublicRequests(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, h.logger, err, "failed to list requests")
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// ListMine returns the authenticated user's own requests, regardless
// of visibility.
// GET /api/v1/requests/mine
func (h *RequestsHandler) ListMine(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	requests, err := h.store.ListRequestsByUser(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, h.logger, err, "failed to list requests")
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// Get returns a single request by ID.
// GET /api/v1/requests/:id
func (h *RequestsHandler) Get(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	req, err := h.store.GetRequestByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to get request")
		return
	}
	if !canView(req, middleware.GetUser(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
		return
	}
	c.JSON(http.StatusOK, req)
}

// GetBySlug returns a single request by its slug.
// GET /api/v1/requests/slug/:slug
func (h *RequestsHandler) GetBySlug(c *gin.Context) {
	req, err := h.store.GetRequestBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, h.logger, err, "failed to get request")
		return
	}
	if !canView(req, middleware.GetUser(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
		return
	}
	c.JSON(http.StatusOK, req)
}

type setStatusBody struct {
	Status     models.Status     `json:"status"`
	Costs      *float64          `json:"costs"`
	Resolution models.Resolution `json:"resolution"`
	RedirectTo *uuid.UUID        `json:"redirect_to"`
}

// SetStatus classifies the request's current state.
// POST /api/v1/requests/:id/status
func (h *RequestsHandler) SetStatus(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var body setStatusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.service.SetStatus(c.Request.Context(), id, user, body.Status, body.Costs, body.Resolution, body.RedirectTo)
	if err != nil {
		respondError(c, h.logger, err, "failed to set status")
		return
	}

	h.logger.Info().Str("request_id", id.String()).Str("status", string(body.Status)).Msg("status set")
	c.JSON(http.StatusOK, req)
}

type setLawBody struct {
	LawID uuid.UUID `json:"law_id"`
}

// SetLaw resolves a meta law to one of its concrete laws.
// POST /api/v1/requests/:id/law
func (h *RequestsHandler) SetLaw(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var body setLawBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.service.SetLaw(c.Request.Context(), id, user, body.LawID)
	if err != nil {
		respondError(c, h.logger, err, "failed to set law")
		return
	}
	c.JSON(http.StatusOK, req)
}

type suggestBody struct {
	PublicBodyID uuid.UUID `json:"public_body_id"`
	Reason       string    `json:"reason"`
}

// Suggest proposes a public body for a request filed without one.
// POST /api/v1/requests/:id/suggestions
func (h *RequestsHandler) Suggest(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var body suggestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	suggestion, err := h.service.SuggestPublicBody(c.Request.Context(), id, user, body.PublicBodyID, body.Reason)
	if err != nil {
		respondError(c, h.logger, err, "failed to record suggestion")
		return
	}
	c.JSON(http.StatusCreated, suggestion)
}

// ListSuggestions returns the public body suggestions for a request.
// GET /api/v1/requests/:id/suggestions
func (h *RequestsHandler) ListSuggestions(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	req, err := h.store.GetRequestByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to get request")
		return
	}
	if !canView(req, middleware.GetUser(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
		return
	}

	suggestions, err := h.store.ListSuggestions(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to list suggestions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

type setPublicBodyBody struct {
	PublicBodyID uuid.UUID `json:"public_body_id"`
}

// SetPublicBody picks the public body for a request filed without one
// and dispatches the held opening letter.
// POST /api/v1/requests/:id/publicbody
func (h *RequestsHandler) SetPublicBody(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var body setPublicBodyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.service.SetPublicBody(c.Request.Context(), id, user, body.PublicBodyID)
	if err != nil {
		respondError(c, h.logger, err, "failed to set public body")
		return
	}

	h.logger.Info().Str("request_id", id.String()).Str("public_body_id", body.PublicBodyID.String()).Msg("public body set")
	c.JSON(http.StatusOK, req)
}

type escalateBody struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Escalate sends a complaint with the full request archive to the
// law's mediator.
// POST /api/v1/requests/:id/escalate
func (h *RequestsHandler) Escalate(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var body escalateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.service.Escalate(c.Request.Context(), id, user, body.Subject, body.Body)
	if err != nil {
		respondError(c, h.logger, err, "failed to escalate request")
		return
	}

	h.logger.Info().Str("request_id", id.String()).Msg("request escalated")
	c.JSON(http.StatusCreated, msg)
}

// Package streams the request's correspondence archive as a zip file.
// The archive is deterministic; identical threads produce identical
// bytes.
// GET /api/v1/requests/:id/package
func (h *RequestsHandler) Package(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	req, err := h.store.GetRequestByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to get request")
		return
	}
	if !canView(req, middleware.GetUser(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
		return
	}

	data, err := h.service.Package(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to package request")
		return
	}

	filename := fmt.Sprintf("request_%d.zip", req.Number)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/zip", data)
}

// MakeSame files a new request reusing another request's opening
// letter against the same public body.
// POST /api/v1/messages/:id/same
func (h *RequestsHandler) MakeSame(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	req, err := h.service.MakeSameRequest(c.Request.Context(), id, user)
	if err != nil {
		respondError(c, h.logger, err, "failed to create identical request")
		return
	}

	h.logger.Info().Str("request_id", req.ID.String()).Msg("identical request filed")
	c.JSON(http.StatusCreated, req)
}

// Identical returns how many requests share this request's letter.
// GET /api/v1/requests/:id/identical
func (h *RequestsHandler) Identical(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	count, err := h.service.IdenticalCount(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to count identical requests")
		return
	}
	c.JSON(http.StatusOK, gin.H{"identical_count": count})
}

type extendBody struct {
	Months int `json:"months"`
}

// Extend pushes the response deadline out by whole months.
// POST /api/v1/requests/:id/extend
func (h *RequestsHandler) Extend(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var body extendBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.service.ExtendDeadline(c.Request.Context(), id, user, body.Months)
	if err != nil {
		respondError(c, h.logger, err, "failed to extend deadline")
		return
	}
	c.JSON(http.StatusOK, req)
}

type setTagsBody struct {
	Tags string `json:"tags"`
}

// SetTags replaces the request's tag set from a comma-separated list.
// PUT /api/v1/requests/:id/tags
func (h *RequestsHandler) SetTags(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var body setTagsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.service.SetTags(c.Request.Context(), id, user, body.Tags)
	if err != nil {
		respondError(c, h.logger, err, "failed to set tags")
		return
	}
	c.JSON(http.StatusOK, req)
}

type setSummaryBody struct {
	Summary string `json:"summary"`
}

// SetSummary records the outcome summary of a resolved request.
// PUT /api/v1/requests/:id/summary
func (h *RequestsHandler) SetSummary(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var body setSummaryBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.service.SetSummary(c.Request.Context(), id, user, body.Summary)
	if err != nil {
		respondError(c, h.logger, err, "failed to set summary")
		return
	}
	c.JSON(http.StatusOK, req)
}

// MakePublic switches the request to public visibility.
// POST /api/v1/requests/:id/public
func (h *RequestsHandler) MakePublic(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	req, err := h.service.MakePublic(c.Request.Context(), id, user)
	if err != nil {
		respondError(c, h.logger, err, "failed to publish request")
		return
	}
	c.JSON(http.StatusOK, req)
}

// MarkNotFOI flags the request as not a genuine FOI request. Staff
// only; the request drops out of public listings.
// POST /api/v1/requests/:id/not-foi
func (h *RequestsHandler) MarkNotFOI(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	req, err := h.service.MarkNotFOI(c.Request.Context(), id, user)
	if err != nil {
		respondError(c, h.logger, err, "failed to mark request")
		return
	}

	h.logger.Info().Str("request_id", id.String()).Msg("request marked not foi")
	c.JSON(http.StatusOK, req)
}

// MarkChecked records the moderator pass over a fresh request.
// POST /api/v1/requests/:id/checked
func (h *RequestsHandler) MarkChecked(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	req, err := h.service.MarkChecked(c.Request.Context(), id, user)
	if err != nil {
		respondError(c, h.logger, err, "failed to mark request")
		return
	}
	c.JSON(http.StatusOK, req)
}
