package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfoi/foiportal/internal/api/middleware"
	"github.com/openfoi/foiportal/internal/mail"
	"github.com/openfoi/foiportal/internal/models"
)

// MessageLifecycle is the slice of the lifecycle service the message
// endpoints use.
type MessageLifecycle interface {
	SendReply(ctx context.Context, requestID uuid.UUID, caller *models.User, subject, body string) (*models.Message, error)
	ResendMessage(ctx context.Context, messageID uuid.UUID, caller *models.User) (*models.Message, error)
	ApproveAttachment(ctx context.Context, attachmentID uuid.UUID, caller *models.User) (*models.Attachment, error)
}

// ThreadService covers correspondence recording and moderation.
type ThreadService interface {
	RecordPostalReply(ctx context.Context, requestID uuid.UUID, caller *models.User, senderName string, date time.Time, body string, files []mail.File) (*models.Message, error)
	UploadAttachments(ctx context.Context, requestID, messageID uuid.UUID, caller *models.User, files []mail.File) ([]*models.Attachment, error)
	SetMessageSender(ctx context.Context, messageID uuid.UUID, caller *models.User, publicBodyID uuid.UUID) (*models.Message, error)
	ApproveMessageContent(ctx context.Context, messageID uuid.UUID, caller *models.User) (*models.Message, error)
}

// MessageStore covers the reads the message endpoints serve directly.
type MessageStore interface {
	GetRequestByID(ctx context.Context, id uuid.UUID) (*models.Request, error)
	GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ListMessagesByRequest(ctx context.Context, requestID uuid.UUID) ([]*models.Message, error)
	ListAttachmentsByMessage(ctx context.Context, messageID uuid.UUID) ([]*models.Attachment, error)
}

// MessagesHandler handles correspondence HTTP endpoints.
type MessagesHandler struct {
	lifecycle MessageLifecycle
	thread    ThreadService
	store     MessageStore
	logger    zerolog.Logger
}

// NewMessagesHandler creates a new MessagesHandler.
func NewMessagesHandler(lc MessageLifecycle, thread ThreadService, store MessageStore, logger zerolog.Logger) *MessagesHandler {
	return &MessagesHandler{
		lifecycle: lc,
		thread:    thread,
		store:     store,
		logger:    logger.With().Str("component", "messages_handler").Logger(),
	}
}

// RegisterPublicRoutes registers the read endpoints. Visibility and
// content-approval rules are applied per message.
func (h *MessagesHandler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/requests/:id/messages", h.ListByRequest)
	r.GET("/messages/:id/attachments", h.ListAttachments)
}

// RegisterRoutes registers the authenticated message routes.
func (h *MessagesHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/requests/:id/reply", h.SendReply)
	r.POST("/requests/:id/postal", h.RecordPostal)

	msg := r.Group("/messages/:id")
	{
		msg.POST("/attachments", h.UploadAttachments)
		msg.POST("/sender", h.SetSender)
		msg.POST("/approve-content", h.ApproveContent)
		msg.POST("/resend", h.Resend)
	}

	r.POST("/attachments/:id/approve", h.ApproveAttachment)
}

// messageView is the wire shape of a message after visibility rules.
// Hidden content is withheld from everyone but the owner and staff.
type messageView struct {
	*models.Message
	Plaintext         string `json:"plaintext"`
	PlaintextRedacted string `json:"plaintext_redacted"`
}

func viewMessage(msg *models.Message, req *models.Request, user *models.User) messageView {
	v := messageView{Message: msg, Plaintext: msg.Plaintext, PlaintextRedacted: msg.PlaintextRedacted}
	privileged := user != nil && (user.IsStaff() || user.ID == req.UserID)
	if privileged {
		return v
	}
	if msg.ContentHidden || msg.NotPublishable {
		v.Plaintext = ""
		v.PlaintextRedacted = ""
		return v
	}
	// Public readers get the redacted variant only.
	v.Plaintext = v.PlaintextRedacted
	return v
}

// ListByRequest returns the request's message thread in order.
// GET /api/v1/requests/:id/messages
func (h *MessagesHandler) ListByRequest(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	req, err := h.store.GetRequestByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to get request")
		return
	}
	user := middleware.GetUser(c)
	if !canView(req, user) {
		c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
		return
	}

	msgs, err := h.store.ListMessagesByRequest(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to list messages")
		return
	}

	views := make([]messageView, 0, len(msgs))
	for _, msg := range msgs {
		views = append(views, viewMessage(msg, req, user))
	}
	c.JSON(http.StatusOK, gin.H{"messages": views})
}

// ListAttachments returns a message's attachments. Unapproved
// attachments are withheld from public readers.
// GET /api/v1/messages/:id/attachments
func (h *MessagesHandler) ListAttachments(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	msg, err := h.store.GetMessageByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to get message")
		return
	}
	req, err := h.store.GetRequestByID(c.Request.Context(), msg.RequestID)
	if err != nil {
		respondError(c, h.logger, err, "failed to get request")
		return
	}
	user := middleware.GetUser(c)
	if !canView(req, user) {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	atts, err := h.store.ListAttachmentsByMessage(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to list attachments")
		return
	}

	privileged := user != nil && (user.IsStaff() || user.ID == req.UserID)
	if !privileged {
		visible := atts[:0]
		for _, att := range atts {
			if att.Approved {
				visible = append(visible, att)
			}
		}
		atts = visible
	}
	c.JSON(http.StatusOK, gin.H{"attachments": atts})
}

type sendReplyBody struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SendReply sends a follow-up letter to the public body.
// POST /api/v1/requests/:id/reply
func (h *MessagesHandler) SendReply(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var body sendReplyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.lifecycle.SendReply(c.Request.Context(), id, user, body.Subject, body.Body)
	if err != nil {
		respondError(c, h.logger, err, "failed to send reply")
		return
	}

	h.logger.Info().Str("request_id", id.String()).Str("message_id", msg.ID.String()).Msg("reply sent")
	c.JSON(http.StatusCreated, msg)
}

// fileUpload is one attachment in a JSON request body. Data is
// base64; encoding/json decodes []byte fields transparently.
type fileUpload struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

func toMailFiles(uploads []fileUpload) []mail.File {
	files := make([]mail.File, 0, len(uploads))
	for _, u := range uploads {
		files = append(files, mail.File{Name: u.Name, ContentType: u.ContentType, Data: u.Data})
	}
	return files
}

type recordPostalBody struct {
	SenderName string       `json:"sender_name"`
	Date       time.Time    `json:"date"`
	Body       string       `json:"body"`
	Files      []fileUpload `json:"files"`
}

// RecordPostal records a reply that arrived on paper.
// POST /api/v1/requests/:id/postal
func (h *MessagesHandler) RecordPostal(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var body recordPostalBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.thread.RecordPostalReply(c.Request.Context(), id, user, body.SenderName, body.Date, body.Body, toMailFiles(body.Files))
	if err != nil {
		respondError(c, h.logger, err, "failed to record postal reply")
		return
	}

	h.logger.Info().Str("request_id", id.String()).Str("message_id", msg.ID.String()).Msg("postal reply recorded")
	c.JSON(http.StatusCreated, msg)
}

type uploadAttachmentsBody struct {
	Files []fileUpload `json:"files"`
}

// UploadAttachments adds scanned documents to a postal message.
// POST /api/v1/messages/:id/attachments
func (h *MessagesHandler) UploadAttachments(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	msg, err := h.store.GetMessageByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to get message")
		return
	}

	var body uploadAttachmentsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	atts, err := h.thread.UploadAttachments(c.Request.Context(), msg.RequestID, id, user, toMailFiles(body.Files))
	if err != nil {
		respondError(c, h.logger, err, "failed to upload attachments")
		return
	}

	h.logger.Info().Str("message_id", id.String()).Int("count", len(atts)).Msg("attachments uploaded")
	c.JSON(http.StatusCreated, gin.H{"attachments": atts})
}

type setSenderBody struct {
	PublicBodyID uuid.UUID `json:"public_body_id"`
}

// SetSender attributes an inbound message to a public body when the
// sender address did not resolve to one.
// POST /api/v1/messages/:id/sender
func (h *MessagesHandler) SetSender(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var body setSenderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.thread.SetMessageSender(c.Request.Context(), id, user, body.PublicBodyID)
	if err != nil {
		respondError(c, h.logger, err, "failed to set sender")
		return
	}
	c.JSON(http.StatusOK, msg)
}

// ApproveContent releases a message body that was withheld pending
// moderation.
// POST /api/v1/messages/:id/approve-content
func (h *MessagesHandler) ApproveContent(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	msg, err := h.thread.ApproveMessageContent(c.Request.Context(), id, user)
	if err != nil {
		respondError(c, h.logger, err, "failed to approve content")
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Resend retries delivery of a message the transport rejected.
// POST /api/v1/messages/:id/resend
func (h *MessagesHandler) Resend(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	msg, err := h.lifecycle.ResendMessage(c.Request.Context(), id, user)
	if err != nil {
		respondError(c, h.logger, err, "failed to resend message")
		return
	}

	h.logger.Info().Str("message_id", id.String()).Msg("message resent")
	c.JSON(http.StatusOK, msg)
}

// ApproveAttachment publishes an attachment on a public request.
// POST /api/v1/attachments/:id/approve
func (h *MessagesHandler) ApproveAttachment(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	att, err := h.lifecycle.ApproveAttachment(c.Request.Context(), id, user)
	if err != nil {
		respondError(c, h.logger, err, "failed to approve attachment")
		return
	}
	c.JSON(http.StatusOK, att)
}
