package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/openfoi/foiportal/internal/api/middleware"
	"github.com/openfoi/foiportal/internal/mail"
	"github.com/openfoi/foiportal/internal/models"
)

// InboundRecorder files an inbound mail envelope into the matching
// request thread.
type InboundRecorder interface {
	RecordInbound(ctx context.Context, env *mail.Envelope) (*models.Message, error)
}

// InboundHandler receives parsed mail from the inbound gateway. The
// gateway authenticates with an operator token.
type InboundHandler struct {
	recorder InboundRecorder
	logger   zerolog.Logger
}

// NewInboundHandler creates a new InboundHandler.
func NewInboundHandler(recorder InboundRecorder, logger zerolog.Logger) *InboundHandler {
	return &InboundHandler{
		recorder: recorder,
		logger:   logger.With().Str("component", "inbound_handler").Logger(),
	}
}

// RegisterRoutes registers the inbound mail route.
func (h *InboundHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/inbound", h.Receive)
}

type addressBody struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type inboundBody struct {
	From        addressBody   `json:"from"`
	To          []addressBody `json:"to"`
	CC          []addressBody `json:"cc"`
	Subject     string        `json:"subject"`
	Body        string        `json:"body"`
	Date        time.Time     `json:"date"`
	Attachments []fileUpload  `json:"attachments"`
}

func toMailAddresses(in []addressBody) []mail.Address {
	out := make([]mail.Address, 0, len(in))
	for _, a := range in {
		out = append(out, mail.Address{Name: a.Name, Email: a.Email})
	}
	return out
}

// Receive records one inbound mail. The secret recipient address
// routes it to its request; unroutable mail answers 404 so the
// gateway can bounce it.
// POST /api/v1/inbound
func (h *InboundHandler) Receive(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	if !user.IsStaff() {
		c.JSON(http.StatusForbidden, gin.H{"error": "staff privilege required"})
		return
	}

	var body inboundBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	env := &mail.Envelope{
		From:    mail.Address{Name: body.From.Name, Email: body.From.Email},
		To:      toMailAddresses(body.To),
		CC:      toMailAddresses(body.CC),
		Subject: body.Subject,
		Body:    body.Body,
		Date:    body.Date,
	}
	for _, f := range body.Attachments {
		env.Attachments = append(env.Attachments, mail.File{Name: f.Name, ContentType: f.ContentType, Data: f.Data})
	}

	msg, err := h.recorder.RecordInbound(c.Request.Context(), env)
	if err != nil {
		respondError(c, h.logger, err, "failed to record inbound mail")
		return
	}

	h.logger.Info().
		Str("message_id", msg.ID.String()).
		Str("request_id", msg.RequestID.String()).
		Str("from", body.From.Email).
		Msg("inbound mail recorded")
	c.JSON(http.StatusCreated, msg)
}
