package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/openfoi/foiportal/internal/api/middleware"
	"github.com/openfoi/foiportal/internal/apperr"
	"github.com/openfoi/foiportal/internal/mail"
	"github.com/openfoi/foiportal/internal/models"
)

type mockInboundRecorder struct {
	env *mail.Envelope
	msg *models.Message
	err error
}

func (m *mockInboundRecorder) RecordInbound(_ context.Context, env *mail.Envelope) (*models.Message, error) {
	m.env = env
	return m.msg, m.err
}

func setupInboundTestRouter(recorder InboundRecorder, user *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user != nil {
			c.Set(string(middleware.UserContextKey), user)
		}
		c.Next()
	})
	handler := NewInboundHandler(recorder, zerolog.Nop())
	handler.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestInboundReceive(t *testing.T) {
	owner := testUser()
	req := publicRequest(owner)
	msg := models.NewInboundMessage(req.ID, time.Now().UTC(), "Re: Water quality reports", "Response text.")

	body, _ := json.Marshal(map[string]any{
		"from":    map[string]string{"name": "City Water Authority", "email": "foi@water.example.org"},
		"to":      []map[string]string{{"email": "a.b.xyz123@reply.example.org"}},
		"subject": "Re: Water quality reports",
		"body":    "Response text.",
		"date":    time.Now().UTC(),
	})

	t.Run("success", func(t *testing.T) {
		recorder := &mockInboundRecorder{msg: msg}
		r := setupInboundTestRouter(recorder, staffUser())
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("POST", "/api/v1/inbound", bytes.NewReader(body))
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		if recorder.env == nil || recorder.env.From.Email != "foi@water.example.org" {
			t.Errorf("envelope not passed through: %+v", recorder.env)
		}
		if len(recorder.env.To) != 1 || recorder.env.To[0].Email != "a.b.xyz123@reply.example.org" {
			t.Errorf("recipient not passed through: %+v", recorder.env.To)
		}
	})

	t.Run("forbidden for non-staff", func(t *testing.T) {
		r := setupInboundTestRouter(&mockInboundRecorder{msg: msg}, testUser())
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("POST", "/api/v1/inbound", bytes.NewReader(body))
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})

	t.Run("unroutable mail answers 404", func(t *testing.T) {
		recorder := &mockInboundRecorder{err: apperr.NotFound("request for recipient address")}
		r := setupInboundTestRouter(recorder, staffUser())
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("POST", "/api/v1/inbound", bytes.NewReader(body))
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
	})
}
