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
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfoi/foiportal/internal/api/middleware"
	"github.com/openfoi/foiportal/internal/apperr"
	"github.com/openfoi/foiportal/internal/mail"
	"github.com/openfoi/foiportal/internal/models"
)

type mockMessageLifecycle struct {
	msg *models.Message
	att *models.Attachment
	err error
}

func (m *mockMessageLifecycle) SendReply(_ context.Context, _ uuid.UUID, _ *models.User, _, _ string) (*models.Message, error) {
	return m.msg, m.err
}

func (m *mockMessageLifecycle) ResendMessage(_ context.Context, _ uuid.UUID, _ *models.User) (*models.Message, error) {
	return m.msg, m.err
}

func (m *mockMessageLifecycle) ApproveAttachment(_ context.Context, _ uuid.UUID, _ *models.User) (*models.Attachment, error) {
	return m.att, m.err
}

type mockThreadService struct {
	msg   *models.Message
	atts  []*models.Attachment
	files []mail.File
	err   error
}

func (m *mockThreadService) RecordPostalReply(_ context.Context, _ uuid.UUID, _ *models.User, _ string, _ time.Time, _ string, files []mail.File) (*models.Message, error) {
	m.files = files
	return m.msg, m.err
}

func (m *mockThreadService) UploadAttachments(_ context.Context, _, _ uuid.UUID, _ *models.User, files []mail.File) ([]*models.Attachment, error) {
	m.files = files
	return m.atts, m.err
}

func (m *mockThreadService) SetMessageSender(_ context.Context, _ uuid.UUID, _ *models.User, _ uuid.UUID) (*models.Message, error) {
	return m.msg, m.err
}

func (m *mockThreadService) ApproveMessageContent(_ context.Context, _ uuid.UUID, _ *models.User) (*models.Message, error) {
	return m.msg, m.err
}

type mockMessageStore struct {
	requests    map[uuid.UUID]*models.Request
	messages    map[uuid.UUID]*models.Message
	byRequest   []*models.Message
	attachments []*models.Attachment
}

func (m *mockMessageStore) GetRequestByID(_ context.Context, id uuid.UUID) (*models.Request, error) {
	if r, ok := m.requests[id]; ok {
		return r, nil
	}
	return nil, apperr.NotFound("request")
}

func (m *mockMessageStore) GetMessageByID(_ context.Context, id uuid.UUID) (*models.Message, error) {
	if msg, ok := m.messages[id]; ok {
		return msg, nil
	}
	return nil, apperr.NotFound("message")
}

func (m *mockMessageStore) ListMessagesByRequest(_ context.Context, _ uuid.UUID) ([]*models.Message, error) {
	return m.byRequest, nil
}

func (m *mockMessageStore) ListAttachmentsByMessage(_ context.Context, _ uuid.UUID) ([]*models.Attachment, error) {
	return m.attachments, nil
}

func setupMessageTestRouter(lc MessageLifecycle, thread ThreadService, store MessageStore, user *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user != nil {
			c.Set(string(middleware.UserContextKey), user)
		}
		c.Next()
	})
	handler := NewMessagesHandler(lc, thread, store, zerolog.Nop())
	api := r.Group("/api/v1")
	handler.RegisterPublicRoutes(api)
	handler.RegisterRoutes(api)
	return r
}

func TestListMessagesVisibility(t *testing.T) {
	owner := testUser()
	req := publicRequest(owner)

	inbound := models.NewInboundMessage(req.ID, time.Now().UTC(), "Re: Water quality reports", "Dear Alice Smith, see attached.")
	inbound.PlaintextRedacted = "Dear <redacted>, see attached."

	hidden := models.NewInboundMessage(req.ID, time.Now().UTC(), "Re: Water quality reports", "Internal remarks.")
	hidden.PlaintextRedacted = "Internal remarks."
	hidden.ContentHidden = true

	store := &mockMessageStore{
		requests:  map[uuid.UUID]*models.Request{req.ID: req},
		byRequest: []*models.Message{inbound, hidden},
	}

	list := func(t *testing.T, user *models.User) []messageView {
		t.Helper()
		r := setupMessageTestRouter(&mockMessageLifecycle{}, &mockThreadService{}, store, user)
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("GET", "/api/v1/requests/"+req.ID.String()+"/messages", nil)
		r.ServeHTTP(w, httpReq)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp struct {
			Messages []messageView `json:"messages"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		return resp.Messages
	}

	t.Run("owner sees full text", func(t *testing.T) {
		msgs := list(t, owner)
		if len(msgs) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(msgs))
		}
		if msgs[0].Plaintext != inbound.Plaintext {
			t.Errorf("owner should see unredacted text, got %q", msgs[0].Plaintext)
		}
		if msgs[1].Plaintext != hidden.Plaintext {
			t.Errorf("owner should see hidden content, got %q", msgs[1].Plaintext)
		}
	})

	t.Run("anonymous sees redacted text only", func(t *testing.T) {
		msgs := list(t, nil)
		if msgs[0].Plaintext != inbound.PlaintextRedacted {
			t.Errorf("expected redacted variant, got %q", msgs[0].Plaintext)
		}
	})

	t.Run("hidden content withheld from anonymous", func(t *testing.T) {
		msgs := list(t, nil)
		if msgs[1].Plaintext != "" || msgs[1].PlaintextRedacted != "" {
			t.Errorf("hidden message leaked: plaintext=%q redacted=%q", msgs[1].Plaintext, msgs[1].PlaintextRedacted)
		}
	})

	t.Run("private request thread hidden", func(t *testing.T) {
		req.Visibility = models.VisibilityUser
		defer func() { req.Visibility = models.VisibilityPublic }()

		r := setupMessageTestRouter(&mockMessageLifecycle{}, &mockThreadService{}, store, nil)
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("GET", "/api/v1/requests/"+req.ID.String()+"/messages", nil)
		r.ServeHTTP(w, httpReq)
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
	})
}

func TestListAttachmentsApproval(t *testing.T) {
	owner := testUser()
	req := publicRequest(owner)
	msg := models.NewInboundMessage(req.ID, time.Now().UTC(), "Re: reports", "See attached.")

	approved := models.NewAttachment(msg.ID, "report.pdf", "application/pdf", 2048)
	approved.Approved = true
	pending := models.NewAttachment(msg.ID, "draft.pdf", "application/pdf", 1024)

	store := &mockMessageStore{
		requests:    map[uuid.UUID]*models.Request{req.ID: req},
		messages:    map[uuid.UUID]*models.Message{msg.ID: msg},
		attachments: []*models.Attachment{approved, pending},
	}

	list := func(user *models.User) []models.Attachment {
		r := setupMessageTestRouter(&mockMessageLifecycle{}, &mockThreadService{}, store, user)
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("GET", "/api/v1/messages/"+msg.ID.String()+"/attachments", nil)
		r.ServeHTTP(w, httpReq)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp struct {
			Attachments []models.Attachment `json:"attachments"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		return resp.Attachments
	}

	if got := list(nil); len(got) != 1 || got[0].Name != "report.pdf" {
		t.Errorf("anonymous should see approved attachments only, got %d", len(got))
	}
	// Reset the backing slice, the handler filters it in place.
	store.attachments = []*models.Attachment{approved, pending}
	if got := list(owner); len(got) != 2 {
		t.Errorf("owner should see all attachments, got %d", len(got))
	}
}

func TestSendReplyEndpoint(t *testing.T) {
	owner := testUser()
	req := publicRequest(owner)
	reply := models.NewOutboundMessage(req.ID, owner.ID, "Re: Water quality reports", "Any update?")

	body, _ := json.Marshal(map[string]string{
		"subject": "Re: Water quality reports",
		"body":    "Any update?",
	})

	t.Run("success", func(t *testing.T) {
		lc := &mockMessageLifecycle{msg: reply}
		r := setupMessageTestRouter(lc, &mockThreadService{}, &mockMessageStore{}, owner)
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("POST", "/api/v1/requests/"+req.ID.String()+"/reply", bytes.NewReader(body))
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		r := setupMessageTestRouter(&mockMessageLifecycle{}, &mockThreadService{}, &mockMessageStore{}, nil)
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("POST", "/api/v1/requests/"+req.ID.String()+"/reply", bytes.NewReader(body))
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("conflict on unsendable state", func(t *testing.T) {
		lc := &mockMessageLifecycle{err: apperr.Conflict("request is resolved")}
		r := setupMessageTestRouter(lc, &mockThreadService{}, &mockMessageStore{}, owner)
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("POST", "/api/v1/requests/"+req.ID.String()+"/reply", bytes.NewReader(body))
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", w.Code)
		}
	})
}

func TestRecordPostalEndpoint(t *testing.T) {
	owner := testUser()
	req := publicRequest(owner)
	msg := models.NewPostalMessage(req.ID, time.Now().UTC(), "City Water Authority", "Printed letter text.")

	payload := recordPostalBody{
		SenderName: "City Water Authority",
		Date:       time.Date(2026, 8, 12, 0, 0, 0, 0, time.UTC),
		Body:       "Printed letter text.",
		Files: []fileUpload{
			{Name: "scan.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4 fake")},
		},
	}
	body, _ := json.Marshal(payload)

	thread := &mockThreadService{msg: msg}
	r := setupMessageTestRouter(&mockMessageLifecycle{}, thread, &mockMessageStore{}, owner)
	w := httptest.NewRecorder()
	httpReq, _ := http.NewRequest("POST", "/api/v1/requests/"+req.ID.String()+"/postal", bytes.NewReader(body))
	r.ServeHTTP(w, httpReq)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if len(thread.files) != 1 {
		t.Fatalf("expected one file passed through, got %d", len(thread.files))
	}
	if thread.files[0].Name != "scan.pdf" || !bytes.Equal(thread.files[0].Data, []byte("%PDF-1.4 fake")) {
		t.Error("file content did not survive the base64 round trip")
	}
}

func TestApproveAttachmentEndpoint(t *testing.T) {
	staff := testUser()
	staff.Role = models.RoleStaff

	att := models.NewAttachment(uuid.New(), "report.pdf", "application/pdf", 2048)
	att.Approved = true

	t.Run("success", func(t *testing.T) {
		lc := &mockMessageLifecycle{att: att}
		r := setupMessageTestRouter(lc, &mockThreadService{}, &mockMessageStore{}, staff)
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("POST", "/api/v1/attachments/"+att.ID.String()+"/approve", nil)
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var got models.Attachment
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if !got.Approved {
			t.Error("expected approved attachment in response")
		}
	})

	t.Run("forbidden for non-staff on private request", func(t *testing.T) {
		lc := &mockMessageLifecycle{err: apperr.Forbidden("only staff may approve attachments")}
		r := setupMessageTestRouter(lc, &mockThreadService{}, &mockMessageStore{}, testUser())
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("POST", "/api/v1/attachments/"+att.ID.String()+"/approve", nil)
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})
}
