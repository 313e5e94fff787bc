package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfoi/foiportal/internal/api/middleware"
	"github.com/openfoi/foiportal/internal/apperr"
	"github.com/openfoi/foiportal/internal/models"
)

type mockPublicBodyStore struct {
	bodies        map[uuid.UUID]*models.PublicBody
	jurisdictions []*models.Jurisdiction
	laws          map[uuid.UUID]*models.Law
	metaLaw       *models.Law
	created       *models.PublicBody
	createdJur    *models.Jurisdiction
	createdLaw    *models.Law
	err           error
}

func (m *mockPublicBodyStore) ListPublicBodies(_ context.Context) ([]*models.PublicBody, error) {
	bodies := make([]*models.PublicBody, 0, len(m.bodies))
	for _, pb := range m.bodies {
		bodies = append(bodies, pb)
	}
	return bodies, m.err
}

func (m *mockPublicBodyStore) GetPublicBodyByID(_ context.Context, id uuid.UUID) (*models.PublicBody, error) {
	if pb, ok := m.bodies[id]; ok {
		return pb, nil
	}
	return nil, apperr.NotFound("public body")
}

func (m *mockPublicBodyStore) GetPublicBodyBySlug(_ context.Context, slug string) (*models.PublicBody, error) {
	for _, pb := range m.bodies {
		if pb.Slug == slug {
			return pb, nil
		}
	}
	return nil, apperr.NotFound("public body")
}

func (m *mockPublicBodyStore) CreatePublicBody(_ context.Context, pb *models.PublicBody) error {
	m.created = pb
	return m.err
}

func (m *mockPublicBodyStore) ListJurisdictions(_ context.Context) ([]*models.Jurisdiction, error) {
	return m.jurisdictions, m.err
}

func (m *mockPublicBodyStore) CreateJurisdiction(_ context.Context, j *models.Jurisdiction) error {
	m.createdJur = j
	return m.err
}

func (m *mockPublicBodyStore) GetLawByID(_ context.Context, id uuid.UUID) (*models.Law, error) {
	if l, ok := m.laws[id]; ok {
		return l, nil
	}
	return nil, apperr.NotFound("law")
}

func (m *mockPublicBodyStore) GetMetaLawForJurisdiction(_ context.Context, _ uuid.UUID) (*models.Law, error) {
	if m.metaLaw == nil {
		return nil, apperr.NotFound("meta law")
	}
	return m.metaLaw, nil
}

func (m *mockPublicBodyStore) CreateLaw(_ context.Context, l *models.Law) error {
	m.createdLaw = l
	return m.err
}

type mockPublicBodyConfirmer struct {
	confirmed uuid.UUID
	err       error
}

func (m *mockPublicBodyConfirmer) ConfirmPublicBody(_ context.Context, _ *models.User, id uuid.UUID) error {
	m.confirmed = id
	return m.err
}

func setupPublicBodyTestRouter(store PublicBodyStore, confirmer PublicBodyConfirmer, user *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user != nil {
			c.Set(string(middleware.UserContextKey), user)
		}
		c.Next()
	})
	handler := NewPublicBodiesHandler(store, confirmer, zerolog.Nop())
	api := r.Group("/api/v1")
	handler.RegisterPublicRoutes(api)
	handler.RegisterRoutes(api)
	return r
}

func staffUser() *models.User {
	u := testUser()
	u.Role = models.RoleStaff
	return u
}

func TestCreatePublicBody(t *testing.T) {
	body, _ := json.Marshal(map[string]any{
		"name":            "City Water Authority",
		"email":           "foi@water.example.org",
		"jurisdiction_id": uuid.New(),
		"default_law_id":  uuid.New(),
		"confirmed":       true,
	})

	t.Run("staff creates confirmed body", func(t *testing.T) {
		store := &mockPublicBodyStore{}
		r := setupPublicBodyTestRouter(store, &mockPublicBodyConfirmer{}, staffUser())
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("POST", "/api/v1/publicbodies", bytes.NewReader(body))
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		if store.created == nil || !store.created.Confirmed {
			t.Error("staff submission should create a confirmed body")
		}
	})

	t.Run("regular user submission starts unconfirmed", func(t *testing.T) {
		store := &mockPublicBodyStore{}
		r := setupPublicBodyTestRouter(store, &mockPublicBodyConfirmer{}, testUser())
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("POST", "/api/v1/publicbodies", bytes.NewReader(body))
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		if store.created == nil || store.created.Confirmed {
			t.Error("user submission must not be confirmed despite the flag")
		}
	})

	t.Run("missing name rejected", func(t *testing.T) {
		invalid, _ := json.Marshal(map[string]any{"email": "foi@water.example.org"})
		r := setupPublicBodyTestRouter(&mockPublicBodyStore{}, &mockPublicBodyConfirmer{}, testUser())
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("POST", "/api/v1/publicbodies", bytes.NewReader(invalid))
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		r := setupPublicBodyTestRouter(&mockPublicBodyStore{}, &mockPublicBodyConfirmer{}, nil)
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("POST", "/api/v1/publicbodies", bytes.NewReader(body))
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})
}

func TestConfirmPublicBody(t *testing.T) {
	id := uuid.New()

	t.Run("success", func(t *testing.T) {
		confirmer := &mockPublicBodyConfirmer{}
		r := setupPublicBodyTestRouter(&mockPublicBodyStore{}, confirmer, staffUser())
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("POST", "/api/v1/publicbodies/"+id.String()+"/confirm", nil)
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if confirmer.confirmed != id {
			t.Errorf("expected confirmation of %s, got %s", id, confirmer.confirmed)
		}
	})

	t.Run("forbidden for non-staff", func(t *testing.T) {
		confirmer := &mockPublicBodyConfirmer{err: apperr.Forbidden("only staff may confirm public bodies")}
		r := setupPublicBodyTestRouter(&mockPublicBodyStore{}, confirmer, testUser())
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("POST", "/api/v1/publicbodies/"+id.String()+"/confirm", nil)
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})
}

func TestCreateJurisdiction(t *testing.T) {
	body, _ := json.Marshal(map[string]string{"name": "State of Examplia"})

	t.Run("staff only", func(t *testing.T) {
		r := setupPublicBodyTestRouter(&mockPublicBodyStore{}, &mockPublicBodyConfirmer{}, testUser())
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("POST", "/api/v1/jurisdictions", bytes.NewReader(body))
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})

	t.Run("success with derived slug", func(t *testing.T) {
		store := &mockPublicBodyStore{}
		r := setupPublicBodyTestRouter(store, &mockPublicBodyConfirmer{}, staffUser())
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("POST", "/api/v1/jurisdictions", bytes.NewReader(body))
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		if store.createdJur == nil || store.createdJur.Slug != "state-of-examplia" {
			t.Errorf("expected derived slug, got %+v", store.createdJur)
		}
	})
}

func TestCreateLaw(t *testing.T) {
	jurisdictionID := uuid.New()

	t.Run("success", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{
			"name":                   "Environmental Information Act",
			"jurisdiction_id":        jurisdictionID,
			"max_response_time":      30,
			"max_response_time_unit": "calendar_days",
			"letter_start":           "Dear Sir or Madam,",
			"letter_end":             "Yours faithfully,",
		})

		store := &mockPublicBodyStore{}
		r := setupPublicBodyTestRouter(store, &mockPublicBodyConfirmer{}, staffUser())
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("POST", "/api/v1/laws", bytes.NewReader(body))
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		if store.createdLaw == nil || store.createdLaw.MaxResponseTime != 30 {
			t.Errorf("expected created law with response time, got %+v", store.createdLaw)
		}
	})

	t.Run("invalid deadline unit rejected", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{
			"name":                   "Environmental Information Act",
			"jurisdiction_id":        jurisdictionID,
			"max_response_time":      30,
			"max_response_time_unit": "fortnights",
		})

		r := setupPublicBodyTestRouter(&mockPublicBodyStore{}, &mockPublicBodyConfirmer{}, staffUser())
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("POST", "/api/v1/laws", bytes.NewReader(body))
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})
}

func TestGetMetaLaw(t *testing.T) {
	meta := models.NewLaw("Examplia FOI Meta Law", uuid.New(), 30, models.DeadlineCalendarDays)
	meta.Meta = true

	t.Run("found", func(t *testing.T) {
		store := &mockPublicBodyStore{metaLaw: meta}
		r := setupPublicBodyTestRouter(store, &mockPublicBodyConfirmer{}, nil)
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("GET", "/api/v1/jurisdictions/"+meta.JurisdictionID.String()+"/metalaw", nil)
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var got models.Law
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if !got.Meta {
			t.Error("expected meta law in response")
		}
	})

	t.Run("not found", func(t *testing.T) {
		r := setupPublicBodyTestRouter(&mockPublicBodyStore{}, &mockPublicBodyConfirmer{}, nil)
		w := httptest.NewRecorder()
		httpReq, _ := http.NewRequest("GET", "/api/v1/jurisdictions/"+uuid.NewString()+"/metalaw", nil)
		r.ServeHTTP(w, httpReq)

		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
	})
}
