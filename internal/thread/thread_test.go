package thread

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfoi/foiportal/internal/apperr"
	"github.com/openfoi/foiportal/internal/mail"
	"github.com/openfoi/foiportal/internal/metrics"
	"github.com/openfoi/foiportal/internal/models"
)

type mockStore struct {
	requests    map[uuid.UUID]*models.Request
	messages    map[uuid.UUID]*models.Message
	laws        map[uuid.UUID]*models.Law
	bodies      map[uuid.UUID]*models.PublicBody
	attachments map[uuid.UUID]map[string]*models.Attachment
	appendErr   error
}

func newMockStore() *mockStore {
	return &mockStore{
		requests:    make(map[uuid.UUID]*models.Request),
		messages:    make(map[uuid.UUID]*models.Message),
		laws:        make(map[uuid.UUID]*models.Law),
		bodies:      make(map[uuid.UUID]*models.PublicBody),
		attachments: make(map[uuid.UUID]map[string]*models.Attachment),
	}
}

func (m *mockStore) GetRequestByID(_ context.Context, id uuid.UUID) (*models.Request, error) {
	if r, ok := m.requests[id]; ok {
		return r, nil
	}
	return nil, apperr.NotFound("request")
}

func (m *mockStore) GetRequestBySecretAddress(_ context.Context, addr string) (*models.Request, error) {
	for _, r := range m.requests {
		if r.SecretAddress == addr {
			return r, nil
		}
	}
	return nil, apperr.NotFound("request")
}

func (m *mockStore) AppendMessageWithAttachments(_ context.Context, msg *models.Message, r *models.Request, atts []*models.Attachment) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.messages[msg.ID] = msg
	for _, att := range atts {
		m.storeAttachment(att)
	}
	if r != nil {
		if r.FirstMessageAt == nil || msg.Timestamp.Before(*r.FirstMessageAt) {
			ts := msg.Timestamp
			r.FirstMessageAt = &ts
		}
		m.requests[r.ID] = r
	}
	return nil
}

func (m *mockStore) GetMessageByID(_ context.Context, id uuid.UUID) (*models.Message, error) {
	if msg, ok := m.messages[id]; ok {
		return msg, nil
	}
	return nil, apperr.NotFound("message")
}

func (m *mockStore) ListMessagesByRequest(_ context.Context, requestID uuid.UUID) ([]*models.Message, error) {
	var result []*models.Message
	for _, msg := range m.messages {
		if msg.RequestID == requestID {
			result = append(result, msg)
		}
	}
	return result, nil
}

func (m *mockStore) UpdateMessage(_ context.Context, msg *models.Message) error {
	m.messages[msg.ID] = msg
	return nil
}

func (m *mockStore) GetLawByID(_ context.Context, id uuid.UUID) (*models.Law, error) {
	if l, ok := m.laws[id]; ok {
		return l, nil
	}
	return nil, apperr.NotFound("law")
}

func (m *mockStore) GetPublicBodyByID(_ context.Context, id uuid.UUID) (*models.PublicBody, error) {
	if pb, ok := m.bodies[id]; ok {
		return pb, nil
	}
	return nil, apperr.NotFound("public body")
}

func (m *mockStore) FindPublicBodyByEmail(_ context.Context, addr string) (*models.PublicBody, error) {
	for _, pb := range m.bodies {
		if pb.MatchesAddress(addr) {
			return pb, nil
		}
	}
	return nil, apperr.NotFound("public body")
}

func (m *mockStore) UpsertAttachments(_ context.Context, atts []*models.Attachment) error {
	for _, att := range atts {
		m.storeAttachment(att)
	}
	return nil
}

func (m *mockStore) storeAttachment(att *models.Attachment) {
	byName, ok := m.attachments[att.MessageID]
	if !ok {
		byName = make(map[string]*models.Attachment)
		m.attachments[att.MessageID] = byName
	}
	if prior, ok := byName[att.Name]; ok {
		att.ID = prior.ID
		att.Approved = prior.Approved
		att.CanApprove = prior.CanApprove
		att.CreatedAt = prior.CreatedAt
	}
	byName[att.Name] = att
}

type mockBlobs struct {
	data   map[string][]byte
	putErr error
}

func (m *mockBlobs) Put(_ context.Context, key string, data []byte, _ string) (int64, error) {
	if m.putErr != nil {
		return 0, m.putErr
	}
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = data
	return int64(len(data)), nil
}

func (m *mockBlobs) Get(_ context.Context, key string) ([]byte, error) {
	return m.data[key], nil
}

func (m *mockBlobs) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

type fixture struct {
	store   *mockStore
	blobs   *mockBlobs
	svc     *Service
	request *models.Request
	body    *models.PublicBody
	law     *models.Law
	owner   *models.User
	staff   *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMockStore()

	jur := uuid.New()
	law := models.NewLaw("Transparency Act", jur, 30, models.DeadlineCalendarDays)
	law.LetterStart = "Dear Sir or Madam,"
	law.LetterEnd = "This request is made under the Transparency Act."
	store.laws[law.ID] = law

	pb := models.NewPublicBody("Ministry of Example", "foi@ministry.example.org", jur, law.ID)
	store.bodies[pb.ID] = pb

	owner := models.NewUser("alice@example.org", "Alice", "Smith")
	owner.Active = true
	staff := models.NewUser("mod@portal.example.org", "Max", "Mustermann")
	staff.Role = models.RoleStaff

	req := models.NewRequest(owner.ID, law.ID, &pb.ID, "Pollution data", "Please send the data.")
	req.Number = 42
	req.Status = models.StatusAwaitingResponse
	req.SecretAddress = "secret.abc42@foi.example.org"
	first := time.Now().UTC().Add(-48 * time.Hour)
	req.FirstMessageAt = &first
	store.requests[req.ID] = req

	blobs := &mockBlobs{}
	svc := NewService(store, blobs, nil, zerolog.Nop())
	return &fixture{store: store, blobs: blobs, svc: svc, request: req, body: pb, law: law, owner: owner, staff: staff}
}

func TestRecordInboundClassifiesSenderAndFlipsStatus(t *testing.T) {
	f := newFixture(t)
	env := &mail.Envelope{
		From:    mail.Address{Name: "FoI Officer", Email: "officer@ministry.example.org"},
		To:      []mail.Address{{Email: f.request.SecretAddress}},
		Subject: "Re: Pollution data [#42] [#42]",
		Body:    "Please find attached.",
		Date:    time.Now().UTC(),
	}

	msg, err := f.svc.RecordInbound(context.Background(), env)
	require.NoError(t, err)

	assert.Equal(t, 1, models.CountSubjectMarkers(msg.Subject, 42))
	require.NotNil(t, msg.SenderPublicBodyID)
	assert.Equal(t, f.body.ID, *msg.SenderPublicBodyID, "sender resolved by mail domain")
	assert.True(t, msg.IsResponse)
	assert.False(t, msg.ContentHidden)
	assert.Equal(t, models.StatusAwaitingClassification, f.request.Status)
}

func TestRecordInboundUnknownRecipient(t *testing.T) {
	f := newFixture(t)
	env := &mail.Envelope{
		From: mail.Address{Email: "officer@ministry.example.org"},
		To:   []mail.Address{{Email: "nobody@foi.example.org"}},
		Body: "hello",
	}
	_, err := f.svc.RecordInbound(context.Background(), env)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestRecordInboundFromMediatorIsHidden(t *testing.T) {
	f := newFixture(t)
	mediator := models.NewPublicBody("Information Commissioner", "office@commissioner.example.org", f.law.JurisdictionID, f.law.ID)
	f.store.bodies[mediator.ID] = mediator
	f.law.MediatorID = &mediator.ID

	env := &mail.Envelope{
		From:    mail.Address{Email: "office@commissioner.example.org"},
		To:      []mail.Address{{Email: f.request.SecretAddress}},
		Subject: "Decision",
		Body:    "The commissioner has ruled.",
		Date:    time.Now().UTC(),
	}
	msg, err := f.svc.RecordInbound(context.Background(), env)
	require.NoError(t, err)
	assert.True(t, msg.ContentHidden, "mediator replies are hidden until approved")
}

func TestRecordPostalReplyValidations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("no public body", func(t *testing.T) {
		noPB := models.NewRequest(f.owner.ID, f.law.ID, nil, "Other", "Body")
		f.store.requests[noPB.ID] = noPB
		_, err := f.svc.RecordPostalReply(ctx, noPB.ID, f.owner, "Clerk", now.Add(-time.Hour), "text", nil)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	})

	t.Run("missing date", func(t *testing.T) {
		_, err := f.svc.RecordPostalReply(ctx, f.request.ID, f.owner, "Clerk", time.Time{}, "text", nil)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	})

	t.Run("future date", func(t *testing.T) {
		_, err := f.svc.RecordPostalReply(ctx, f.request.ID, f.owner, "Clerk", now.Add(24*time.Hour), "text", nil)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	})

	t.Run("date before first message is clamped", func(t *testing.T) {
		msg, err := f.svc.RecordPostalReply(ctx, f.request.ID, f.owner, "Clerk", now.Add(-30*24*time.Hour), "text", nil)
		require.NoError(t, err)
		assert.Equal(t, *f.request.FirstMessageAt, msg.Timestamp)
	})

	t.Run("foreign caller", func(t *testing.T) {
		other := models.NewUser("bob@example.org", "Bob", "Jones")
		_, err := f.svc.RecordPostalReply(ctx, f.request.ID, other, "Clerk", now.Add(-time.Hour), "text", nil)
		assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	})
}

func TestRecordPostalReplyStoresAttachments(t *testing.T) {
	f := newFixture(t)
	files := []mail.File{{Name: "scan.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")}}
	msg, err := f.svc.RecordPostalReply(context.Background(), f.request.ID, f.staff, "Clerk", time.Now().UTC().Add(-time.Hour), "See letter.", files)
	require.NoError(t, err)

	atts := f.store.attachments[msg.ID]
	require.Len(t, atts, 1)
	assert.False(t, atts["scan.pdf"].Approved, "postal scans start unapproved")
	assert.Equal(t, int64(8), atts["scan.pdf"].Size)
}

func TestRecordPostalReplyFailedFileStoresNoMessage(t *testing.T) {
	f := newFixture(t)
	f.blobs.putErr = errors.New("volume full")
	files := []mail.File{{Name: "scan.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")}}

	_, err := f.svc.RecordPostalReply(context.Background(), f.request.ID, f.staff, "Clerk", time.Now().UTC().Add(-time.Hour), "See letter.", files)
	require.Error(t, err)

	msgs, err := f.svc.store.ListMessagesByRequest(context.Background(), f.request.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs, "a failed postal-reply recording must persist no message")
	assert.Equal(t, models.StatusAwaitingResponse, f.request.Status, "status flip must not outlive the failure")
}

func TestRecordInboundFailedAppendStoresNothing(t *testing.T) {
	f := newFixture(t)
	f.store.appendErr = errors.New("connection reset")
	env := &mail.Envelope{
		From:    mail.Address{Email: "officer@ministry.example.org"},
		To:      []mail.Address{{Email: f.request.SecretAddress}},
		Subject: "Re: Pollution data",
		Body:    "Please find attached.",
		Date:    time.Now().UTC(),
	}

	_, err := f.svc.RecordInbound(context.Background(), env)
	require.Error(t, err)
	assert.Empty(t, f.store.messages)
	assert.Empty(t, f.store.attachments, "message and attachments land together or not at all")
}

func TestRecordInboundCountsMessage(t *testing.T) {
	f := newFixture(t)
	m := metrics.New()
	f.svc.metrics = m
	env := &mail.Envelope{
		From:    mail.Address{Email: "officer@ministry.example.org"},
		To:      []mail.Address{{Email: f.request.SecretAddress}},
		Subject: "Re: Pollution data",
		Body:    "Here you go.",
		Date:    time.Now().UTC(),
	}

	_, err := f.svc.RecordInbound(context.Background(), env)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), "foiportal_messages_received_total 1")
}

func TestUploadAttachmentsSameNameReplaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := models.NewInboundMessage(f.request.ID, time.Now().UTC(), "Re: [#42]", "body")
	f.store.messages[msg.ID] = msg

	first, err := f.svc.UploadAttachments(ctx, f.request.ID, msg.ID, f.owner, []mail.File{
		{Name: "test.pdf", ContentType: "application/pdf", Data: []byte("old")},
	})
	require.NoError(t, err)

	second, err := f.svc.UploadAttachments(ctx, f.request.ID, msg.ID, f.owner, []mail.File{
		{Name: "test.pdf", ContentType: "application/pdf", Data: []byte("new bytes")},
	})
	require.NoError(t, err)

	require.Len(t, f.store.attachments[msg.ID], 1, "same name must replace, not duplicate")
	assert.Equal(t, first[0].ID, second[0].ID, "record identity survives replacement")
	assert.Equal(t, int64(9), second[0].Size)
}

func TestUploadAttachmentsGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := models.NewInboundMessage(f.request.ID, time.Now().UTC(), "Re: [#42]", "body")
	f.store.messages[msg.ID] = msg
	files := []mail.File{{Name: "a.pdf", Data: []byte("x")}}

	t.Run("no files", func(t *testing.T) {
		_, err := f.svc.UploadAttachments(ctx, f.request.ID, msg.ID, f.owner, nil)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	})

	t.Run("unknown message", func(t *testing.T) {
		_, err := f.svc.UploadAttachments(ctx, f.request.ID, uuid.New(), f.owner, files)
		assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	})

	t.Run("message of another request", func(t *testing.T) {
		other := models.NewRequest(f.owner.ID, f.law.ID, nil, "Other", "Body")
		f.store.requests[other.ID] = other
		foreign := models.NewInboundMessage(other.ID, time.Now().UTC(), "x", "y")
		f.store.messages[foreign.ID] = foreign
		_, err := f.svc.UploadAttachments(ctx, f.request.ID, foreign.ID, f.owner, files)
		assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	})

	t.Run("foreign caller", func(t *testing.T) {
		other := models.NewUser("bob@example.org", "Bob", "Jones")
		_, err := f.svc.UploadAttachments(ctx, f.request.ID, msg.ID, other, files)
		assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	})
}

func TestSetMessageSender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inbound := models.NewInboundMessage(f.request.ID, time.Now().UTC(), "Re: [#42]", "body")
	f.store.messages[inbound.ID] = inbound
	outbound := models.NewOutboundMessage(f.request.ID, f.owner.ID, "Pollution data [#42]", "body")
	f.store.messages[outbound.ID] = outbound

	t.Run("staff reassigns inbound", func(t *testing.T) {
		msg, err := f.svc.SetMessageSender(ctx, inbound.ID, f.staff, f.body.ID)
		require.NoError(t, err)
		require.NotNil(t, msg.SenderPublicBodyID)
		assert.Equal(t, f.body.ID, *msg.SenderPublicBodyID)
	})

	t.Run("owner is not staff", func(t *testing.T) {
		_, err := f.svc.SetMessageSender(ctx, inbound.ID, f.owner, f.body.ID)
		assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	})

	t.Run("outbound message", func(t *testing.T) {
		_, err := f.svc.SetMessageSender(ctx, outbound.ID, f.staff, f.body.ID)
		assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	})

	t.Run("unknown public body", func(t *testing.T) {
		_, err := f.svc.SetMessageSender(ctx, inbound.ID, f.staff, uuid.New())
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	})
}

func TestApproveMessageContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := models.NewInboundMessage(f.request.ID, time.Now().UTC(), "Decision", "ruling")
	msg.ContentHidden = true
	f.store.messages[msg.ID] = msg

	_, err := f.svc.ApproveMessageContent(ctx, msg.ID, f.owner)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	approved, err := f.svc.ApproveMessageContent(ctx, msg.ID, f.staff)
	require.NoError(t, err)
	assert.False(t, approved.ContentHidden)
}

func TestRecordInboundRedactsBoilerplate(t *testing.T) {
	f := newFixture(t)
	env := &mail.Envelope{
		From:    mail.Address{Email: "officer@ministry.example.org"},
		To:      []mail.Address{{Email: f.request.SecretAddress}},
		Subject: "Re: Pollution data",
		Body:    "Dear Sir or Madam,\n\nHere is the data.\n\nMit freundlichen Grüßen\nErika Musterfrau\nReferat 4",
		Date:    time.Now().UTC(),
	}
	msg, err := f.svc.RecordInbound(context.Background(), env)
	require.NoError(t, err)

	assert.NotContains(t, msg.PlaintextRedacted, "Erika Musterfrau")
	assert.NotContains(t, msg.PlaintextRedacted, "Dear Sir or Madam,")
	assert.Contains(t, msg.Plaintext, "Erika Musterfrau", "original body stays verbatim")
}
