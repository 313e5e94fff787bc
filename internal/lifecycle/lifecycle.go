// Package lifecycle implements the request state machine: submission,
// confirmation, status transitions, escalation, duplicates, deadlines
// and the moderation actions on requests.
package lifecycle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfoi/foiportal/internal/apperr"
	"github.com/openfoi/foiportal/internal/law"
	"github.com/openfoi/foiportal/internal/mail"
	"github.com/openfoi/foiportal/internal/metrics"
	"github.com/openfoi/foiportal/internal/models"
	"github.com/openfoi/foiportal/internal/packaging"
	"github.com/openfoi/foiportal/internal/search"
	"github.com/openfoi/foiportal/internal/storage"
	"github.com/openfoi/foiportal/internal/throttle"
)

// Store is the persistence surface the lifecycle service needs.
type Store interface {
	CreateRequest(ctx context.Context, r *models.Request, since time.Time, throttleCheck func(created []time.Time) error, firstMessage *models.Message) error
	GetRequestByID(ctx context.Context, id uuid.UUID) (*models.Request, error)
	UpdateRequest(ctx context.Context, r *models.Request) error
	RedirectRequest(ctx context.Context, r *models.Request, previousPublicBodyID *uuid.UUID) error
	ListRequestsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Request, error)
	ListRequestsByPublicBodyAndStatus(ctx context.Context, publicBodyID uuid.UUID, status models.Status) ([]*models.Request, error)
	IdenticalCount(ctx context.Context, rootID uuid.UUID) (int, error)
	SetRequestTags(ctx context.Context, requestID uuid.UUID, tags []string) error

	AppendMessage(ctx context.Context, msg *models.Message, r *models.Request) error
	AppendMessageWithAttachments(ctx context.Context, msg *models.Message, r *models.Request, atts []*models.Attachment) error
	GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ListMessagesByRequest(ctx context.Context, requestID uuid.UUID) ([]*models.Message, error)
	UpdateMessage(ctx context.Context, msg *models.Message) error

	GetAttachmentByID(ctx context.Context, id uuid.UUID) (*models.Attachment, error)
	ListAttachmentsByMessage(ctx context.Context, messageID uuid.UUID) ([]*models.Attachment, error)
	UpdateAttachment(ctx context.Context, att *models.Attachment) error

	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ActivateUser(ctx context.Context, id uuid.UUID) error
	GetLawByID(ctx context.Context, id uuid.UUID) (*models.Law, error)
	GetPublicBodyByID(ctx context.Context, id uuid.UUID) (*models.PublicBody, error)
	ConfirmPublicBody(ctx context.Context, id uuid.UUID) error
	CreateSuggestion(ctx context.Context, s *models.PublicBodySuggestion) error
	ListSuggestions(ctx context.Context, requestID uuid.UUID) ([]*models.PublicBodySuggestion, error)
}

// Config holds the service's operational parameters.
type Config struct {
	// SecretDomain is the mail domain private correspondence addresses
	// are minted under.
	SecretDomain string
	// From is the portal's outbound sender identity.
	From mail.Address
}

// Service drives the request lifecycle.
type Service struct {
	store     Store
	transport mail.Transport
	blobs     storage.BlobStore
	throttle  *throttle.Throttle
	calendar  *law.Calendar
	indexer   search.Indexer
	metrics   *metrics.Metrics
	cfg       Config
	logger    zerolog.Logger
}

// NewService creates a lifecycle service. indexer and m may be nil.
func NewService(store Store, transport mail.Transport, blobs storage.BlobStore, th *throttle.Throttle, cal *law.Calendar, indexer search.Indexer, m *metrics.Metrics, cfg Config, logger zerolog.Logger) *Service {
	if indexer == nil {
		indexer = search.NopIndexer{}
	}
	return &Service{
		store:     store,
		transport: transport,
		blobs:     blobs,
		throttle:  th,
		calendar:  cal,
		indexer:   indexer,
		metrics:   m,
		cfg:       cfg,
		logger:    logger.With().Str("component", "lifecycle").Logger(),
	}
}

// SubmitInput carries a new request submission.
type SubmitInput struct {
	PublicBodyID *uuid.UUID
	// LawID may be empty when a public body is given; the body's
	// default law applies then.
	LawID *uuid.UUID
	Title string
	Body  string
	// FullText means Body already is the complete letter and the law's
	// boilerplate is skipped.
	FullText bool
	// Public asks for a publicly listed request.
	Public bool
}

// SubmitRequest creates a request, its opening message and, when
// nothing holds it back, dispatches the letter. The throttle check
// and the insert share one transaction.
func (s *Service) SubmitRequest(ctx context.Context, caller *models.User, input SubmitInput) (*models.Request, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, apperr.Validation("title", "title is required")
	}
	if strings.TrimSpace(input.Body) == "" {
		return nil, apperr.Validation("body", "body is required")
	}

	var pb *models.PublicBody
	if input.PublicBodyID != nil {
		var err error
		pb, err = s.store.GetPublicBodyByID(ctx, *input.PublicBodyID)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				return nil, apperr.Validation("public_body", "public body does not exist")
			}
			return nil, err
		}
	}

	lawID := uuid.Nil
	switch {
	case input.LawID != nil:
		lawID = *input.LawID
	case pb != nil:
		lawID = pb.DefaultLawID
	default:
		return nil, apperr.Validation("law", "a law is required when no public body is given")
	}
	l, err := s.store.GetLawByID(ctx, lawID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.Validation("law", "law does not exist")
		}
		return nil, err
	}

	req := models.NewRequest(caller.ID, l.ID, input.PublicBodyID, strings.TrimSpace(input.Title), input.Body)
	req.Status, req.Visibility = initialState(caller, pb, input.Public)
	req.SecretAddress, err = s.newSecretAddress()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if req.Status == models.StatusAwaitingResponse {
		due := law.DueDate(l, s.calendar, now)
		req.DueDate = &due
	}

	letter := law.ComposeLetter(l, input.Body, law.LetterOptions{
		FullText:     input.FullText,
		Name:         caller.FullName(),
		Organization: caller.Organization,
		Address:      caller.Address,
	})
	first := models.NewOutboundMessage(req.ID, caller.ID, req.Title, letter)
	first.SenderEmail = req.SecretAddress
	if pb != nil {
		first.RecipientPublicBodyID = &pb.ID
		first.RecipientEmail = pb.Email
	}
	ts := now
	req.FirstMessageAt = &ts
	req.LastMessageAt = &ts

	if err := s.createThrottled(ctx, req, first); err != nil {
		return nil, err
	}
	s.metrics.IncRequestsCreated()

	if req.Status == models.StatusAwaitingResponse {
		s.dispatch(ctx, req, first, nil)
	}
	if err := s.indexer.IndexRequest(ctx, req.ID); err != nil {
		s.logger.Warn().Err(err).Str("request_id", req.ID.String()).Msg("search indexing failed")
	}

	s.logger.Info().
		Str("request_id", req.ID.String()).
		Int64("number", req.Number).
		Str("status", string(req.Status)).
		Msg("request submitted")
	return req, nil
}

func (s *Service) createThrottled(ctx context.Context, req *models.Request, first *models.Message) error {
	var check func([]time.Time) error
	since := time.Now().UTC()
	if s.throttle != nil && len(s.throttle.Windows()) > 0 {
		since = since.Add(-s.throttle.MaxPeriod())
		check = func(created []time.Time) error {
			return s.throttle.Check(time.Now().UTC(), created)
		}
	}
	err := s.store.CreateRequest(ctx, req, since, check, first)
	if apperr.IsKind(err, apperr.KindRateLimited) {
		s.metrics.IncThrottleRejections()
	}
	return err
}

// initialState picks the creation status and visibility per the
// confirmation state of the requester and the public body.
func initialState(caller *models.User, pb *models.PublicBody, public bool) (models.Status, models.Visibility) {
	if !caller.Active {
		if public {
			return models.StatusAwaitingUserConfirmation, models.VisibilityPending
		}
		return models.StatusAwaitingUserConfirmation, models.VisibilityInvisible
	}
	visibility := models.VisibilityUser
	if public {
		visibility = models.VisibilityPublic
	}
	switch {
	case pb == nil:
		return models.StatusPublicBodyNeeded, visibility
	case !pb.Confirmed:
		return models.StatusAwaitingPublicBodyConfirmation, visibility
	default:
		return models.StatusAwaitingResponse, visibility
	}
}

// ConfirmUser activates a user account and releases every request of
// theirs held in awaiting_user_confirmation, dispatching the opening
// letters where the public body allows it.
func (s *Service) ConfirmUser(ctx context.Context, userID uuid.UUID) error {
	if err := s.store.ActivateUser(ctx, userID); err != nil {
		return err
	}
	requests, err := s.store.ListRequestsByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, req := range requests {
		if req.Status != models.StatusAwaitingUserConfirmation {
			continue
		}
		if err := s.releaseRequest(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// releaseRequest moves a held request to its post-confirmation state.
func (s *Service) releaseRequest(ctx context.Context, req *models.Request) error {
	switch req.Visibility {
	case models.VisibilityInvisible:
		req.Visibility = models.VisibilityUser
	case models.VisibilityPending:
		req.Visibility = models.VisibilityPublic
	}

	var pb *models.PublicBody
	if req.PublicBodyID != nil {
		var err error
		pb, err = s.store.GetPublicBodyByID(ctx, *req.PublicBodyID)
		if err != nil {
			return err
		}
	}

	switch {
	case pb == nil:
		req.Status = models.StatusPublicBodyNeeded
	case !pb.Confirmed:
		req.Status = models.StatusAwaitingPublicBodyConfirmation
	default:
		req.Status = models.StatusAwaitingResponse
		l, err := s.store.GetLawByID(ctx, req.LawID)
		if err != nil {
			return err
		}
		due := law.DueDate(l, s.calendar, time.Now().UTC())
		req.DueDate = &due
	}

	if err := s.store.UpdateRequest(ctx, req); err != nil {
		return err
	}
	if req.Status == models.StatusAwaitingResponse {
		if err := s.releaseHeldLetter(ctx, req); err != nil {
			return err
		}
	}
	s.logger.Info().
		Str("request_id", req.ID.String()).
		Str("status", string(req.Status)).
		Msg("request released after user confirmation")
	return nil
}

// releaseHeldLetter dispatches the unsent opening letter, if any. A
// letter written before the public body was picked has no recipient
// yet and is addressed here.
func (s *Service) releaseHeldLetter(ctx context.Context, req *models.Request) error {
	msgs, err := s.store.ListMessagesByRequest(ctx, req.ID)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if msg.IsResponse || msg.Sent {
			continue
		}
		if msg.RecipientEmail == "" && req.PublicBodyID != nil {
			pb, err := s.store.GetPublicBodyByID(ctx, *req.PublicBodyID)
			if err != nil {
				return err
			}
			msg.RecipientPublicBodyID = &pb.ID
			msg.RecipientEmail = pb.Email
			if err := s.store.UpdateMessage(ctx, msg); err != nil {
				return err
			}
		}
		s.dispatch(ctx, req, msg, nil)
		return nil
	}
	return nil
}

// ConfirmPublicBody marks a suggested public body as vetted and
// releases requests held on its confirmation. Staff-only.
func (s *Service) ConfirmPublicBody(ctx context.Context, caller *models.User, publicBodyID uuid.UUID) error {
	if !caller.IsStaff() {
		return apperr.Forbidden("only staff may confirm public bodies")
	}
	if err := s.store.ConfirmPublicBody(ctx, publicBodyID); err != nil {
		return err
	}
	held, err := s.store.ListRequestsByPublicBodyAndStatus(ctx, publicBodyID, models.StatusAwaitingPublicBodyConfirmation)
	if err != nil {
		return err
	}
	for _, req := range held {
		l, err := s.store.GetLawByID(ctx, req.LawID)
		if err != nil {
			return err
		}
		due := law.DueDate(l, s.calendar, time.Now().UTC())
		req.DueDate = &due
		req.Status = models.StatusAwaitingResponse
		if err := s.store.UpdateRequest(ctx, req); err != nil {
			return err
		}
		if err := s.releaseHeldLetter(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// SendReply composes and dispatches a follow-up letter from the
// requester to the current public body.
func (s *Service) SendReply(ctx context.Context, requestID uuid.UUID, caller *models.User, subject, body string) (*models.Message, error) {
	req, err := s.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if caller.ID != req.UserID && !caller.IsStaff() {
		return nil, apperr.Forbidden("only the request owner or staff may send replies")
	}
	if req.PublicBodyID == nil {
		return nil, apperr.Validation("public_body", "request has no public body")
	}
	pb, err := s.store.GetPublicBodyByID(ctx, *req.PublicBodyID)
	if err != nil {
		return nil, err
	}
	l, err := s.store.GetLawByID(ctx, req.LawID)
	if err != nil {
		return nil, err
	}

	letter := law.ComposeLetter(l, body, law.LetterOptions{
		FullText: true,
		Name:     caller.FullName(),
	})
	msg := models.NewOutboundMessage(req.ID, caller.ID, models.EnsureSubjectMarker(subject, req.Number), letter)
	msg.SenderEmail = req.SecretAddress
	msg.RecipientPublicBodyID = &pb.ID
	msg.RecipientEmail = pb.Email

	if err := s.store.AppendMessage(ctx, msg, req); err != nil {
		return nil, err
	}
	s.dispatch(ctx, req, msg, nil)
	return msg, nil
}

// SetStatus applies an explicit status transition with its companion
// fields: resolution for resolved, a redirect target for
// request_redirected, optional costs.
func (s *Service) SetStatus(ctx context.Context, requestID uuid.UUID, caller *models.User, status models.Status, costs *float64, resolution models.Resolution, redirectTarget *uuid.UUID) (*models.Request, error) {
	req, err := s.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if caller.ID != req.UserID && !caller.IsStaff() {
		return nil, apperr.Forbidden("only the request owner or staff may set the status")
	}
	if !req.StatusSettable() {
		return nil, apperr.Conflict("status cannot be set in the request's current state")
	}
	if !status.Settable() {
		return nil, apperr.Validation("status", "not a settable status")
	}
	if costs != nil && *costs < 0 {
		return nil, apperr.Validation("costs", "costs must not be negative")
	}

	switch status {
	case models.StatusResolved:
		if resolution == "" {
			return nil, apperr.Validation("resolution", "resolution is required for resolved requests")
		}
		if !resolution.Valid() {
			return nil, apperr.Validation("resolution", "unknown resolution")
		}
		req.Status = models.StatusResolved
		req.Resolution = resolution
	case models.StatusRequestRedirected:
		return s.redirect(ctx, req, redirectTarget, costs)
	default:
		req.Status = status
		req.Resolution = ""
	}

	if costs != nil {
		req.Costs = *costs
	}
	if err := s.store.UpdateRequest(ctx, req); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("request_id", req.ID.String()).
		Str("status", string(req.Status)).
		Str("resolution", string(req.Resolution)).
		Msg("status set")
	return req, nil
}

// redirect hands the request to a new public body. The redirect is an
// event, not a resting state: the persisted status goes back to
// awaiting_response with a deadline computed from the redirect time.
func (s *Service) redirect(ctx context.Context, req *models.Request, target *uuid.UUID, costs *float64) (*models.Request, error) {
	if target == nil {
		return nil, apperr.Validation("redirect_target", "a redirect target public body is required")
	}
	pb, err := s.store.GetPublicBodyByID(ctx, *target)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.Validation("redirect_target", "public body does not exist")
		}
		return nil, err
	}

	previous := req.PublicBodyID
	req.PublicBodyID = &pb.ID
	req.Resolution = ""
	req.Status = models.StatusAwaitingResponse
	if costs != nil {
		req.Costs = *costs
	}

	l, err := s.store.GetLawByID(ctx, req.LawID)
	if err != nil {
		return nil, err
	}
	due := law.DueDate(l, s.calendar, time.Now().UTC())
	req.DueDate = &due

	if err := s.store.RedirectRequest(ctx, req, previous); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("request_id", req.ID.String()).
		Str("public_body_id", pb.ID.String()).
		Msg("request redirected")
	return req, nil
}

// SetLaw switches a request filed under a meta law to one of the
// concrete laws the meta law combines.
func (s *Service) SetLaw(ctx context.Context, requestID uuid.UUID, caller *models.User, lawID uuid.UUID) (*models.Request, error) {
	req, err := s.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if caller.ID != req.UserID && !caller.IsStaff() {
		return nil, apperr.Forbidden("only the request owner or staff may set the law")
	}
	current, err := s.store.GetLawByID(ctx, req.LawID)
	if err != nil {
		return nil, err
	}
	if !current.Meta {
		return nil, apperr.Conflict("the request's law is already concrete")
	}
	target, err := s.store.GetLawByID(ctx, lawID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.Validation("law", "law does not exist")
		}
		return nil, err
	}
	if !current.Combines(target.ID) {
		return nil, apperr.Validation("law", "law is not part of the request's meta law")
	}
	req.LawID = target.ID
	if err := s.store.UpdateRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// SuggestPublicBody records a public-body proposal for a request that
// has none yet. Any user may suggest; re-suggesting the same body is
// a conflict.
func (s *Service) SuggestPublicBody(ctx context.Context, requestID uuid.UUID, caller *models.User, publicBodyID uuid.UUID, reason string) (*models.PublicBodySuggestion, error) {
	req, err := s.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.PublicBodyID != nil {
		return nil, apperr.Conflict("request already has a public body")
	}
	if _, err := s.store.GetPublicBodyByID(ctx, publicBodyID); err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.Validation("public_body", "public body does not exist")
		}
		return nil, err
	}
	suggestion := &models.PublicBodySuggestion{
		RequestID:    req.ID,
		PublicBodyID: publicBodyID,
		UserID:       caller.ID,
		Reason:       reason,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateSuggestion(ctx, suggestion); err != nil {
		return nil, err
	}
	return suggestion, nil
}

// SetPublicBody resolves a public_body_needed request by picking its
// public body, adopting the body's default law and dispatching the
// held opening letter when the body is confirmed.
func (s *Service) SetPublicBody(ctx context.Context, requestID uuid.UUID, caller *models.User, publicBodyID uuid.UUID) (*models.Request, error) {
	req, err := s.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if caller.ID != req.UserID && !caller.IsStaff() {
		return nil, apperr.Forbidden("only the request owner or staff may set the public body")
	}
	if req.PublicBodyID != nil {
		return nil, apperr.Conflict("request already has a public body")
	}
	pb, err := s.store.GetPublicBodyByID(ctx, publicBodyID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.Validation("public_body", "public body does not exist")
		}
		return nil, err
	}

	req.PublicBodyID = &pb.ID
	req.LawID = pb.DefaultLawID
	if pb.Confirmed {
		req.Status = models.StatusAwaitingResponse
		l, err := s.store.GetLawByID(ctx, req.LawID)
		if err != nil {
			return nil, err
		}
		due := law.DueDate(l, s.calendar, time.Now().UTC())
		req.DueDate = &due
	} else {
		req.Status = models.StatusAwaitingPublicBodyConfirmation
	}

	// RedirectRequest moves the per-body counters; there is no previous
	// body here.
	if err := s.store.RedirectRequest(ctx, req, nil); err != nil {
		return nil, err
	}
	if req.Status == models.StatusAwaitingResponse {
		if err := s.releaseHeldLetter(ctx, req); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// Escalate sends the request with its approved correspondence to the
// law's mediator. Requires a configured mediator and a public body.
func (s *Service) Escalate(ctx context.Context, requestID uuid.UUID, caller *models.User, subject, body string) (*models.Message, error) {
	req, err := s.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if caller.ID != req.UserID && !caller.IsStaff() {
		return nil, apperr.Forbidden("only the request owner or staff may escalate")
	}
	l, err := s.store.GetLawByID(ctx, req.LawID)
	if err != nil {
		return nil, err
	}
	if !l.HasMediator() {
		return nil, apperr.Conflict("no mediator is configured for this law")
	}
	if req.PublicBodyID == nil {
		return nil, apperr.Conflict("request has no public body to escalate about")
	}
	mediator, err := s.store.GetPublicBodyByID(ctx, *l.MediatorID)
	if err != nil {
		return nil, err
	}

	archive, err := s.packageRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	letter := law.ComposeLetter(l, body, law.LetterOptions{
		FullText: true,
		Name:     caller.FullName(),
	})
	msg := models.NewOutboundMessage(req.ID, caller.ID, models.EnsureSubjectMarker(subject, req.Number), letter)
	msg.SenderEmail = req.SecretAddress
	msg.RecipientPublicBodyID = &mediator.ID
	msg.RecipientEmail = mediator.Email

	name := packaging.ArchiveName(req)
	att := models.NewAttachment(msg.ID, name, "application/zip", int64(len(archive)))
	att.Approved = true
	att.StorageKey = fmt.Sprintf("attachments/%s/%s", msg.ID, name)
	if _, err := s.blobs.Put(ctx, att.StorageKey, archive, "application/zip"); err != nil {
		return nil, fmt.Errorf("store escalation archive: %w", err)
	}
	if err := s.store.AppendMessageWithAttachments(ctx, msg, req, []*models.Attachment{att}); err != nil {
		return nil, err
	}

	s.dispatch(ctx, req, msg, []mail.File{{Name: name, ContentType: "application/zip", Data: archive}})
	s.metrics.IncEscalations()
	s.logger.Info().
		Str("request_id", req.ID.String()).
		Str("mediator_id", mediator.ID.String()).
		Msg("request escalated")
	return msg, nil
}

// Package serializes the request's approved correspondence into the
// export archive.
func (s *Service) Package(ctx context.Context, requestID uuid.UUID) ([]byte, error) {
	req, err := s.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return s.packageRequest(ctx, req)
}

func (s *Service) packageRequest(ctx context.Context, req *models.Request) ([]byte, error) {
	msgs, err := s.store.ListMessagesByRequest(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	atts := make(map[uuid.UUID][]*models.Attachment, len(msgs))
	for _, msg := range msgs {
		list, err := s.store.ListAttachmentsByMessage(ctx, msg.ID)
		if err != nil {
			return nil, err
		}
		atts[msg.ID] = list
	}
	return packaging.Build(ctx, req, msgs, atts, s.blobs)
}

// MakeSameRequest files the same inquiry again under a new user,
// starting from a template reply of someone else's request. The new
// request points at the canonical root of the same-as chain and runs
// through the regular submission plumbing, throttle included.
func (s *Service) MakeSameRequest(ctx context.Context, templateMessageID uuid.UUID, caller *models.User) (*models.Request, error) {
	template, err := s.store.GetMessageByID(ctx, templateMessageID)
	if err != nil {
		return nil, err
	}
	orig, err := s.store.GetRequestByID(ctx, template.RequestID)
	if err != nil {
		return nil, err
	}
	if !template.NotPublishable {
		return nil, apperr.Conflict("the original request is public; reference it instead of duplicating")
	}
	if orig.UserID == caller.ID {
		return nil, apperr.Conflict("you already own the original request")
	}

	root := orig
	for root.SameAsID != nil {
		root, err = s.store.GetRequestByID(ctx, *root.SameAsID)
		if err != nil {
			return nil, err
		}
	}

	var pb *models.PublicBody
	if root.PublicBodyID != nil {
		pb, err = s.store.GetPublicBodyByID(ctx, *root.PublicBodyID)
		if err != nil {
			return nil, err
		}
	}
	l, err := s.store.GetLawByID(ctx, root.LawID)
	if err != nil {
		return nil, err
	}

	req := models.NewRequest(caller.ID, root.LawID, root.PublicBodyID, root.Title, root.Description)
	req.SameAsID = &root.ID
	req.Status, req.Visibility = initialState(caller, pb, root.Public())
	req.SecretAddress, err = s.newSecretAddress()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if req.Status == models.StatusAwaitingResponse {
		due := law.DueDate(l, s.calendar, now)
		req.DueDate = &due
	}

	letter := law.ComposeLetter(l, root.Description, law.LetterOptions{
		Name:         caller.FullName(),
		Organization: caller.Organization,
		Address:      caller.Address,
	})
	first := models.NewOutboundMessage(req.ID, caller.ID, req.Title, letter)
	first.SenderEmail = req.SecretAddress
	if pb != nil {
		first.RecipientPublicBodyID = &pb.ID
		first.RecipientEmail = pb.Email
	}
	req.FirstMessageAt = &now
	req.LastMessageAt = &now

	if err := s.createThrottled(ctx, req, first); err != nil {
		return nil, err
	}
	s.metrics.IncRequestsCreated()

	if req.Status == models.StatusAwaitingResponse {
		s.dispatch(ctx, req, first, nil)
	}
	s.logger.Info().
		Str("request_id", req.ID.String()).
		Str("same_as_id", root.ID.String()).
		Msg("same-as request created")
	return req, nil
}

// IdenticalCount returns how many requests point at the canonical
// root of the given request's same-as chain.
func (s *Service) IdenticalCount(ctx context.Context, requestID uuid.UUID) (int, error) {
	req, err := s.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return 0, err
	}
	root := req
	for root.SameAsID != nil {
		root, err = s.store.GetRequestByID(ctx, *root.SameAsID)
		if err != nil {
			return 0, err
		}
	}
	return s.store.IdenticalCount(ctx, root.ID)
}

// ExtendDeadline adds months to the current due date by re-running
// the law's formula anchored there. Staff-only.
func (s *Service) ExtendDeadline(ctx context.Context, requestID uuid.UUID, caller *models.User, months int) (*models.Request, error) {
	req, err := s.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !caller.IsStaff() {
		return nil, apperr.Forbidden("only staff may extend deadlines")
	}
	if months <= 0 {
		return nil, apperr.Validation("months", "months must be a positive integer")
	}
	if req.DueDate == nil {
		return nil, apperr.Conflict("request has no deadline to extend")
	}
	l, err := s.store.GetLawByID(ctx, req.LawID)
	if err != nil {
		return nil, err
	}
	due := law.ExtendDueDate(l, s.calendar, *req.DueDate, months)
	req.DueDate = &due
	if err := s.store.UpdateRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// SetTags replaces a request's tag list. Staff-only. Tags are comma
// separated; quoted substrings keep internal commas; duplicates are
// dropped case-insensitively.
func (s *Service) SetTags(ctx context.Context, requestID uuid.UUID, caller *models.User, tagList string) (*models.Request, error) {
	req, err := s.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !caller.IsStaff() {
		return nil, apperr.Forbidden("only staff may tag requests")
	}
	tags := ParseTags(tagList)
	if err := s.store.SetRequestTags(ctx, req.ID, tags); err != nil {
		return nil, err
	}
	req.Tags = tags
	return req, nil
}

// SetSummary records the outcome summary. Only permitted once the
// request is resolved with a recorded resolution.
func (s *Service) SetSummary(ctx context.Context, requestID uuid.UUID, caller *models.User, summary string) (*models.Request, error) {
	req, err := s.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if caller.ID != req.UserID && !caller.IsStaff() {
		return nil, apperr.Forbidden("only the request owner or staff may set the summary")
	}
	if !req.SummarySettable() {
		return nil, apperr.Conflict("summary can only be set on resolved requests")
	}
	req.Summary = summary
	if err := s.store.UpdateRequest(ctx, req); err != nil {
		return nil, err
	}
	if err := s.indexer.IndexRequest(ctx, req.ID); err != nil {
		s.logger.Warn().Err(err).Str("request_id", req.ID.String()).Msg("search indexing failed")
	}
	return req, nil
}

// MarkNotFOI flags a request as not a genuine FOI request, removing
// it from public listings. Staff-only, terminal.
func (s *Service) MarkNotFOI(ctx context.Context, requestID uuid.UUID, caller *models.User) (*models.Request, error) {
	req, err := s.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !caller.IsStaff() {
		return nil, apperr.Forbidden("only staff may mark requests as not FOI")
	}
	req.IsFOI = false
	req.Status = models.StatusNotFOI
	if err := s.store.UpdateRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// MarkChecked records that a moderator reviewed the request.
// Staff-only.
func (s *Service) MarkChecked(ctx context.Context, requestID uuid.UUID, caller *models.User) (*models.Request, error) {
	req, err := s.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !caller.IsStaff() {
		return nil, apperr.Forbidden("only staff may mark requests as checked")
	}
	req.Checked = true
	if err := s.store.UpdateRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// MakePublic lists the request publicly.
func (s *Service) MakePublic(ctx context.Context, requestID uuid.UUID, caller *models.User) (*models.Request, error) {
	req, err := s.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if caller.ID != req.UserID && !caller.IsStaff() {
		return nil, apperr.Forbidden("only the request owner or staff may publish the request")
	}
	if !models.ValidCombination(req.Status, models.VisibilityPublic) {
		return nil, apperr.Conflict("request cannot be public in its current state")
	}
	req.Visibility = models.VisibilityPublic
	if err := s.store.UpdateRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// ApproveAttachment makes an attachment publicly visible. Forbidden
// for third parties; a redaction-locked attachment cannot be
// approved.
func (s *Service) ApproveAttachment(ctx context.Context, attachmentID uuid.UUID, caller *models.User) (*models.Attachment, error) {
	att, err := s.store.GetAttachmentByID(ctx, attachmentID)
	if err != nil {
		return nil, err
	}
	msg, err := s.store.GetMessageByID(ctx, att.MessageID)
	if err != nil {
		return nil, err
	}
	req, err := s.store.GetRequestByID(ctx, msg.RequestID)
	if err != nil {
		return nil, err
	}
	if caller.ID != req.UserID && !caller.IsStaff() {
		return nil, apperr.Forbidden("only the request owner or staff may approve attachments")
	}
	if !att.CanApprove {
		return nil, apperr.Conflict("attachment is redaction-locked and cannot be approved")
	}
	if att.Approved {
		return att, nil
	}
	att.Approved = true
	if err := s.store.UpdateAttachment(ctx, att); err != nil {
		return nil, err
	}
	return att, nil
}

// ResendMessage dispatches an outbound message that never got sent.
// Staff-only.
func (s *Service) ResendMessage(ctx context.Context, messageID uuid.UUID, caller *models.User) (*models.Message, error) {
	msg, err := s.store.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !caller.IsStaff() {
		return nil, apperr.Forbidden("only staff may resend messages")
	}
	if msg.IsResponse {
		return nil, apperr.Conflict("inbound messages cannot be resent")
	}
	if msg.Sent {
		return nil, apperr.Conflict("message was already delivered")
	}
	req, err := s.store.GetRequestByID(ctx, msg.RequestID)
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, req, msg, nil)
	if !msg.Sent {
		return nil, fmt.Errorf("transport rejected the message")
	}
	return msg, nil
}

// dispatch hands an outbound message to the transport and marks it
// sent on acceptance. The lifecycle state is already committed;
// transport rejection leaves the message unsent for a later resend.
func (s *Service) dispatch(ctx context.Context, req *models.Request, msg *models.Message, files []mail.File) {
	if s.transport == nil || msg.RecipientEmail == "" {
		return
	}
	out := mail.Outbound{
		From:        s.cfg.From,
		To:          []mail.Address{{Email: msg.RecipientEmail}},
		ReplyTo:     req.SecretAddress,
		Subject:     msg.Subject,
		Body:        msg.Plaintext,
		Attachments: files,
	}
	if err := s.transport.Send(ctx, out); err != nil {
		s.logger.Error().Err(err).
			Str("request_id", req.ID.String()).
			Str("message_id", msg.ID.String()).
			Msg("outbound dispatch failed")
		return
	}
	msg.Sent = true
	if err := s.store.UpdateMessage(ctx, msg); err != nil {
		s.logger.Error().Err(err).Str("message_id", msg.ID.String()).Msg("mark message sent failed")
	}
}

// newSecretAddress mints the private correspondence address replies
// must target.
func (s *Service) newSecretAddress() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret address: %w", err)
	}
	return fmt.Sprintf("request.%s@%s", hex.EncodeToString(buf), s.cfg.SecretDomain), nil
}
