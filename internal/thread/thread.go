// Package thread classifies and files correspondence: inbound email,
// postal replies, attachments and the moderation actions on them.
package thread

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfoi/foiportal/internal/apperr"
	"github.com/openfoi/foiportal/internal/mail"
	"github.com/openfoi/foiportal/internal/metrics"
	"github.com/openfoi/foiportal/internal/models"
	"github.com/openfoi/foiportal/internal/redact"
	"github.com/openfoi/foiportal/internal/storage"
)

// Store is the persistence surface the thread service needs. Message
// and attachment rows land in one transaction, so a reply is either
// fully filed or not at all.
type Store interface {
	GetRequestByID(ctx context.Context, id uuid.UUID) (*models.Request, error)
	GetRequestBySecretAddress(ctx context.Context, addr string) (*models.Request, error)
	AppendMessageWithAttachments(ctx context.Context, msg *models.Message, r *models.Request, atts []*models.Attachment) error
	GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ListMessagesByRequest(ctx context.Context, requestID uuid.UUID) ([]*models.Message, error)
	UpdateMessage(ctx context.Context, msg *models.Message) error
	GetLawByID(ctx context.Context, id uuid.UUID) (*models.Law, error)
	GetPublicBodyByID(ctx context.Context, id uuid.UUID) (*models.PublicBody, error)
	FindPublicBodyByEmail(ctx context.Context, addr string) (*models.PublicBody, error)
	UpsertAttachments(ctx context.Context, atts []*models.Attachment) error
}

// Service files correspondence into request threads.
type Service struct {
	store   Store
	blobs   storage.BlobStore
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewService creates a thread service.
func NewService(store Store, blobs storage.BlobStore, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		store:   store,
		blobs:   blobs,
		metrics: m,
		logger:  logger.With().Str("component", "thread").Logger(),
	}
}

// RecordInbound classifies a raw inbound envelope and appends it to
// the request owning the addressed secret address. The sender public
// body is resolved best-effort by contact address, then mail domain;
// an unresolved sender stays empty pending manual assignment. A reply
// from the law's mediator is hidden until a moderator approves it.
func (s *Service) RecordInbound(ctx context.Context, env *mail.Envelope) (*models.Message, error) {
	if env == nil || len(env.To) == 0 && len(env.CC) == 0 {
		return nil, apperr.Validation("envelope", "no recipients")
	}

	req, err := s.resolveRecipient(ctx, env)
	if err != nil {
		return nil, err
	}

	ts := env.Date
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	msg := models.NewInboundMessage(req.ID, ts, models.EnsureSubjectMarker(env.Subject, req.Number), env.Body)
	msg.SenderName = env.From.Name
	msg.SenderEmail = env.From.Email

	law, err := s.store.GetLawByID(ctx, req.LawID)
	if err != nil {
		return nil, err
	}

	if pb, err := s.store.FindPublicBodyByEmail(ctx, env.From.Email); err == nil {
		msg.SenderPublicBodyID = &pb.ID
		if law.MediatorID != nil && pb.ID == *law.MediatorID {
			msg.ContentHidden = true
		}
	} else if !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}

	msg.PlaintextRedacted = s.redactBody(law, msg.Plaintext)

	atts, err := s.prepareFiles(ctx, msg.ID, env.Attachments)
	if err != nil {
		return nil, err
	}

	if req.Status == models.StatusAwaitingResponse {
		req.Status = models.StatusAwaitingClassification
	}
	if err := s.store.AppendMessageWithAttachments(ctx, msg, req, atts); err != nil {
		return nil, err
	}

	s.metrics.IncMessagesReceived()
	s.logger.Info().
		Str("request_id", req.ID.String()).
		Str("message_id", msg.ID.String()).
		Bool("content_hidden", msg.ContentHidden).
		Msg("inbound message recorded")
	return msg, nil
}

func (s *Service) resolveRecipient(ctx context.Context, env *mail.Envelope) (*models.Request, error) {
	for _, a := range append(append([]mail.Address{}, env.To...), env.CC...) {
		req, err := s.store.GetRequestBySecretAddress(ctx, a.Email)
		if err == nil {
			return req, nil
		}
		if !apperr.IsKind(err, apperr.KindNotFound) {
			return nil, err
		}
	}
	return nil, apperr.Validation("to", "no recipient matches a known request address")
}

// RecordPostalReply files a manually entered letter. The request must
// have a public body, the date must parse and must not lie in the
// future; a date before the request's first message is clamped to the
// first message timestamp so the thread order is preserved.
func (s *Service) RecordPostalReply(ctx context.Context, requestID uuid.UUID, caller *models.User, senderName string, date time.Time, body string, files []mail.File) (*models.Message, error) {
	req, err := s.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !caller.IsStaff() && caller.ID != req.UserID {
		return nil, apperr.Forbidden("only the request owner or staff may record postal replies")
	}
	if req.PublicBodyID == nil {
		return nil, apperr.Validation("public_body", "request has no public body")
	}
	if date.IsZero() {
		return nil, apperr.Validation("date", "date is missing or unparseable")
	}
	now := time.Now().UTC()
	if date.After(now) {
		return nil, apperr.Validation("date", "reply date is in the future")
	}
	if req.FirstMessageAt != nil && date.Before(*req.FirstMessageAt) {
		date = *req.FirstMessageAt
	}

	pb, err := s.store.GetPublicBodyByID(ctx, *req.PublicBodyID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.Validation("public_body", "sender public body cannot be resolved")
		}
		return nil, err
	}

	msg := models.NewPostalMessage(req.ID, date, senderName, body)
	msg.SenderPublicBodyID = &pb.ID

	law, err := s.store.GetLawByID(ctx, req.LawID)
	if err != nil {
		return nil, err
	}
	msg.PlaintextRedacted = s.redactBody(law, msg.Plaintext)

	atts, err := s.prepareFiles(ctx, msg.ID, files)
	if err != nil {
		return nil, err
	}

	if req.Status == models.StatusAwaitingResponse {
		req.Status = models.StatusAwaitingClassification
	}
	if err := s.store.AppendMessageWithAttachments(ctx, msg, req, atts); err != nil {
		return nil, err
	}

	s.metrics.IncMessagesReceived()
	s.logger.Info().
		Str("request_id", req.ID.String()).
		Str("message_id", msg.ID.String()).
		Msg("postal reply recorded")
	return msg, nil
}

// UploadAttachments adds files to an existing message. Re-uploading a
// name that already exists under the message replaces the stored
// bytes instead of duplicating the record.
func (s *Service) UploadAttachments(ctx context.Context, requestID, messageID uuid.UUID, caller *models.User, files []mail.File) ([]*models.Attachment, error) {
	req, err := s.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	msg, err := s.store.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.RequestID != req.ID {
		return nil, apperr.NotFound("message")
	}
	if !caller.IsStaff() && caller.ID != req.UserID {
		return nil, apperr.Forbidden("only the request owner or staff may upload attachments")
	}
	if len(files) == 0 {
		return nil, apperr.Validation("files", "no files supplied")
	}

	atts, err := s.prepareFiles(ctx, msg.ID, files)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpsertAttachments(ctx, atts); err != nil {
		return nil, err
	}
	return atts, nil
}

// SetMessageSender reassigns a message's attributed public body.
// Staff-only, and only inbound messages may be reassigned; the
// original request letter keeps its recipient.
func (s *Service) SetMessageSender(ctx context.Context, messageID uuid.UUID, caller *models.User, publicBodyID uuid.UUID) (*models.Message, error) {
	msg, err := s.store.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !caller.IsStaff() {
		return nil, apperr.Forbidden("only staff may reassign a message sender")
	}
	if !msg.IsResponse {
		return nil, apperr.Conflict("sender of an outbound message cannot be reassigned")
	}
	pb, err := s.store.GetPublicBodyByID(ctx, publicBodyID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.Validation("public_body", "public body does not exist")
		}
		return nil, err
	}
	msg.SenderPublicBodyID = &pb.ID
	if err := s.store.UpdateMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ApproveMessageContent clears a message's content_hidden flag.
// Staff-only.
func (s *Service) ApproveMessageContent(ctx context.Context, messageID uuid.UUID, caller *models.User) (*models.Message, error) {
	msg, err := s.store.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !caller.IsStaff() {
		return nil, apperr.Forbidden("only staff may approve message content")
	}
	if !msg.ContentHidden {
		return msg, nil
	}
	msg.ContentHidden = false
	if err := s.store.UpdateMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.logger.Info().Str("message_id", msg.ID.String()).Msg("message content approved")
	return msg, nil
}

// prepareFiles writes the blob bytes and builds the attachment
// records. Bytes go out before any row is inserted; keys are derived
// from message ID and file name, so a retry overwrites rather than
// orphans them.
func (s *Service) prepareFiles(ctx context.Context, msgID uuid.UUID, files []mail.File) ([]*models.Attachment, error) {
	atts := make([]*models.Attachment, 0, len(files))
	for _, f := range files {
		att := models.NewAttachment(msgID, f.Name, f.ContentType, int64(len(f.Data)))
		att.StorageKey = fmt.Sprintf("attachments/%s/%s", msgID, f.Name)
		size, err := s.blobs.Put(ctx, att.StorageKey, f.Data, f.ContentType)
		if err != nil {
			return nil, fmt.Errorf("store attachment bytes: %w", err)
		}
		att.Size = size
		atts = append(atts, att)
	}
	return atts, nil
}

func (s *Service) redactBody(law *models.Law, text string) string {
	cfg := redact.Config{
		Boilerplate: []string{law.LetterStart, law.LetterEnd},
		Closings:    redact.DefaultClosings(),
		Greetings:   redact.DefaultGreetings(),
	}
	return redact.Redact(cfg, text)
}
