package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is one piece of correspondence in a request's thread.
type Message struct {
	ID        uuid.UUID `json:"id"`
	RequestID uuid.UUID `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
	Plaintext string    `json:"plaintext"`
	// PlaintextRedacted is the derived variant with boilerplate and
	// signature lines stripped for public display.
	PlaintextRedacted string `json:"plaintext_redacted"`
	// IsResponse marks inbound correspondence from a public body.
	IsResponse bool `json:"is_response"`
	// Postal marks manually recorded letter mail.
	Postal bool `json:"postal"`
	// Sent is set once the transport confirmed delivery. It is always
	// true for inbound and postal messages.
	Sent bool `json:"sent"`
	// ContentHidden withholds the body pending moderator approval.
	ContentHidden bool `json:"content_hidden"`
	// NotPublishable marks template/duplicate-use content that must
	// not be displayed publicly.
	NotPublishable bool `json:"not_publishable"`

	SenderUserID          *uuid.UUID `json:"sender_user_id,omitempty"`
	SenderPublicBodyID    *uuid.UUID `json:"sender_public_body_id,omitempty"`
	RecipientPublicBodyID *uuid.UUID `json:"recipient_public_body_id,omitempty"`
	SenderName            string     `json:"sender_name,omitempty"`
	SenderEmail           string     `json:"sender_email,omitempty"`
	RecipientEmail        string     `json:"recipient_email,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewOutboundMessage creates an unsent message from the requester to a
// public body.
func NewOutboundMessage(requestID uuid.UUID, senderUserID uuid.UUID, subject, plaintext string) *Message {
	now := time.Now().UTC()
	return &Message{
		ID:           uuid.New(),
		RequestID:    requestID,
		Timestamp:    now,
		Subject:      subject,
		Plaintext:    plaintext,
		SenderUserID: &senderUserID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewInboundMessage creates a delivered response message.
func NewInboundMessage(requestID uuid.UUID, timestamp time.Time, subject, plaintext string) *Message {
	now := time.Now().UTC()
	return &Message{
		ID:         uuid.New(),
		RequestID:  requestID,
		Timestamp:  timestamp.UTC(),
		Subject:    subject,
		Plaintext:  plaintext,
		IsResponse: true,
		Sent:       true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewPostalMessage creates a manually recorded postal reply.
func NewPostalMessage(requestID uuid.UUID, timestamp time.Time, senderName, plaintext string) *Message {
	m := NewInboundMessage(requestID, timestamp, "", plaintext)
	m.Postal = true
	m.SenderName = senderName
	return m
}

// EnsureSubjectMarker returns the subject carrying exactly one
// canonical marker for the given request number, regardless of how
// many markers the input accumulated through replies or template
// reuse.
func EnsureSubjectMarker(subject string, number int64) string {
	marker := fmt.Sprintf("[#%d]", number)
	cleaned := strings.ReplaceAll(subject, marker, "")
	cleaned = strings.TrimSpace(collapseSpaces(cleaned))
	if cleaned == "" {
		return marker
	}
	return cleaned + " " + marker
}

// CountSubjectMarkers counts occurrences of the request's marker in a
// subject line.
func CountSubjectMarkers(subject string, number int64) int {
	return strings.Count(subject, fmt.Sprintf("[#%d]", number))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
