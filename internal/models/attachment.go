package models

import (
	"time"

	"github.com/google/uuid"
)

// Attachment is a file belonging to a message, typically a scanned
// postal document.
type Attachment struct {
	ID          uuid.UUID `json:"id"`
	MessageID   uuid.UUID `json:"message_id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	// Approved makes the attachment publicly visible and includes it
	// in packaged exports.
	Approved bool `json:"approved"`
	// CanApprove is cleared once the attachment is permanently
	// redaction-locked; approval is then no longer permitted.
	CanApprove bool `json:"can_approve"`
	// StorageKey locates the bytes in the blob store.
	StorageKey string    `json:"storage_key"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewAttachment creates an unapproved attachment record.
func NewAttachment(messageID uuid.UUID, name, contentType string, size int64) *Attachment {
	now := time.Now().UTC()
	return &Attachment{
		ID:          uuid.New(),
		MessageID:   messageID,
		Name:        name,
		Size:        size,
		ContentType: contentType,
		Approved:    false,
		CanApprove:  true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
