package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Jurisdiction is a legal territory (federal, state, municipal).
type Jurisdiction struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// PublicBody is a government entity that receives FOI requests.
type PublicBody struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	Email          string    `json:"email"`
	URL            string    `json:"url,omitempty"`
	// OtherEmails are additional known contact addresses used for
	// inbound sender resolution.
	OtherEmails    []string  `json:"other_emails,omitempty"`
	JurisdictionID uuid.UUID `json:"jurisdiction_id"`
	DefaultLawID   uuid.UUID `json:"default_law_id"`
	// Confirmed is false for bodies suggested by users and not yet
	// vetted by staff. Requests to unconfirmed bodies are held.
	Confirmed        bool      `json:"confirmed"`
	NumberOfRequests int       `json:"number_of_requests"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewPublicBody creates a confirmed public body.
func NewPublicBody(name, email string, jurisdictionID, defaultLawID uuid.UUID) *PublicBody {
	now := time.Now().UTC()
	return &PublicBody{
		ID:             uuid.New(),
		Name:           name,
		Slug:           Slugify(name),
		Email:          email,
		JurisdictionID: jurisdictionID,
		DefaultLawID:   defaultLawID,
		Confirmed:      true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// PublicBodySuggestion is a user's proposal for which body should
// receive a request that was submitted without one.
type PublicBodySuggestion struct {
	RequestID    uuid.UUID `json:"request_id"`
	PublicBodyID uuid.UUID `json:"public_body_id"`
	UserID       uuid.UUID `json:"user_id"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// MatchesAddress reports whether the given email address belongs to
// this public body, either exactly or by domain.
func (pb *PublicBody) MatchesAddress(addr string) bool {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return false
	}
	if strings.EqualFold(pb.Email, addr) {
		return true
	}
	for _, other := range pb.OtherEmails {
		if strings.EqualFold(other, addr) {
			return true
		}
	}
	return pb.MatchesDomain(addr)
}

// MatchesDomain reports whether the address shares the public body's
// mail domain.
func (pb *PublicBody) MatchesDomain(addr string) bool {
	domain := addressDomain(pb.Email)
	if domain == "" {
		return false
	}
	return addressDomain(addr) == domain
}

func addressDomain(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at < 0 || at == len(addr)-1 {
		return ""
	}
	return strings.ToLower(addr[at+1:])
}
