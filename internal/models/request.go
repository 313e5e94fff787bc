package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is a request's position in the FOI lifecycle.
type Status string

const (
	// StatusAwaitingUserConfirmation holds the request until the
	// requester confirms their email address.
	StatusAwaitingUserConfirmation Status = "awaiting_user_confirmation"
	// StatusAwaitingPublicBodyConfirmation holds the request until
	// staff confirm the addressed public body.
	StatusAwaitingPublicBodyConfirmation Status = "awaiting_publicbody_confirmation"
	// StatusAwaitingResponse means the request letter went out and no
	// reply has arrived yet.
	StatusAwaitingResponse Status = "awaiting_response"
	// StatusAwaitingClassification means a reply arrived and the owner
	// or staff must classify the outcome.
	StatusAwaitingClassification Status = "awaiting_classification"
	// StatusPublicBodyNeeded means the request has no public body yet.
	StatusPublicBodyNeeded Status = "public_body_needed"
	// StatusResolved is terminal; Resolution records the outcome.
	StatusResolved Status = "resolved"
	// StatusRequestRedirected records that the public body forwarded
	// the request elsewhere.
	StatusRequestRedirected Status = "request_redirected"
	// StatusNotFOI is the terminal moderator override for requests
	// that are not genuine FOI requests.
	StatusNotFOI Status = "not_foi"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAwaitingUserConfirmation, StatusAwaitingPublicBodyConfirmation,
		StatusAwaitingResponse, StatusAwaitingClassification,
		StatusPublicBodyNeeded, StatusResolved, StatusRequestRedirected,
		StatusNotFOI:
		return true
	}
	return false
}

// Settable reports whether s may be the target of an explicit
// set-status action. Confirmation and moderator states are only ever
// entered by their own events.
func (s Status) Settable() bool {
	switch s {
	case StatusAwaitingResponse, StatusAwaitingClassification,
		StatusResolved, StatusRequestRedirected:
		return true
	}
	return false
}

// Terminal reports whether s ends the lifecycle.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusNotFOI
}

// Visibility controls who can see a request. It is independent of
// Status; ValidCombination rejects the pairs that must not occur.
type Visibility string

const (
	// VisibilityInvisible hides the request from everyone, including
	// the requester (unconfirmed account).
	VisibilityInvisible Visibility = "invisible"
	// VisibilityUser shows the request to its owner only.
	VisibilityUser Visibility = "user"
	// VisibilityPending is public intent awaiting confirmation.
	VisibilityPending Visibility = "pending"
	// VisibilityPublic lists the request publicly.
	VisibilityPublic Visibility = "public"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityInvisible, VisibilityUser, VisibilityPending, VisibilityPublic:
		return true
	}
	return false
}

// ValidCombination reports whether a status/visibility pair is
// representable. An unconfirmed request can never be public, and a
// live request can never be invisible.
func ValidCombination(s Status, v Visibility) bool {
	if !s.Valid() || !v.Valid() {
		return false
	}
	switch s {
	case StatusAwaitingUserConfirmation:
		return v == VisibilityInvisible || v == VisibilityPending
	default:
		return v != VisibilityInvisible
	}
}

// Resolution records how a resolved request ended.
type Resolution string

const (
	ResolutionSuccessful          Resolution = "successful"
	ResolutionPartiallySuccessful Resolution = "partially_successful"
	ResolutionRefused             Resolution = "refused"
	ResolutionUserWithdrewCosts   Resolution = "user_withdrew_costs"
	ResolutionUserWithdrew        Resolution = "user_withdrew"
)

// Valid reports whether r is a known resolution.
func (r Resolution) Valid() bool {
	switch r {
	case ResolutionSuccessful, ResolutionPartiallySuccessful,
		ResolutionRefused, ResolutionUserWithdrewCosts, ResolutionUserWithdrew:
		return true
	}
	return false
}

// Request is one FOI request and the anchor of its message thread.
type Request struct {
	ID uuid.UUID `json:"id"`
	// Number is a human-readable sequence assigned by the store. It is
	// used in the subject marker and the slug, and is stable for the
	// lifetime of the request.
	Number      int64      `json:"number"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Summary     string     `json:"summary,omitempty"`
	Status      Status     `json:"status"`
	Visibility  Visibility `json:"visibility"`
	Resolution  Resolution `json:"resolution,omitempty"`
	Costs       float64    `json:"costs"`
	// IsFOI is false when a moderator flagged the request as not a
	// genuine FOI request; such requests stay out of public listings.
	IsFOI   bool `json:"is_foi"`
	Checked bool `json:"checked"`
	UserID  uuid.UUID  `json:"user_id"`
	PublicBodyID *uuid.UUID `json:"public_body_id,omitempty"`
	LawID        uuid.UUID  `json:"law_id"`
	// SameAsID points at the canonical root of a duplicate chain.
	SameAsID *uuid.UUID `json:"same_as_id,omitempty"`
	// SecretAddress is the private correspondence address replies must
	// be sent to.
	SecretAddress  string     `json:"secret_address"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	FirstMessageAt *time.Time `json:"first_message_at,omitempty"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewRequest creates a request in its pre-submission state. Status,
// visibility, number, slug and secret address are assigned during
// submission.
func NewRequest(userID, lawID uuid.UUID, publicBodyID *uuid.UUID, title, description string) *Request {
	now := time.Now().UTC()
	return &Request{
		ID:           uuid.New(),
		Title:        title,
		Description:  description,
		Status:       StatusPublicBodyNeeded,
		Visibility:   VisibilityUser,
		IsFOI:        true,
		UserID:       userID,
		PublicBodyID: publicBodyID,
		LawID:        lawID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Public reports whether the request is publicly listed. A request
// flagged not-FOI never appears in public listings.
func (r *Request) Public() bool {
	return r.Visibility == VisibilityPublic && r.IsFOI
}

// AwaitsClassification reports whether a reply is waiting for the
// owner to classify the outcome.
func (r *Request) AwaitsClassification() bool {
	return r.Status == StatusAwaitingClassification
}

// StatusSettable reports whether an explicit set-status action is
// currently permitted. It requires at least one response on record.
func (r *Request) StatusSettable() bool {
	switch r.Status {
	case StatusAwaitingUserConfirmation, StatusAwaitingPublicBodyConfirmation,
		StatusPublicBodyNeeded, StatusNotFOI:
		return false
	}
	return true
}

// SummarySettable reports whether the request is in a state where a
// summary of the outcome makes sense.
func (r *Request) SummarySettable() bool {
	return r.Status == StatusResolved && r.Resolution != ""
}

// Overdue reports whether the legal response deadline has passed.
func (r *Request) Overdue(now time.Time) bool {
	return r.DueDate != nil && now.After(*r.DueDate) &&
		(r.Status == StatusAwaitingResponse || r.Status == StatusAwaitingClassification)
}

// Marker returns the canonical subject marker for this request.
func (r *Request) Marker() string {
	return fmt.Sprintf("[#%d]", r.Number)
}

// AssignSlug derives the stable slug from the title and number. It is
// a no-op once a slug has been assigned.
func (r *Request) AssignSlug() {
	if r.Slug != "" {
		return
	}
	r.Slug = fmt.Sprintf("%s-%d", Slugify(r.Title), r.Number)
}
