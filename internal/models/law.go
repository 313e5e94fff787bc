package models

import (
	"time"

	"github.com/google/uuid"
)

// DeadlineUnit is the unit a law's response deadline is expressed in.
type DeadlineUnit string

const (
	DeadlineCalendarDays   DeadlineUnit = "calendar_days"
	DeadlineBusinessDays   DeadlineUnit = "business_days"
	DeadlineCalendarMonths DeadlineUnit = "calendar_months"
)

// Valid reports whether the unit is a known deadline unit.
func (u DeadlineUnit) Valid() bool {
	switch u {
	case DeadlineCalendarDays, DeadlineBusinessDays, DeadlineCalendarMonths:
		return true
	}
	return false
}

// Law is the legal basis a request is filed under. A meta law is a
// jurisdiction-wide composite that aggregates concrete laws.
type Law struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	JurisdictionID uuid.UUID `json:"jurisdiction_id"`
	// LetterStart and LetterEnd are the boilerplate header and footer
	// wrapped around every outbound request letter.
	LetterStart string `json:"letter_start"`
	LetterEnd   string `json:"letter_end"`
	// MaxResponseTime is the legally mandated response deadline,
	// expressed in MaxResponseTimeUnit.
	MaxResponseTime     int          `json:"max_response_time"`
	MaxResponseTimeUnit DeadlineUnit `json:"max_response_time_unit"`
	// MediatorID references the oversight public body empowered to
	// review escalations, if one exists for this law.
	MediatorID *uuid.UUID `json:"mediator_id,omitempty"`
	// Meta marks a jurisdiction-wide composite law; CombinedIDs lists
	// the concrete laws it aggregates.
	Meta        bool        `json:"meta"`
	CombinedIDs []uuid.UUID `json:"combined_ids,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewLaw creates a law with the given deadline formula.
func NewLaw(name string, jurisdictionID uuid.UUID, maxResponseTime int, unit DeadlineUnit) *Law {
	now := time.Now().UTC()
	return &Law{
		ID:                  uuid.New(),
		Name:                name,
		Slug:                Slugify(name),
		JurisdictionID:      jurisdictionID,
		MaxResponseTime:     maxResponseTime,
		MaxResponseTimeUnit: unit,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// HasMediator reports whether escalation is available under this law.
func (l *Law) HasMediator() bool {
	return l.MediatorID != nil && *l.MediatorID != uuid.Nil
}

// Combines reports whether the given concrete law is part of this
// meta law.
func (l *Law) Combines(lawID uuid.UUID) bool {
	if !l.Meta {
		return false
	}
	for _, id := range l.CombinedIDs {
		if id == lawID {
			return true
		}
	}
	return false
}
