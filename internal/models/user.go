package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserRole determines what a user may do beyond their own requests.
type UserRole string

const (
	// RoleRequester is a regular citizen account.
	RoleRequester UserRole = "requester"
	// RoleStaff is a moderator/operator account.
	RoleStaff UserRole = "staff"
)

// User represents a requester or staff account.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Organization string    `json:"organization,omitempty"`
	Address      string    `json:"address,omitempty"`
	Role         UserRole  `json:"role"`
	// Active is false until the user confirmed their email address.
	Active      bool      `json:"active"`
	OIDCSubject string    `json:"oidc_subject,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewUser creates an unconfirmed requester account.
func NewUser(email, firstName, lastName string) *User {
	now := time.Now().UTC()
	return &User{
		ID:        uuid.New(),
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Role:      RoleRequester,
		Active:    false,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// FullName returns the user's display name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsStaff reports whether the user has operator privileges.
func (u *User) IsStaff() bool {
	return u.Role == RoleStaff
}
