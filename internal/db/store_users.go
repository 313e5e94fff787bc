package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openfoi/foiportal/internal/apperr"
	"github.com/openfoi/foiportal/internal/models"
)

// User methods

// CreateUser creates a new user.
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO users (id, email, first_name, last_name, organization, address,
		                   role, active, oidc_subject, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, user.ID, user.Email, user.FirstName, user.LastName, user.Organization,
		user.Address, string(user.Role), user.Active, user.OIDCSubject,
		user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByID returns a user by their ID.
func (db *DB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, email, first_name, last_name, organization, address,
		       role, active, oidc_subject, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

// GetUserByEmail returns a user by their email address.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, email, first_name, last_name, organization, address,
		       role, active, oidc_subject, created_at, updated_at
		FROM users
		WHERE lower(email) = lower($1)
	`, email)
	return scanUser(row)
}

// GetUserByOIDCSubject returns a user by their OIDC subject.
func (db *DB) GetUserByOIDCSubject(ctx context.Context, subject string) (*models.User, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, email, first_name, last_name, organization, address,
		       role, active, oidc_subject, created_at, updated_at
		FROM users
		WHERE oidc_subject = $1
	`, subject)
	return scanUser(row)
}

// ActivateUser marks a user's email address as confirmed.
func (db *DB) ActivateUser(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE users SET active = TRUE, updated_at = $2 WHERE id = $1
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("activate user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

// UpdateUser updates a user's profile fields.
func (db *DB) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	_, err := db.Pool.Exec(ctx, `
		UPDATE users
		SET email = $2, first_name = $3, last_name = $4, organization = $5,
		    address = $6, role = $7, active = $8, oidc_subject = $9, updated_at = $10
		WHERE id = $1
	`, user.ID, user.Email, user.FirstName, user.LastName, user.Organization,
		user.Address, string(user.Role), user.Active, user.OIDCSubject, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	var roleStr string
	err := row.Scan(
		&user.ID, &user.Email, &user.FirstName, &user.LastName,
		&user.Organization, &user.Address, &roleStr, &user.Active,
		&user.OIDCSubject, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "user")
	}
	user.Role = models.UserRole(roleStr)
	return &user, nil
}
