package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openfoi/foiportal/internal/apperr"
	"github.com/openfoi/foiportal/internal/models"
)

// Jurisdiction methods

// CreateJurisdiction creates a new jurisdiction.
func (db *DB) CreateJurisdiction(ctx context.Context, j *models.Jurisdiction) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO jurisdictions (id, name, slug, created_at)
		VALUES ($1, $2, $3, $4)
	`, j.ID, j.Name, j.Slug, j.CreatedAt)
	if err != nil {
		return fmt.Errorf("create jurisdiction: %w", err)
	}
	return nil
}

// GetJurisdictionByID returns a jurisdiction by ID.
func (db *DB) GetJurisdictionByID(ctx context.Context, id uuid.UUID) (*models.Jurisdiction, error) {
	var j models.Jurisdiction
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, slug, created_at FROM jurisdictions WHERE id = $1
	`, id).Scan(&j.ID, &j.Name, &j.Slug, &j.CreatedAt)
	if err != nil {
		return nil, notFound(err, "jurisdiction")
	}
	return &j, nil
}

// ListJurisdictions returns all jurisdictions ordered by name.
func (db *DB) ListJurisdictions(ctx context.Context) ([]*models.Jurisdiction, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, slug, created_at FROM jurisdictions ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list jurisdictions: %w", err)
	}
	defer rows.Close()

	var result []*models.Jurisdiction
	for rows.Next() {
		var j models.Jurisdiction
		if err := rows.Scan(&j.ID, &j.Name, &j.Slug, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan jurisdiction: %w", err)
		}
		result = append(result, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jurisdictions: %w", err)
	}
	return result, nil
}

// Law methods

// CreateLaw creates a new law and its combined-law links.
func (db *DB) CreateLaw(ctx context.Context, law *models.Law) error {
	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO laws (id, name, slug, jurisdiction_id, letter_start, letter_end,
			                  max_response_time, max_response_time_unit, mediator_id, meta,
			                  created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, law.ID, law.Name, law.Slug, law.JurisdictionID, law.LetterStart, law.LetterEnd,
			law.MaxResponseTime, string(law.MaxResponseTimeUnit), law.MediatorID, law.Meta,
			law.CreatedAt, law.UpdatedAt)
		if err != nil {
			return fmt.Errorf("create law: %w", err)
		}
		for _, combined := range law.CombinedIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO law_combined (meta_law_id, law_id) VALUES ($1, $2)
			`, law.ID, combined); err != nil {
				return fmt.Errorf("link combined law: %w", err)
			}
		}
		return nil
	})
}

// GetLawByID returns a law by ID, including its combined laws.
func (db *DB) GetLawByID(ctx context.Context, id uuid.UUID) (*models.Law, error) {
	var law models.Law
	var unitStr string
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, slug, jurisdiction_id, letter_start, letter_end,
		       max_response_time, max_response_time_unit, mediator_id, meta,
		       created_at, updated_at
		FROM laws
		WHERE id = $1
	`, id).Scan(
		&law.ID, &law.Name, &law.Slug, &law.JurisdictionID, &law.LetterStart,
		&law.LetterEnd, &law.MaxResponseTime, &unitStr, &law.MediatorID, &law.Meta,
		&law.CreatedAt, &law.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "law")
	}
	law.MaxResponseTimeUnit = models.DeadlineUnit(unitStr)

	rows, err := db.Pool.Query(ctx, `
		SELECT law_id FROM law_combined WHERE meta_law_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get combined laws: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var combined uuid.UUID
		if err := rows.Scan(&combined); err != nil {
			return nil, fmt.Errorf("scan combined law: %w", err)
		}
		law.CombinedIDs = append(law.CombinedIDs, combined)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate combined laws: %w", err)
	}
	return &law, nil
}

// GetMetaLawForJurisdiction returns the jurisdiction-wide composite
// law, if one exists.
func (db *DB) GetMetaLawForJurisdiction(ctx context.Context, jurisdictionID uuid.UUID) (*models.Law, error) {
	var id uuid.UUID
	err := db.Pool.QueryRow(ctx, `
		SELECT id FROM laws WHERE jurisdiction_id = $1 AND meta = TRUE LIMIT 1
	`, jurisdictionID).Scan(&id)
	if err != nil {
		return nil, notFound(err, "meta law")
	}
	return db.GetLawByID(ctx, id)
}

// Public body methods

// CreatePublicBody creates a new public body.
func (db *DB) CreatePublicBody(ctx context.Context, pb *models.PublicBody) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO public_bodies (id, name, slug, email, url, other_emails,
		                           jurisdiction_id, default_law_id, confirmed,
		                           number_of_requests, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, pb.ID, pb.Name, pb.Slug, pb.Email, pb.URL, pb.OtherEmails,
		pb.JurisdictionID, pb.DefaultLawID, pb.Confirmed,
		pb.NumberOfRequests, pb.CreatedAt, pb.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create public body: %w", err)
	}
	return nil
}

// GetPublicBodyByID returns a public body by ID.
func (db *DB) GetPublicBodyByID(ctx context.Context, id uuid.UUID) (*models.PublicBody, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, name, slug, email, url, other_emails, jurisdiction_id,
		       default_law_id, confirmed, number_of_requests, created_at, updated_at
		FROM public_bodies
		WHERE id = $1
	`, id)
	return scanPublicBody(row)
}

// GetPublicBodyBySlug returns a public body by slug.
func (db *DB) GetPublicBodyBySlug(ctx context.Context, slug string) (*models.PublicBody, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, name, slug, email, url, other_emails, jurisdiction_id,
		       default_law_id, confirmed, number_of_requests, created_at, updated_at
		FROM public_bodies
		WHERE slug = $1
	`, slug)
	return scanPublicBody(row)
}

// FindPublicBodyByEmail returns the public body whose email or known
// alternate addresses match addr, or the one sharing its mail domain.
func (db *DB) FindPublicBodyByEmail(ctx context.Context, addr string) (*models.PublicBody, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, slug, email, url, other_emails, jurisdiction_id,
		       default_law_id, confirmed, number_of_requests, created_at, updated_at
		FROM public_bodies
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("find public body by email: %w", err)
	}
	defer rows.Close()

	// An exact address match beats a shared mail domain.
	var domainMatch *models.PublicBody
	for rows.Next() {
		pb, err := scanPublicBody(rows)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(pb.Email, addr) {
			return pb, nil
		}
		for _, other := range pb.OtherEmails {
			if strings.EqualFold(other, addr) {
				return pb, nil
			}
		}
		if domainMatch == nil && pb.MatchesDomain(addr) {
			domainMatch = pb
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate public bodies: %w", err)
	}
	if domainMatch != nil {
		return domainMatch, nil
	}
	return nil, notFound(pgx.ErrNoRows, "public body")
}

// ListPublicBodies returns all public bodies ordered by name.
func (db *DB) ListPublicBodies(ctx context.Context) ([]*models.PublicBody, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, slug, email, url, other_emails, jurisdiction_id,
		       default_law_id, confirmed, number_of_requests, created_at, updated_at
		FROM public_bodies
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list public bodies: %w", err)
	}
	defer rows.Close()

	var result []*models.PublicBody
	for rows.Next() {
		pb, err := scanPublicBody(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, pb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate public bodies: %w", err)
	}
	return result, nil
}

// ConfirmPublicBody marks a suggested public body as vetted.
func (db *DB) ConfirmPublicBody(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE public_bodies SET confirmed = TRUE, updated_at = $2 WHERE id = $1
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("confirm public body: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows, "public body")
	}
	return nil
}

// IncrementPublicBodyRequestCount bumps the request counter by delta,
// which may be negative on redirects.
func (db *DB) IncrementPublicBodyRequestCount(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta int) error {
	_, err := tx.Exec(ctx, `
		UPDATE public_bodies
		SET number_of_requests = GREATEST(number_of_requests + $2, 0), updated_at = $3
		WHERE id = $1
	`, id, delta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("increment public body request count: %w", err)
	}
	return nil
}

// Suggestion methods

// CreateSuggestion records a public-body suggestion for a request.
// Re-suggesting the same body for the same request is a conflict.
func (db *DB) CreateSuggestion(ctx context.Context, s *models.PublicBodySuggestion) error {
	tag, err := db.Pool.Exec(ctx, `
		INSERT INTO public_body_suggestions (request_id, public_body_id, user_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (request_id, public_body_id) DO NOTHING
	`, s.RequestID, s.PublicBodyID, s.UserID, s.Reason, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create suggestion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("this public body has already been suggested")
	}
	return nil
}

// ListSuggestions returns a request's public-body suggestions, oldest
// first.
func (db *DB) ListSuggestions(ctx context.Context, requestID uuid.UUID) ([]*models.PublicBodySuggestion, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT request_id, public_body_id, user_id, reason, created_at
		FROM public_body_suggestions
		WHERE request_id = $1
		ORDER BY created_at
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	var result []*models.PublicBodySuggestion
	for rows.Next() {
		var s models.PublicBodySuggestion
		if err := rows.Scan(&s.RequestID, &s.PublicBodyID, &s.UserID, &s.Reason, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		result = append(result, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suggestions: %w", err)
	}
	return result, nil
}

func scanPublicBody(row rowScanner) (*models.PublicBody, error) {
	var pb models.PublicBody
	err := row.Scan(
		&pb.ID, &pb.Name, &pb.Slug, &pb.Email, &pb.URL, &pb.OtherEmails,
		&pb.JurisdictionID, &pb.DefaultLawID, &pb.Confirmed,
		&pb.NumberOfRequests, &pb.CreatedAt, &pb.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "public body")
	}
	return &pb, nil
}
