package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openfoi/foiportal/internal/models"
)

// Request methods

// CreateRequest inserts a request inside one transaction, assigning
// its sequence number and slug, and optionally writing the opening
// message. throttleCheck, when non-nil, receives the creation
// timestamps of the user's requests since the given time and may veto
// the insert; the read and the insert share the transaction, so two
// concurrent submissions cannot both pass the same window.
func (db *DB) CreateRequest(ctx context.Context, r *models.Request, since time.Time, throttleCheck func(created []time.Time) error, firstMessage *models.Message) error {
	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		if throttleCheck != nil {
			// Serialize submissions by the same user for the duration of
			// the transaction.
			if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", r.UserID.String()); err != nil {
				return fmt.Errorf("acquire submission lock: %w", err)
			}
			rows, err := tx.Query(ctx, `
				SELECT created_at FROM requests
				WHERE user_id = $1 AND created_at >= $2
			`, r.UserID, since)
			if err != nil {
				return fmt.Errorf("load recent request times: %w", err)
			}
			var created []time.Time
			for rows.Next() {
				var t time.Time
				if err := rows.Scan(&t); err != nil {
					rows.Close()
					return fmt.Errorf("scan request time: %w", err)
				}
				created = append(created, t)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return fmt.Errorf("iterate request times: %w", err)
			}
			if err := throttleCheck(created); err != nil {
				return err
			}
		}

		err := tx.QueryRow(ctx, `
			INSERT INTO requests (id, title, description, summary, status, visibility,
			                      resolution, costs, is_foi, checked, user_id,
			                      public_body_id, law_id, same_as_id, secret_address,
			                      due_date, first_message_at, last_message_at,
			                      created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			        $16, $17, $18, $19, $20)
			RETURNING number
		`, r.ID, r.Title, r.Description, r.Summary, string(r.Status), string(r.Visibility),
			string(r.Resolution), r.Costs, r.IsFOI, r.Checked, r.UserID,
			r.PublicBodyID, r.LawID, r.SameAsID, r.SecretAddress,
			r.DueDate, r.FirstMessageAt, r.LastMessageAt,
			r.CreatedAt, r.UpdatedAt).Scan(&r.Number)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		r.AssignSlug()
		if _, err := tx.Exec(ctx, `
			UPDATE requests SET slug = $2 WHERE id = $1
		`, r.ID, r.Slug); err != nil {
			return fmt.Errorf("assign request slug: %w", err)
		}

		if firstMessage != nil {
			firstMessage.RequestID = r.ID
			// The subject marker needs the sequence number, which only
			// exists now.
			firstMessage.Subject = models.EnsureSubjectMarker(firstMessage.Subject, r.Number)
			if err := insertMessage(ctx, tx, firstMessage); err != nil {
				return err
			}
		}

		if r.PublicBodyID != nil {
			if err := db.IncrementPublicBodyRequestCount(ctx, tx, *r.PublicBodyID, 1); err != nil {
				return err
			}
		}
		return nil
	})
}

const requestColumns = `
	id, number, slug, title, description, summary, status, visibility,
	resolution, costs, is_foi, checked, user_id, public_body_id, law_id,
	same_as_id, secret_address, due_date, first_message_at, last_message_at,
	created_at, updated_at`

// GetRequestByID returns a request by ID, including its tags.
func (db *DB) GetRequestByID(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id)
	return db.scanRequestWithTags(ctx, row)
}

// GetRequestBySlug returns a request by slug, including its tags.
func (db *DB) GetRequestBySlug(ctx context.Context, slug string) (*models.Request, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE slug = $1`, slug)
	return db.scanRequestWithTags(ctx, row)
}

// GetRequestByNumber returns a request by its sequence number.
func (db *DB) GetRequestByNumber(ctx context.Context, number int64) (*models.Request, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE number = $1`, number)
	return db.scanRequestWithTags(ctx, row)
}

// GetRequestBySecretAddress returns the request owning the given
// private correspondence address.
func (db *DB) GetRequestBySecretAddress(ctx context.Context, addr string) (*models.Request, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+requestColumns+` FROM requests WHERE lower(secret_address) = lower($1)
	`, addr)
	return db.scanRequestWithTags(ctx, row)
}

// ListRequestsByUser returns all requests owned by a user, newest
// first.
func (db *DB) ListRequestsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Request, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list requests by user: %w", err)
	}
	return collectRequests(rows)
}

// ListPublicRequests returns publicly listed requests, newest first.
func (db *DB) ListPublicRequests(ctx context.Context, limit, offset int) ([]*models.Request, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE visibility = 'public' AND is_foi = TRUE
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list public requests: %w", err)
	}
	return collectRequests(rows)
}

// ListRequestsByPublicBodyAndStatus returns a public body's requests
// currently in the given status, oldest first.
func (db *DB) ListRequestsByPublicBodyAndStatus(ctx context.Context, publicBodyID uuid.UUID, status models.Status) ([]*models.Request, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE public_body_id = $1 AND status = $2
		ORDER BY created_at
	`, publicBodyID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list requests by public body: %w", err)
	}
	return collectRequests(rows)
}

// ListOverdueRequests returns requests whose legal deadline has passed
// without a resolution.
func (db *DB) ListOverdueRequests(ctx context.Context, now time.Time) ([]*models.Request, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE due_date IS NOT NULL AND due_date < $1
		  AND status IN ('awaiting_response', 'awaiting_classification')
		ORDER BY due_date
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list overdue requests: %w", err)
	}
	return collectRequests(rows)
}

// UpdateRequest updates a request's mutable fields.
func (db *DB) UpdateRequest(ctx context.Context, r *models.Request) error {
	r.UpdatedAt = time.Now().UTC()
	_, err := db.Pool.Exec(ctx, `
		UPDATE requests
		SET title = $2, description = $3, summary = $4, status = $5, visibility = $6,
		    resolution = $7, costs = $8, is_foi = $9, checked = $10,
		    public_body_id = $11, law_id = $12, same_as_id = $13, due_date = $14,
		    first_message_at = $15, last_message_at = $16, updated_at = $17
		WHERE id = $1
	`, r.ID, r.Title, r.Description, r.Summary, string(r.Status), string(r.Visibility),
		string(r.Resolution), r.Costs, r.IsFOI, r.Checked,
		r.PublicBodyID, r.LawID, r.SameAsID, r.DueDate,
		r.FirstMessageAt, r.LastMessageAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	return nil
}

// RedirectRequest persists a request handed to a different public
// body, moving the per-body request counters along with it.
func (db *DB) RedirectRequest(ctx context.Context, r *models.Request, previousPublicBodyID *uuid.UUID) error {
	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		r.UpdatedAt = time.Now().UTC()
		_, err := tx.Exec(ctx, `
			UPDATE requests
			SET status = $2, resolution = $3, public_body_id = $4, law_id = $5,
			    due_date = $6, updated_at = $7
			WHERE id = $1
		`, r.ID, string(r.Status), string(r.Resolution), r.PublicBodyID, r.LawID,
			r.DueDate, r.UpdatedAt)
		if err != nil {
			return fmt.Errorf("redirect request: %w", err)
		}
		if previousPublicBodyID != nil {
			if err := db.IncrementPublicBodyRequestCount(ctx, tx, *previousPublicBodyID, -1); err != nil {
				return err
			}
		}
		if r.PublicBodyID != nil {
			if err := db.IncrementPublicBodyRequestCount(ctx, tx, *r.PublicBodyID, 1); err != nil {
				return err
			}
		}
		return nil
	})
}

// IdenticalCount returns the number of requests marked same-as the
// given canonical request.
func (db *DB) IdenticalCount(ctx context.Context, rootID uuid.UUID) (int, error) {
	var count int
	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM requests WHERE same_as_id = $1
	`, rootID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count identical requests: %w", err)
	}
	return count, nil
}

// SetRequestTags replaces a request's tag set.
func (db *DB) SetRequestTags(ctx context.Context, requestID uuid.UUID, tags []string) error {
	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM request_tags WHERE request_id = $1`, requestID); err != nil {
			return fmt.Errorf("clear request tags: %w", err)
		}
		for _, tag := range tags {
			if _, err := tx.Exec(ctx, `
				INSERT INTO request_tags (request_id, tag) VALUES ($1, $2)
			`, requestID, tag); err != nil {
				return fmt.Errorf("insert request tag: %w", err)
			}
		}
		return nil
	})
}

// GetRequestTags returns a request's tags in alphabetical order.
func (db *DB) GetRequestTags(ctx context.Context, requestID uuid.UUID) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT tag FROM request_tags WHERE request_id = $1 ORDER BY tag
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("get request tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan request tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate request tags: %w", err)
	}
	return tags, nil
}

func (db *DB) scanRequestWithTags(ctx context.Context, row rowScanner) (*models.Request, error) {
	r, err := scanRequest(row)
	if err != nil {
		return nil, err
	}
	tags, err := db.GetRequestTags(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.Tags = tags
	return r, nil
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var r models.Request
	var status, visibility, resolution string
	err := row.Scan(
		&r.ID, &r.Number, &r.Slug, &r.Title, &r.Description, &r.Summary,
		&status, &visibility, &resolution, &r.Costs, &r.IsFOI, &r.Checked,
		&r.UserID, &r.PublicBodyID, &r.LawID, &r.SameAsID, &r.SecretAddress,
		&r.DueDate, &r.FirstMessageAt, &r.LastMessageAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "request")
	}
	r.Status = models.Status(status)
	r.Visibility = models.Visibility(visibility)
	r.Resolution = models.Resolution(resolution)
	return &r, nil
}

func collectRequests(rows pgx.Rows) ([]*models.Request, error) {
	defer rows.Close()
	var result []*models.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return result, nil
}
