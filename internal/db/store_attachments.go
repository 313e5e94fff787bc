package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openfoi/foiportal/internal/models"
)

// Attachment methods

// queryRower abstracts pgx.Tx and pgxpool.Pool so attachment writes
// run inside or outside a surrounding transaction.
type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UpsertAttachment stores an attachment record. Uploading a file with
// the same name onto the same message replaces the earlier record and
// keeps its identity.
func (db *DB) UpsertAttachment(ctx context.Context, att *models.Attachment) error {
	return upsertAttachment(ctx, db.Pool, att)
}

// UpsertAttachments stores a batch of attachment records in one
// transaction, so a partial upload never leaves the message with a
// subset of its files.
func (db *DB) UpsertAttachments(ctx context.Context, atts []*models.Attachment) error {
	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		for _, att := range atts {
			if err := upsertAttachment(ctx, tx, att); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertAttachment(ctx context.Context, q queryRower, att *models.Attachment) error {
	err := q.QueryRow(ctx, `
		INSERT INTO attachments (id, message_id, name, size, content_type,
		                         approved, can_approve, storage_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (message_id, name) DO UPDATE
		SET size = EXCLUDED.size, content_type = EXCLUDED.content_type,
		    storage_key = EXCLUDED.storage_key, updated_at = EXCLUDED.updated_at
		RETURNING id, approved, can_approve, created_at
	`, att.ID, att.MessageID, att.Name, att.Size, att.ContentType,
		att.Approved, att.CanApprove, att.StorageKey, att.CreatedAt, att.UpdatedAt).
		Scan(&att.ID, &att.Approved, &att.CanApprove, &att.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert attachment: %w", err)
	}
	return nil
}

const attachmentColumns = `
	id, message_id, name, size, content_type, approved, can_approve,
	storage_key, created_at, updated_at`

// GetAttachmentByID returns an attachment by ID.
func (db *DB) GetAttachmentByID(ctx context.Context, id uuid.UUID) (*models.Attachment, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id = $1`, id)
	return scanAttachment(row)
}

// GetAttachmentByName returns a message's attachment by file name.
func (db *DB) GetAttachmentByName(ctx context.Context, messageID uuid.UUID, name string) (*models.Attachment, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+attachmentColumns+` FROM attachments
		WHERE message_id = $1 AND name = $2
	`, messageID, name)
	return scanAttachment(row)
}

// ListAttachmentsByMessage returns a message's attachments in upload
// order.
func (db *DB) ListAttachmentsByMessage(ctx context.Context, messageID uuid.UUID) ([]*models.Attachment, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+attachmentColumns+` FROM attachments
		WHERE message_id = $1
		ORDER BY created_at, name
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var result []*models.Attachment
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return result, nil
}

// UpdateAttachment updates an attachment's mutable fields.
func (db *DB) UpdateAttachment(ctx context.Context, att *models.Attachment) error {
	att.UpdatedAt = time.Now().UTC()
	_, err := db.Pool.Exec(ctx, `
		UPDATE attachments
		SET approved = $2, can_approve = $3, storage_key = $4, updated_at = $5
		WHERE id = $1
	`, att.ID, att.Approved, att.CanApprove, att.StorageKey, att.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update attachment: %w", err)
	}
	return nil
}

func scanAttachment(row rowScanner) (*models.Attachment, error) {
	var att models.Attachment
	err := row.Scan(
		&att.ID, &att.MessageID, &att.Name, &att.Size, &att.ContentType,
		&att.Approved, &att.CanApprove, &att.StorageKey,
		&att.CreatedAt, &att.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "attachment")
	}
	return &att, nil
}
