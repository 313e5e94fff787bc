package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openfoi/foiportal/internal/models"
)

// Message methods

// AppendMessage appends a message to a request's thread and persists
// the request's updated state in the same transaction, so a status
// flip triggered by the message cannot be lost separately. When r is
// nil only the thread timestamps advance.
func (db *DB) AppendMessage(ctx context.Context, msg *models.Message, r *models.Request) error {
	return db.AppendMessageWithAttachments(ctx, msg, r, nil)
}

// AppendMessageWithAttachments appends a message together with its
// attachment records in one transaction. A failed attachment insert
// rolls back the message, so the thread never shows a reply missing
// its files. Blob bytes are written by the caller beforehand.
func (db *DB) AppendMessageWithAttachments(ctx context.Context, msg *models.Message, r *models.Request, atts []*models.Attachment) error {
	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		if err := insertMessage(ctx, tx, msg); err != nil {
			return err
		}
		for _, att := range atts {
			if err := upsertAttachment(ctx, tx, att); err != nil {
				return err
			}
		}
		if r != nil {
			r.UpdatedAt = time.Now().UTC()
			_, err := tx.Exec(ctx, `
				UPDATE requests
				SET status = $2, visibility = $3, resolution = $4, due_date = $5,
				    first_message_at = LEAST(COALESCE(first_message_at, $6), $6),
				    last_message_at = GREATEST(COALESCE(last_message_at, $6), $6),
				    updated_at = $7
				WHERE id = $1
			`, r.ID, string(r.Status), string(r.Visibility), string(r.Resolution),
				r.DueDate, msg.Timestamp, r.UpdatedAt)
			if err != nil {
				return fmt.Errorf("persist request state with message: %w", err)
			}
			return nil
		}
		_, err := tx.Exec(ctx, `
			UPDATE requests
			SET first_message_at = LEAST(COALESCE(first_message_at, $2), $2),
			    last_message_at = GREATEST(COALESCE(last_message_at, $2), $2),
			    updated_at = $3
			WHERE id = $1
		`, msg.RequestID, msg.Timestamp, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("advance thread timestamps: %w", err)
		}
		return nil
	})
}

func insertMessage(ctx context.Context, tx pgx.Tx, msg *models.Message) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO messages (id, request_id, timestamp, subject, plaintext,
		                      plaintext_redacted, is_response, postal, sent,
		                      content_hidden, not_publishable, sender_user_id,
		                      sender_public_body_id, recipient_public_body_id,
		                      sender_name, sender_email, recipient_email,
		                      created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19)
	`, msg.ID, msg.RequestID, msg.Timestamp, msg.Subject, msg.Plaintext,
		msg.PlaintextRedacted, msg.IsResponse, msg.Postal, msg.Sent,
		msg.ContentHidden, msg.NotPublishable, msg.SenderUserID,
		msg.SenderPublicBodyID, msg.RecipientPublicBodyID,
		msg.SenderName, msg.SenderEmail, msg.RecipientEmail,
		msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

const messageColumns = `
	id, request_id, timestamp, subject, plaintext, plaintext_redacted,
	is_response, postal, sent, content_hidden, not_publishable,
	sender_user_id, sender_public_body_id, recipient_public_body_id,
	sender_name, sender_email, recipient_email, created_at, updated_at`

// GetMessageByID returns a message by ID.
func (db *DB) GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	return scanMessage(row)
}

// ListMessagesByRequest returns a request's thread in chronological
// order. Messages with equal timestamps keep insertion order.
func (db *DB) ListMessagesByRequest(ctx context.Context, requestID uuid.UUID) ([]*models.Message, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE request_id = $1
		ORDER BY timestamp, created_at
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var result []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return result, nil
}

// UpdateMessage updates a message's mutable fields.
func (db *DB) UpdateMessage(ctx context.Context, msg *models.Message) error {
	msg.UpdatedAt = time.Now().UTC()
	_, err := db.Pool.Exec(ctx, `
		UPDATE messages
		SET subject = $2, plaintext = $3, plaintext_redacted = $4, sent = $5,
		    content_hidden = $6, not_publishable = $7, sender_user_id = $8,
		    sender_public_body_id = $9, sender_name = $10, sender_email = $11,
		    recipient_email = $12, updated_at = $13
		WHERE id = $1
	`, msg.ID, msg.Subject, msg.Plaintext, msg.PlaintextRedacted, msg.Sent,
		msg.ContentHidden, msg.NotPublishable, msg.SenderUserID,
		msg.SenderPublicBodyID, msg.SenderName, msg.SenderEmail,
		msg.RecipientEmail, msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	err := row.Scan(
		&msg.ID, &msg.RequestID, &msg.Timestamp, &msg.Subject, &msg.Plaintext,
		&msg.PlaintextRedacted, &msg.IsResponse, &msg.Postal, &msg.Sent,
		&msg.ContentHidden, &msg.NotPublishable, &msg.SenderUserID,
		&msg.SenderPublicBodyID, &msg.RecipientPublicBodyID,
		&msg.SenderName, &msg.SenderEmail, &msg.RecipientEmail,
		&msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "message")
	}
	return &msg, nil
}
