package search

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Indexer is notified when requests gain searchable content.
type Indexer interface {
	IndexRequest(ctx context.Context, requestID uuid.UUID) error
}

// PostgresIndexer refreshes a request's search vector in place. Row
// triggers keep vectors current on normal writes; this handles rows
// touched while triggers were disabled, e.g. bulk imports.
type PostgresIndexer struct {
	pool *pgxpool.Pool
}

// NewPostgresIndexer creates an Indexer backed by the request table.
func NewPostgresIndexer(pool *pgxpool.Pool) *PostgresIndexer {
	return &PostgresIndexer{pool: pool}
}

// IndexRequest recomputes the search vector for one request.
func (i *PostgresIndexer) IndexRequest(ctx context.Context, requestID uuid.UUID) error {
	_, err := i.pool.Exec(ctx, `
		UPDATE requests SET search_vector =
			setweight(to_tsvector('simple', coalesce(title, '')), 'A') ||
			setweight(to_tsvector('simple', coalesce(description, '')), 'B') ||
			setweight(to_tsvector('simple', coalesce(summary, '')), 'C')
		WHERE id = $1
	`, requestID)
	if err != nil {
		return fmt.Errorf("index request: %w", err)
	}
	return nil
}

// NopIndexer ignores all notifications, for tests and setups without
// search.
type NopIndexer struct{}

func (NopIndexer) IndexRequest(context.Context, uuid.UUID) error { return nil }
