// Package search provides full-text search over public requests.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Result is a single search hit.
type Result struct {
	ID        uuid.UUID `json:"id"`
	Number    int64     `json:"number"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Rank      float32   `json:"rank"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows a search query.
type Filter struct {
	Query  string `json:"q"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Searcher runs full-text queries against the request index.
type Searcher struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewSearcher creates a Searcher backed by the request search vectors.
func NewSearcher(pool *pgxpool.Pool, logger zerolog.Logger) *Searcher {
	return &Searcher{
		pool:   pool,
		logger: logger.With().Str("component", "search").Logger(),
	}
}

// Search returns publicly listed requests matching the query, ranked
// by relevance. Only public, genuine FOI requests are searchable.
func (s *Searcher) Search(ctx context.Context, filter Filter) ([]Result, error) {
	query := strings.TrimSpace(filter.Query)
	if query == "" {
		return nil, nil
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	sql := `
		SELECT id, number, slug, title, status, created_at,
		       ts_rank(search_vector, plainto_tsquery('simple', $1)) AS rank
		FROM requests
		WHERE visibility = 'public' AND is_foi = TRUE
		  AND search_vector @@ plainto_tsquery('simple', $1)`
	args := []any{query}
	if filter.Status != "" {
		sql += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}
	sql += fmt.Sprintf(" ORDER BY rank DESC, created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, filter.Offset)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search requests: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Number, &r.Slug, &r.Title, &r.Status, &r.CreatedAt, &r.Rank); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}

	s.logger.Debug().Str("query", query).Int("hits", len(results)).Msg("search executed")
	return results, nil
}
