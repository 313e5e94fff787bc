package db

import (
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/openfoi/foiportal/internal/apperr"
)

// rowScanner abstracts pgx.Row and pgx.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

// notFound translates pgx's no-rows sentinel into the shared failure
// taxonomy so callers can match on apperr.KindNotFound.
func notFound(err error, entity string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity)
	}
	return err
}
