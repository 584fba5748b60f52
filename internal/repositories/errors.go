package repositories

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates the requested record, or a record it references, does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the write would duplicate a unique key such as an email address.
	ErrConflict = errors.New("record conflict")
)

// SQLSTATE codes the stores translate into domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
