package pg

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrConnectionFailed  = errors.New("pg: failed to open database connection")
	ErrParseConfig       = errors.New("pg: failed to parse connection config")
	ErrHealthcheckFailed = errors.New("pg: healthcheck failed")
	ErrMigrationsFailed  = errors.New("pg: failed to apply migrations")
	ErrMigrationsMissing = errors.New("pg: migrations directory not found")
)

// IsNotFound reports whether err is pgx.ErrNoRows, giving callers a single
// "not found" check across queries.
func IsNotFound(err error) bool {
	return err != nil && errors.Is(err, pgx.ErrNoRows)
}

// IsDuplicateKey reports a unique constraint violation (SQLSTATE 23505).
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsForeignKeyViolation reports a referential integrity violation (SQLSTATE 23503).
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
