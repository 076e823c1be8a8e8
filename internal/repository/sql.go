package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// prefixColumns qualifies a comma-separated column list with prefix ("pp." -> "pp.id, pp.name").
func prefixColumns(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}

	return strings.Join(parts, ", ")
}

// Postgres has no unsigned 64-bit integer; hashes round-trip through a bit cast.
func hashToInt64(h uint64) int64 {
	return int64(h) //nolint:gosec // G115: intentional bit cast
}

func int64ToHash(v int64) uint64 {
	return uint64(v) //nolint:gosec // G115: intentional bit cast
}
