package persistence

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL error codes the ledger reacts to
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgConnectionException  = "08"
)

// isUniqueViolation reports whether err was raised by a unique or primary key constraint.
// Dialects with TranslateError enabled report gorm.ErrDuplicatedKey; raw driver errors
// are checked as a fallback.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isTransient reports whether err is worth retrying: serialization failures,
// deadlocks and dropped connections
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch {
	case pgErr.Code == pgSerializationFailure, pgErr.Code == pgDeadlockDetected:
		return true
	case strings.HasPrefix(pgErr.Code, pgConnectionException):
		return true
	}
	return false
}
