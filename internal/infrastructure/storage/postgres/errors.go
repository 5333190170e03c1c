package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repositories react to.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

// UniqueViolation reports whether err is a unique constraint violation and returns the constraint name.
func UniqueViolation(err error) (string, bool) {
	return pgCode(err, codeUniqueViolation)
}

// ForeignKeyViolation reports whether err is a foreign key violation and returns the constraint name.
func ForeignKeyViolation(err error) (string, bool) {
	return pgCode(err, codeForeignKeyViolation)
}

// CheckViolation reports whether err is a CHECK constraint violation and returns the constraint name.
func CheckViolation(err error) (string, bool) {
	return pgCode(err, codeCheckViolation)
}

func pgCode(err error, code string) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == code {
		return pgErr.ConstraintName, true
	}
	return "", false
}
