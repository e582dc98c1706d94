package repository

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrDuplicate       = errors.New("duplicate record")
	ErrStatusUnchanged = errors.New("message status not advanced")
)

const uniqueViolation = "23505"

// wrapErr normalizes driver errors so callers only need the sentinels above.
func wrapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errors.Wrap(ErrDuplicate, pgErr.ConstraintName)
	}
	return errors.Wrap(err, op)
}
