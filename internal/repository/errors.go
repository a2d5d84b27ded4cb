package repository

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested record does not exist in the database.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert hits an existing unique key.
var ErrDuplicate = errors.New("duplicate")

// ErrMisconfigured means the database is reachable but the deployment is
// wrong: a table is missing or the role lacks privileges.
var ErrMisconfigured = errors.New("database misconfigured")

// ErrUnavailable means the database could not be reached in time.
var ErrUnavailable = errors.New("database unavailable")

// Postgres SQLSTATE codes handled by Classify.
const (
	codeUndefinedTable        = "42P01"
	codeInsufficientPrivilege = "42501"
	codeUniqueViolation       = "23505"
)

// Classify wraps err with the matching sentinel so callers can branch with
// errors.Is while keeping the original message for logs. Unknown errors are
// returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUndefinedTable, codeInsufficientPrivilege:
			return fmt.Errorf("%w: %s (%s)", ErrMisconfigured, pgErr.Message, pgErr.Code)
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connErr),
		errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded),
		pgconn.Timeout(err):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
