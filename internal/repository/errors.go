package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicateOrder is returned when a module or lesson reuses an order index within its parent.
	ErrDuplicateOrder = errors.New("order index already used")
	// ErrNotFound is returned by updates and deletes that matched no row.
	ErrNotFound = errors.New("record not found")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// mapOrderConflict turns the order-index unique constraint into ErrDuplicateOrder.
func mapOrderConflict(err error) error {
	if isUniqueViolation(err) {
		return ErrDuplicateOrder
	}
	return err
}

// page clamps pagination arguments to sane bounds.
func page(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
