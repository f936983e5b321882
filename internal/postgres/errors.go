package postgres

import (
	"errors"
	"fmt"

	"github.com/ariefcatur/go-inventory-orders/internal/orders"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeCheckViolation       = "23514"
)

// translate turns lock and serialization failures into
// orders.ErrConcurrencyConflict so callers can retry from a fresh read.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable, codeCheckViolation:
			return fmt.Errorf("%s: %w: %s", op, orders.ErrConcurrencyConflict, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
