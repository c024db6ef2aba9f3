package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/compozy/modelstore/engine/core"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapError classifies a driver error for op. Errors that already carry a
// taxonomy kind pass through unchanged.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *core.Error
	if errors.As(err, &typed) || errors.Is(err, core.ErrNotInitialized) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.UniqueViolation:
			return core.NewStoreErrorWithCode(op, pgErr.Code, fmt.Errorf("%w: %s", core.ErrDuplicate, pgErr.Message))
		case pgerrcode.IsConnectionException(pgErr.Code):
			return core.NewConnectionError(op, err)
		default:
			return core.NewStoreErrorWithCode(op, pgErr.Code, err)
		}
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return core.NewConnectionError(op, err)
	}
	return core.NewStoreError(op, err)
}
