package postgres

import (
	"context"
	"fmt"

	"github.com/compozy/modelstore/pkg/logger"
	"github.com/jackc/pgx/v5"
)

// withTx executes fn within a transaction opened on db.
func withTx(ctx context.Context, db DB, fn func(pgx.Tx) error) (err error) {
	log := logger.FromContext(ctx)
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error("Failed to rollback transaction", "error", rbErr)
			}
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error("Failed to rollback transaction", "error", rbErr)
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("committing transaction: %w", commitErr)
		}
	}()
	return fn(tx)
}
