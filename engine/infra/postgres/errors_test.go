package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/compozy/modelstore/engine/core"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	t.Run("Should pass nil through", func(t *testing.T) {
		assert.NoError(t, MapError("find", nil))
	})
	t.Run("Should flag unique violations as duplicates", func(t *testing.T) {
		err := MapError("create", &pgconn.PgError{Code: pgerrcode.UniqueViolation, Message: "duplicate key"})
		assert.True(t, core.IsStore(err))
		assert.ErrorIs(t, err, core.ErrDuplicate)
		var typed *core.Error
		assert.ErrorAs(t, err, &typed)
		assert.Equal(t, pgerrcode.UniqueViolation, typed.Code)
	})
	t.Run("Should classify connection exceptions", func(t *testing.T) {
		err := MapError("find", &pgconn.PgError{Code: pgerrcode.ConnectionFailure})
		assert.True(t, core.IsConnection(err))
		assert.True(t, core.IsConnection(MapError("find", context.DeadlineExceeded)))
	})
	t.Run("Should keep errors that already carry a kind", func(t *testing.T) {
		in := core.NewValidationError("filter", errors.New("bad"))
		assert.Same(t, in, MapError("find", in))
		assert.ErrorIs(t, MapError("find", core.ErrNotInitialized), core.ErrNotInitialized)
	})
	t.Run("Should default to store errors", func(t *testing.T) {
		err := MapError("find", &pgconn.PgError{Code: pgerrcode.UndefinedTable})
		assert.True(t, core.IsStore(err))
		assert.False(t, errors.Is(err, core.ErrDuplicate))
	})
}
