package model_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/compozy/modelstore/engine/core"
	"github.com/compozy/modelstore/engine/infra/postgres"
	"github.com/compozy/modelstore/engine/model"
	"github.com/compozy/modelstore/engine/query"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID    string `json:"id"`
	Name  string `json:"name"            validate:"required"`
	Color string `json:"color,omitempty" validate:"omitempty,oneof=red green blue"`
	Count int    `json:"count"`
}

func (w *widget) Validate(context.Context) error {
	if w.Name == "forbidden" {
		return errors.New("name is reserved")
	}
	return nil
}

var widgetSchema = model.Schema{
	Name:    "widgets",
	Indexes: []query.Index{{Name: "name", Keys: []query.IndexKey{{Field: "name"}}}},
}

func newWidgets(t *testing.T) (*model.Collection[widget], pgxmock.PgxPoolIface, *postgres.Pool) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	pool := postgres.NewPoolFromDB(mockPool)
	widgets, err := model.NewCollection[widget](pool, widgetSchema)
	require.NoError(t, err)
	return widgets, mockPool, pool
}

func TestNewCollection(t *testing.T) {
	t.Run("Should reject invalid schemas", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		pool := postgres.NewPoolFromDB(mockPool)
		_, err = model.NewCollection[widget](pool, model.Schema{Name: "Bad-Name"})
		assert.True(t, core.IsConfiguration(err))
		_, err = model.NewCollection[widget](pool, model.Schema{
			Name:    "widgets",
			Indexes: []query.Index{{Name: "empty"}},
		})
		assert.True(t, core.IsConfiguration(err))
		_, err = model.NewCollection[widget](nil, widgetSchema)
		assert.True(t, core.IsConfiguration(err))
	})
}

func TestCollection_BeforeSetup(t *testing.T) {
	t.Run("Should fail every operation until the pool is published", func(t *testing.T) {
		widgets, err := model.NewCollection[widget](postgres.NewManager(), widgetSchema)
		require.NoError(t, err)
		ctx := context.Background()
		_, err = widgets.Find(ctx, query.All())
		assert.ErrorIs(t, err, core.ErrNotInitialized)
		_, err = widgets.Create(ctx, widget{Name: "a"})
		assert.ErrorIs(t, err, core.ErrNotInitialized)
		_, err = widgets.Cursor(ctx, query.All())
		assert.ErrorIs(t, err, core.ErrNotInitialized)
		assert.ErrorIs(t, widgets.SyncIndexes(ctx), core.ErrNotInitialized)
	})
}

func TestCollection_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Should assign an id and return the stored record", func(t *testing.T) {
		widgets, mockPool, pool := newWidgets(t)
		mockPool.ExpectQuery("INSERT INTO documents").
			WithArgs("widgets", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnRows(mockPool.NewRows([]string{"doc"}).
				AddRow(json.RawMessage(`{"id":"2aDkq8","name":"bolt","count":0}`)))
		got, err := widgets.Create(ctx, widget{Name: "bolt"})
		require.NoError(t, err)
		assert.Equal(t, "2aDkq8", got.ID)
		assert.Equal(t, "bolt", got.Name)
		assert.Equal(t, int64(0), pool.Stats().Leased)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should validate before touching the store", func(t *testing.T) {
		widgets, mockPool, pool := newWidgets(t)
		_, err := widgets.Create(ctx, widget{})
		assert.True(t, core.IsValidation(err))
		_, err = widgets.Create(ctx, widget{Name: "x", Color: "purple"})
		assert.True(t, core.IsValidation(err))
		_, err = widgets.Create(ctx, widget{Name: "forbidden"})
		assert.True(t, core.IsValidation(err))
		assert.Equal(t, int64(0), pool.Stats().Leased)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should map store failures and still release the lease", func(t *testing.T) {
		widgets, mockPool, pool := newWidgets(t)
		mockPool.ExpectQuery("INSERT INTO documents").WillReturnError(errors.New("disk full"))
		_, err := widgets.Create(ctx, widget{ID: "w1", Name: "bolt"})
		assert.True(t, core.IsStore(err))
		assert.Equal(t, int64(0), pool.Stats().Leased)
	})
}

func TestCollection_Reads(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return nil for a missing id", func(t *testing.T) {
		widgets, mockPool, _ := newWidgets(t)
		mockPool.ExpectQuery("SELECT doc FROM documents").
			WithArgs("widgets", "nope").
			WillReturnError(pgx.ErrNoRows)
		got, err := widgets.FindByID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Should find the first match with a limit of one", func(t *testing.T) {
		widgets, mockPool, _ := newWidgets(t)
		mockPool.ExpectQuery(`SELECT id, doc FROM documents WHERE .+ ORDER BY id ASC LIMIT 1$`).
			WillReturnRows(mockPool.NewRows([]string{"id", "doc"}).
				AddRow("w1", json.RawMessage(`{"id":"w1","name":"bolt"}`)))
		got, err := widgets.FindOne(ctx, query.Eq("name", "bolt"))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "w1", got.ID)
	})

	t.Run("Should return nil when FindOne matches nothing", func(t *testing.T) {
		widgets, mockPool, _ := newWidgets(t)
		mockPool.ExpectQuery("SELECT id, doc FROM documents").
			WillReturnRows(mockPool.NewRows([]string{"id", "doc"}))
		got, err := widgets.FindOne(ctx, query.Eq("name", "none"))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Should report undecodable documents as decode errors", func(t *testing.T) {
		widgets, mockPool, _ := newWidgets(t)
		mockPool.ExpectQuery("SELECT id, doc FROM documents").
			WillReturnRows(mockPool.NewRows([]string{"id", "doc"}).
				AddRow("w1", json.RawMessage(`{"id":"w1","count":"many"}`)))
		_, err := widgets.Find(ctx, query.All())
		assert.True(t, core.IsDecode(err))
	})
}

func TestCollection_Writes(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return the document after the update", func(t *testing.T) {
		widgets, mockPool, pool := newWidgets(t)
		mockPool.ExpectQuery("UPDATE documents SET doc").
			WillReturnRows(mockPool.NewRows([]string{"doc"}).
				AddRow(json.RawMessage(`{"id":"w1","name":"bolt","count":2}`)))
		got, err := widgets.FindOneAndUpdate(ctx, query.ByID("w1"), query.Inc("count", 1))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 2, got.Count)
		assert.Equal(t, int64(0), pool.Stats().Leased)
	})

	t.Run("Should report matched and modified counts", func(t *testing.T) {
		widgets, mockPool, _ := newWidgets(t)
		mockPool.ExpectQuery("WITH matched AS").
			WillReturnRows(mockPool.NewRows([]string{"matched", "modified"}).AddRow(int64(2), int64(1)))
		res, err := widgets.UpdateMany(ctx, query.All(), query.Set("color", "red"))
		require.NoError(t, err)
		assert.Equal(t, query.UpdateResult{Matched: 2, Modified: 1}, res)
	})

	t.Run("Should report delete counts", func(t *testing.T) {
		widgets, mockPool, _ := newWidgets(t)
		mockPool.ExpectExec("DELETE FROM documents").WillReturnResult(pgxmock.NewResult("DELETE", 2))
		res, err := widgets.DeleteMany(ctx, query.Eq("color", "red"))
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.Deleted)
	})

	t.Run("Should shrink the count by the reported deletes for a selective filter", func(t *testing.T) {
		widgets, mockPool, pool := newWidgets(t)
		mockPool.ExpectQuery("SELECT count").WillReturnRows(mockPool.NewRows([]string{"count"}).AddRow(int64(5)))
		mockPool.ExpectExec("DELETE FROM documents").
			WithArgs("widgets", "widgets", "string", `"red"`).
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
		mockPool.ExpectQuery("SELECT count").WillReturnRows(mockPool.NewRows([]string{"count"}).AddRow(int64(3)))
		before, err := widgets.Count(ctx, query.All())
		require.NoError(t, err)
		res, err := widgets.DeleteMany(ctx, query.Gte("color", "red"))
		require.NoError(t, err)
		after, err := widgets.Count(ctx, query.All())
		require.NoError(t, err)
		assert.Equal(t, res.Deleted, before-after)
		assert.Equal(t, int64(0), pool.Stats().Leased)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should classify duplicate keys", func(t *testing.T) {
		widgets, mockPool, _ := newWidgets(t)
		mockPool.ExpectQuery("INSERT INTO documents").
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
		_, err := widgets.Create(ctx, widget{ID: "w1", Name: "bolt"})
		assert.True(t, core.IsStore(err))
		assert.ErrorIs(t, err, core.ErrDuplicate)
	})
}

func TestAggregateAs(t *testing.T) {
	t.Run("Should decode pipeline output", func(t *testing.T) {
		widgets, mockPool, _ := newWidgets(t)
		mockPool.ExpectQuery("SELECT doc FROM").
			WillReturnRows(mockPool.NewRows([]string{"doc"}).
				AddRow(json.RawMessage(`{"_id":"red","n":2}`)).
				AddRow(json.RawMessage(`{"_id":"blue","n":1}`)))
		type bucket struct {
			Color string `json:"_id"`
			N     int    `json:"n"`
		}
		out, err := model.AggregateAs[bucket](context.Background(), widgets,
			query.NewPipeline(query.Group("color", query.Count("n"))))
		require.NoError(t, err)
		assert.Equal(t, []bucket{{Color: "red", N: 2}, {Color: "blue", N: 1}}, out)
	})

	t.Run("Should report decode failures", func(t *testing.T) {
		widgets, mockPool, _ := newWidgets(t)
		mockPool.ExpectQuery("SELECT doc FROM").
			WillReturnRows(mockPool.NewRows([]string{"doc"}).AddRow(json.RawMessage(`{"n":"x"}`)))
		_, err := model.AggregateAs[struct {
			N int `json:"n"`
		}](context.Background(), widgets, query.NewPipeline(query.Group("", query.Count("n"))))
		assert.True(t, core.IsDecode(err))
	})
}
