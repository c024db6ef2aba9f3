package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/compozy/modelstore/engine/core"
	"github.com/compozy/modelstore/engine/infra/postgres"
	"github.com/compozy/modelstore/engine/query"
	"github.com/compozy/modelstore/pkg/logger"
)

// Collection implements Model for records of type T stored in one
// collection. Every operation leases one connection for its duration and
// returns it on every exit path; cursors hold theirs until closed.
type Collection[T any] struct {
	leaser Leaser
	schema Schema
	docs   *postgres.Documents
}

var _ Model[struct{}] = (*Collection[struct{}])(nil)

// NewCollection binds T to schema. Connections come from leaser, normally
// the process-wide postgres.Manager.
func NewCollection[T any](leaser Leaser, schema Schema) (*Collection[T], error) {
	if leaser == nil {
		return nil, core.NewConfigurationError("collection", fmt.Errorf("leaser is required"))
	}
	docs, err := postgres.NewDocuments(schema.Name)
	if err != nil {
		return nil, err
	}
	for _, idx := range schema.Indexes {
		if err := idx.Validate(); err != nil {
			return nil, core.NewConfigurationError("collection", fmt.Errorf("%s: %w", schema.Name, err))
		}
	}
	indexes := make([]query.Index, len(schema.Indexes))
	copy(indexes, schema.Indexes)
	schema.Indexes = indexes
	return &Collection[T]{leaser: leaser, schema: schema, docs: docs}, nil
}

// MustCollection is NewCollection for package-level entity declarations.
func MustCollection[T any](leaser Leaser, schema Schema) *Collection[T] {
	c, err := NewCollection[T](leaser, schema)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Collection[T]) Name() string { return c.schema.Name }

func (c *Collection[T]) Schema() Schema { return c.schema }

func (c *Collection[T]) withLease(ctx context.Context, op string, fn func(db postgres.DB) error) error {
	lease, err := c.leaser.Acquire(ctx)
	if err != nil {
		return postgres.MapError(op, err)
	}
	defer lease.Release()
	return postgres.MapError(op, fn(lease))
}

// Create validates record, stores it and returns the stored version,
// including the assigned id when record had none.
func (c *Collection[T]) Create(ctx context.Context, record T) (T, error) {
	var zero T
	if err := validateRecord(ctx, &record); err != nil {
		return zero, err
	}
	id, raw, err := encode(record)
	if err != nil {
		return zero, err
	}
	var stored json.RawMessage
	err = c.withLease(ctx, "create", func(db postgres.DB) error {
		var err error
		stored, err = c.docs.Insert(ctx, db, id, raw)
		return err
	})
	if err != nil {
		return zero, err
	}
	logger.FromContext(ctx).Debug("Document created", "collection", c.schema.Name, "id", id)
	return decode[T]("create", stored)
}

func (c *Collection[T]) FindByID(ctx context.Context, id string) (*T, error) {
	var raw json.RawMessage
	err := c.withLease(ctx, "find_by_id", func(db postgres.DB) error {
		var err error
		raw, err = c.docs.Get(ctx, db, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return decodePtr[T]("find_by_id", raw)
}

// FindOne returns the first match in id order unless a sort is given.
func (c *Collection[T]) FindOne(ctx context.Context, filter query.Filter, opts ...query.FindOption) (*T, error) {
	o := query.NewFindOptions(opts...)
	o.Limit = 1
	var docs []json.RawMessage
	err := c.withLease(ctx, "find_one", func(db postgres.DB) error {
		var err error
		docs, err = c.docs.Select(ctx, db, filter, o)
		return err
	})
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return decodePtr[T]("find_one", docs[0])
}

// Find materializes every match. Use Cursor for large result sets.
func (c *Collection[T]) Find(ctx context.Context, filter query.Filter, opts ...query.FindOption) ([]T, error) {
	var docs []json.RawMessage
	err := c.withLease(ctx, "find", func(db postgres.DB) error {
		var err error
		docs, err = c.docs.Select(ctx, db, filter, query.NewFindOptions(opts...))
		return err
	})
	if err != nil {
		return nil, err
	}
	return decodeAll[T]("find", docs)
}

// Cursor streams matches lazily. The cursor owns a lease until it is
// exhausted, fails or is closed.
func (c *Collection[T]) Cursor(ctx context.Context, filter query.Filter, opts ...query.FindOption) (*Cursor[T], error) {
	lease, err := c.leaser.Acquire(ctx)
	if err != nil {
		return nil, postgres.MapError("cursor", err)
	}
	rows, err := c.docs.Query(ctx, lease, filter, query.NewFindOptions(opts...))
	if err != nil {
		lease.Release()
		return nil, postgres.MapError("cursor", err)
	}
	return newCursor[T](rows, lease), nil
}

// FindOneAndUpdate atomically updates the first match and returns it as it
// is after the update, or nil when nothing matched.
func (c *Collection[T]) FindOneAndUpdate(ctx context.Context, filter query.Filter, update query.Update) (*T, error) {
	var raw json.RawMessage
	err := c.withLease(ctx, "find_one_and_update", func(db postgres.DB) error {
		var err error
		raw, err = c.docs.FindOneAndUpdate(ctx, db, filter, update)
		return err
	})
	if err != nil {
		return nil, err
	}
	return decodePtr[T]("find_one_and_update", raw)
}

func (c *Collection[T]) UpdateOne(ctx context.Context, filter query.Filter, update query.Update) (query.UpdateResult, error) {
	return c.update(ctx, "update_one", filter, update, true)
}

func (c *Collection[T]) UpdateMany(ctx context.Context, filter query.Filter, update query.Update) (query.UpdateResult, error) {
	return c.update(ctx, "update_many", filter, update, false)
}

func (c *Collection[T]) update(
	ctx context.Context,
	op string,
	filter query.Filter,
	update query.Update,
	one bool,
) (query.UpdateResult, error) {
	var res query.UpdateResult
	err := c.withLease(ctx, op, func(db postgres.DB) error {
		var err error
		res, err = c.docs.Update(ctx, db, filter, update, one)
		return err
	})
	return res, err
}

func (c *Collection[T]) DeleteOne(ctx context.Context, filter query.Filter) (query.DeleteResult, error) {
	return c.delete(ctx, "delete_one", filter, true)
}

func (c *Collection[T]) DeleteMany(ctx context.Context, filter query.Filter) (query.DeleteResult, error) {
	return c.delete(ctx, "delete_many", filter, false)
}

func (c *Collection[T]) delete(ctx context.Context, op string, filter query.Filter, one bool) (query.DeleteResult, error) {
	var res query.DeleteResult
	err := c.withLease(ctx, op, func(db postgres.DB) error {
		var err error
		res, err = c.docs.Delete(ctx, db, filter, one)
		return err
	})
	return res, err
}

func (c *Collection[T]) Count(ctx context.Context, filter query.Filter) (int64, error) {
	var n int64
	err := c.withLease(ctx, "count", func(db postgres.DB) error {
		var err error
		n, err = c.docs.Count(ctx, db, filter)
		return err
	})
	return n, err
}

func (c *Collection[T]) Exists(ctx context.Context, filter query.Filter) (bool, error) {
	var ok bool
	err := c.withLease(ctx, "exists", func(db postgres.DB) error {
		var err error
		ok, err = c.docs.Exists(ctx, db, filter)
		return err
	})
	return ok, err
}

// Aggregate runs pipeline and returns its raw output documents. Use
// AggregateAs to decode them.
func (c *Collection[T]) Aggregate(ctx context.Context, pipeline query.Pipeline) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := c.withLease(ctx, "aggregate", func(db postgres.DB) error {
		var err error
		out, err = c.docs.Aggregate(ctx, db, pipeline)
		return err
	})
	return out, err
}

// SyncIndexes makes the database indexes of the collection match the
// schema. Running it again without schema changes does nothing.
func (c *Collection[T]) SyncIndexes(ctx context.Context) error {
	_, err := c.SyncIndexesReport(ctx)
	return err
}

// SyncIndexesReport is SyncIndexes returning what changed.
func (c *Collection[T]) SyncIndexesReport(ctx context.Context) (postgres.IndexSyncReport, error) {
	var report postgres.IndexSyncReport
	err := c.withLease(ctx, "sync_indexes", func(db postgres.DB) error {
		var err error
		report, err = c.docs.SyncIndexes(ctx, db, c.schema.Indexes)
		return err
	})
	return report, err
}

// AggregateAs runs pipeline on m and decodes every output document into A.
func AggregateAs[A any](ctx context.Context, m Aggregator, pipeline query.Pipeline) ([]A, error) {
	docs, err := m.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	return decodeAll[A]("aggregate", docs)
}
