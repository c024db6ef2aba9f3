// Package model provides the generic document Model capability entity
// modules build on: uniform create, read, update, delete, aggregate and
// index operations over one collection.
package model

import (
	"context"
	"encoding/json"

	"github.com/compozy/modelstore/engine/infra/postgres"
	"github.com/compozy/modelstore/engine/query"
)

// Leaser hands out pooled connections. *postgres.Manager and *postgres.Pool
// both satisfy it; a Manager fails with core.ErrNotInitialized until Setup
// has published its pool.
type Leaser interface {
	Acquire(ctx context.Context) (*postgres.Lease, error)
}

// Schema describes a collection: its identifier and declared indexes.
type Schema struct {
	Name    string
	Indexes []query.Index
}

// Model is the capability every entity gets. Absence is never an error:
// single-document reads return nil.
type Model[T any] interface {
	Name() string
	Create(ctx context.Context, record T) (T, error)
	FindByID(ctx context.Context, id string) (*T, error)
	FindOne(ctx context.Context, filter query.Filter, opts ...query.FindOption) (*T, error)
	Find(ctx context.Context, filter query.Filter, opts ...query.FindOption) ([]T, error)
	Cursor(ctx context.Context, filter query.Filter, opts ...query.FindOption) (*Cursor[T], error)
	FindOneAndUpdate(ctx context.Context, filter query.Filter, update query.Update) (*T, error)
	UpdateOne(ctx context.Context, filter query.Filter, update query.Update) (query.UpdateResult, error)
	UpdateMany(ctx context.Context, filter query.Filter, update query.Update) (query.UpdateResult, error)
	DeleteOne(ctx context.Context, filter query.Filter) (query.DeleteResult, error)
	DeleteMany(ctx context.Context, filter query.Filter) (query.DeleteResult, error)
	Count(ctx context.Context, filter query.Filter) (int64, error)
	Exists(ctx context.Context, filter query.Filter) (bool, error)
	Aggregate(ctx context.Context, pipeline query.Pipeline) ([]json.RawMessage, error)
	SyncIndexes(ctx context.Context) error
}

// Aggregator runs pipelines; every Model is one.
type Aggregator interface {
	Aggregate(ctx context.Context, pipeline query.Pipeline) ([]json.RawMessage, error)
}

// IndexSyncer reconciles declared indexes; every Model is one.
type IndexSyncer interface {
	Name() string
	SyncIndexes(ctx context.Context) error
}
