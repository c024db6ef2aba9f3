package model

import (
	"iter"

	"github.com/compozy/modelstore/engine/infra/postgres"
	"github.com/jackc/pgx/v5"
)

// Cursor iterates lazily over query results. It is single-pass and not safe
// for concurrent use. The lease behind it is returned as soon as the
// results are exhausted, an error occurs or Close is called.
type Cursor[T any] struct {
	rows    pgx.Rows
	lease   *postgres.Lease
	current T
	err     error
	closed  bool
}

func newCursor[T any](rows pgx.Rows, lease *postgres.Lease) *Cursor[T] {
	return &Cursor[T]{rows: rows, lease: lease}
}

// Next advances to the next document, returning false at the end or on
// error.
func (c *Cursor[T]) Next() bool {
	if c.closed {
		return false
	}
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			c.err = postgres.MapError("cursor", err)
		}
		c.Close()
		return false
	}
	var (
		id  string
		raw []byte
	)
	if err := c.rows.Scan(&id, &raw); err != nil {
		c.err = postgres.MapError("cursor", err)
		c.Close()
		return false
	}
	v, err := decode[T]("cursor", raw)
	if err != nil {
		c.err = err
		c.Close()
		return false
	}
	c.current = v
	return true
}

// Current returns the document Next advanced to.
func (c *Cursor[T]) Current() T { return c.current }

func (c *Cursor[T]) Err() error { return c.err }

// Close releases the rows and the lease. It is safe to call more than once.
func (c *Cursor[T]) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.rows.Close()
	c.lease.Release()
}

// All drains the cursor.
func (c *Cursor[T]) All() ([]T, error) {
	defer c.Close()
	var out []T
	for c.Next() {
		out = append(out, c.current)
	}
	return out, c.err
}

// Seq ranges over the remaining documents. A failure is yielded once as
// the final pair; breaking out early closes the cursor.
func (c *Cursor[T]) Seq() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer c.Close()
		for c.Next() {
			if !yield(c.current, nil) {
				return
			}
		}
		if c.err != nil {
			var zero T
			yield(zero, c.err)
		}
	}
}
