package postgres

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/compozy/modelstore/engine/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB defines the minimal interface needed by the document store.
// This allows pgxpool connections and pgxmock.PgxPoolIface to be used.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var errLeaseReleased = errors.New("postgres: lease already released")

// Lease is a connection borrowed from a Pool. It is owned by a single
// operation and must be released exactly once; Release is idempotent so it
// can be deferred unconditionally.
type Lease struct {
	db       DB
	release  func()
	released atomic.Bool
}

func newLease(db DB, release func()) *Lease {
	return &Lease{db: db, release: release}
}

func (l *Lease) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if l.released.Load() {
		return pgconn.CommandTag{}, errLeaseReleased
	}
	return l.db.Exec(ctx, sql, arguments...)
}

func (l *Lease) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if l.released.Load() {
		return nil, errLeaseReleased
	}
	return l.db.Query(ctx, sql, args...)
}

func (l *Lease) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if l.released.Load() {
		return errRow{err: errLeaseReleased}
	}
	return l.db.QueryRow(ctx, sql, args...)
}

func (l *Lease) Begin(ctx context.Context) (pgx.Tx, error) {
	if l.released.Load() {
		return nil, errLeaseReleased
	}
	return l.db.Begin(ctx)
}

// Release returns the connection to the pool.
func (l *Lease) Release() {
	if !l.released.CompareAndSwap(false, true) {
		return
	}
	if l.release != nil {
		l.release()
	}
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// Stats is a point-in-time snapshot of pool usage.
type Stats struct {
	Total    int32
	Idle     int32
	Acquired int32
	Max      int32
	// Leased counts leases handed out and not yet released.
	Leased int64
}

// Pool is the process-wide connection pool published by Setup. After
// publication only lease bookkeeping changes.
type Pool struct {
	pgx                *pgxpool.Pool
	shared             DB
	leased             atomic.Int64
	metrics            *poolMetrics
	healthCheckTimeout time.Duration
	closeOnce          sync.Once
}

// NewPoolFromDB wraps an existing handle, such as a pgxmock pool. Every lease
// shares db and Close leaves db open.
func NewPoolFromDB(db DB) *Pool {
	return &Pool{shared: db, healthCheckTimeout: defaultHealthCheckTimeout}
}

// Acquire leases one connection. Connections coming from a real pool have
// passed the liveness probe installed by Setup.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	start := time.Now()
	if p.pgx == nil {
		p.leased.Add(1)
		p.metrics.recordWait(ctx, time.Since(start))
		return newLease(p.shared, p.releaseOne), nil
	}
	conn, err := p.pgx.Acquire(ctx)
	if err != nil {
		return nil, core.NewConnectionError("acquire", err)
	}
	p.leased.Add(1)
	p.metrics.recordWait(ctx, time.Since(start))
	return newLease(conn, func() {
		conn.Release()
		p.releaseOne()
	}), nil
}

func (p *Pool) releaseOne() { p.leased.Add(-1) }

// WithTx runs fn inside a transaction on a dedicated lease, committing when
// fn returns nil and rolling back otherwise.
func (p *Pool) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()
	return withTx(ctx, lease, fn)
}

// Ping verifies the pool can reach the server.
func (p *Pool) Ping(ctx context.Context) error {
	timeout := p.healthCheckTimeout
	if timeout <= 0 {
		timeout = defaultHealthCheckTimeout
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var err error
	switch {
	case p.pgx != nil:
		err = p.pgx.Ping(hctx)
	default:
		if pinger, ok := p.shared.(interface{ Ping(context.Context) error }); ok {
			err = pinger.Ping(hctx)
		}
	}
	if err != nil {
		return core.NewConnectionError("ping", err)
	}
	return nil
}

func (p *Pool) Stats() Stats {
	s := Stats{Leased: p.leased.Load()}
	if p.pgx != nil {
		st := p.pgx.Stat()
		s.Total = st.TotalConns()
		s.Idle = st.IdleConns()
		s.Acquired = st.AcquiredConns()
		s.Max = st.MaxConns()
	}
	return s
}

// Close shuts down the pool. Later calls are no-ops.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.metrics.unregister()
		if p.pgx != nil {
			p.pgx.Close()
		}
	})
}
