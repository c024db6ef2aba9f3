package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/compozy/modelstore/engine/core"
	"github.com/compozy/modelstore/engine/query"
	"github.com/compozy/modelstore/pkg/logger"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
)

const indexCommentPrefix = "modelstore:"

// IndexSyncReport lists the physical index names touched by SyncIndexes.
type IndexSyncReport struct {
	Created []string
	Dropped []string
}

func (r IndexSyncReport) Changed() bool { return len(r.Created) > 0 || len(r.Dropped) > 0 }

type existingIndex struct {
	Name    string `db:"name"`
	Comment string `db:"comment"`
}

// indexName is the physical name of a declared index: docidx_<collection>_<name>.
func (d *Documents) indexName(idx query.Index) string {
	return "docidx_" + d.collection + "_" + idx.Name
}

// indexSignature identifies a declared index definition. It is stored as
// the index comment together with the owning collection.
func (d *Documents) indexSignature(idx query.Index) string {
	keys := make([]string, len(idx.Keys))
	for i, k := range idx.Keys {
		dir := "asc"
		if k.Desc {
			dir = "desc"
		}
		keys[i] = k.Field + " " + dir
	}
	sig := indexCommentPrefix + d.collection + ":" + strings.Join(keys, ",")
	if idx.Unique {
		sig += ":unique"
	}
	return sig
}

func (d *Documents) createIndexSQL(idx query.Index) string {
	cols := make([]string, len(idx.Keys))
	for i, k := range idx.Keys {
		col := "(" + fieldExpr(k.Field) + ")"
		if k.Field == query.IDField {
			col = "id"
		}
		if k.Desc {
			col += " DESC"
		}
		cols[i] = col
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf(
		"CREATE %sINDEX %s ON %s (%s) WHERE collection = %s",
		unique, d.indexName(idx), documentsTable, strings.Join(cols, ", "), quoteLiteral(d.collection),
	)
}

// SyncIndexes reconciles the declared indexes with the ones the database
// holds for this collection: stale ones are dropped, changed ones rebuilt
// and missing ones created. When both sides agree nothing is executed
// besides the listing. Indexes of other collections are never touched.
func (d *Documents) SyncIndexes(ctx context.Context, db DB, declared []query.Index) (IndexSyncReport, error) {
	var report IndexSyncReport
	desired := make(map[string]query.Index, len(declared))
	for _, idx := range declared {
		if err := idx.Validate(); err != nil {
			return report, core.NewValidationError("sync indexes", err)
		}
		name := d.indexName(idx)
		if _, dup := desired[name]; dup {
			return report, core.NewValidationError("sync indexes", fmt.Errorf("duplicate index %q", idx.Name))
		}
		desired[name] = idx
	}
	err := withTx(ctx, db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", indexCommentPrefix+d.collection); err != nil {
			return fmt.Errorf("lock collection indexes: %w", err)
		}
		existing, err := d.listIndexes(ctx, tx)
		if err != nil {
			return err
		}
		current := make(map[string]string, len(existing))
		for _, e := range existing {
			current[e.Name] = e.Comment
		}
		for _, e := range existing {
			idx, keep := desired[e.Name]
			if keep && d.indexSignature(idx) == e.Comment {
				continue
			}
			if _, err := tx.Exec(ctx, "DROP INDEX "+e.Name); err != nil {
				return fmt.Errorf("drop index %s: %w", e.Name, err)
			}
			delete(current, e.Name)
			report.Dropped = append(report.Dropped, e.Name)
		}
		names := make([]string, 0, len(desired))
		for name := range desired {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, ok := current[name]; ok {
				continue
			}
			idx := desired[name]
			if _, err := tx.Exec(ctx, d.createIndexSQL(idx)); err != nil {
				return fmt.Errorf("create index %s: %w", name, err)
			}
			comment := "COMMENT ON INDEX " + name + " IS " + quoteLiteral(d.indexSignature(idx))
			if _, err := tx.Exec(ctx, comment); err != nil {
				return fmt.Errorf("comment index %s: %w", name, err)
			}
			report.Created = append(report.Created, name)
		}
		return nil
	})
	if err != nil {
		return IndexSyncReport{}, err
	}
	if report.Changed() {
		logger.FromContext(ctx).Info("Indexes synchronized",
			"collection", d.collection,
			"created", report.Created,
			"dropped", report.Dropped,
		)
	}
	return report, nil
}

// listIndexes returns the indexes owned by this collection, identified by
// their comment.
func (d *Documents) listIndexes(ctx context.Context, db pgxscan.Querier) ([]existingIndex, error) {
	sql, args, err := squirrel.
		Select("c.relname AS name", "obj_description(c.oid, 'pg_class') AS comment").
		From("pg_index i").
		Join("pg_class c ON c.oid = i.indexrelid").
		Where(squirrel.Expr("i.indrelid = ?::regclass", documentsTable)).
		Where(squirrel.Expr("starts_with(obj_description(c.oid, 'pg_class'), ?)", indexCommentPrefix+d.collection+":")).
		OrderBy("c.relname").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build index listing: %w", err)
	}
	var out []existingIndex
	if err := pgxscan.Select(ctx, db, &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	return out, nil
}
