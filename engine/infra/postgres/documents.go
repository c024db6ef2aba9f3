package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/Masterminds/squirrel"
	"github.com/compozy/modelstore/engine/core"
	"github.com/compozy/modelstore/engine/query"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
)

var collectionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,19}$`)

// ValidateCollection checks a collection name. Names end up in index names
// and partial index predicates.
func ValidateCollection(name string) error {
	if !collectionPattern.MatchString(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}

// Documents runs document statements for one collection of the documents
// table. It holds no connection; every call runs on the DB it is given,
// normally a Lease.
type Documents struct {
	collection string
	sb         squirrel.StatementBuilderType
}

func NewDocuments(collection string) (*Documents, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, core.NewConfigurationError("documents", err)
	}
	return &Documents{
		collection: collection,
		sb:         squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

func (d *Documents) Collection() string { return d.collection }

type documentRow struct {
	ID  string          `db:"id"`
	Doc json.RawMessage `db:"doc"`
}

func (d *Documents) scope() squirrel.Eq {
	return squirrel.Eq{"collection": d.collection}
}

// where compiles filter scoped to the collection.
func (d *Documents) where(filter query.Filter) (squirrel.And, error) {
	cond, err := compileFilter(filter)
	if err != nil {
		return nil, core.NewValidationError("filter", err)
	}
	return squirrel.And{d.scope(), cond}, nil
}

// Insert stores doc under id and returns the stored document.
func (d *Documents) Insert(ctx context.Context, db DB, id string, doc []byte) (json.RawMessage, error) {
	sql, args, err := d.sb.Insert(documentsTable).
		Columns("collection", "id", "doc").
		Values(d.collection, id, squirrel.Expr("?::text::jsonb", string(doc))).
		Suffix("RETURNING doc").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}
	var stored json.RawMessage
	if err := db.QueryRow(ctx, sql, args...).Scan(&stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// Get returns the document with id, or nil when absent.
func (d *Documents) Get(ctx context.Context, db DB, id string) (json.RawMessage, error) {
	sql, args, err := d.sb.Select("doc").
		From(documentsTable).
		Where(d.scope()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get: %w", err)
	}
	var doc json.RawMessage
	if err := db.QueryRow(ctx, sql, args...).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}

func (d *Documents) selectBuilder(filter query.Filter, opts query.FindOptions) (squirrel.SelectBuilder, error) {
	if err := opts.Validate(); err != nil {
		return squirrel.SelectBuilder{}, core.NewValidationError("find options", err)
	}
	where, err := d.where(filter)
	if err != nil {
		return squirrel.SelectBuilder{}, err
	}
	b := d.sb.Select("id", "doc").
		From(documentsTable).
		Where(where).
		OrderBy(orderBy(opts.Sort)...)
	if opts.Limit > 0 {
		b = b.Limit(uint64(opts.Limit))
	}
	if opts.Skip > 0 {
		b = b.Offset(uint64(opts.Skip))
	}
	return b, nil
}

// Query streams matching documents; the caller owns the rows.
func (d *Documents) Query(ctx context.Context, db DB, filter query.Filter, opts query.FindOptions) (pgx.Rows, error) {
	b, err := d.selectBuilder(filter, opts)
	if err != nil {
		return nil, err
	}
	sql, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find: %w", err)
	}
	return db.Query(ctx, sql, args...)
}

// Select materializes matching documents.
func (d *Documents) Select(
	ctx context.Context,
	db DB,
	filter query.Filter,
	opts query.FindOptions,
) ([]json.RawMessage, error) {
	b, err := d.selectBuilder(filter, opts)
	if err != nil {
		return nil, err
	}
	sql, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find: %w", err)
	}
	var rows []documentRow
	if err := pgxscan.Select(ctx, db, &rows, sql, args...); err != nil {
		return nil, err
	}
	docs := make([]json.RawMessage, len(rows))
	for i := range rows {
		docs[i] = rows[i].Doc
	}
	return docs, nil
}

// firstMatch selects the id of the first matching document, locking it.
func (d *Documents) firstMatch(filter query.Filter, sort []query.SortField) (string, []any, error) {
	where, err := d.where(filter)
	if err != nil {
		return "", nil, err
	}
	return squirrel.Select("id").
		From(documentsTable).
		Where(where).
		OrderBy(orderBy(sort)...).
		Limit(1).
		Suffix("FOR UPDATE").
		ToSql()
}

// FindOneAndUpdate applies update to the first matching document in a
// single statement and returns the document after the update, or nil when
// nothing matched.
func (d *Documents) FindOneAndUpdate(
	ctx context.Context,
	db DB,
	filter query.Filter,
	update query.Update,
	sort ...query.SortField,
) (json.RawMessage, error) {
	expr, err := compileUpdate(update)
	if err != nil {
		return nil, core.NewValidationError("update", err)
	}
	exprSQL, exprArgs, err := expr.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}
	matchSQL, matchArgs, err := d.firstMatch(filter, sort)
	if err != nil {
		return nil, err
	}
	raw := "UPDATE " + documentsTable + " SET doc = " + exprSQL + ", updated_at = now()" +
		" WHERE collection = ? AND id = (" + matchSQL + ") RETURNING doc"
	args := append(append(append([]any{}, exprArgs...), d.collection), matchArgs...)
	sql, err := squirrel.Dollar.ReplacePlaceholders(raw)
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}
	var doc json.RawMessage
	if err := db.QueryRow(ctx, sql, args...).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}

// Update applies update to the first (one) or every matching document.
// Matched counts every selected document; Modified only those whose content
// changed.
func (d *Documents) Update(
	ctx context.Context,
	db DB,
	filter query.Filter,
	update query.Update,
	one bool,
) (query.UpdateResult, error) {
	var res query.UpdateResult
	expr, err := compileUpdate(update)
	if err != nil {
		return res, core.NewValidationError("update", err)
	}
	exprSQL, exprArgs, err := expr.ToSql()
	if err != nil {
		return res, fmt.Errorf("build update: %w", err)
	}
	where, err := d.where(filter)
	if err != nil {
		return res, err
	}
	match := squirrel.Select("id").From(documentsTable).Where(where).OrderBy("id")
	if one {
		match = match.Limit(1)
	}
	matchSQL, matchArgs, err := match.Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return res, fmt.Errorf("build update: %w", err)
	}
	raw := "WITH matched AS (" + matchSQL + "), updated AS (" +
		"UPDATE " + documentsTable + " SET doc = " + exprSQL + ", updated_at = now()" +
		" FROM matched WHERE " + documentsTable + ".collection = ? AND " + documentsTable + ".id = matched.id" +
		" AND " + documentsTable + ".doc IS DISTINCT FROM " + exprSQL +
		" RETURNING 1) SELECT (SELECT count(*) FROM matched), (SELECT count(*) FROM updated)"
	args := make([]any, 0, len(matchArgs)+2*len(exprArgs)+1)
	args = append(args, matchArgs...)
	args = append(args, exprArgs...)
	args = append(args, d.collection)
	args = append(args, exprArgs...)
	sql, err := squirrel.Dollar.ReplacePlaceholders(raw)
	if err != nil {
		return res, fmt.Errorf("build update: %w", err)
	}
	if err := db.QueryRow(ctx, sql, args...).Scan(&res.Matched, &res.Modified); err != nil {
		return query.UpdateResult{}, err
	}
	return res, nil
}

// Delete removes the first (one) or every matching document.
func (d *Documents) Delete(ctx context.Context, db DB, filter query.Filter, one bool) (query.DeleteResult, error) {
	var res query.DeleteResult
	b := d.sb.Delete(documentsTable).Where(d.scope())
	if one {
		matchSQL, matchArgs, err := d.firstMatch(filter, nil)
		if err != nil {
			return res, err
		}
		b = b.Where(squirrel.Expr("id = ("+matchSQL+")", matchArgs...))
	} else {
		where, err := d.where(filter)
		if err != nil {
			return res, err
		}
		b = b.Where(where)
	}
	sql, args, err := b.ToSql()
	if err != nil {
		return res, fmt.Errorf("build delete: %w", err)
	}
	tag, err := db.Exec(ctx, sql, args...)
	if err != nil {
		return res, err
	}
	res.Deleted = tag.RowsAffected()
	return res, nil
}

func (d *Documents) Count(ctx context.Context, db DB, filter query.Filter) (int64, error) {
	where, err := d.where(filter)
	if err != nil {
		return 0, err
	}
	sql, args, err := d.sb.Select("count(*)").From(documentsTable).Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int64
	if err := db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (d *Documents) Exists(ctx context.Context, db DB, filter query.Filter) (bool, error) {
	where, err := d.where(filter)
	if err != nil {
		return false, err
	}
	inner, args, err := squirrel.Select("1").From(documentsTable).Where(where).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists: %w", err)
	}
	sql, err := squirrel.Dollar.ReplacePlaceholders("SELECT EXISTS (" + inner + ")")
	if err != nil {
		return false, fmt.Errorf("build exists: %w", err)
	}
	var ok bool
	if err := db.QueryRow(ctx, sql, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Aggregate runs pipeline over the collection and returns the output
// documents in pipeline order.
func (d *Documents) Aggregate(ctx context.Context, db DB, pipeline query.Pipeline) ([]json.RawMessage, error) {
	raw, args, err := compilePipeline(d.collection, pipeline)
	if err != nil {
		return nil, core.NewValidationError("pipeline", err)
	}
	sql, err := squirrel.Dollar.ReplacePlaceholders(raw)
	if err != nil {
		return nil, fmt.Errorf("build aggregate: %w", err)
	}
	var rows []struct {
		Doc json.RawMessage `db:"doc"`
	}
	if err := pgxscan.Select(ctx, db, &rows, sql, args...); err != nil {
		return nil, err
	}
	docs := make([]json.RawMessage, len(rows))
	for i := range rows {
		docs[i] = rows[i].Doc
	}
	return docs, nil
}
