package postgres

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/compozy/modelstore/engine/core"
	"github.com/compozy/modelstore/engine/query"
)

const documentsTable = "documents"

// jsonPath renders a validated dotted field as a Postgres text[] literal.
func jsonPath(field string) string {
	return "'{" + strings.Join(query.Path(field), ",") + "}'"
}

// fieldExpr is the jsonb value at field inside doc, NULL when missing.
func fieldExpr(field string) string {
	return "doc #> " + jsonPath(field)
}

// jsonParam encodes v for a "?::text::jsonb" placeholder. Times are encoded
// as core.Timestamp so they compare correctly with stored timestamps.
func jsonParam(v any) (string, error) {
	switch t := v.(type) {
	case time.Time:
		v = core.NewTimestamp(t)
	case *time.Time:
		if t != nil {
			v = core.NewTimestamp(*t)
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}
	return string(raw), nil
}

// jsonType mirrors jsonb_typeof for an encoded value.
func jsonType(raw string) string {
	switch {
	case raw == "null":
		return "null"
	case raw == "true" || raw == "false":
		return "boolean"
	case strings.HasPrefix(raw, `"`):
		return "string"
	case strings.HasPrefix(raw, "{"):
		return "object"
	case strings.HasPrefix(raw, "["):
		return "array"
	default:
		return "number"
	}
}

// compileFilter validates f and turns it into a WHERE fragment over doc.
func compileFilter(f query.Filter) (squirrel.Sqlizer, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return buildFilter(f)
}

func buildFilter(f query.Filter) (squirrel.Sqlizer, error) {
	parts := squirrel.And{}
	for _, c := range f.Conditions {
		s, err := buildCondition(c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	if len(f.Or) > 0 {
		branches := squirrel.Or{}
		for _, o := range f.Or {
			s, err := buildFilter(o)
			if err != nil {
				return nil, err
			}
			branches = append(branches, s)
		}
		parts = append(parts, branches)
	}
	for _, a := range f.And {
		s, err := buildFilter(a)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	return parts, nil
}

func buildCondition(c query.Condition) (squirrel.Sqlizer, error) {
	if c.Field == query.IDField {
		if s, ok := buildIDCondition(c); ok {
			return s, nil
		}
	}
	expr := fieldExpr(c.Field)
	switch c.Op {
	case query.OpExists:
		if c.Value.(bool) {
			return squirrel.Expr(expr + " IS NOT NULL"), nil
		}
		return squirrel.Expr(expr + " IS NULL"), nil
	case query.OpIn:
		return buildIn(expr, c.Value)
	}
	param, err := jsonParam(c.Value)
	if err != nil {
		return nil, fmt.Errorf("filter on %q: %w", c.Field, err)
	}
	switch c.Op {
	case query.OpEq:
		if param == "null" {
			return squirrel.Expr(fmt.Sprintf("(%[1]s IS NULL OR %[1]s = 'null'::jsonb)", expr)), nil
		}
		return squirrel.Expr(expr+" = ?::text::jsonb", param), nil
	case query.OpNe:
		if param == "null" {
			return squirrel.Expr(fmt.Sprintf("(%[1]s IS NOT NULL AND %[1]s <> 'null'::jsonb)", expr)), nil
		}
		return squirrel.Expr(expr+" IS DISTINCT FROM ?::text::jsonb", param), nil
	default:
		// jsonb orders across types, so ranges only compare like with like.
		return squirrel.Expr(
			fmt.Sprintf("(jsonb_typeof(%s) = ? AND %s %s ?::text::jsonb)", expr, expr, rangeOperator(c.Op)),
			jsonType(param), param,
		), nil
	}
}

// buildIDCondition compares string ids against the id column so lookups use
// the primary key.
func buildIDCondition(c query.Condition) (squirrel.Sqlizer, bool) {
	switch c.Op {
	case query.OpEq:
		if id, ok := c.Value.(string); ok {
			return squirrel.Eq{"id": id}, true
		}
	case query.OpNe:
		if id, ok := c.Value.(string); ok {
			return squirrel.NotEq{"id": id}, true
		}
	case query.OpIn:
		if ids, ok := stringValues(c.Value); ok {
			if len(ids) == 0 {
				return squirrel.Expr("FALSE"), true
			}
			return squirrel.Eq{"id": ids}, true
		}
	case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
		if id, ok := c.Value.(string); ok {
			return squirrel.Expr("id "+rangeOperator(c.Op)+" ?", id), true
		}
	}
	return nil, false
}

// stringValues returns the elements of a list when all of them are strings.
func stringValues(values any) ([]string, bool) {
	rv := reflect.ValueOf(values)
	out := make([]string, rv.Len())
	for i := range rv.Len() {
		s, ok := rv.Index(i).Interface().(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

func buildIn(expr string, values any) (squirrel.Sqlizer, error) {
	rv := reflect.ValueOf(values)
	if rv.Len() == 0 {
		return squirrel.Expr("FALSE"), nil
	}
	placeholders := make([]string, rv.Len())
	args := make([]any, rv.Len())
	for i := range rv.Len() {
		param, err := jsonParam(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		placeholders[i] = "?::text::jsonb"
		args[i] = param
	}
	return squirrel.Expr(expr+" IN ("+strings.Join(placeholders, ", ")+")", args...), nil
}

func rangeOperator(op query.Op) string {
	switch op {
	case query.OpGt:
		return ">"
	case query.OpGte:
		return ">="
	case query.OpLt:
		return "<"
	default:
		return "<="
	}
}

// orderBy renders sort fields, always ending with the id so ordering is
// total. Missing fields sort first, as the smallest value.
func orderBy(sort []query.SortField) []string {
	out := make([]string, 0, len(sort)+1)
	for _, s := range sort {
		expr := fieldExpr(s.Field)
		if s.Field == query.IDField {
			expr = "id"
		}
		if s.Desc {
			out = append(out, expr+" DESC NULLS LAST")
			continue
		}
		out = append(out, expr+" ASC NULLS FIRST")
	}
	return append(out, "id ASC")
}
