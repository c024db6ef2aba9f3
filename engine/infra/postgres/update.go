package postgres

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/compozy/modelstore/engine/query"
)

// compileUpdate validates u and returns an expression computing the new
// document from the current doc column. Increments read the stored value,
// which is sound because Validate rejects overlapping fields.
func compileUpdate(u query.Update) (squirrel.Sqlizer, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	expr := ensureParents(u)
	var args []any
	for _, op := range u.Ops {
		path := jsonPath(op.Field)
		switch op.Op {
		case query.UpdateSet:
			param, err := jsonParam(op.Value)
			if err != nil {
				return nil, fmt.Errorf("set %q: %w", op.Field, err)
			}
			expr = fmt.Sprintf("jsonb_set(%s, %s, ?::text::jsonb, true)", expr, path)
			args = append(args, param)
		case query.UpdateInc:
			expr = fmt.Sprintf(
				"jsonb_set(%s, %s, to_jsonb(COALESCE((doc #>> %s)::numeric, 0) + ?::numeric), true)",
				expr, path, path,
			)
			args = append(args, op.Value)
		case query.UpdateUnset:
			expr = fmt.Sprintf("(%s #- %s)", expr, path)
		}
	}
	return squirrel.Expr(expr, args...), nil
}

// ensureParents creates the intermediate objects nested set and inc
// operations write into. Each parent is taken from the stored document, or
// replaced by an empty object when it is missing or not an object.
func ensureParents(u query.Update) string {
	seen := map[string]struct{}{}
	var parents []string
	for _, op := range u.Ops {
		if op.Op == query.UpdateUnset {
			continue
		}
		segs := query.Path(op.Field)
		for i := 1; i < len(segs); i++ {
			p := strings.Join(segs[:i], ".")
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			parents = append(parents, p)
		}
	}
	sort.SliceStable(parents, func(i, j int) bool {
		return strings.Count(parents[i], ".") < strings.Count(parents[j], ".")
	})
	expr := "doc"
	for _, p := range parents {
		current := fieldExpr(p)
		expr = fmt.Sprintf(
			"jsonb_set(%s, %s, CASE WHEN jsonb_typeof(%s) = 'object' THEN %s ELSE '{}'::jsonb END, true)",
			expr, jsonPath(p), current, current,
		)
	}
	return expr
}
