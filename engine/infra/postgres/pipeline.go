package postgres

import (
	"fmt"
	"sort"
	"strings"

	"github.com/compozy/modelstore/engine/query"
)

// pipelineQuery is the SQL of a pipeline compiled up to some stage. Every
// level yields (id, doc, ord) where ord carries the current ordering, so
// later stages never depend on a subquery preserving ORDER BY.
type pipelineQuery struct {
	sql  string
	args []any
}

func (q pipelineQuery) wrap(sel string, tail string, args ...any) pipelineQuery {
	out := pipelineQuery{
		sql:  fmt.Sprintf("SELECT %s FROM (%s) s%s", sel, q.sql, tail),
		args: append(append([]any{}, q.args...), args...),
	}
	return out
}

// compilePipeline validates p and renders it as a single statement yielding
// one doc column in pipeline order. Placeholders use "?".
func compilePipeline(collection string, p query.Pipeline) (string, []any, error) {
	if err := p.Validate(); err != nil {
		return "", nil, err
	}
	q := pipelineQuery{
		sql:  "SELECT id, doc, row_number() OVER (ORDER BY id) AS ord FROM " + documentsTable + " WHERE collection = ?",
		args: []any{collection},
	}
	for _, st := range p {
		next, err := compileStage(q, st)
		if err != nil {
			return "", nil, err
		}
		q = next
	}
	final := q.wrap("doc", " ORDER BY ord")
	return final.sql, final.args, nil
}

func compileStage(q pipelineQuery, st query.Stage) (pipelineQuery, error) {
	switch st.Kind {
	case query.StageMatch:
		cond, err := buildFilter(st.Filter)
		if err != nil {
			return q, err
		}
		where, args, err := cond.ToSql()
		if err != nil {
			return q, err
		}
		return q.wrap("id, doc, ord", " WHERE "+where, args...), nil
	case query.StageSort:
		keys := make([]string, 0, len(st.Sort)+1)
		for _, s := range st.Sort {
			expr := fieldExpr(s.Field)
			if s.Desc {
				keys = append(keys, expr+" DESC NULLS LAST")
				continue
			}
			keys = append(keys, expr+" ASC NULLS FIRST")
		}
		keys = append(keys, "ord")
		return q.wrap("id, doc, row_number() OVER (ORDER BY "+strings.Join(keys, ", ")+") AS ord", ""), nil
	case query.StageLimit:
		return q.wrap("id, doc, ord", " ORDER BY ord LIMIT ?", st.N), nil
	case query.StageSkip:
		return q.wrap("id, doc, ord", " ORDER BY ord OFFSET ?", st.N), nil
	case query.StageGroup:
		return compileGroup(q, st), nil
	case query.StageProject:
		return q.wrap("id, "+projection(st.Fields)+" AS doc, ord", ""), nil
	default:
		return q, fmt.Errorf("unsupported stage %q", st.Kind)
	}
}

// compileGroup buckets rows by the group key. Documents missing the key
// share the null bucket; groups come out ordered by key.
func compileGroup(q pipelineQuery, st query.Stage) pipelineQuery {
	key := "'null'::jsonb"
	if st.GroupBy != "" {
		key = "COALESCE(" + fieldExpr(st.GroupBy) + ", 'null'::jsonb)"
	}
	keyed := q.wrap(key+" AS k, doc", "")
	pairs := []string{quoteLiteral(query.GroupKeyField), "k"}
	for _, acc := range st.Accumulators {
		pairs = append(pairs, quoteLiteral(acc.Name), accumulatorExpr(acc))
	}
	sel := fmt.Sprintf(
		"k #>> '{}' AS id, jsonb_build_object(%s) AS doc, row_number() OVER (ORDER BY k) AS ord",
		strings.Join(pairs, ", "),
	)
	return keyed.wrap(sel, " GROUP BY k")
}

func accumulatorExpr(acc query.Accumulator) string {
	if acc.Func == query.AccCount {
		return "count(*)"
	}
	value := fmt.Sprintf(
		"CASE WHEN jsonb_typeof(%s) = 'number' THEN (doc #>> %s)::numeric END",
		fieldExpr(acc.Field), jsonPath(acc.Field),
	)
	switch acc.Func {
	case query.AccSum:
		return "COALESCE(sum(" + value + "), 0)"
	case query.AccAvg:
		return "avg(" + value + ")"
	case query.AccMin:
		return "min(" + value + ")"
	default:
		return "max(" + value + ")"
	}
}

// projection builds a nested jsonb_build_object keeping fields plus the
// document and group identifiers.
func projection(fields []string) string {
	root := &projNode{children: map[string]*projNode{}}
	for _, f := range append([]string{query.IDField, query.GroupKeyField}, fields...) {
		node := root
		segs := query.Path(f)
		for i, seg := range segs {
			child, ok := node.children[seg]
			if !ok {
				child = &projNode{
					path:     strings.Join(segs[:i+1], "."),
					children: map[string]*projNode{},
				}
				node.children[seg] = child
			}
			if i == len(segs)-1 {
				child.leaf = true
			}
			node = child
		}
	}
	return root.render()
}

type projNode struct {
	path     string
	leaf     bool
	children map[string]*projNode
}

// render builds the object for n from one fragment per child. A child whose
// path is missing from doc contributes nothing; a stored JSON null is kept.
func (n *projNode) render() string {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names)+1)
	parts = append(parts, "'{}'::jsonb")
	for _, name := range names {
		child := n.children[name]
		expr := fieldExpr(child.path)
		value := expr
		if !child.leaf {
			value = child.render()
		}
		parts = append(parts, fmt.Sprintf(
			"CASE WHEN %s IS NOT NULL THEN jsonb_build_object(%s, %s) ELSE '{}'::jsonb END",
			expr, quoteLiteral(name), value,
		))
	}
	return "(" + strings.Join(parts, " || ") + ")"
}

// quoteLiteral quotes a validated identifier path as a SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
