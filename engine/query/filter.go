package query

import (
	"errors"
	"fmt"
	"reflect"
)

type Op string

const (
	OpEq     Op = "eq"
	OpNe     Op = "ne"
	OpGt     Op = "gt"
	OpGte    Op = "gte"
	OpLt     Op = "lt"
	OpLte    Op = "lte"
	OpIn     Op = "in"
	OpExists Op = "exists"
)

// Condition compares one field against a value.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Filter selects documents. Conditions are ANDed together; when Or is set at
// least one of its branches must also match, and every filter in And must
// match. The zero Filter matches every document.
type Filter struct {
	Conditions []Condition
	Or         []Filter
	And        []Filter
}

// All returns the filter matching every document.
func All() Filter { return Filter{} }

func condition(field string, op Op, value any) Filter {
	return Filter{Conditions: []Condition{{Field: field, Op: op, Value: value}}}
}

func Eq(field string, value any) Filter  { return condition(field, OpEq, value) }
func Ne(field string, value any) Filter  { return condition(field, OpNe, value) }
func Gt(field string, value any) Filter  { return condition(field, OpGt, value) }
func Gte(field string, value any) Filter { return condition(field, OpGte, value) }
func Lt(field string, value any) Filter  { return condition(field, OpLt, value) }
func Lte(field string, value any) Filter { return condition(field, OpLte, value) }

// In matches documents whose field equals any of values.
func In(field string, values ...any) Filter {
	cp := make([]any, len(values))
	copy(cp, values)
	return condition(field, OpIn, cp)
}

// Exists matches on presence (or absence) of field.
func Exists(field string, exists bool) Filter { return condition(field, OpExists, exists) }

// ByID matches the document with the given id.
func ByID(id string) Filter { return Eq(IDField, id) }

// Or matches when any of filters matches.
func Or(filters ...Filter) Filter {
	return Filter{Or: cloneFilters(filters)}
}

// And combines f with others; all of them must match.
func (f Filter) And(others ...Filter) Filter {
	if f.isFlat() && allFlat(others) {
		out := Filter{Conditions: cloneConditions(f.Conditions)}
		for _, o := range others {
			out.Conditions = append(out.Conditions, o.Conditions...)
		}
		return out
	}
	parts := make([]Filter, 0, len(others)+1)
	parts = append(parts, f.clone())
	parts = append(parts, cloneFilters(others)...)
	return Filter{And: parts}
}

// IsEmpty reports whether f matches every document.
func (f Filter) IsEmpty() bool {
	if len(f.Conditions) > 0 || len(f.Or) > 0 {
		return false
	}
	for _, a := range f.And {
		if !a.IsEmpty() {
			return false
		}
	}
	return true
}

// Validate checks field paths and operator arguments recursively.
func (f Filter) Validate() error {
	for _, c := range f.Conditions {
		if err := c.validate(); err != nil {
			return err
		}
	}
	for _, o := range f.Or {
		if err := o.Validate(); err != nil {
			return err
		}
	}
	for _, a := range f.And {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c Condition) validate() error {
	if err := ValidateField(c.Field); err != nil {
		return err
	}
	switch c.Op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		return nil
	case OpIn:
		if c.Value == nil {
			return fmt.Errorf("in on %q requires a list of values", c.Field)
		}
		if k := reflect.TypeOf(c.Value).Kind(); k != reflect.Slice && k != reflect.Array {
			return fmt.Errorf("in on %q requires a list of values", c.Field)
		}
		return nil
	case OpExists:
		if _, ok := c.Value.(bool); !ok {
			return fmt.Errorf("exists on %q requires a boolean", c.Field)
		}
		return nil
	case "":
		return errors.New("condition operator is required")
	default:
		return fmt.Errorf("unsupported operator %q", c.Op)
	}
}

func (f Filter) isFlat() bool { return len(f.Or) == 0 && len(f.And) == 0 }

func allFlat(filters []Filter) bool {
	for _, f := range filters {
		if !f.isFlat() {
			return false
		}
	}
	return true
}

func (f Filter) clone() Filter {
	return Filter{
		Conditions: cloneConditions(f.Conditions),
		Or:         cloneFilters(f.Or),
		And:        cloneFilters(f.And),
	}
}

func cloneConditions(in []Condition) []Condition {
	if len(in) == 0 {
		return nil
	}
	out := make([]Condition, len(in))
	copy(out, in)
	return out
}

func cloneFilters(in []Filter) []Filter {
	if len(in) == 0 {
		return nil
	}
	out := make([]Filter, len(in))
	for i := range in {
		out[i] = in[i].clone()
	}
	return out
}

// FieldRef builds conditions on a single field: Where("age").Gte(18).
type FieldRef string

func Where(field string) FieldRef { return FieldRef(field) }

func (f FieldRef) Eq(value any) Filter     { return Eq(string(f), value) }
func (f FieldRef) Ne(value any) Filter     { return Ne(string(f), value) }
func (f FieldRef) Gt(value any) Filter     { return Gt(string(f), value) }
func (f FieldRef) Gte(value any) Filter    { return Gte(string(f), value) }
func (f FieldRef) Lt(value any) Filter     { return Lt(string(f), value) }
func (f FieldRef) Lte(value any) Filter    { return Lte(string(f), value) }
func (f FieldRef) In(values ...any) Filter { return In(string(f), values...) }
func (f FieldRef) Exists(exists bool) Filter {
	return Exists(string(f), exists)
}
