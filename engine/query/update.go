package query

import (
	"errors"
	"fmt"
	"strings"
)

type UpdateOp string

const (
	UpdateSet   UpdateOp = "set"
	UpdateInc   UpdateOp = "inc"
	UpdateUnset UpdateOp = "unset"
)

// FieldUpdate is one change applied to a document field.
type FieldUpdate struct {
	Op    UpdateOp
	Field string
	Value any
}

// Update is an ordered list of field changes applied atomically to each
// matched document.
type Update struct {
	Ops []FieldUpdate
}

func Set(field string, value any) Update { return Update{}.Set(field, value) }
func Inc(field string, delta any) Update { return Update{}.Inc(field, delta) }
func Unset(field string) Update          { return Update{}.Unset(field) }

func (u Update) Set(field string, value any) Update {
	return u.with(FieldUpdate{Op: UpdateSet, Field: field, Value: value})
}

// Inc adds delta to a numeric field; a missing field counts as zero.
func (u Update) Inc(field string, delta any) Update {
	return u.with(FieldUpdate{Op: UpdateInc, Field: field, Value: delta})
}

func (u Update) Unset(field string) Update {
	return u.with(FieldUpdate{Op: UpdateUnset, Field: field})
}

func (u Update) with(op FieldUpdate) Update {
	ops := make([]FieldUpdate, 0, len(u.Ops)+1)
	ops = append(ops, u.Ops...)
	ops = append(ops, op)
	return Update{Ops: ops}
}

func (u Update) IsEmpty() bool { return len(u.Ops) == 0 }

// Validate rejects empty updates, invalid paths, changes to the id,
// overlapping fields and non-numeric increments.
func (u Update) Validate() error {
	if u.IsEmpty() {
		return errors.New("update has no operations")
	}
	for i, op := range u.Ops {
		if err := ValidateField(op.Field); err != nil {
			return err
		}
		if op.Field == IDField {
			return errors.New("document id cannot be updated")
		}
		for _, prev := range u.Ops[:i] {
			if overlaps(prev.Field, op.Field) {
				return fmt.Errorf("conflicting updates on %q and %q", prev.Field, op.Field)
			}
		}
		switch op.Op {
		case UpdateSet, UpdateUnset:
		case UpdateInc:
			if !isNumber(op.Value) {
				return fmt.Errorf("inc on %q requires a numeric delta, got %T", op.Field, op.Value)
			}
		default:
			return fmt.Errorf("unsupported update operation %q", op.Op)
		}
	}
	return nil
}

// overlaps reports whether one path equals or contains the other.
func overlaps(a, b string) bool {
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+".") || strings.HasPrefix(b, a+".")
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}
