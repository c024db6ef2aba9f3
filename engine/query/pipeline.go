package query

import (
	"errors"
	"fmt"
)

type StageKind string

const (
	StageMatch   StageKind = "match"
	StageGroup   StageKind = "group"
	StageSort    StageKind = "sort"
	StageLimit   StageKind = "limit"
	StageSkip    StageKind = "skip"
	StageProject StageKind = "project"
)

// GroupKeyField is the output field holding the group key of a Group stage.
const GroupKeyField = "_id"

type AccumulatorFunc string

const (
	AccCount AccumulatorFunc = "count"
	AccSum   AccumulatorFunc = "sum"
	AccAvg   AccumulatorFunc = "avg"
	AccMin   AccumulatorFunc = "min"
	AccMax   AccumulatorFunc = "max"
)

// Accumulator computes one output field per group.
type Accumulator struct {
	Name  string
	Func  AccumulatorFunc
	Field string
}

func Count(name string) Accumulator        { return Accumulator{Name: name, Func: AccCount} }
func Sum(name, field string) Accumulator   { return Accumulator{Name: name, Func: AccSum, Field: field} }
func Avg(name, field string) Accumulator   { return Accumulator{Name: name, Func: AccAvg, Field: field} }
func MinOf(name, field string) Accumulator { return Accumulator{Name: name, Func: AccMin, Field: field} }
func MaxOf(name, field string) Accumulator { return Accumulator{Name: name, Func: AccMax, Field: field} }

// Stage is one step of an aggregation pipeline. Only the fields relevant to
// Kind are read.
type Stage struct {
	Kind         StageKind
	Filter       Filter
	GroupBy      string
	Accumulators []Accumulator
	Sort         []SortField
	N            int64
	Fields       []string
}

// Match keeps documents matching f.
func Match(f Filter) Stage { return Stage{Kind: StageMatch, Filter: f.clone()} }

// Group buckets documents by field (all documents when empty). Output
// documents carry the key under GroupKeyField plus one field per accumulator.
func Group(field string, accs ...Accumulator) Stage {
	cp := make([]Accumulator, len(accs))
	copy(cp, accs)
	return Stage{Kind: StageGroup, GroupBy: field, Accumulators: cp}
}

func SortStage(fields ...SortField) Stage {
	return Stage{Kind: StageSort, Sort: cloneSort(fields)}
}

func Limit(n int64) Stage { return Stage{Kind: StageLimit, N: n} }
func Skip(n int64) Stage  { return Stage{Kind: StageSkip, N: n} }

// Project keeps only fields, keyed by their dotted path. Missing fields are
// left out and stored nulls are kept.
func Project(fields ...string) Stage {
	cp := make([]string, len(fields))
	copy(cp, fields)
	return Stage{Kind: StageProject, Fields: cp}
}

// Pipeline is an ordered sequence of stages run by the store.
type Pipeline []Stage

func NewPipeline(stages ...Stage) Pipeline {
	p := make(Pipeline, len(stages))
	copy(p, stages)
	return p
}

func (p Pipeline) Validate() error {
	for i, s := range p {
		if err := s.validate(); err != nil {
			return fmt.Errorf("stage %d (%s): %w", i, s.Kind, err)
		}
	}
	return nil
}

func (s Stage) validate() error {
	switch s.Kind {
	case StageMatch:
		return s.Filter.Validate()
	case StageGroup:
		return s.validateGroup()
	case StageSort:
		if len(s.Sort) == 0 {
			return errors.New("sort requires at least one field")
		}
		return validateSort(s.Sort)
	case StageLimit, StageSkip:
		if s.N < 0 {
			return fmt.Errorf("negative count %d", s.N)
		}
		return nil
	case StageProject:
		if len(s.Fields) == 0 {
			return errors.New("project requires at least one field")
		}
		for _, f := range s.Fields {
			if err := ValidateField(f); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported stage %q", s.Kind)
	}
}

func (s Stage) validateGroup() error {
	if s.GroupBy != "" {
		if err := ValidateField(s.GroupBy); err != nil {
			return err
		}
	}
	seen := make(map[string]struct{}, len(s.Accumulators))
	for _, acc := range s.Accumulators {
		if err := ValidateField(acc.Name); err != nil {
			return fmt.Errorf("accumulator name: %w", err)
		}
		if acc.Name == GroupKeyField {
			return fmt.Errorf("accumulator name %q is reserved", GroupKeyField)
		}
		if _, dup := seen[acc.Name]; dup {
			return fmt.Errorf("duplicate accumulator %q", acc.Name)
		}
		seen[acc.Name] = struct{}{}
		switch acc.Func {
		case AccCount:
		case AccSum, AccAvg, AccMin, AccMax:
			if err := ValidateField(acc.Field); err != nil {
				return fmt.Errorf("accumulator %q: %w", acc.Name, err)
			}
		default:
			return fmt.Errorf("unsupported accumulator %q", acc.Func)
		}
	}
	return nil
}
