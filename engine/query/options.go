package query

import "fmt"

// SortField orders results by one field.
type SortField struct {
	Field string
	Desc  bool
}

func Asc(field string) SortField  { return SortField{Field: field} }
func Desc(field string) SortField { return SortField{Field: field, Desc: true} }

// FindOptions shape read operations. Zero values mean "no sort override",
// "no limit" and "no skip".
type FindOptions struct {
	Sort  []SortField
	Limit int64
	Skip  int64
}

type FindOption func(*FindOptions)

func WithSort(fields ...SortField) FindOption {
	return func(o *FindOptions) { o.Sort = cloneSort(fields) }
}

func WithLimit(n int64) FindOption {
	return func(o *FindOptions) { o.Limit = n }
}

func WithSkip(n int64) FindOption {
	return func(o *FindOptions) { o.Skip = n }
}

// NewFindOptions applies opts in order.
func NewFindOptions(opts ...FindOption) FindOptions {
	var o FindOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func (o FindOptions) Validate() error {
	if o.Limit < 0 {
		return fmt.Errorf("negative limit %d", o.Limit)
	}
	if o.Skip < 0 {
		return fmt.Errorf("negative skip %d", o.Skip)
	}
	return validateSort(o.Sort)
}

func validateSort(fields []SortField) error {
	for _, s := range fields {
		if err := ValidateField(s.Field); err != nil {
			return fmt.Errorf("sort: %w", err)
		}
	}
	return nil
}

func cloneSort(in []SortField) []SortField {
	if len(in) == 0 {
		return nil
	}
	out := make([]SortField, len(in))
	copy(out, in)
	return out
}
