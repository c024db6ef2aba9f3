package query

import (
	"errors"
	"fmt"
	"regexp"
)

var indexNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,29}$`)

// IndexKey is one indexed field.
type IndexKey struct {
	Field string
	Desc  bool
}

// Index is a declared secondary index of a collection.
type Index struct {
	Name   string
	Keys   []IndexKey
	Unique bool
}

func (i Index) Validate() error {
	if !indexNamePattern.MatchString(i.Name) {
		return fmt.Errorf("invalid index name %q", i.Name)
	}
	if len(i.Keys) == 0 {
		return errors.New("index requires at least one key")
	}
	for _, k := range i.Keys {
		if err := ValidateField(k.Field); err != nil {
			return fmt.Errorf("index %q: %w", i.Name, err)
		}
	}
	return nil
}

// UpdateResult reports how many documents matched the filter and how many
// actually changed.
type UpdateResult struct {
	Matched  int64
	Modified int64
}

type DeleteResult struct {
	Deleted int64
}
