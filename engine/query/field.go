package query

import (
	"fmt"
	"regexp"
	"strings"
)

// IDField addresses the document identifier in filters and sorts.
const IDField = "id"

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ValidateField checks a dotted field path. Paths end up inside SQL text,
// so only identifier-like segments are accepted.
func ValidateField(field string) error {
	if field == "" {
		return fmt.Errorf("field path is required")
	}
	if !fieldPattern.MatchString(field) {
		return fmt.Errorf("invalid field path %q", field)
	}
	return nil
}

// Path splits a dotted field path into its segments.
func Path(field string) []string {
	return strings.Split(field, ".")
}
