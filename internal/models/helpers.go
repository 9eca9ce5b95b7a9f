// Package models defines the records, prompt requests and inference results
// shared across the portal.
package models

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// NewRecordID returns a fresh short record ID.
func NewRecordID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}

// SortSpec orders a record listing by one field.
type SortSpec struct {
	Field string
	Desc  bool
}

// ParseSort parses a sort spec such as "-created_at" (descending) or "title".
// An empty string yields the zero SortSpec.
func ParseSort(s string) SortSpec {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		return SortSpec{Field: strings.TrimPrefix(s, "-"), Desc: true}
	}
	return SortSpec{Field: strings.TrimPrefix(s, "+")}
}

var sortFieldPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Valid reports whether Field is safe to interpolate into a query.
func (s SortSpec) Valid() bool {
	return sortFieldPattern.MatchString(s.Field)
}

// String renders the spec back to its textual form.
func (s SortSpec) String() string {
	if s.Field == "" {
		return ""
	}
	if s.Desc {
		return "-" + s.Field
	}
	return s.Field
}
