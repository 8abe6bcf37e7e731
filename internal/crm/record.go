package crm

import (
	"fmt"
	"sort"
	"strings"
)

// EntityKind identifies which CRM object type a record belongs to.
// It determines which properties contribute to search text.
type EntityKind string

const (
	KindContacts    EntityKind = "contacts"
	KindCompanies   EntityKind = "companies"
	KindDeals       EntityKind = "deals"
	KindEngagements EntityKind = "engagements"
	KindOther       EntityKind = "other"
)

// ParseEntityKind maps a string to a known EntityKind.
// Unrecognized values fall back to KindOther rather than erroring.
func ParseEntityKind(s string) EntityKind {
	switch EntityKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindContacts:
		return KindContacts
	case KindCompanies:
		return KindCompanies
	case KindDeals:
		return KindDeals
	case KindEngagements:
		return KindEngagements
	default:
		return KindOther
	}
}

// Record is a CRM object as returned by the upstream API: an id plus an
// open-ended properties bag. The search core never mutates a Record.
type Record struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties"`
}

// Prop returns the string form of a property value, or "" when the
// property is missing or null.
func (r Record) Prop(key string) string {
	if r.Properties == nil {
		return ""
	}
	val, ok := r.Properties[key]
	if !ok || val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// PropertyNames returns the record's property names in sorted order,
// giving the extractor a stable iteration order for the fallback path.
func (r Record) PropertyNames() []string {
	names := make([]string, 0, len(r.Properties))
	for name := range r.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
