// Package extract derives search text from CRM records. Each entity kind
// consults a fixed subset of properties; unknown kinds fall back to every
// non-null property value.
package extract

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/crmdex/crmdex/internal/crm"
)

// kindFields lists, in order, the properties that contribute to search
// text for each known entity kind.
var kindFields = map[crm.EntityKind][]string{
	crm.KindContacts:    {"firstname", "lastname", "email", "jobtitle", "company", "phone"},
	crm.KindCompanies:   {"name", "domain", "industry", "description", "city", "country"},
	crm.KindDeals:       {"dealname", "dealstage", "pipeline", "closedate", "amount"},
	crm.KindEngagements: {"hs_engagement_type", "hs_engagement_source", "hs_body_preview", "hs_engagement_subject"},
}

// Extractor builds search text from records. ExcludePatterns are
// doublestar globs matched against property names on the fallback path,
// letting operators keep CRM system properties (e.g. "hs_*") out of
// search text for unrecognized kinds.
type Extractor struct {
	ExcludePatterns []string
}

// Extract returns the search text for a record: the kind's fields joined
// by single spaces, with empty values dropped. An empty result marks the
// record as unindexable.
func (e *Extractor) Extract(record crm.Record, kind crm.EntityKind) string {
	fields, ok := kindFields[kind]
	if !ok {
		return e.extractFallback(record)
	}

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		if val := strings.TrimSpace(record.Prop(field)); val != "" {
			parts = append(parts, val)
		}
	}
	return strings.Join(parts, " ")
}

// extractFallback joins the string form of every non-null property value
// in sorted property-name order, skipping excluded names.
func (e *Extractor) extractFallback(record crm.Record) string {
	names := record.PropertyNames()
	parts := make([]string, 0, len(names))
	for _, name := range names {
		if e.excluded(name) {
			continue
		}
		if val := strings.TrimSpace(record.Prop(name)); val != "" {
			parts = append(parts, val)
		}
	}
	return strings.Join(parts, " ")
}

func (e *Extractor) excluded(name string) bool {
	for _, pattern := range e.ExcludePatterns {
		if matched, _ := doublestar.Match(pattern, name); matched {
			return true
		}
	}
	return false
}
