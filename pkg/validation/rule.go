// Package validation implements the declarative rule language of
// spec.md §4.5: schema / type / range / format / semantic / custom checks
// over a TaskNode's output, with optional auto-fix.
package validation

import "strings"

// Kind is the declarative rule family a rule string selects.
type Kind string

const (
	KindSchema   Kind = "schema"
	KindType     Kind = "type"
	KindRange    Kind = "range"
	KindFormat   Kind = "format"
	KindSemantic Kind = "semantic"
	KindCustom   Kind = "custom"
)

// Parse splits a rule string of the form "<kind>: <rest>" into its kind
// and remainder; a string with no recognized kind prefix defaults to
// KindCustom with the whole string as the predicate expression.
func Parse(rule string) (Kind, string) {
	idx := strings.Index(rule, ":")
	if idx < 0 {
		return KindCustom, rule
	}
	kind := Kind(strings.TrimSpace(rule[:idx]))
	switch kind {
	case KindSchema, KindType, KindRange, KindFormat, KindSemantic:
		return kind, strings.TrimSpace(rule[idx+1:])
	default:
		return KindCustom, rule
	}
}
