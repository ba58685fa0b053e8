package validation

import (
	"fmt"
	"regexp"
)

var formatPatterns = map[string]*regexp.Regexp{
	"email": regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`),
	"url":   regexp.MustCompile(`^https?://[^\s/$.?#].[^\s]*$`),
	"uuid":  regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`),
	"date":  regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
}

// checkFormat matches output_data["value"] against a fixed regex for
// rest. No auto-fix, per spec.md §4.5.
func checkFormat(rest string, output map[string]any) Result {
	pattern, ok := formatPatterns[rest]
	if !ok {
		return Result{Passed: false, Message: fmt.Sprintf("unknown format: %s", rest)}
	}
	v, ok := output[valueKey]
	if !ok {
		return Result{Passed: false, Message: fmt.Sprintf("output has no %q field", valueKey)}
	}
	s, ok := v.(string)
	if !ok {
		return Result{Passed: false, Message: fmt.Sprintf("%q is not a string", valueKey)}
	}
	if pattern.MatchString(s) {
		return Result{Passed: true, ConfidenceScore: 1}
	}
	return Result{
		Passed:   false,
		Expected: rest,
		Actual:   s,
		Message:  fmt.Sprintf("value does not match %s format", rest),
	}
}
