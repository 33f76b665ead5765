// Package sanitizer normalizes booking input before validation and storage.
//
// All functions are idempotent and handle invalid input by returning the
// zero value rather than an error. Class-type normalization is the basis of
// the eligibility check, which fails closed: a type that normalizes to the
// empty string matches nothing.
package sanitizer

import (
	"strings"
	"unicode"
)

func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)

	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool

	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

func NormalizeName(name string) string {
	return TrimAndNormalize(name)
}

// NormalizeClassType lowercases and strips all whitespace, so " Pilates "
// and "pilates" compare equal during eligibility checks.
func NormalizeClassType(classType string) string {
	var result strings.Builder
	for _, r := range strings.ToLower(classType) {
		if !unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeClassTypes normalizes a slice, dropping empties and duplicates
// while preserving order.
func NormalizeClassTypes(types []string) []string {
	seen := make(map[string]struct{}, len(types))
	result := make([]string, 0, len(types))
	for _, t := range types {
		normalized := NormalizeClassType(t)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}
	return result
}
