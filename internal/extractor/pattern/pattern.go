// Package pattern implements the Extractor's pattern tier (spec.md §4.1):
// a fixed ordered set of regular expressions over remittance/OCR text.
// It never fails — absence of a match is a zero-confidence empty result,
// not an error.
package pattern

import (
	"regexp"
	"strings"
)

// strictFormat matches the tightest recognized shape (INV-YYYY-NNNN) and
// contributes the full bounded_format_strictness bonus to the confidence
// heuristic.
var strictFormat = regexp.MustCompile(`(?i)\bINV-\d{4}-\d{3,}\b`)

// looseFormats are additional recognized shapes, checked in order. Matches
// from these do not contribute the strictness bonus.
var looseFormats = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bINV[-_ ]\d{4,}\b`),
	regexp.MustCompile(`(?i)\bInvoice\s*#:?\s*([A-Z0-9-]+)\b`),
	regexp.MustCompile(`(?i)\bBill\s*#:?\s*([A-Z0-9-]+)\b`),
	regexp.MustCompile(`(?i)\bPO[-_ ]?\d{4,}\b`),
}

// Extract applies the ordered pattern table over text, returning
// deduplicated, normalized invoice ids (first-seen order) and a confidence
// heuristic: min(1.0, 0.5 + 0.1*matches_found + 0.2*strictness).
func Extract(text string) ([]string, float64) {
	var found []string
	seen := map[string]bool{}
	strict := false

	appendMatch := func(raw string) {
		id := Normalize(raw)
		if id == "" || seen[id] {
			return
		}
		found = append(found, id)
		seen[id] = true
	}

	// prefixOfExisting reports whether candidate is a truncated prefix of an
	// id already found (e.g. the loose "INV-2026" match subsumed by the
	// strict "INV-2026-0042" match) so it is not double-counted.
	prefixOfExisting := func(candidate string) bool {
		for id := range seen {
			if id != candidate && strings.HasPrefix(id, candidate) {
				return true
			}
		}
		return false
	}

	for _, m := range strictFormat.FindAllString(text, -1) {
		strict = true
		appendMatch(m)
	}
	for _, re := range looseFormats {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			raw := m[0]
			if len(m) > 1 && m[1] != "" {
				raw = m[1]
			}
			if prefixOfExisting(Normalize(raw)) {
				continue
			}
			appendMatch(raw)
		}
	}

	if len(found) == 0 {
		return nil, 0
	}

	strictness := 0.0
	if strict {
		strictness = 1.0
	}
	confidence := 0.5 + 0.1*float64(len(found)) + 0.2*strictness
	if confidence > 1.0 {
		confidence = 1.0
	}
	return found, confidence
}

// Normalize trims whitespace, strips surrounding punctuation, and
// uppercases an extracted id (spec.md §4.1 "Edge cases").
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.Trim(trimmed, ".,;:()[]{}\"'")
	return strings.ToUpper(trimmed)
}
