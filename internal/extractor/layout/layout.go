// Package layout implements the Extractor's layout tier (spec.md §4.1):
// a pluggable layout-aware extractor running over OCR'd document text
// blocks. Model is an interface so a real ML-backed implementation can be
// swapped in without touching the cascade (spec.md §9 "Extractor as
// capability").
package layout

import (
	"context"
	"strings"

	"github.com/smallbiznis/cashapp/internal/extractor/pattern"
)

// Block is one OCR'd region of a rendered document page, with the label it
// sits near (if any was detected) — e.g. "Invoice Number", "Bill To".
type Block struct {
	Label string
	Text  string
}

// Model is the pluggable layout-tier contract. A real implementation would
// back this with a local ML model; the reference implementation below is a
// rule+heuristic engine over labeled text blocks.
type Model interface {
	Analyze(ctx context.Context, documentURI string, blocks []Block) (ids []string, confidence float64, err error)
}

// invoiceLabels are block labels the heuristic engine treats as a strong
// signal that nearby text is an invoice identifier.
var invoiceLabels = map[string]bool{
	"invoice number": true,
	"invoice #":      true,
	"invoice id":     true,
	"bill #":         true,
	"reference":      true,
}

// RuleEngine is the reference layout-tier implementation: it reuses the
// pattern tier's regex table but boosts confidence when a match sits inside
// a block labeled as an invoice-identifier field, approximating what a
// layout-aware model would infer from spatial position.
type RuleEngine struct{}

func NewRuleEngine() *RuleEngine { return &RuleEngine{} }

func (e *RuleEngine) Analyze(_ context.Context, _ string, blocks []Block) ([]string, float64, error) {
	var found []string
	seen := map[string]bool{}
	labeledHit := false

	for _, b := range blocks {
		ids, _ := pattern.Extract(b.Text)
		labeled := invoiceLabels[strings.ToLower(strings.TrimSpace(b.Label))]
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			found = append(found, id)
			if labeled {
				labeledHit = true
			}
		}
	}

	if len(found) == 0 {
		return nil, 0, nil
	}

	confidence := 0.6 + 0.1*float64(len(found))
	if labeledHit {
		confidence += 0.2
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return found, confidence, nil
}
