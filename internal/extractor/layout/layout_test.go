package layout

import (
	"context"
	"testing"
)

func TestRuleEngineBoostsConfidenceForLabeledBlock(t *testing.T) {
	engine := NewRuleEngine()

	labeled, _, err := engine.Analyze(context.Background(), "doc-1", []Block{
		{Label: "Invoice Number", Text: "INV-2026-0099"},
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	unlabeled, _, err := engine.Analyze(context.Background(), "doc-2", []Block{
		{Label: "Footer", Text: "INV-2026-0099"},
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(labeled) != 1 || labeled[0] != "INV-2026-0099" {
		t.Fatalf("unexpected ids: %v", labeled)
	}

	_, labeledConfidence, _ := engine.Analyze(context.Background(), "doc-1", []Block{{Label: "Invoice Number", Text: "INV-2026-0099"}})
	_, unlabeledConfidence, _ := engine.Analyze(context.Background(), "doc-2", []Block{{Label: "Footer", Text: "INV-2026-0099"}})
	if labeledConfidence <= unlabeledConfidence {
		t.Fatalf("expected labeled block to score higher: labeled=%f unlabeled=%f", labeledConfidence, unlabeledConfidence)
	}
	_ = unlabeled
}

func TestRuleEngineNoMatchReturnsZeroConfidence(t *testing.T) {
	engine := NewRuleEngine()
	ids, confidence, err := engine.Analyze(context.Background(), "doc-1", []Block{{Text: "nothing of interest"}})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if ids != nil || confidence != 0 {
		t.Fatalf("expected empty result, got ids=%v confidence=%f", ids, confidence)
	}
}
