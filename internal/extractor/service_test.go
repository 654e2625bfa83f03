package extractor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/cashapp/internal/config"
	"github.com/smallbiznis/cashapp/internal/extractor/cloud"
	"github.com/smallbiznis/cashapp/internal/extractor/domain"
	"github.com/smallbiznis/cashapp/internal/extractor/layout"
	"go.uber.org/zap"
)

type fakeLayoutModel struct {
	ids        []string
	confidence float64
	err        error
}

func (m *fakeLayoutModel) Analyze(_ context.Context, _ string, _ []layout.Block) ([]string, float64, error) {
	return m.ids, m.confidence, m.err
}

func newTestService(t *testing.T, threshold float64, layoutModel layout.Model, cloudClient *cloud.Client) *Service {
	t.Helper()
	return &Service{
		cfg:         config.ExtractorConfig{ConfidenceThreshold: threshold, DefaultTierPreference: "Auto"},
		log:         zap.NewNop(),
		layoutModel: layoutModel,
		cloudClient: cloudClient,
		now:         time.Now,
	}
}

func TestExtractStopsAtPatternTierWhenConfident(t *testing.T) {
	s := newTestService(t, 0.85, &fakeLayoutModel{}, cloud.New("", "", time.Second, 1))

	result, err := s.Extract(context.Background(), domain.ExtractRequest{RemittanceText: "Paid INV-2026-0042 against PO-20260042"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result.TierUsed != domain.TierPattern {
		t.Fatalf("expected TierPattern, got %s", result.TierUsed)
	}
	if result.CostEstimateUSD != 0 {
		t.Fatalf("expected zero cost for pattern tier, got %f", result.CostEstimateUSD)
	}
}

func TestExtractFallsThroughToLayoutTier(t *testing.T) {
	layoutModel := &fakeLayoutModel{ids: []string{"XY-9"}, confidence: 0.9}
	s := newTestService(t, 0.85, layoutModel, cloud.New("", "", time.Second, 1))

	result, err := s.Extract(context.Background(), domain.ExtractRequest{RemittanceText: "thanks for your payment"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result.TierUsed != domain.TierLayout {
		t.Fatalf("expected TierLayout, got %s", result.TierUsed)
	}
	if len(result.InvoiceIDs) != 1 || result.InvoiceIDs[0] != "XY-9" {
		t.Fatalf("unexpected ids: %v", result.InvoiceIDs)
	}
}

func TestExtractFallsThroughToCloudTier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"invoice_ids": []string{"CLOUD-1"}, "confidence": 0.95})
	}))
	defer server.Close()

	s := newTestService(t, 0.85, &fakeLayoutModel{}, cloud.New(server.URL, "", time.Second, 1))

	result, err := s.Extract(context.Background(), domain.ExtractRequest{RemittanceText: "no recognizable pattern"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result.TierUsed != domain.TierCloud {
		t.Fatalf("expected TierCloud, got %s", result.TierUsed)
	}
	if len(result.InvoiceIDs) != 1 || result.InvoiceIDs[0] != "CLOUD-1" {
		t.Fatalf("unexpected ids: %v", result.InvoiceIDs)
	}
}

func TestExtractCloudUnavailableReturnsPartialResults(t *testing.T) {
	layoutModel := &fakeLayoutModel{ids: []string{"PARTIAL-1"}, confidence: 0.5}
	s := newTestService(t, 0.99, layoutModel, cloud.New("", "", 50*time.Millisecond, 0))

	result, err := s.Extract(context.Background(), domain.ExtractRequest{RemittanceText: "no pattern here"})
	if err == nil {
		t.Fatalf("expected ErrExtractorUnavailable")
	}
	if len(result.InvoiceIDs) != 1 || result.InvoiceIDs[0] != "PARTIAL-1" {
		t.Fatalf("expected partial layout-tier results to survive, got %v", result.InvoiceIDs)
	}
}

func TestExtractForcedPatternTierNeverFails(t *testing.T) {
	s := newTestService(t, 0.99, &fakeLayoutModel{}, cloud.New("", "", time.Second, 1))

	result, err := s.Extract(context.Background(), domain.ExtractRequest{TierPreference: domain.TierPatternOnly, RemittanceText: "nothing recognizable"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.InvoiceIDs) != 0 || result.Confidence != 0 {
		t.Fatalf("expected empty zero-confidence result, got %+v", result)
	}
}

func TestExtractRejectsUnknownTierPreference(t *testing.T) {
	s := newTestService(t, 0.85, &fakeLayoutModel{}, cloud.New("", "", time.Second, 1))

	_, err := s.Extract(context.Background(), domain.ExtractRequest{TierPreference: "Bogus"})
	if err != domain.ErrUnknownTierPreference {
		t.Fatalf("expected ErrUnknownTierPreference, got %v", err)
	}
}
