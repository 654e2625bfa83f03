// Package extractor wires the pattern/layout/cloud tiers behind the
// cascading routing algorithm described in spec.md §4.1.
package extractor

import (
	"context"
	"time"

	"github.com/smallbiznis/cashapp/internal/config"
	"github.com/smallbiznis/cashapp/internal/extractor/cloud"
	"github.com/smallbiznis/cashapp/internal/extractor/domain"
	"github.com/smallbiznis/cashapp/internal/extractor/layout"
	"github.com/smallbiznis/cashapp/internal/extractor/pattern"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// layoutCostUSD/cloudCostUSD are the per-call cost estimates spec.md §4.1
// calls for ("cost is a small per-call amount" for Layout; Cloud vendors
// are typically billed per page).
const (
	layoutCostUSD = 0.01
	cloudCostUSD  = 0.05

	// patternTierConfidenceFloor is the fixed threshold the pattern tier
	// checks against (spec.md §4.1 step 1), independent of the caller's
	// configurable confidence_threshold which only gates Layout/Cloud.
	patternTierConfidenceFloor = 0.85
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

// Service implements domain.Service, cascading through pattern, layout, and
// cloud tiers per spec.md §4.1.
type Service struct {
	cfg         config.ExtractorConfig
	log         *zap.Logger
	layoutModel layout.Model
	cloudClient *cloud.Client
	now         func() time.Time
}

func NewService(p Params) *Service {
	return &Service{
		cfg:         p.Config.Extractor,
		log:         p.Log.Named("extractor"),
		layoutModel: layout.NewRuleEngine(),
		cloudClient: cloud.New(p.Config.Extractor.CloudEndpoint, p.Config.Extractor.CloudAPIKey, p.Config.Extractor.Timeout, p.Config.Extractor.MaxRetries),
		now:         time.Now,
	}
}

var _ domain.Service = (*Service)(nil)

// Extract runs the cascading tier algorithm (spec.md §4.1). Auto mode tries
// Pattern, then Layout, then Cloud, stopping at the first tier whose
// confidence clears the threshold. A forced tier_preference runs only that
// tier and reports its own failures rather than falling through.
func (s *Service) Extract(ctx context.Context, req domain.ExtractRequest) (domain.ExtractResult, error) {
	start := s.now()
	threshold := req.ConfidenceThreshold
	if threshold <= 0 {
		threshold = s.cfg.ConfidenceThreshold
	}

	pref := req.TierPreference
	if pref == "" {
		pref = domain.TierPreference(s.cfg.DefaultTierPreference)
	}

	var result domain.ExtractResult
	var err error
	switch pref {
	case domain.TierAuto:
		result, err = s.runCascade(ctx, req, threshold)
	case domain.TierPatternOnly:
		result, err = s.runPatternOnly(req)
	case domain.TierLayoutOnly:
		result, err = s.runLayoutOnly(ctx, req)
	case domain.TierCloudOnly:
		result, err = s.runCloudOnly(ctx, req)
	default:
		return domain.ExtractResult{}, domain.ErrUnknownTierPreference
	}
	if err != nil {
		result.ProcessingTimeMS = s.now().Sub(start).Milliseconds()
		return result, err
	}

	result.InvoiceIDs = dedupeNormalize(result.InvoiceIDs)
	result.ProcessingTimeMS = s.now().Sub(start).Milliseconds()
	if len(result.InvoiceIDs) == 0 {
		result.Confidence = 0
	}
	return result, nil
}

func (s *Service) runCascade(ctx context.Context, req domain.ExtractRequest, threshold float64) (domain.ExtractResult, error) {
	ids, confidence, perDoc := s.runPattern(req)
	if confidence >= patternTierConfidenceFloor {
		return domain.ExtractResult{InvoiceIDs: ids, Confidence: confidence, TierUsed: domain.TierPattern, CostEstimateUSD: 0, PerDocument: perDoc}, nil
	}

	layoutIDs, layoutConfidence, layoutPerDoc, layoutErr := s.runLayout(ctx, req)
	if layoutErr == nil && layoutConfidence >= threshold {
		return domain.ExtractResult{InvoiceIDs: layoutIDs, Confidence: layoutConfidence, TierUsed: domain.TierLayout, CostEstimateUSD: layoutCostUSD, PerDocument: layoutPerDoc}, nil
	}
	tier := domain.TierPattern
	if layoutConfidence > confidence {
		ids, confidence, perDoc = layoutIDs, layoutConfidence, layoutPerDoc
		tier = domain.TierLayout
	}

	cloudIDs, cloudConfidence, cloudErr := s.runCloudAggregate(ctx, req)
	if cloudErr != nil {
		// Cloud tier errored: propagate ErrExtractorUnavailable but keep
		// whatever earlier tiers already found (spec.md §4.1 "Failure
		// semantics": partial results so the Orchestrator can still match).
		return domain.ExtractResult{InvoiceIDs: ids, Confidence: confidence, TierUsed: tierUsedFor(ids, confidence, tier), CostEstimateUSD: layoutCostUSD, PerDocument: perDoc}, domain.ErrExtractorUnavailable
	}
	if cloudConfidence > confidence {
		ids, confidence = cloudIDs, cloudConfidence
	}
	return domain.ExtractResult{InvoiceIDs: ids, Confidence: confidence, TierUsed: domain.TierCloud, CostEstimateUSD: layoutCostUSD + cloudCostUSD, PerDocument: perDoc}, nil
}

func (s *Service) runPatternOnly(req domain.ExtractRequest) (domain.ExtractResult, error) {
	ids, confidence, perDoc := s.runPattern(req)
	return domain.ExtractResult{InvoiceIDs: ids, Confidence: confidence, TierUsed: domain.TierPattern, PerDocument: perDoc}, nil
}

func (s *Service) runLayoutOnly(ctx context.Context, req domain.ExtractRequest) (domain.ExtractResult, error) {
	ids, confidence, perDoc, err := s.runLayout(ctx, req)
	if err != nil {
		return domain.ExtractResult{}, err
	}
	return domain.ExtractResult{InvoiceIDs: ids, Confidence: confidence, TierUsed: domain.TierLayout, CostEstimateUSD: layoutCostUSD, PerDocument: perDoc}, nil
}

func (s *Service) runCloudOnly(ctx context.Context, req domain.ExtractRequest) (domain.ExtractResult, error) {
	ids, confidence, err := s.runCloudAggregate(ctx, req)
	if err != nil {
		return domain.ExtractResult{}, err
	}
	return domain.ExtractResult{InvoiceIDs: ids, Confidence: confidence, TierUsed: domain.TierCloud, CostEstimateUSD: cloudCostUSD}, nil
}

func (s *Service) runPattern(req domain.ExtractRequest) ([]string, float64, []domain.PerDocumentResult) {
	var perDoc []domain.PerDocumentResult
	ids, confidence := pattern.Extract(req.RemittanceText)
	best := confidence
	for _, uri := range req.DocumentURIs {
		// Document OCR happens upstream of the Extractor; ExtractRequest
		// only carries the union text, so each document's contribution to
		// the per_document breakdown is attributed against that same text.
		docIDs, docConfidence := pattern.Extract(req.RemittanceText)
		perDoc = append(perDoc, domain.PerDocumentResult{DocumentURI: uri, InvoiceIDs: docIDs, Tier: domain.TierPattern, Confidence: docConfidence})
		ids = append(ids, docIDs...)
		if docConfidence > best {
			best = docConfidence
		}
	}
	return ids, best, perDoc
}

func (s *Service) runLayout(ctx context.Context, req domain.ExtractRequest) ([]string, float64, []domain.PerDocumentResult, error) {
	blocks := []layout.Block{{Text: req.RemittanceText}}
	ids, confidence, err := s.layoutModel.Analyze(ctx, "", blocks)
	if err != nil {
		return nil, 0, nil, err
	}
	var perDoc []domain.PerDocumentResult
	for _, uri := range req.DocumentURIs {
		docIDs, docConfidence, docErr := s.layoutModel.Analyze(ctx, uri, blocks)
		if docErr != nil {
			continue
		}
		perDoc = append(perDoc, domain.PerDocumentResult{DocumentURI: uri, InvoiceIDs: docIDs, Tier: domain.TierLayout, Confidence: docConfidence})
		ids = append(ids, docIDs...)
		if docConfidence > confidence {
			confidence = docConfidence
		}
	}
	return ids, confidence, perDoc, nil
}

func (s *Service) runCloudAggregate(ctx context.Context, req domain.ExtractRequest) ([]string, float64, error) {
	ids, confidence, err := s.cloudClient.Analyze(ctx, "", req.RemittanceText)
	if err != nil {
		return nil, 0, err
	}
	for _, uri := range req.DocumentURIs {
		docIDs, docConfidence, docErr := s.cloudClient.Analyze(ctx, uri, req.RemittanceText)
		if docErr != nil {
			return nil, 0, docErr
		}
		ids = append(ids, docIDs...)
		if docConfidence > confidence {
			confidence = docConfidence
		}
	}
	return ids, confidence, nil
}

func tierUsedFor(ids []string, confidence float64, tier domain.Tier) domain.Tier {
	if len(ids) == 0 && confidence == 0 {
		return domain.TierNone
	}
	return tier
}

func dedupeNormalize(ids []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, raw := range ids {
		id := pattern.Normalize(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
