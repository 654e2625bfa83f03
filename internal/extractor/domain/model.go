// Package domain holds the Extractor's request/response contracts
// (spec.md §4.1): a cascading tier algorithm that turns remittance text and
// document URIs into candidate invoice ids.
package domain

import (
	"context"
	"errors"
)

// TierPreference selects which tier(s) a caller allows Extract to use.
type TierPreference string

const (
	TierAuto   TierPreference = "Auto"
	TierPatternOnly TierPreference = "Pattern"
	TierLayoutOnly  TierPreference = "Layout"
	TierCloudOnly   TierPreference = "Cloud"
)

// Tier identifies which extraction tier actually produced a result.
type Tier string

const (
	TierPattern Tier = "Pattern"
	TierLayout  Tier = "Layout"
	TierCloud   Tier = "Cloud"
	TierNone    Tier = "None"
)

// PerDocumentResult carries the per-document breakdown required by
// spec.md §4.1's output contract.
type PerDocumentResult struct {
	DocumentURI string
	InvoiceIDs  []string
	Tier        Tier
	Confidence  float64
}

// ExtractRequest is the Extractor's input contract.
type ExtractRequest struct {
	DocumentURIs        []string
	RemittanceText      string
	ClientID            string
	TierPreference      TierPreference
	ConfidenceThreshold float64
}

// ExtractResult is the Extractor's output contract.
type ExtractResult struct {
	InvoiceIDs       []string
	Confidence       float64
	TierUsed         Tier
	CostEstimateUSD  float64
	ProcessingTimeMS int64
	PerDocument      []PerDocumentResult
}

// ErrExtractorUnavailable is returned when a forced or cascaded tier that
// requires an external call fails after retries (spec.md §4.1 "Failure
// semantics", §7).
var ErrExtractorUnavailable = errors.New("extractor: unavailable")

// ErrUnknownTierPreference is returned for a tier_preference value outside
// the enumerated set.
var ErrUnknownTierPreference = errors.New("extractor: unknown tier_preference")

// Service is the Extractor's contract (spec.md §4.1 "Contract").
type Service interface {
	Extract(ctx context.Context, req ExtractRequest) (ExtractResult, error)
}
