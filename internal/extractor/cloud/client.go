// Package cloud implements the Extractor's cloud tier (spec.md §4.1): an
// HTTP client to an external form-recognition service, built the same way
// the ERP adapters build outbound calls — bounded timeout, retried,
// encoding/json request/response.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/smallbiznis/cashapp/internal/extractor/domain"
)

// Client calls an external form-recognition endpoint to extract invoice ids
// from a document. Timeouts are retried at most twice with exponential
// backoff (spec.md §4.1 "Failure semantics").
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	maxRetries int
}

func New(endpoint, apiKey string, timeout time.Duration, maxRetries int) *Client {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}
}

type request struct {
	DocumentURI string `json:"document_uri"`
	Text        string `json:"text"`
}

type response struct {
	InvoiceIDs []string `json:"invoice_ids"`
	Confidence float64  `json:"confidence"`
}

// Analyze calls the external endpoint once per retry attempt, backing off
// exponentially between attempts. A failure on the final attempt surfaces
// domain.ErrExtractorUnavailable.
func (c *Client) Analyze(ctx context.Context, documentURI, text string) ([]string, float64, error) {
	if c.endpoint == "" {
		return nil, 0, domain.ErrExtractorUnavailable
	}

	backoffDelay := 200 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, 0, errors.Join(domain.ErrExtractorUnavailable, ctx.Err())
			case <-time.After(backoffDelay):
			}
			backoffDelay *= 2
		}

		ids, confidence, err := c.call(ctx, documentURI, text)
		if err == nil {
			return ids, confidence, nil
		}
		lastErr = err
	}
	return nil, 0, errors.Join(domain.ErrExtractorUnavailable, lastErr)
}

func (c *Client) call(ctx context.Context, documentURI, text string) ([]string, float64, error) {
	body, err := json.Marshal(request{DocumentURI: documentURI, Text: text})
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, 0, errors.New("cloud extractor: unexpected status " + resp.Status)
	}

	var wire response
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, 0, err
	}
	return wire.InvoiceIDs, wire.Confidence, nil
}
