// Package generic implements a configurable REST adapter for ERP systems
// that do not warrant a dedicated variant: endpoint paths, the auth header
// name/value, and field mappings all come from AdapterConfig.Config.
package generic

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/cashapp/internal/erp/domain"
	"github.com/smallbiznis/cashapp/internal/money"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Kind() string { return "generic" }

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	if cfg.BaseURL == "" {
		return nil, domain.ErrInvalidConfig
	}
	authHeader, _ := readString(cfg.Config, "auth_header")
	authValue, _ := readString(cfg.Config, "auth_value")
	fetchPath, ok := readString(cfg.Config, "fetch_path")
	if !ok || fetchPath == "" {
		fetchPath = "/invoices/search"
	}
	postPath, ok := readString(cfg.Config, "post_path")
	if !ok || postPath == "" {
		postPath = "/applications"
	}
	healthPath, ok := readString(cfg.Config, "health_path")
	if !ok || healthPath == "" {
		healthPath = "/health"
	}
	erpSystem, _ := readString(cfg.Config, "erp_system_name")
	if erpSystem == "" {
		erpSystem = cfg.ERPSystem
	}

	return &Adapter{
		erpSystem:  erpSystem,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authHeader: authHeader,
		authValue:  authValue,
		fetchPath:  fetchPath,
		postPath:   postPath,
		healthPath: healthPath,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type Adapter struct {
	erpSystem  string
	baseURL    string
	authHeader string
	authValue  string
	fetchPath  string
	postPath   string
	healthPath string
	httpClient *http.Client
}

func (a *Adapter) ERPSystem() string { return a.erpSystem }

func (a *Adapter) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if a.authHeader != "" {
		req.Header.Set(a.authHeader, a.authValue)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (a *Adapter) FetchInvoices(ctx context.Context, invoiceIDs []string, customerID string) (domain.FetchInvoicesResult, error) {
	type wireInvoice struct {
		ID        string `json:"invoice_id"`
		Customer  string `json:"customer_id"`
		Total     string `json:"original_amount"`
		AmountDue string `json:"amount_due"`
		Currency  string `json:"currency"`
		Status    string `json:"status"`
		DueDate   string `json:"due_date"`
	}
	type wireResponse struct {
		Invoices []wireInvoice `json:"invoices"`
		NotFound []string      `json:"not_found"`
	}

	reqBody, _ := json.Marshal(map[string]any{"invoice_ids": invoiceIDs, "customer_id": customerID})
	req, err := a.newRequest(ctx, http.MethodPost, a.fetchPath, reqBody)
	if err != nil {
		return domain.FetchInvoicesResult{}, a.classifyRequestErr(err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.FetchInvoicesResult{}, a.classifyRequestErr(err)
	}
	defer resp.Body.Close()

	if err := a.classifyStatus(resp.StatusCode); err != nil {
		return domain.FetchInvoicesResult{}, err
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return domain.FetchInvoicesResult{}, &domain.Error{Kind: domain.ErrKindERPPermanent, ERP: a.erpSystem, Message: "malformed response", Err: err}
	}

	invoices := make([]domain.Invoice, 0, len(wire.Invoices))
	for _, item := range wire.Invoices {
		total, err := money.Parse(item.Total)
		if err != nil {
			continue
		}
		due, err := money.Parse(item.AmountDue)
		if err != nil {
			continue
		}
		invoices = append(invoices, domain.Invoice{
			InvoiceID:      item.ID,
			ERPSystem:      a.erpSystem,
			CustomerID:     item.Customer,
			OriginalAmount: total,
			AmountDue:      due,
			Currency:       strings.ToUpper(item.Currency),
			Status:         domain.InvoiceStatus(item.Status),
			DueDate:        parseDate(item.DueDate),
			ERPRecordID:    item.ID,
		})
	}
	return domain.FetchInvoicesResult{Invoices: invoices, NotFound: wire.NotFound}, nil
}

func (a *Adapter) PostApplication(ctx context.Context, app domain.Application) (domain.PostResult, error) {
	lines := make([]map[string]any, 0, len(app.Applications))
	for _, line := range app.Applications {
		lines = append(lines, map[string]any{
			"invoice_id":     line.InvoiceID,
			"amount_applied": line.AmountApplied.String(),
		})
	}
	payload := map[string]any{
		"transaction_id": app.TransactionID,
		"customer_id":    app.CustomerID,
		"applications":   lines,
		"total_amount":   app.TotalAmount.String(),
		"currency":       app.Currency,
	}
	reqBody, _ := json.Marshal(payload)

	req, err := a.newRequest(ctx, http.MethodPost, a.postPath, reqBody)
	if err != nil {
		return domain.PostResult{}, a.classifyRequestErr(err)
	}
	req.Header.Set("Idempotency-Key", app.TransactionID)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.PostResult{}, a.classifyRequestErr(err)
	}
	defer resp.Body.Close()

	var wire struct {
		ERPTransactionID string `json:"erp_transaction_id"`
		Duplicate        bool   `json:"duplicate"`
	}

	if resp.StatusCode == http.StatusConflict {
		if decErr := json.NewDecoder(resp.Body).Decode(&wire); decErr == nil && wire.ERPTransactionID != "" {
			return domain.PostResult{ERPTransactionID: wire.ERPTransactionID, PostedAt: time.Now().UTC(), Duplicate: true}, nil
		}
		return domain.PostResult{}, &domain.Error{Kind: domain.ErrKindDuplicatePayment, ERP: a.erpSystem, Message: "duplicate reported without a resolvable prior posting"}
	}
	if err := a.classifyStatus(resp.StatusCode); err != nil {
		return domain.PostResult{}, err
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return domain.PostResult{}, &domain.Error{Kind: domain.ErrKindERPPermanent, ERP: a.erpSystem, Message: "malformed response", Err: err}
	}
	return domain.PostResult{ERPTransactionID: wire.ERPTransactionID, PostedAt: time.Now().UTC(), Duplicate: wire.Duplicate}, nil
}

func (a *Adapter) TestConnection(ctx context.Context) (domain.ConnectionStatus, error) {
	start := time.Now()
	req, err := a.newRequest(ctx, http.MethodGet, a.healthPath, nil)
	if err != nil {
		return domain.ConnectionStatus{}, a.classifyRequestErr(err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.ConnectionStatus{OK: false}, a.classifyRequestErr(err)
	}
	defer resp.Body.Close()
	latency := time.Since(start).Milliseconds()
	if resp.StatusCode >= 400 {
		return domain.ConnectionStatus{OK: false, LatencyMS: latency}, a.classifyStatus(resp.StatusCode)
	}
	var wire struct {
		Version string `json:"version"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&wire)
	return domain.ConnectionStatus{OK: true, LatencyMS: latency, Version: wire.Version}, nil
}

func (a *Adapter) classifyRequestErr(err error) error {
	return &domain.Error{Kind: domain.ErrKindERPTransient, ERP: a.erpSystem, Message: "request failed", Err: err}
}

func (a *Adapter) classifyStatus(statusCode int) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return &domain.Error{Kind: domain.ErrKindERPTransient, ERP: a.erpSystem, Message: "transient status " + strconv.Itoa(statusCode)}
	default:
		return &domain.Error{Kind: domain.ErrKindERPPermanent, ERP: a.erpSystem, Message: "permanent status " + strconv.Itoa(statusCode)}
	}
}

func parseDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}

func readString(config map[string]any, key string) (string, bool) {
	value, ok := config[key]
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}
