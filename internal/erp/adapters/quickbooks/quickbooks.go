// Package quickbooks implements the ERP adapter for QuickBooks Online,
// authenticating with a static API key header.
package quickbooks

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

func (f *Factory) Kind() string { return "quickbooks" }

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	apiKey, _ := readString(cfg.Config, "api_key")
	realmID, _ := readString(cfg.Config, "realm_id")
	if apiKey == "" || realmID == "" || cfg.BaseURL == "" {
		return nil, domain.ErrInvalidConfig
	}

	return &Adapter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/") + "/v3/company/" + realmID,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

type Adapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func (a *Adapter) ERPSystem() string { return "quickbooks" }

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
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (a *Adapter) FetchInvoices(ctx context.Context, invoiceIDs []string, customerID string) (domain.FetchInvoicesResult, error) {
	type wireInvoice struct {
		ID        string `json:"Id"`
		Customer  string `json:"CustomerRef"`
		Total     string `json:"TotalAmt"`
		AmountDue string `json:"Balance"`
		Currency  string `json:"CurrencyRef"`
		DueDate   string `json:"DueDate"`
	}

	ids := make([]string, 0, len(invoiceIDs))
	for _, id := range invoiceIDs {
		ids = append(ids, "'"+strings.ReplaceAll(id, "'", "''")+"'")
	}
	query := "SELECT * FROM Invoice WHERE Id IN (" + strings.Join(ids, ",") + ")"

	req, err := a.newRequest(ctx, http.MethodGet, "/query?query="+query, nil)
	if err != nil {
		return domain.FetchInvoicesResult{}, classifyRequestErr(err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.FetchInvoicesResult{}, classifyRequestErr(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return domain.FetchInvoicesResult{}, err
	}

	var wire struct {
		QueryResponse struct {
			Invoice []wireInvoice `json:"Invoice"`
		} `json:"QueryResponse"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return domain.FetchInvoicesResult{}, &domain.Error{Kind: domain.ErrKindERPPermanent, ERP: "quickbooks", Message: "malformed response", Err: err}
	}

	found := map[string]bool{}
	invoices := make([]domain.Invoice, 0, len(wire.QueryResponse.Invoice))
	for _, item := range wire.QueryResponse.Invoice {
		total, err := money.Parse(item.Total)
		if err != nil {
			continue
		}
		due, err := money.Parse(item.AmountDue)
		if err != nil {
			continue
		}
		status := domain.InvoiceOpen
		if due.IsZero() {
			status = domain.InvoiceClosed
		}
		invoices = append(invoices, domain.Invoice{
			InvoiceID:      item.ID,
			ERPSystem:      "quickbooks",
			CustomerID:     item.Customer,
			OriginalAmount: total,
			AmountDue:      due,
			Currency:       strings.ToUpper(item.Currency),
			Status:         status,
			DueDate:        parseDate(item.DueDate),
			ERPRecordID:    item.ID,
		})
		found[item.ID] = true
	}

	notFound := make([]string, 0)
	for _, id := range invoiceIDs {
		if !found[id] {
			notFound = append(notFound, id)
		}
	}
	return domain.FetchInvoicesResult{Invoices: invoices, NotFound: notFound}, nil
}

func (a *Adapter) PostApplication(ctx context.Context, app domain.Application) (domain.PostResult, error) {
	lines := make([]map[string]any, 0, len(app.Applications))
	for _, line := range app.Applications {
		lines = append(lines, map[string]any{
			"Amount": line.AmountApplied.String(),
			"LinkedTxn": []map[string]any{
				{"TxnId": line.InvoiceID, "TxnType": "Invoice"},
			},
		})
	}
	payload := map[string]any{
		"PrivateNote":   app.TransactionID,
		"CustomerRef":   map[string]any{"value": app.CustomerID},
		"Line":          lines,
		"TotalAmt":      app.TotalAmount.String(),
		"CurrencyRef":   map[string]any{"value": app.Currency},
	}
	reqBody, _ := json.Marshal(payload)

	req, err := a.newRequest(ctx, http.MethodPost, "/payment?requestid="+app.TransactionID, reqBody)
	if err != nil {
		return domain.PostResult{}, classifyRequestErr(err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.PostResult{}, classifyRequestErr(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return domain.PostResult{}, err
	}

	var wire struct {
		Payment struct {
			ID string `json:"Id"`
		} `json:"Payment"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return domain.PostResult{}, &domain.Error{Kind: domain.ErrKindERPPermanent, ERP: "quickbooks", Message: "malformed response", Err: err}
	}
	return domain.PostResult{ERPTransactionID: wire.Payment.ID, PostedAt: time.Now().UTC()}, nil
}

func (a *Adapter) TestConnection(ctx context.Context) (domain.ConnectionStatus, error) {
	start := time.Now()
	req, err := a.newRequest(ctx, http.MethodGet, "/companyinfo/1", nil)
	if err != nil {
		return domain.ConnectionStatus{}, classifyRequestErr(err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.ConnectionStatus{OK: false}, classifyRequestErr(err)
	}
	defer resp.Body.Close()
	latency := time.Since(start).Milliseconds()
	if resp.StatusCode >= 400 {
		return domain.ConnectionStatus{OK: false, LatencyMS: latency}, classifyStatus(resp.StatusCode)
	}
	return domain.ConnectionStatus{OK: true, LatencyMS: latency}, nil
}

func classifyRequestErr(err error) error {
	return &domain.Error{Kind: domain.ErrKindERPTransient, ERP: "quickbooks", Message: "request failed", Err: err}
}

func classifyStatus(statusCode int) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return &domain.Error{Kind: domain.ErrKindERPTransient, ERP: "quickbooks", Message: "transient status " + strconv.Itoa(statusCode)}
	default:
		return &domain.Error{Kind: domain.ErrKindERPPermanent, ERP: "quickbooks", Message: "permanent status " + strconv.Itoa(statusCode)}
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
