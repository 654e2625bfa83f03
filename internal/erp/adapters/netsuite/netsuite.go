// Package netsuite implements the ERP adapter for NetSuite's REST API,
// authenticating via the OAuth2 client-credentials grant.
package netsuite

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/cashapp/internal/erp/domain"
	"github.com/smallbiznis/cashapp/internal/money"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Kind() string { return "netsuite" }

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	clientID, _ := readString(cfg.Config, "client_id")
	clientSecret, _ := readString(cfg.Config, "client_secret")
	tokenURL, _ := readString(cfg.Config, "token_url")
	if clientID == "" || clientSecret == "" || tokenURL == "" || cfg.BaseURL == "" {
		return nil, domain.ErrInvalidConfig
	}

	tokenSource := (&clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}).TokenSource(context.Background())

	return &Adapter{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: oauth2.NewClient(context.Background(), tokenSource),
	}, nil
}

// Adapter calls NetSuite's SuiteTalk REST endpoints. Token acquisition and
// rotation is handled transparently by oauth2.Transport on every request.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
}

func (a *Adapter) ERPSystem() string { return "netsuite" }

func (a *Adapter) FetchInvoices(ctx context.Context, invoiceIDs []string, customerID string) (domain.FetchInvoicesResult, error) {
	type wireInvoice struct {
		ID        string `json:"id"`
		Customer  string `json:"customerId"`
		Total     string `json:"total"`
		AmountDue string `json:"amountRemaining"`
		Currency  string `json:"currency"`
		Status    string `json:"status"`
		DueDate   string `json:"dueDate"`
	}
	type wireResponse struct {
		Items    []wireInvoice `json:"items"`
		NotFound []string      `json:"notFound"`
	}

	reqBody, _ := json.Marshal(map[string]any{"invoiceIds": invoiceIDs, "customerId": customerID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/invoices/search", bytes.NewReader(reqBody))
	if err != nil {
		return domain.FetchInvoicesResult{}, classifyRequestErr(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.FetchInvoicesResult{}, classifyRequestErr(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return domain.FetchInvoicesResult{}, err
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return domain.FetchInvoicesResult{}, &domain.Error{Kind: domain.ErrKindERPPermanent, ERP: "netsuite", Message: "malformed response", Err: err}
	}

	invoices := make([]domain.Invoice, 0, len(wire.Items))
	for _, item := range wire.Items {
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
			ERPSystem:      "netsuite",
			CustomerID:     item.Customer,
			OriginalAmount: total,
			AmountDue:      due,
			Currency:       strings.ToUpper(item.Currency),
			Status:         mapStatus(item.Status),
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
			"invoiceId": line.InvoiceID,
			"amount":    line.AmountApplied.String(),
		})
	}
	payload := map[string]any{
		"idempotencyKey": app.TransactionID,
		"customerId":     app.CustomerID,
		"lines":          lines,
		"total":          app.TotalAmount.String(),
		"currency":       app.Currency,
	}
	reqBody, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/customer-payments", bytes.NewReader(reqBody))
	if err != nil {
		return domain.PostResult{}, classifyRequestErr(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", app.TransactionID)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.PostResult{}, classifyRequestErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		body, _ := io.ReadAll(resp.Body)
		var existing struct {
			ERPTransactionID string `json:"id"`
		}
		_ = json.Unmarshal(body, &existing)
		return domain.PostResult{ERPTransactionID: existing.ERPTransactionID, PostedAt: time.Now().UTC(), Duplicate: true}, nil
	}
	if err := classifyStatus(resp.StatusCode); err != nil {
		return domain.PostResult{}, err
	}

	var wire struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return domain.PostResult{}, &domain.Error{Kind: domain.ErrKindERPPermanent, ERP: "netsuite", Message: "malformed response", Err: err}
	}
	return domain.PostResult{ERPTransactionID: wire.ID, PostedAt: time.Now().UTC()}, nil
}

func (a *Adapter) TestConnection(ctx context.Context) (domain.ConnectionStatus, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/metadata", nil)
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
	var wire struct {
		Version string `json:"version"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&wire)
	return domain.ConnectionStatus{OK: true, LatencyMS: latency, Version: wire.Version}, nil
}

func classifyRequestErr(err error) error {
	return &domain.Error{Kind: domain.ErrKindERPTransient, ERP: "netsuite", Message: "request failed", Err: err}
}

func classifyStatus(statusCode int) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return &domain.Error{Kind: domain.ErrKindERPTransient, ERP: "netsuite", Message: "transient status " + strconv.Itoa(statusCode)}
	default:
		return &domain.Error{Kind: domain.ErrKindERPPermanent, ERP: "netsuite", Message: "permanent status " + strconv.Itoa(statusCode)}
	}
}

func mapStatus(raw string) domain.InvoiceStatus {
	switch strings.ToLower(raw) {
	case "paidinfull", "closed":
		return domain.InvoiceClosed
	case "disputed":
		return domain.InvoiceDisputed
	case "overdue", "pastdue":
		return domain.InvoiceOverdue
	default:
		return domain.InvoiceOpen
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
