// Package sap implements the ERP adapter for SAP's OData API, authenticating
// with a client certificate over mutual TLS.
package sap

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
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

func (f *Factory) Kind() string { return "sap" }

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	certPEM, _ := readBytes(cfg.Config, "client_cert_pem")
	keyPEM, _ := readBytes(cfg.Config, "client_key_pem")
	caPEM, _ := readBytes(cfg.Config, "ca_cert_pem")
	if len(certPEM) == 0 || len(keyPEM) == 0 || cfg.BaseURL == "" {
		return nil, domain.ErrInvalidConfig
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, domain.ErrInvalidConfig
	}

	tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}}
	if len(caPEM) > 0 {
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM(caPEM) {
			tlsConfig.RootCAs = pool
		}
	}

	return &Adapter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
			Timeout:   30 * time.Second,
		},
	}, nil
}

// Adapter calls SAP's OData `/sap/opu/odata/sap/API_INVOICE` family of
// services over a mutual-TLS client.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
}

func (a *Adapter) ERPSystem() string { return "sap" }

func (a *Adapter) FetchInvoices(ctx context.Context, invoiceIDs []string, customerID string) (domain.FetchInvoicesResult, error) {
	type wireInvoice struct {
		ID        string `json:"InvoiceID"`
		Customer  string `json:"CustomerID"`
		Total     string `json:"GrossAmount"`
		AmountDue string `json:"AmountDue"`
		Currency  string `json:"Currency"`
		Status    string `json:"Status"`
		DueDate   string `json:"NetDueDate"`
	}
	type wireResponse struct {
		Results  []wireInvoice `json:"results"`
		NotFound []string      `json:"notFound"`
	}

	reqBody, _ := json.Marshal(map[string]any{"invoiceIds": invoiceIDs, "customerId": customerID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/API_INVOICE/search", bytes.NewReader(reqBody))
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
		return domain.FetchInvoicesResult{}, &domain.Error{Kind: domain.ErrKindERPPermanent, ERP: "sap", Message: "malformed response", Err: err}
	}

	invoices := make([]domain.Invoice, 0, len(wire.Results))
	for _, item := range wire.Results {
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
			ERPSystem:      "sap",
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
			"InvoiceID": line.InvoiceID,
			"Amount":    line.AmountApplied.String(),
		})
	}
	payload := map[string]any{
		"ReferenceID": app.TransactionID,
		"CustomerID":  app.CustomerID,
		"Lines":       lines,
		"Total":       app.TotalAmount.String(),
		"Currency":    app.Currency,
	}
	reqBody, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/API_INCOMINGPAYMENT", bytes.NewReader(reqBody))
	if err != nil {
		return domain.PostResult{}, classifyRequestErr(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.PostResult{}, classifyRequestErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		existing, existingErr := a.findByReference(ctx, app.TransactionID)
		if existingErr != nil {
			return domain.PostResult{}, existingErr
		}
		return domain.PostResult{ERPTransactionID: existing, PostedAt: time.Now().UTC(), Duplicate: true}, nil
	}
	if err := classifyStatus(resp.StatusCode); err != nil {
		return domain.PostResult{}, err
	}

	var wire struct {
		PaymentID string `json:"PaymentID"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return domain.PostResult{}, &domain.Error{Kind: domain.ErrKindERPPermanent, ERP: "sap", Message: "malformed response", Err: err}
	}
	return domain.PostResult{ERPTransactionID: wire.PaymentID, PostedAt: time.Now().UTC()}, nil
}

// findByReference covers SAP's lack of a native idempotency key: a prior
// posting is detected by its reference field (spec.md §4.2 Idempotency).
func (a *Adapter) findByReference(ctx context.Context, transactionID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/API_INCOMINGPAYMENT?ReferenceID="+transactionID, nil)
	if err != nil {
		return "", classifyRequestErr(err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", classifyRequestErr(err)
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode); err != nil {
		return "", err
	}
	var wire struct {
		Results []struct {
			PaymentID string `json:"PaymentID"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil || len(wire.Results) == 0 {
		return "", &domain.Error{Kind: domain.ErrKindERPPermanent, ERP: "sap", Message: "duplicate posting reported but prior payment not found"}
	}
	return wire.Results[0].PaymentID, nil
}

func (a *Adapter) TestConnection(ctx context.Context) (domain.ConnectionStatus, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/$metadata", nil)
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
	return &domain.Error{Kind: domain.ErrKindERPTransient, ERP: "sap", Message: "request failed", Err: err}
}

func classifyStatus(statusCode int) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return &domain.Error{Kind: domain.ErrKindERPTransient, ERP: "sap", Message: "transient status " + strconv.Itoa(statusCode)}
	default:
		return &domain.Error{Kind: domain.ErrKindERPPermanent, ERP: "sap", Message: "permanent status " + strconv.Itoa(statusCode)}
	}
}

func mapStatus(raw string) domain.InvoiceStatus {
	switch strings.ToUpper(raw) {
	case "C", "CLEARED":
		return domain.InvoiceClosed
	case "D", "DISPUTED":
		return domain.InvoiceDisputed
	case "O", "OVERDUE":
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

func readBytes(config map[string]any, key string) ([]byte, bool) {
	value, ok := config[key]
	if !ok {
		return nil, false
	}
	switch cast := value.(type) {
	case string:
		return []byte(cast), true
	case []byte:
		return cast, true
	default:
		return nil, false
	}
}
