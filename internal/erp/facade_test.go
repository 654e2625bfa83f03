package erp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/cashapp/internal/config"
	"github.com/smallbiznis/cashapp/internal/erp/domain"
	"github.com/smallbiznis/cashapp/internal/money"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

type fakeAdapter struct {
	kind           string
	fetchErrs      []error
	fetchResult    domain.FetchInvoicesResult
	fetchCalls     int
	testConnResult domain.ConnectionStatus
	testConnErr    error
}

func (a *fakeAdapter) ERPSystem() string { return a.kind }

func (a *fakeAdapter) FetchInvoices(ctx context.Context, invoiceIDs []string, customerID string) (domain.FetchInvoicesResult, error) {
	if a.fetchCalls < len(a.fetchErrs) {
		err := a.fetchErrs[a.fetchCalls]
		a.fetchCalls++
		if err != nil {
			return domain.FetchInvoicesResult{}, err
		}
	}
	a.fetchCalls++
	return a.fetchResult, nil
}

func (a *fakeAdapter) PostApplication(ctx context.Context, app domain.Application) (domain.PostResult, error) {
	return domain.PostResult{}, nil
}

func (a *fakeAdapter) TestConnection(ctx context.Context) (domain.ConnectionStatus, error) {
	return a.testConnResult, a.testConnErr
}

type fakeFactory struct {
	kind    string
	adapter *fakeAdapter
}

func (f *fakeFactory) Kind() string { return f.kind }

func (f *fakeFactory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	return f.adapter, nil
}

func newTestFacade(t *testing.T, adapter *fakeAdapter) *Facade {
	t.Helper()
	registry := NewRegistry(&fakeFactory{kind: adapter.kind, adapter: adapter})
	cfg := config.Config{
		ERP: config.ERPConfig{
			PoolSize: 4,
			Systems: map[string]config.ERPSystemConfig{
				adapter.kind: {Provider: adapter.kind, BaseURL: "https://erp.example.test"},
			},
		},
	}
	return &Facade{
		registry: registry,
		cfg:      cfg.ERP,
		log:      zap.NewNop(),
		cache:    newInvoiceCache(0),
		pools:    map[string]*semaphore.Weighted{},
	}
}

func TestFetchInvoicesRetriesTransientThenSucceeds(t *testing.T) {
	adapter := &fakeAdapter{
		kind: "netsuite",
		fetchErrs: []error{
			&domain.Error{Kind: domain.ErrKindERPTransient, ERP: "netsuite", Message: "timeout"},
		},
		fetchResult: domain.FetchInvoicesResult{
			Invoices: []domain.Invoice{{InvoiceID: "inv-1", AmountDue: money.New(100, 0)}},
		},
	}
	facade := newTestFacade(t, adapter)

	result, err := facade.FetchInvoices(context.Background(), []string{"inv-1"}, "netsuite", "cust-1")
	if err != nil {
		t.Fatalf("FetchInvoices: %v", err)
	}
	if len(result.Invoices) != 1 {
		t.Fatalf("expected 1 invoice, got %d", len(result.Invoices))
	}
	if adapter.fetchCalls != 2 {
		t.Fatalf("expected 2 calls (1 retry), got %d", adapter.fetchCalls)
	}
}

func TestFetchInvoicesDoesNotRetryPermanentError(t *testing.T) {
	adapter := &fakeAdapter{
		kind: "netsuite",
		fetchErrs: []error{
			&domain.Error{Kind: domain.ErrKindERPPermanent, ERP: "netsuite", Message: "bad request"},
		},
	}
	facade := newTestFacade(t, adapter)

	_, err := facade.FetchInvoices(context.Background(), []string{"inv-1"}, "netsuite", "cust-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	var classified *domain.Error
	if !errors.As(err, &classified) || classified.Kind != domain.ErrKindERPPermanent {
		t.Fatalf("expected ERPPermanent, got %v", err)
	}
	if adapter.fetchCalls != 1 {
		t.Fatalf("expected exactly 1 call (no retry), got %d", adapter.fetchCalls)
	}
}

func TestTestConnectionReturnsAdapterResult(t *testing.T) {
	adapter := &fakeAdapter{
		kind:           "sap",
		testConnResult: domain.ConnectionStatus{OK: true, LatencyMS: 42, Version: "1.0"},
	}
	facade := newTestFacade(t, adapter)

	status, err := facade.TestConnection(context.Background(), "sap")
	if err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if !status.OK || status.Version != "1.0" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestFetchInvoicesUnknownERPSystemIsValidationError(t *testing.T) {
	adapter := &fakeAdapter{kind: "sap"}
	facade := newTestFacade(t, adapter)

	_, err := facade.FetchInvoices(context.Background(), []string{"inv-1"}, "unknown-erp", "cust-1")
	var classified *domain.Error
	if !errors.As(err, &classified) || classified.Kind != domain.ErrKindValidation {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestFetchInvoicesServesSecondCallFromCache(t *testing.T) {
	adapter := &fakeAdapter{
		kind: "netsuite",
		fetchResult: domain.FetchInvoicesResult{
			Invoices: []domain.Invoice{{InvoiceID: "inv-1", AmountDue: money.New(100, 0)}},
		},
	}
	facade := newTestFacade(t, adapter)
	facade.cache = newInvoiceCache(time.Minute)

	if _, err := facade.FetchInvoices(context.Background(), []string{"inv-1"}, "netsuite", "cust-1"); err != nil {
		t.Fatalf("first FetchInvoices: %v", err)
	}
	if _, err := facade.FetchInvoices(context.Background(), []string{"inv-1"}, "netsuite", "cust-1"); err != nil {
		t.Fatalf("second FetchInvoices: %v", err)
	}
	if adapter.fetchCalls != 1 {
		t.Fatalf("expected the second call to be served from cache, got %d adapter calls", adapter.fetchCalls)
	}
}

