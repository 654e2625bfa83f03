package erp

import (
	"testing"
	"time"

	"github.com/smallbiznis/cashapp/internal/erp/domain"
	"github.com/smallbiznis/cashapp/internal/money"
)

func TestInvoiceCacheGetSetInvalidate(t *testing.T) {
	c := newInvoiceCache(time.Minute)

	if _, ok := c.get("netsuite", "inv-1"); ok {
		t.Fatalf("expected miss before set")
	}

	c.set("netsuite", domain.Invoice{InvoiceID: "inv-1", AmountDue: money.New(50, 0)})
	got, ok := c.get("netsuite", "inv-1")
	if !ok {
		t.Fatalf("expected hit after set")
	}
	if got.InvoiceID != "inv-1" {
		t.Fatalf("unexpected cached invoice: %+v", got)
	}

	c.invalidate("netsuite", "inv-1")
	if _, ok := c.get("netsuite", "inv-1"); ok {
		t.Fatalf("expected miss after invalidate")
	}
}

func TestInvoiceCacheIsolatesByERPSystem(t *testing.T) {
	c := newInvoiceCache(time.Minute)
	c.set("netsuite", domain.Invoice{InvoiceID: "inv-1", AmountDue: money.New(50, 0)})

	if _, ok := c.get("sap", "inv-1"); ok {
		t.Fatalf("expected miss for a different erp_system with the same invoice id")
	}
}

func TestInvoiceCacheExpires(t *testing.T) {
	c := newInvoiceCache(time.Millisecond)
	c.set("netsuite", domain.Invoice{InvoiceID: "inv-1", AmountDue: money.New(50, 0)})

	time.Sleep(5 * time.Millisecond)
	if _, ok := c.get("netsuite", "inv-1"); ok {
		t.Fatalf("expected entry to have expired")
	}
}
