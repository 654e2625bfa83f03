package erp

import (
	"time"

	"github.com/smallbiznis/cashapp/internal/cache"
	"github.com/smallbiznis/cashapp/internal/erp/domain"
)

const defaultInvoiceCacheTTL = 30 * time.Second

// invoiceCache holds short-term snapshots of fetched invoices (spec.md §3
// "Invoice... fetched on demand from ERP, cached short-term; updated only
// via ERP round-trips"). It never serves a cached entry across a
// PostApplication call for the same invoice: Facade invalidates on post.
type invoiceCache struct {
	entries cache.Cache[string, domain.Invoice]
	ttl     time.Duration
}

func newInvoiceCache(ttl time.Duration) *invoiceCache {
	if ttl <= 0 {
		ttl = defaultInvoiceCacheTTL
	}
	return &invoiceCache{entries: cache.NewTTLCache[string, domain.Invoice](), ttl: ttl}
}

func invoiceCacheKey(erpSystem, invoiceID string) string {
	return erpSystem + "|" + invoiceID
}

func (c *invoiceCache) get(erpSystem, invoiceID string) (domain.Invoice, bool) {
	return c.entries.Get(invoiceCacheKey(erpSystem, invoiceID))
}

func (c *invoiceCache) set(erpSystem string, invoice domain.Invoice) {
	c.entries.Set(invoiceCacheKey(erpSystem, invoice.InvoiceID), invoice, c.ttl)
}

func (c *invoiceCache) invalidate(erpSystem, invoiceID string) {
	c.entries.Delete(invoiceCacheKey(erpSystem, invoiceID))
}
