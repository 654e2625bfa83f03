package erp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/smallbiznis/cashapp/internal/config"
	"github.com/smallbiznis/cashapp/internal/erp/domain"
	obsmetrics "github.com/smallbiznis/cashapp/internal/observability/metrics"
	"github.com/smallbiznis/cashapp/internal/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// FacadeService is the Facade's contract from the Orchestrator's point of
// view, narrow enough to fake in tests without a real registry/locker.
type FacadeService interface {
	FetchInvoices(ctx context.Context, invoiceIDs []string, erpSystem, customerID string) (domain.FetchInvoicesResult, error)
	PostApplication(ctx context.Context, app domain.Application) (domain.PostResult, error)
	TestConnection(ctx context.Context, erpSystem string) (domain.ConnectionStatus, error)
}

// Facade is the ERP Facade (spec.md §4.2): uniform FetchInvoices/
// PostApplication/TestConnection over whichever adapter is registered for a
// given erp_system, with retry, per-customer ordering, and bounded
// connection-pool concurrency.
type Facade struct {
	registry *Registry
	cfg      config.ERPConfig
	log      *zap.Logger
	locker   *ratelimit.Locker
	metrics  *obsmetrics.Metrics
	cache    *invoiceCache

	pools   map[string]*semaphore.Weighted
	poolsMu sync.Mutex
}

func NewFacade(registry *Registry, cfg config.Config, locker *ratelimit.Locker, metrics *obsmetrics.Metrics, log *zap.Logger) *Facade {
	return &Facade{
		registry: registry,
		cfg:      cfg.ERP,
		log:      log.Named("erp.facade"),
		locker:   locker,
		metrics:  metrics,
		cache:    newInvoiceCache(cfg.ERP.InvoiceCacheTTL),
		pools:    map[string]*semaphore.Weighted{},
	}
}

var _ FacadeService = (*Facade)(nil)

func (f *Facade) poolFor(erpSystem string) *semaphore.Weighted {
	f.poolsMu.Lock()
	defer f.poolsMu.Unlock()
	pool, ok := f.pools[erpSystem]
	if !ok {
		size := int64(f.cfg.PoolSize)
		if size <= 0 {
			size = 8
		}
		pool = semaphore.NewWeighted(size)
		f.pools[erpSystem] = pool
	}
	return pool
}

func (f *Facade) adapterFor(erpSystem string) (domain.Adapter, error) {
	systemCfg, ok := f.cfg.Systems[erpSystem]
	if !ok {
		return nil, &domain.Error{Kind: domain.ErrKindValidation, ERP: erpSystem, Message: "no erp_system configured with this name"}
	}
	settings := map[string]any{}
	for k, v := range systemCfg.Settings {
		settings[k] = v
	}
	return f.registry.NewAdapter(systemCfg.Provider, domain.AdapterConfig{
		ERPSystem: erpSystem,
		BaseURL:   systemCfg.BaseURL,
		Config:    settings,
	})
}

// FetchInvoices batch-fetches invoices for the given ids from one ERP
// system, retrying transient failures with capped exponential backoff
// (spec.md §4.2). Invoices already cached from a recent fetch (spec.md §3
// "cached short-term") are served without a round-trip; only the remainder
// is fetched live.
func (f *Facade) FetchInvoices(ctx context.Context, invoiceIDs []string, erpSystem, customerID string) (domain.FetchInvoicesResult, error) {
	result := domain.FetchInvoicesResult{}
	var toFetch []string
	for _, id := range invoiceIDs {
		if inv, ok := f.cache.get(erpSystem, id); ok {
			result.Invoices = append(result.Invoices, inv)
			continue
		}
		toFetch = append(toFetch, id)
	}
	if len(toFetch) == 0 {
		return result, nil
	}

	adapter, err := f.adapterFor(erpSystem)
	if err != nil {
		return domain.FetchInvoicesResult{}, err
	}

	pool := f.poolFor(erpSystem)
	if err := pool.Acquire(ctx, 1); err != nil {
		return domain.FetchInvoicesResult{}, err
	}
	defer pool.Release(1)

	var fetched domain.FetchInvoicesResult
	err = f.withRetry(ctx, erpSystem, func() error {
		r, fetchErr := adapter.FetchInvoices(ctx, toFetch, customerID)
		if fetchErr != nil {
			return fetchErr
		}
		fetched = r
		return nil
	})
	if err != nil {
		return domain.FetchInvoicesResult{}, err
	}

	for _, inv := range fetched.Invoices {
		f.cache.set(erpSystem, inv)
	}
	result.Invoices = append(result.Invoices, fetched.Invoices...)
	result.NotFound = fetched.NotFound
	return result, nil
}

// PostApplication posts a payment application, serializing calls for the
// same customer_id through a Redis lock and treating ERP-reported
// duplicates as success (spec.md §4.2 Idempotency/Ordering).
func (f *Facade) PostApplication(ctx context.Context, app domain.Application) (domain.PostResult, error) {
	adapter, err := f.adapterFor(app.ERPSystem)
	if err != nil {
		return domain.PostResult{}, err
	}

	lockKey := "erp:post:customer:" + app.CustomerID
	token, locked, err := f.locker.TryLock(ctx, lockKey, f.postLockTTL())
	if err != nil {
		return domain.PostResult{}, &domain.Error{Kind: domain.ErrKindERPTransient, ERP: app.ERPSystem, Message: "lock acquisition failed", Err: err}
	}
	if !locked {
		return domain.PostResult{}, &domain.Error{Kind: domain.ErrKindConcurrencyConflict, ERP: app.ERPSystem, Message: "customer posting lock held by another caller"}
	}
	defer f.locker.Release(context.WithoutCancel(ctx), lockKey, token)

	pool := f.poolFor(app.ERPSystem)
	if err := pool.Acquire(ctx, 1); err != nil {
		return domain.PostResult{}, err
	}
	defer pool.Release(1)

	var result domain.PostResult
	err = f.withRetry(ctx, app.ERPSystem, func() error {
		r, postErr := adapter.PostApplication(ctx, app)
		if postErr != nil {
			return postErr
		}
		result = r
		return nil
	})
	if err == nil {
		for _, line := range app.Applications {
			f.cache.invalidate(app.ERPSystem, line.InvoiceID)
		}
	}
	return result, err
}

func (f *Facade) postLockTTL() time.Duration {
	ttl := f.cfg.PostTimeout
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return ttl
}

// TestConnection probes one configured ERP system's health (spec.md §6).
func (f *Facade) TestConnection(ctx context.Context, erpSystem string) (domain.ConnectionStatus, error) {
	adapter, err := f.adapterFor(erpSystem)
	if err != nil {
		return domain.ConnectionStatus{}, err
	}
	return adapter.TestConnection(ctx)
}

// withRetry retries transient ERP failures with exponential backoff capped
// at 60s total, per spec.md §4.2/§7. Permanent errors and duplicate-payment
// responses are returned immediately, unretried.
func (f *Facade) withRetry(ctx context.Context, erpSystem string, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = 60 * time.Second
	bo := backoff.WithContext(policy, ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		opErr := op()
		if opErr == nil {
			return nil
		}
		var classified *domain.Error
		if errors.As(opErr, &classified) && !classified.Retryable() {
			return backoff.Permanent(opErr)
		}
		f.metrics.RecordERPPostRetry(ctx, erpSystem)
		f.log.Warn("erp call failed, retrying", zap.String("erp_system", erpSystem), zap.Int("attempt", attempts), zap.Error(opErr))
		return opErr
	}, backoff.WithMaxRetries(bo, 5))

	if err != nil {
		var permanentErr *backoff.PermanentError
		if errors.As(err, &permanentErr) {
			return permanentErr.Err
		}
		return fmt.Errorf("erp %s: %w", erpSystem, err)
	}
	return nil
}
