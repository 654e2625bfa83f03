package orchestrator

import (
	"sync"
	"time"

	obsmetrics "github.com/smallbiznis/cashapp/internal/observability/metrics"
	orchdomain "github.com/smallbiznis/cashapp/internal/orchestrator/domain"
	"golang.org/x/sync/semaphore"
)

// keyedLock is the in-process analogue of the reviewed repo's per-
// subscription locking during scheduler runs, here serializing workflows
// for the same source_account_ref (spec.md §4.4 "Per-account ordering").
// It holds one *sync.Mutex per key in a map guarded by mu, the same shape the
// reviewed repo's ERP-facade-equivalent connection pools use for their
// per-system semaphore table.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: map[string]*sync.Mutex{}}
}

func (k *keyedLock) lockFor(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// concurrencyGate bounds global workflow parallelism across all accounts
// (spec.md §4.4 "Parallelism across accounts is bounded by a global
// semaphore, max_concurrent_transactions").
type concurrencyGate struct {
	sem *semaphore.Weighted
}

func newConcurrencyGate(max int) *concurrencyGate {
	if max <= 0 {
		max = 10
	}
	return &concurrencyGate{sem: semaphore.NewWeighted(int64(max))}
}

// acquire is non-blocking: a workflow that would exceed
// max_concurrent_transactions fails fast with ErrBusy rather than queuing,
// so the HTTP layer can report 503 Busy instead of stalling the caller
// (spec.md §6).
func (g *concurrencyGate) acquire() error {
	if !g.sem.TryAcquire(1) {
		return orchdomain.ErrBusy
	}
	return nil
}

func (g *concurrencyGate) release() {
	g.sem.Release(1)
}

// withAccountLock runs fn while holding the per-account mutex. The global
// concurrency gate is acquired once by the caller (StartWorkflow), before
// the workflow record is created, so a Busy rejection never leaves behind
// an orphaned Pending row.
func (o *Orchestrator) withAccountLock(sourceAccountRef string, fn func() error) error {
	waitStart := time.Now()
	mu := o.accountLocks.lockFor(sourceAccountRef)
	mu.Lock()
	obsmetrics.Workflow().ObserveLockWait(obsmetrics.LockResourceAccountOrdering, time.Since(waitStart))
	defer mu.Unlock()

	return fn()
}
