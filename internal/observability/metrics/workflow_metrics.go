package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	jobErrorTypeDeadlineExceeded = "deadline_exceeded"
	jobErrorTypeBusinessRule     = "business_rule"
	jobErrorTypeDB               = "db"
)

const (
	JobErrorTypeDeadlineExceeded = jobErrorTypeDeadlineExceeded
	JobErrorTypeBusinessRule     = jobErrorTypeBusinessRule
	JobErrorTypeDB               = jobErrorTypeDB
	JobErrorTypeUnknown          = "unknown"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonUnknown              = "unknown"

	BatchDeferredReasonSkipLockedEmpty = "skip_locked_empty"
)

// Reconciliation sweep stages, named for IncJobError/IncWorkflowError labels.
const (
	StageReconcileClaimed   = "reconcile_claimed"
	StageReconcilePostedOK  = "reconcile_posted_ok"
	StageReconcilePreClaim  = "reconcile_pre_claim"
	StageReconcilePostClaim = "reconcile_post_claim"
)

const (
	LockResourceAccountOrdering  = "account_ordering"
	LockResourceCustomerERPLock  = "customer_erp_lock"
	LockResourceWorkflowClaim    = "workflow_claim"
)

// WorkflowMetrics captures Orchestrator job health and durable-workflow
// lifecycle signals: reconciliation sweep runs/duration/timeouts/errors,
// batch throughput, and per-workflow state transitions.
type WorkflowMetrics struct {
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobTimeouts      *prometheus.CounterVec
	jobErrors        *prometheus.CounterVec
	batchProcessed   *prometheus.CounterVec
	batchDeferred    *prometheus.CounterVec
	runLoopLag       prometheus.Observer
	transitions      *prometheus.CounterVec
	transitionErrors *prometheus.CounterVec
	lockWait         *prometheus.HistogramVec
	transitionCounts map[string]map[string]prometheus.Counter
	lockWaitObserver map[string]prometheus.Observer
}

var (
	workflowMetricsOnce sync.Once
	workflowMetrics     *WorkflowMetrics
)

// Workflow returns the singleton workflow/reconciliation metrics registry.
func Workflow() *WorkflowMetrics {
	return WorkflowWithConfig(Config{})
}

// WorkflowWithConfig returns the singleton workflow metrics registry using
// config labels.
func WorkflowWithConfig(cfg Config) *WorkflowMetrics {
	workflowMetricsOnce.Do(func() {
		workflowMetrics = newWorkflowMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return workflowMetrics
}

// ResetWorkflowMetricsForTest resets the workflow metrics singleton for tests.
func ResetWorkflowMetricsForTest() {
	workflowMetricsOnce = sync.Once{}
	workflowMetrics = nil
}

func newWorkflowMetrics(registerer prometheus.Registerer, cfg Config) *WorkflowMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "cashapp"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cashapp_reconcile_job_runs_total",
		Help:        "Reconciliation sweep runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "cashapp_workflow_duration_seconds",
		Help:        "Workflow step/job latency, end to end per run.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cashapp_reconcile_job_timeouts_total",
		Help:        "Reconciliation sweep timeouts.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cashapp_reconcile_job_errors_total",
		Help:        "Reconciliation sweep errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	batchProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cashapp_reconcile_batch_processed_total",
		Help:        "Transactions reconciled per sweep run.",
		ConstLabels: constLabels,
	}, []string{"job"})
	batchDeferred := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cashapp_reconcile_batch_deferred_total",
		Help:        "Reconciliation batch deferrals by reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "cashapp_reconcile_runloop_lag_seconds",
		Help:        "Reconciliation sweep run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cashapp_workflow_transition_total",
		Help:        "Workflow state transitions.",
		ConstLabels: constLabels,
	}, []string{"from", "to"})
	transitionErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cashapp_workflow_transition_error_total",
		Help:        "Workflow step errors by stage.",
		ConstLabels: constLabels,
	}, []string{"stage", "error_type"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "cashapp_lock_wait_seconds",
		Help:        "Lock acquisition wait time for per-account/per-customer serialization.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"resource"})

	registerer.MustRegister(
		jobRuns, jobDuration, jobTimeouts, jobErrors,
		batchProcessed, batchDeferred, runLoopLag,
		transitions, transitionErrors, lockWait,
	)

	lockWaitObserver := map[string]prometheus.Observer{
		LockResourceAccountOrdering: lockWait.WithLabelValues(LockResourceAccountOrdering),
		LockResourceCustomerERPLock: lockWait.WithLabelValues(LockResourceCustomerERPLock),
		LockResourceWorkflowClaim:   lockWait.WithLabelValues(LockResourceWorkflowClaim),
	}

	return &WorkflowMetrics{
		jobRuns:          jobRuns,
		jobDuration:      jobDuration,
		jobTimeouts:      jobTimeouts,
		jobErrors:        jobErrors,
		batchProcessed:   batchProcessed,
		batchDeferred:    batchDeferred,
		runLoopLag:       runLoopLag,
		transitions:      transitions,
		transitionErrors: transitionErrors,
		lockWait:         lockWait,
		transitionCounts: map[string]map[string]prometheus.Counter{},
		lockWaitObserver: lockWaitObserver,
	}
}

// IncJobRun increments the run counter for a reconciliation job.
func (m *WorkflowMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records job/workflow latency in seconds.
func (m *WorkflowMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobTimeout increments the timeout counter for the job.
func (m *WorkflowMetrics) IncJobTimeout(job string) {
	if m == nil || m.jobTimeouts == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the job error counter with classification.
func (m *WorkflowMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil || m.jobErrors == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

// IncBatchProcessed increments the batch processed counter for a job.
func (m *WorkflowMetrics) IncBatchProcessed(job string) {
	if m == nil || m.batchProcessed == nil {
		return
	}
	m.batchProcessed.WithLabelValues(job).Inc()
}

// IncBatchDeferred increments the batch deferred counter for a job and reason.
func (m *WorkflowMetrics) IncBatchDeferred(job, reason string) {
	if m == nil || m.batchDeferred == nil {
		return
	}
	m.batchDeferred.WithLabelValues(job, reason).Inc()
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *WorkflowMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.runLoopLag.Observe(duration.Seconds())
}

// IncWorkflowTransition increments workflow state transition counters, e.g.
// Pending->Processing, Processing->Matched.
func (m *WorkflowMetrics) IncWorkflowTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	if toCounters, ok := m.transitionCounts[from]; ok {
		if counter, ok := toCounters[to]; ok {
			counter.Inc()
			return
		}
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// IncWorkflowError increments workflow step errors by stage and type.
func (m *WorkflowMetrics) IncWorkflowError(stage string, err error) {
	if m == nil || err == nil || m.transitionErrors == nil {
		return
	}
	m.transitionErrors.WithLabelValues(stage, classifyJobError(err)).Inc()
}

// ObserveLockWait records lock wait time for per-account/per-customer
// serialization.
func (m *WorkflowMetrics) ObserveLockWait(resource string, duration time.Duration) {
	if m == nil {
		return
	}
	if observer, ok := m.lockWaitObserver[resource]; ok {
		observer.Observe(duration.Seconds())
		return
	}
	m.lockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

func classifyJobError(err error) string {
	if err == nil {
		return jobErrorTypeBusinessRule
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return jobErrorTypeDeadlineExceeded
	}
	if isDBError(err) {
		return jobErrorTypeDB
	}
	return jobErrorTypeBusinessRule
}

// ClassifyJobErrorType returns a low-cardinality error type for logging.
func ClassifyJobErrorType(err error) string {
	if err == nil {
		return JobErrorTypeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobErrorTypeDeadlineExceeded
	}
	if isDBError(err) {
		return JobErrorTypeDB
	}
	return JobErrorTypeBusinessRule
}

// IsJobErrorRetryable reports whether the job error should be retried.
func IsJobErrorRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return isDBError(err)
}

// ClassifyJobReason maps job errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	if err == nil {
		return JobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobReasonDeadlineExceeded
	}
	if isDBLockTimeout(err) {
		return JobReasonDBLockTimeout
	}
	if isSerializationFailure(err) {
		return JobReasonSerializationFailure
	}
	if isUniqueViolation(err) {
		return JobReasonUniqueViolation
	}
	return JobReasonUnknown
}

func isDBLockTimeout(err error) bool {
	return hasPGCode(err, "55P03")
}

func isSerializationFailure(err error) bool {
	return hasPGCode(err, "40001")
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrUnsupportedDriver) ||
		errors.Is(err, gorm.ErrRegistered) ||
		errors.Is(err, gorm.ErrInvalidValue) ||
		errors.Is(err, gorm.ErrNotImplemented) ||
		errors.Is(err, gorm.ErrDryRunModeUnsupported) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
