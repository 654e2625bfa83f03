// Package context carries request-scoped identifiers (request id,
// correlation id, transaction id, actor) through context.Context, the way
// the reviewed repo's org/actor context helpers do for its multi-tenant
// org id, generalized here to this system's transaction/correlation axis.
package context

import "context"

type contextKey int

const (
	requestIDKey contextKey = iota
	correlationIDKey
	transactionIDKey
	actorTypeKey
	actorIDKey
)

// WithRequestID attaches the inbound request identifier.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request identifier, or "" if unset.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithCorrelationID attaches the workflow correlation identifier that ties
// together every audit event, external call, and log line for one
// transaction's processing.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext returns the correlation identifier, or "" if unset.
func CorrelationIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}

// WithTransactionID attaches the payment transaction identifier being
// processed on this context.
func WithTransactionID(ctx context.Context, transactionID string) context.Context {
	return context.WithValue(ctx, transactionIDKey, transactionID)
}

// TransactionIDFromContext returns the transaction identifier, or "" if unset.
func TransactionIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(transactionIDKey).(string)
	return v
}

// WithActor attaches the actor type ("system", "scheduler", "api") and id
// that initiated the current operation, for audit attribution.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	ctx = context.WithValue(ctx, actorTypeKey, actorType)
	return context.WithValue(ctx, actorIDKey, actorID)
}

// ActorFromContext returns the actor type and id, or "" for both if unset.
func ActorFromContext(ctx context.Context) (actorType, actorID string) {
	actorType, _ = ctx.Value(actorTypeKey).(string)
	actorID, _ = ctx.Value(actorIDKey).(string)
	return actorType, actorID
}
