// Package auditcontext carries the request metadata that AppendAudit
// stamps onto every audit event: request id, client IP/user agent, actor,
// and the transaction/correlation identifiers tying the event to a
// workflow run. It mirrors the reviewed repo's subscription/billing-cycle
// context helpers, generalized to this system's transaction axis.
package auditcontext

import "context"

type contextKey int

const (
	requestIDKey contextKey = iota
	ipAddressKey
	userAgentKey
	actorTypeKey
	actorIDKey
	transactionIDKey
	correlationIDKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func WithIPAddress(ctx context.Context, ipAddress string) context.Context {
	return context.WithValue(ctx, ipAddressKey, ipAddress)
}

func IPAddressFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ipAddressKey).(string)
	return v
}

func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentKey, userAgent)
}

func UserAgentFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userAgentKey).(string)
	return v
}

// WithActor attaches the actor type ("system", "api", "scheduler") and id
// that initiated the operation being audited.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	ctx = context.WithValue(ctx, actorTypeKey, actorType)
	return context.WithValue(ctx, actorIDKey, actorID)
}

func ActorFromContext(ctx context.Context) (actorType, actorID string) {
	actorType, _ = ctx.Value(actorTypeKey).(string)
	actorID, _ = ctx.Value(actorIDKey).(string)
	return actorType, actorID
}

// WithTransactionID attaches the payment transaction identifier a batch of
// audit events belongs to.
func WithTransactionID(ctx context.Context, transactionID string) context.Context {
	return context.WithValue(ctx, transactionIDKey, transactionID)
}

func TransactionIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(transactionIDKey).(string)
	return v
}

// WithCorrelationID attaches the workflow correlation identifier.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}
