package ratelimit

import "go.uber.org/fx"

// Module wires the shared Redis client and the Locker/TokenBucket built on
// top of it. erp.Facade depends on Locker for per-customer posting
// serialization; the Communicator depends on TokenBucket for per-recipient
// rate limiting.
var Module = fx.Module("rate.limit",
	fx.Provide(
		NewClient,
		NewLocker,
		NewTokenBucket,
	),
)
