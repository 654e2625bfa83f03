package clock

import "time"

// Clock is the time source the Orchestrator and its reconciliation sweep
// depend on, so tests can substitute FakeClock instead of wall time.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock, backed by time.Now.
type RealClock struct{}

func NewRealClock() *RealClock { return &RealClock{} }

func (RealClock) Now() time.Time { return time.Now().UTC() }

var _ Clock = RealClock{}
var _ Clock = (*FakeClock)(nil)
