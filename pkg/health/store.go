package health

import (
	"context"
	"fmt"
	"time"
)

// Pinger is implemented by storage.Store
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker verifies the store answers a ping
type StoreChecker struct {
	store Pinger
}

// NewStoreChecker creates a checker for store
func NewStoreChecker(store Pinger) *StoreChecker {
	return &StoreChecker{store: store}
}

// Check pings the store
func (c *StoreChecker) Check(ctx context.Context) Result {
	start := time.Now()
	if err := c.store.Ping(ctx); err != nil {
		return result(start, false, fmt.Sprintf("ping failed: %v", err))
	}
	return result(start, true, "store reachable")
}

// Type returns the health check type
func (c *StoreChecker) Type() CheckType {
	return CheckTypeStore
}

// TickSource is implemented by scheduler.Scheduler
type TickSource interface {
	Running() bool
	LastTick() time.Time
}

// SchedulerChecker reports the scheduler loop unhealthy when it is stopped or
// has not ticked within MaxAge
type SchedulerChecker struct {
	source TickSource
	MaxAge time.Duration
	now    func() time.Time
}

// NewSchedulerChecker creates a checker that tolerates maxAge between ticks
func NewSchedulerChecker(source TickSource, maxAge time.Duration) *SchedulerChecker {
	return &SchedulerChecker{source: source, MaxAge: maxAge, now: time.Now}
}

// Check inspects the last tick time
func (c *SchedulerChecker) Check(ctx context.Context) Result {
	start := c.now()
	if !c.source.Running() {
		return result(start, false, "scheduler not running")
	}
	last := c.source.LastTick()
	if last.IsZero() {
		return result(start, false, "scheduler has not ticked yet")
	}
	if age := start.Sub(last); age > c.MaxAge {
		return result(start, false, fmt.Sprintf("last tick %s ago", age.Round(time.Second)))
	}
	return result(start, true, "scheduler ticking")
}

// Type returns the health check type
func (c *SchedulerChecker) Type() CheckType {
	return CheckTypeScheduler
}
