package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/types"
)

// Inventory is the read side of the store the collector needs
type Inventory interface {
	ListSchedules(ctx context.Context, workspaceID, serverID string) ([]*types.Schedule, error)
	ListServers(ctx context.Context) ([]*types.Server, error)
}

// Collector periodically refreshes inventory gauges from the store
type Collector struct {
	inventory Inventory
	interval  time.Duration
	stopCh    chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(inv Inventory) *Collector {
	return &Collector{
		inventory: inv,
		interval:  15 * time.Second,
		stopCh:    make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.Collect(context.Background())

		for {
			select {
			case <-ticker.C:
				c.Collect(context.Background())
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect refreshes every inventory gauge once
func (c *Collector) Collect(ctx context.Context) {
	c.collectScheduleMetrics(ctx)
	c.collectServerMetrics(ctx)
}

func (c *Collector) collectScheduleMetrics(ctx context.Context) {
	schedules, err := c.inventory.ListSchedules(ctx, "", "")
	if err != nil {
		return
	}

	// Reset so that label sets that dropped to zero disappear
	SchedulesTotal.Reset()
	for _, action := range types.Actions {
		SchedulesTotal.WithLabelValues(string(action), "true").Set(0)
		SchedulesTotal.WithLabelValues(string(action), "false").Set(0)
	}

	for _, s := range schedules {
		SchedulesTotal.WithLabelValues(string(s.Action), strconv.FormatBool(s.Enabled)).Inc()
	}
}

func (c *Collector) collectServerMetrics(ctx context.Context) {
	servers, err := c.inventory.ListServers(ctx)
	if err != nil {
		return
	}

	counts := make(map[[2]string]int)
	for _, s := range servers {
		status := s.Status
		if status == "" {
			status = "unknown"
		}
		counts[[2]string{string(s.Provider), status}]++
	}

	ServersTotal.Reset()
	for k, n := range counts {
		ServersTotal.WithLabelValues(k[0], k[1]).Set(float64(n))
	}
}
