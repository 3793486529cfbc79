package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/log"
	"github.com/cloudevy/downtime-scheduler/pkg/metrics"
	"github.com/rs/zerolog"
)

// Monitor runs named checkers on an interval and publishes their status to
// the metrics health registry that backs /health and /ready
type Monitor struct {
	config   Config
	mu       sync.RWMutex
	checkers map[string]Checker
	statuses map[string]*Status
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   zerolog.Logger
}

// NewMonitor creates a monitor
func NewMonitor(config Config) *Monitor {
	return &Monitor{
		config:   config,
		checkers: make(map[string]Checker),
		statuses: make(map[string]*Status),
		logger:   log.WithComponent("health"),
	}
}

// Register adds a checker under the component name used by readiness
func (m *Monitor) Register(name string, c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = c
	m.statuses[name] = NewStatus()
}

// CheckAll runs every checker once and updates the health registry
func (m *Monitor) CheckAll(ctx context.Context) {
	m.mu.RLock()
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		m.check(ctx, name)
	}
}

func (m *Monitor) check(ctx context.Context, name string) {
	m.mu.RLock()
	checker := m.checkers[name]
	m.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	res := checker.Check(checkCtx)
	cancel()

	m.mu.Lock()
	status := m.statuses[name]
	wasHealthy := status.Healthy
	status.Update(res, m.config)
	healthy := status.Healthy
	m.mu.Unlock()

	if wasHealthy != healthy {
		evt := m.logger.Info()
		if !healthy {
			evt = m.logger.Warn()
		}
		evt.Str("check", name).Str("type", string(checker.Type())).
			Bool("healthy", healthy).
			Str("message", res.Message).
			Msg("Health changed")
	}

	message := ""
	if !healthy {
		message = res.Message
	}
	metrics.UpdateComponent(name, healthy, message)
}

// Status returns a copy of the status of a component
func (m *Monitor) Status(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[name]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// Start checks immediately and then on every interval until Stop
func (m *Monitor) Start(ctx context.Context) {
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	m.stopCh, m.doneCh = stopCh, doneCh
	m.CheckAll(ctx)

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(m.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.CheckAll(ctx)
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the monitor loop
func (m *Monitor) Stop() {
	if m.stopCh == nil {
		return
	}
	close(m.stopCh)
	<-m.doneCh
	m.stopCh = nil
}
