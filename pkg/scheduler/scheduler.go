package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/events"
	"github.com/cloudevy/downtime-scheduler/pkg/executor"
	"github.com/cloudevy/downtime-scheduler/pkg/log"
	"github.com/cloudevy/downtime-scheduler/pkg/metrics"
	"github.com/cloudevy/downtime-scheduler/pkg/rules"
	"github.com/cloudevy/downtime-scheduler/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Defaults for Config
const (
	DefaultPollInterval = 10 * time.Second
	DefaultLookahead    = 2 * time.Minute
	DefaultTolerance    = 15 * time.Second
	DefaultGracePeriod  = 30 * time.Second
)

// Config controls the polling loop
type Config struct {
	PollInterval time.Duration
	Lookahead    time.Duration
	Tolerance    time.Duration
	GracePeriod  time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Lookahead <= 0 {
		c.Lookahead = DefaultLookahead
	}
	if c.Tolerance <= 0 {
		c.Tolerance = DefaultTolerance
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	return c
}

// Store is the persistence the loop needs
type Store interface {
	ListDueSchedules(ctx context.Context, until time.Time) ([]*types.DueSchedule, error)
	RecordExecution(ctx context.Context, execution *types.ScheduleExecution) error
	AdvanceSchedule(ctx context.Context, id string, next, ranAt time.Time) error
	DisableSchedule(ctx context.Context, id string, ranAt time.Time) error
	// AdvanceMissed moves NextRunAt without counting an execution
	AdvanceMissed(ctx context.Context, id string, next time.Time) error
	GetSchedule(ctx context.Context, id string) (*types.Schedule, error)
}

// Executor performs one schedule action
type Executor interface {
	Execute(ctx context.Context, due *types.DueSchedule) executor.Outcome
}

// Scheduler polls for due schedules and dispatches their executions
type Scheduler struct {
	store    Store
	executor Executor
	engine   rules.Engine
	inflight InFlight
	events   events.Publisher
	cfg      Config
	logger   zerolog.Logger

	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	lastTick time.Time
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithInFlight replaces the in-memory in-flight set
func WithInFlight(f InFlight) Option {
	return func(s *Scheduler) { s.inflight = f }
}

// WithEvents publishes execution events to p
func WithEvents(p events.Publisher) Option {
	return func(s *Scheduler) { s.events = p }
}

// NewScheduler creates a new scheduler
func NewScheduler(store Store, exec Executor, engine rules.Engine, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		executor: exec,
		engine:   engine,
		inflight: NewMemoryInFlight(),
		cfg:      cfg.withDefaults(),
		logger:   log.WithComponent("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the scheduler loop. The first tick runs immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	s.logger.Info().
		Dur("poll_interval", s.cfg.PollInterval).
		Dur("lookahead", s.cfg.Lookahead).
		Msg("Scheduler started")

	go s.run(ctx, s.stopCh, s.doneCh)
}

// Stop halts ticking and waits up to the grace period for in-flight
// executions. Executions still running afterwards are left to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	timer := time.NewTimer(s.cfg.GracePeriod)
	defer timer.Stop()

	select {
	case <-drained:
		s.logger.Info().Msg("Scheduler stopped")
	case <-timer.C:
		s.logger.Warn().Int("in_flight", s.inflight.Len()).Msg("Grace period elapsed with executions still running")
	case <-ctx.Done():
		s.logger.Warn().Int("in_flight", s.inflight.Len()).Msg("Shutdown context ended with executions still running")
	}
}

// Running reports whether the loop is active
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastTick returns the time of the most recent tick
func (s *Scheduler) LastTick() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTick
}

// Wait blocks until every dispatched execution has completed
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.Tick(ctx, time.Now())

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx, time.Now())
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Tick performs one polling cycle at now and returns the number of executions
// dispatched. Store errors are logged and end the cycle.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulerTickDuration)
	metrics.SchedulerTicks.Inc()

	s.mu.Lock()
	s.lastTick = now
	s.mu.Unlock()

	due, err := s.store.ListDueSchedules(ctx, now.Add(s.cfg.Lookahead))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list due schedules")
		return 0
	}
	metrics.DueSchedules.Set(float64(len(due)))

	dispatched := 0
	for _, d := range due {
		if d == nil || d.Schedule == nil || !d.Schedule.Enabled {
			continue
		}
		run := ShouldRunNow(d.Schedule.NextRunAt, now, s.cfg.Tolerance)
		missed := !run && Missed(d.Schedule.NextRunAt, now)
		if !run && !missed {
			continue
		}
		if !s.inflight.TryAcquire(d.Schedule.ID) {
			s.logger.Debug().Str("schedule_id", d.Schedule.ID).Msg("Execution already in flight, skipping")
			continue
		}

		// The listing may predate a run that finished before the acquire.
		current, ok := s.revalidate(ctx, d.Schedule)
		if !ok {
			s.inflight.Release(d.Schedule.ID)
			continue
		}
		d = &types.DueSchedule{Schedule: current, Server: d.Server, CloudAccount: d.CloudAccount}

		if missed {
			s.skipMissed(ctx, d.Schedule, now)
			s.inflight.Release(d.Schedule.ID)
			continue
		}

		metrics.InFlightExecutions.Set(float64(s.inflight.Len()))
		s.wg.Add(1)
		go s.dispatch(context.WithoutCancel(ctx), d, now)
		dispatched++
	}

	if dispatched > 0 {
		s.logger.Info().Int("dispatched", dispatched).Int("due", len(due)).Msg("Dispatched due schedules")
	}
	return dispatched
}

// ShouldRunNow reports whether a schedule whose next run is at next should
// fire at now. Both are normalized to the minute, so this is an exact-minute
// match rather than an overdue check.
func ShouldRunNow(next, now time.Time, tolerance time.Duration) bool {
	diff := rules.NormalizeToMinute(next).Sub(rules.NormalizeToMinute(now))
	if diff < 0 {
		diff = -diff
	}
	return diff < tolerance
}

// Missed reports whether the minute of next has already passed at now
func Missed(next, now time.Time) bool {
	return rules.NormalizeToMinute(next).Before(rules.NormalizeToMinute(now))
}

// revalidate re-reads a listed schedule once its slot is held. It reports
// false when the schedule was disabled or advanced after the listing.
func (s *Scheduler) revalidate(ctx context.Context, listed *types.Schedule) (*types.Schedule, bool) {
	current, err := s.store.GetSchedule(ctx, listed.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("schedule_id", listed.ID).Msg("Failed to re-read schedule")
		return nil, false
	}
	if !current.Enabled || !current.NextRunAt.Equal(listed.NextRunAt) {
		s.logger.Debug().
			Str("schedule_id", listed.ID).
			Time("listed_next_run_at", listed.NextRunAt).
			Time("next_run_at", current.NextRunAt).
			Bool("enabled", current.Enabled).
			Msg("Schedule changed since listing, skipping")
		return nil, false
	}
	return current, true
}

// skipMissed moves a schedule whose minute passed unobserved to its next
// natural occurrence without executing it.
func (s *Scheduler) skipMissed(ctx context.Context, schedule *types.Schedule, now time.Time) {
	next, ok, err := s.engine.Next(schedule.RRule, schedule.Timezone, now)
	logger := log.WithExecution(s.logger, schedule.ID, schedule.ServerID, "").With().Time("missed_run_at", schedule.NextRunAt).Logger()
	if err != nil || !ok {
		// Leave it in place; the schedule service or an operator can fix or disable it
		logger.Warn().Err(err).Msg("Missed occurrence and no next run available")
		return
	}

	if err := s.store.AdvanceMissed(ctx, schedule.ID, next); err != nil {
		logger.Error().Err(err).Msg("Failed to skip missed occurrence")
		return
	}
	logger.Warn().Time("next_run_at", next).Msg("Occurrence missed, moved to next run")
	s.publish(events.EventScheduleSkipped, fmt.Sprintf("missed occurrence of schedule %s", schedule.Name), schedule,
		map[string]string{"reason": "missed"})
}

func (s *Scheduler) dispatch(ctx context.Context, d *types.DueSchedule, now time.Time) {
	defer s.wg.Done()
	defer func() {
		s.inflight.Release(d.Schedule.ID)
		metrics.InFlightExecutions.Set(float64(s.inflight.Len()))
	}()

	schedule := d.Schedule
	logger := log.WithExecution(s.logger, schedule.ID, schedule.ServerID, string(schedule.Action))

	out := s.executor.Execute(ctx, d)

	execution := &types.ScheduleExecution{
		ID:         uuid.New().String(),
		ScheduleID: schedule.ID,
		Action:     schedule.Action,
		Status:     out.Status,
		Error:      out.Error,
		DurationMs: out.DurationMs,
		ExecutedAt: now,
	}
	if err := s.store.RecordExecution(ctx, execution); err != nil {
		logger.Error().Err(err).Msg("Failed to record execution")
	}

	s.publishOutcome(schedule, out)
	s.advance(ctx, schedule, now, logger)
}

// advance moves the schedule to its next occurrence, or disables it when the
// rule has none left.
func (s *Scheduler) advance(ctx context.Context, schedule *types.Schedule, now time.Time, logger zerolog.Logger) {
	from := now
	if schedule.NextRunAt.After(from) {
		from = schedule.NextRunAt
	}

	next, ok, err := s.engine.Next(schedule.RRule, schedule.Timezone, from)
	if err != nil {
		// An unparseable stored rule can never fire again
		logger.Error().Err(err).Msg("Failed to compute next run, disabling schedule")
		ok = false
	}

	if !ok {
		if err := s.store.DisableSchedule(ctx, schedule.ID, now); err != nil {
			logger.Error().Err(err).Msg("Failed to disable exhausted schedule")
			return
		}
		metrics.RulesExhausted.Inc()
		logger.Info().Msg("Rule exhausted, schedule disabled")
		s.publish(events.EventScheduleExhausted, fmt.Sprintf("schedule %s has no further occurrences", schedule.Name), schedule, nil)
		return
	}

	if err := s.store.AdvanceSchedule(ctx, schedule.ID, next, now); err != nil {
		logger.Error().Err(err).Msg("Failed to advance schedule")
		return
	}
	logger.Debug().Time("next_run_at", next).Msg("Schedule advanced")
}

func (s *Scheduler) publishOutcome(schedule *types.Schedule, out executor.Outcome) {
	meta := map[string]string{
		"status":      string(out.Status),
		"duration_ms": fmt.Sprintf("%d", out.DurationMs),
	}

	switch {
	case out.Status == types.ExecutionFailed:
		meta["error"] = out.Error
		s.publish(events.EventScheduleFailed, fmt.Sprintf("%s on schedule %s failed", schedule.Action, schedule.Name), schedule, meta)
	case out.Skipped:
		s.publish(events.EventScheduleSkipped, out.Message, schedule, meta)
	default:
		s.publish(events.EventScheduleExecuted, fmt.Sprintf("%s on schedule %s succeeded", schedule.Action, schedule.Name), schedule, meta)
	}
}

func (s *Scheduler) publish(t events.EventType, msg string, schedule *types.Schedule, meta map[string]string) {
	if s.events == nil {
		return
	}
	if meta == nil {
		meta = map[string]string{}
	}
	meta["schedule_id"] = schedule.ID
	meta["server_id"] = schedule.ServerID
	meta["action"] = string(schedule.Action)
	s.events.Publish(events.New(t, msg, meta))
}
