package schedules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/events"
	"github.com/cloudevy/downtime-scheduler/pkg/log"
	"github.com/cloudevy/downtime-scheduler/pkg/rules"
	"github.com/cloudevy/downtime-scheduler/pkg/storage"
	"github.com/cloudevy/downtime-scheduler/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultExecutionLimit is used when Executions is called without a limit
const DefaultExecutionLimit = 50

// CreateRequest holds the fields of a new schedule
type CreateRequest struct {
	ServerID string        `json:"serverId"`
	Name     string        `json:"name"`
	Action   types.Action  `json:"action"`
	RRule    string        `json:"rrule"`
	Timezone string        `json:"timezone"`
	Scaling  types.Scaling `json:"scaling"`
}

// UpdateRequest changes the non-nil fields of a schedule
type UpdateRequest struct {
	Name     *string        `json:"name,omitempty"`
	Action   *types.Action  `json:"action,omitempty"`
	RRule    *string        `json:"rrule,omitempty"`
	Timezone *string        `json:"timezone,omitempty"`
	Enabled  *bool          `json:"enabled,omitempty"`
	Scaling  *types.Scaling `json:"scaling,omitempty"`
}

// Service validates and persists schedules on behalf of a workspace. Records
// of other workspaces are reported as storage.ErrNotFound.
type Service struct {
	store  storage.Store
	engine rules.Engine
	events events.Publisher
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithEvents publishes schedule lifecycle events to p
func WithEvents(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a schedule service
func NewService(store storage.Store, engine rules.Engine, opts ...Option) *Service {
	s := &Service{
		store:  store,
		engine: engine,
		now:    time.Now,
		logger: log.WithComponent("schedules"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates req and stores a new enabled schedule whose NextRunAt is
// the rule's first occurrence after now
func (s *Service) Create(ctx context.Context, workspaceID string, req CreateRequest) (*types.Schedule, error) {
	if req.ServerID == "" || strings.TrimSpace(req.Name) == "" || req.Action == "" || strings.TrimSpace(req.RRule) == "" {
		return nil, invalid("", "missing required fields: serverId, name, action, rrule")
	}
	if err := validateAction(req.Action, req.Scaling); err != nil {
		return nil, err
	}

	server, err := s.server(ctx, workspaceID, req.ServerID)
	if err != nil {
		return nil, err
	}

	tz := req.Timezone
	if tz == "" {
		tz = "UTC"
	}
	now := s.now().UTC()
	rule, next, err := s.plan(req.RRule, tz, now)
	if err != nil {
		return nil, err
	}

	schedule := &types.Schedule{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		ServerID:    server.ID,
		Name:        strings.TrimSpace(req.Name),
		Action:      req.Action,
		RRule:       rule,
		Timezone:    tz,
		NextRunAt:   next,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Action.IsScaling() {
		schedule.Scaling = req.Scaling
		if schedule.Scaling.TargetInstanceType != "" && schedule.Scaling.OriginalInstanceType == "" {
			schedule.Scaling.OriginalInstanceType = server.InstanceType
		}
	}

	if err := s.store.CreateSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}

	s.logger.Info().
		Str("schedule_id", schedule.ID).
		Str("server_id", schedule.ServerID).
		Str("action", string(schedule.Action)).
		Time("next_run_at", schedule.NextRunAt).
		Msg("Schedule created")
	s.publish(events.EventScheduleCreated, "schedule "+schedule.Name+" created", schedule, nil)
	return schedule, nil
}

// Update applies the set fields of req. NextRunAt is recomputed when the rule
// or timezone changes, and when a schedule is re-enabled with a past NextRunAt.
func (s *Service) Update(ctx context.Context, workspaceID, id string, req UpdateRequest) (*types.Schedule, error) {
	schedule, err := s.update(ctx, workspaceID, id, req)
	if err != nil {
		return nil, err
	}
	s.publish(events.EventScheduleUpdated, "schedule "+schedule.Name+" updated", schedule, nil)
	return schedule, nil
}

func (s *Service) update(ctx context.Context, workspaceID, id string, req UpdateRequest) (*types.Schedule, error) {
	schedule, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, invalid("name", "name must not be empty")
		}
		schedule.Name = name
	}

	action, scaling := schedule.Action, schedule.Scaling
	if req.Action != nil {
		action = *req.Action
	}
	if req.Scaling != nil {
		scaling = *req.Scaling
	}
	if req.Action != nil || req.Scaling != nil {
		if err := validateAction(action, scaling); err != nil {
			return nil, err
		}
		schedule.Action = action
		schedule.Scaling = types.Scaling{}
		if action.IsScaling() {
			schedule.Scaling = scaling
		}
	}

	replan := false
	if req.RRule != nil {
		schedule.RRule = *req.RRule
		replan = true
	}
	if req.Timezone != nil && *req.Timezone != schedule.Timezone {
		schedule.Timezone = *req.Timezone
		if schedule.Timezone == "" {
			schedule.Timezone = "UTC"
		}
		replan = true
	}
	if req.Enabled != nil {
		if *req.Enabled && !schedule.Enabled && schedule.NextRunAt.Before(now) {
			replan = true
		}
		schedule.Enabled = *req.Enabled
	}

	if replan {
		rule, next, err := s.plan(schedule.RRule, schedule.Timezone, now)
		if err != nil {
			return nil, err
		}
		schedule.RRule, schedule.NextRunAt = rule, next
	}

	schedule.UpdatedAt = now
	if err := s.store.UpdateSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to update schedule: %w", err)
	}

	s.logger.Info().Str("schedule_id", id).Bool("replanned", replan).Msg("Schedule updated")
	return schedule, nil
}

// Delete removes a schedule and its execution history
func (s *Service) Delete(ctx context.Context, workspaceID, id string) error {
	schedule, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSchedule(ctx, id); err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	s.logger.Info().Str("schedule_id", id).Msg("Schedule deleted")
	s.publish(events.EventScheduleDeleted, "schedule "+schedule.Name+" deleted", schedule, nil)
	return nil
}

// Get returns a schedule of the workspace
func (s *Service) Get(ctx context.Context, workspaceID, id string) (*types.Schedule, error) {
	schedule, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if schedule.WorkspaceID != workspaceID {
		return nil, fmt.Errorf("schedule %s: %w", id, storage.ErrNotFound)
	}
	return schedule, nil
}

// List returns the workspace's schedules ordered by NextRunAt, optionally
// limited to one server
func (s *Service) List(ctx context.Context, workspaceID, serverID string) ([]*types.Schedule, error) {
	return s.store.ListSchedules(ctx, workspaceID, serverID)
}

// Toggle flips Enabled
func (s *Service) Toggle(ctx context.Context, workspaceID, id string) (*types.Schedule, error) {
	schedule, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	enabled := !schedule.Enabled

	updated, err := s.update(ctx, workspaceID, id, UpdateRequest{Enabled: &enabled})
	if err != nil {
		return nil, err
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	s.publish(events.EventScheduleToggled, "schedule "+updated.Name+" "+state, updated, map[string]string{"enabled": fmt.Sprint(enabled)})
	return updated, nil
}

// Executions returns the newest executions of a schedule. A limit of zero or
// less means DefaultExecutionLimit.
func (s *Service) Executions(ctx context.Context, workspaceID, id string, limit int) ([]*types.ScheduleExecution, error) {
	if _, err := s.Get(ctx, workspaceID, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultExecutionLimit
	}
	return s.store.ListExecutions(ctx, id, limit)
}

// plan anchors rule and computes its first occurrence after now
func (s *Service) plan(rule, tz string, now time.Time) (string, time.Time, error) {
	if _, err := rules.LoadLocation(tz); err != nil {
		return "", time.Time{}, invalid("timezone", fmt.Sprintf("invalid timezone: %s", tz))
	}
	if !s.engine.Valid(rule) {
		return "", time.Time{}, invalid("rrule", "invalid rrule format")
	}
	if zonedStart(rule) {
		return "", time.Time{}, invalid("rrule", "DTSTART must not carry TZID, it is read in the schedule timezone")
	}

	anchored, err := rules.Anchor(rule, tz, now)
	if err != nil {
		return "", time.Time{}, invalid("rrule", "invalid rrule format")
	}

	next, ok, err := s.engine.Next(anchored, tz, now)
	switch {
	case errors.Is(err, rules.ErrInvalidTimezone):
		return "", time.Time{}, invalid("timezone", err.Error())
	case err != nil:
		return "", time.Time{}, invalid("rrule", "invalid rrule format")
	case !ok:
		return "", time.Time{}, invalid("rrule", "invalid rrule: no future occurrences")
	}
	return anchored, next, nil
}

// zonedStart reports whether rule has a DTSTART;TZID=... line
func zonedStart(rule string) bool {
	for _, line := range strings.Split(rule, "\n") {
		line = strings.ToUpper(strings.TrimSpace(line))
		if strings.HasPrefix(line, "DTSTART;") && strings.Contains(line, "TZID=") {
			return true
		}
	}
	return false
}

func (s *Service) server(ctx context.Context, workspaceID, id string) (*types.Server, error) {
	server, err := s.store.GetServer(ctx, id)
	if err != nil {
		return nil, err
	}
	if server.WorkspaceID != workspaceID {
		return nil, fmt.Errorf("server %s: %w", id, storage.ErrNotFound)
	}
	return server, nil
}

func validateAction(action types.Action, scaling types.Scaling) error {
	if !action.Valid() {
		return invalid("action", "invalid action, must be: stop, start, reboot, scale_down, or scale_up")
	}
	if !action.IsScaling() {
		return nil
	}
	if !scaling.HasTarget() {
		return invalid("scaling", "at least one target configuration (instance type or volume) is required for scaling actions")
	}
	targets := []struct {
		name  string
		value *int32
	}{
		{"targetVolumeSize", scaling.TargetVolumeSize},
		{"targetVolumeIops", scaling.TargetVolumeIops},
		{"targetVolumeThroughput", scaling.TargetVolumeThroughput},
	}
	for _, t := range targets {
		if t.value != nil && *t.value <= 0 {
			return invalid("scaling", t.name+" must be positive")
		}
	}
	return nil
}

func (s *Service) publish(t events.EventType, msg string, schedule *types.Schedule, meta map[string]string) {
	if s.events == nil {
		return
	}
	if meta == nil {
		meta = map[string]string{}
	}
	meta["schedule_id"] = schedule.ID
	meta["workspace_id"] = schedule.WorkspaceID
	s.events.Publish(events.New(t, msg, meta))
}
