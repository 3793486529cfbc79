package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/cloud"
	"github.com/cloudevy/downtime-scheduler/pkg/log"
	"github.com/cloudevy/downtime-scheduler/pkg/metrics"
	"github.com/cloudevy/downtime-scheduler/pkg/tracing"
	"github.com/cloudevy/downtime-scheduler/pkg/types"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultStateTimeout bounds the wait for an instance to stop before its type is changed
const DefaultStateTimeout = 3 * time.Minute

// ServerStore is the bookkeeping the executor writes after acting
type ServerStore interface {
	UpdateServerStatus(ctx context.Context, id, status string) error
	UpdateServerInstanceType(ctx context.Context, id, instanceType string) error
}

// Outcome is the result of one execution attempt
type Outcome struct {
	Status     types.ExecutionStatus
	Error      string
	DurationMs int64
	// Skipped is set when the instance was already in the desired state and
	// no mutating call was made
	Skipped bool
	Message string
}

// Executor performs a schedule's action against its server
type Executor struct {
	resolver     cloud.Resolver
	store        ServerStore
	stateTimeout time.Duration
	logger       zerolog.Logger
}

// Option configures an Executor
type Option func(*Executor)

// WithStateTimeout overrides DefaultStateTimeout
func WithStateTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.stateTimeout = d
		}
	}
}

// New creates an executor
func New(resolver cloud.Resolver, store ServerStore, opts ...Option) *Executor {
	e := &Executor{
		resolver:     resolver,
		store:        store,
		stateTimeout: DefaultStateTimeout,
		logger:       log.WithComponent("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// precondition errors
var (
	errNoInstanceID  = errors.New("server has no instance id")
	errNoAccount     = errors.New("server has no cloud account")
	errNoCredentials = errors.New("cloud account has no credentials")
)

// Execute runs the schedule's action once. It never panics on provider errors
// and always returns an Outcome; the caller records it.
func (e *Executor) Execute(ctx context.Context, due *types.DueSchedule) Outcome {
	timer := metrics.NewTimer()
	schedule := due.Schedule

	ctx, span := tracing.StartSpan(ctx, "schedule.execute",
		attribute.String("schedule.id", schedule.ID),
		attribute.String("schedule.action", string(schedule.Action)),
		attribute.String("server.id", schedule.ServerID),
	)

	logger := log.WithExecution(e.logger, schedule.ID, schedule.ServerID, string(schedule.Action))

	message, skipped, err := e.execute(ctx, due, logger)

	// Optimistic status regardless of outcome; a later inventory sync corrects it
	if due.Server != nil {
		if status := schedule.Action.TransitionalStatus(); status != "" {
			if serr := e.store.UpdateServerStatus(ctx, due.Server.ID, status); serr != nil {
				logger.Warn().Err(serr).Msg("Failed to update server status")
			}
		}
	}

	tracing.End(span, err)

	out := Outcome{
		Status:     types.ExecutionSuccess,
		DurationMs: timer.Duration().Milliseconds(),
		Skipped:    skipped,
		Message:    message,
	}
	if err != nil {
		out.Status = types.ExecutionFailed
		out.Error = err.Error()
		logger.Error().Err(err).Int64("duration_ms", out.DurationMs).Msg("Execution failed")
	} else {
		logger.Info().Bool("skipped", skipped).Int64("duration_ms", out.DurationMs).Msg(message)
	}

	metrics.ExecutionsTotal.WithLabelValues(string(schedule.Action), string(out.Status)).Inc()
	timer.ObserveDurationVec(metrics.ExecutionDuration, string(schedule.Action))
	if skipped {
		metrics.ExecutionsSkipped.WithLabelValues(string(schedule.Action)).Inc()
	}
	return out
}

func (e *Executor) execute(ctx context.Context, due *types.DueSchedule, logger zerolog.Logger) (string, bool, error) {
	schedule, server := due.Schedule, due.Server

	switch {
	case server == nil:
		return "", false, fmt.Errorf("server %s not found", schedule.ServerID)
	case server.InstanceID == "":
		return "", false, errNoInstanceID
	case due.CloudAccount == nil:
		return "", false, errNoAccount
	case due.CloudAccount.Credentials == "":
		return "", false, errNoCredentials
	}

	provider, err := e.resolver.Resolve(ctx, server, due.CloudAccount)
	if err != nil {
		return "", false, err
	}

	state, err := provider.InstanceState(ctx, server.InstanceID)
	if err != nil {
		return "", false, fmt.Errorf("failed to read instance state: %w", err)
	}

	switch schedule.Action {
	case types.ActionStop:
		if state == cloud.StateStopped || state == cloud.StateStopping {
			return "instance already " + state, true, nil
		}
		if err := provider.Stop(ctx, server.InstanceID); err != nil {
			return "", false, err
		}
		return "stop requested", false, nil

	case types.ActionStart:
		if state == cloud.StateRunning || state == cloud.StatePending {
			return "instance already " + state, true, nil
		}
		if err := provider.Start(ctx, server.InstanceID); err != nil {
			return "", false, err
		}
		return "start requested", false, nil

	case types.ActionReboot:
		if state != cloud.StateRunning {
			return "", false, fmt.Errorf("cannot reboot instance in state %s", state)
		}
		if err := provider.Reboot(ctx, server.InstanceID); err != nil {
			return "", false, err
		}
		return "reboot requested", false, nil

	case types.ActionScaleDown, types.ActionScaleUp:
		return e.scale(ctx, provider, due, state, logger)

	default:
		return "", false, fmt.Errorf("unknown action %q", schedule.Action)
	}
}

// scale applies the instance type and volume targets of a scaling schedule.
// The volume path never stops the instance.
func (e *Executor) scale(ctx context.Context, p cloud.Provider, due *types.DueSchedule, state string, logger zerolog.Logger) (string, bool, error) {
	scaling, server := due.Schedule.Scaling, due.Server
	if !scaling.HasTarget() {
		return "", false, errors.New("no scaling target configured")
	}

	var changes []string

	if target := scaling.TargetInstanceType; target != "" && target != server.InstanceType {
		if state == cloud.StatePending {
			if err := p.WaitForState(ctx, server.InstanceID, cloud.StateRunning, e.stateTimeout); err != nil {
				return "", false, fmt.Errorf("instance still pending: %w", err)
			}
			state = cloud.StateRunning
		}
		wasRunning := state == cloud.StateRunning

		if wasRunning {
			if err := p.Stop(ctx, server.InstanceID); err != nil {
				return "", false, err
			}
		}
		if wasRunning || state == cloud.StateStopping {
			if err := p.WaitForState(ctx, server.InstanceID, cloud.StateStopped, e.stateTimeout); err != nil {
				return "", false, err
			}
		}

		if err := p.ModifyInstanceType(ctx, server.InstanceID, target); err != nil {
			return "", false, err
		}

		// The type change is already applied, so record it even if the restart fails.
		if err := e.store.UpdateServerInstanceType(ctx, server.ID, target); err != nil {
			logger.Warn().Err(err).Msg("Failed to record new instance type")
		}

		if wasRunning {
			if err := p.Start(ctx, server.InstanceID); err != nil {
				return "", false, fmt.Errorf("instance type changed to %s but restart failed: %w", target, err)
			}
		}
		changes = append(changes, fmt.Sprintf("instance type %s -> %s", server.InstanceType, target))
	}

	if scaling.HasVolumeTarget() {
		volume, err := p.DescribeVolume(ctx, server.InstanceID)
		if err != nil {
			return "", false, err
		}

		mod, notes := volumeChanges(scaling, volume)
		for _, n := range notes {
			logger.Warn().Str("volume_id", volume.ID).Msg(n)
		}
		if !mod.Empty() {
			if err := p.ModifyVolume(ctx, volume.ID, mod); err != nil {
				return "", false, err
			}
			changes = append(changes, describeModification(volume.ID, mod))
		}
	}

	if len(changes) == 0 {
		return "no changes required", true, nil
	}
	return strings.Join(changes, "; "), false, nil
}

// volumeChanges keeps only the requested attributes that differ from the
// current volume. A size below the current size is dropped with a note.
func volumeChanges(s types.Scaling, v *cloud.Volume) (cloud.VolumeModification, []string) {
	var (
		mod   cloud.VolumeModification
		notes []string
	)

	if s.TargetVolumeSize != nil {
		switch target := *s.TargetVolumeSize; {
		case target < v.SizeGiB:
			notes = append(notes, fmt.Sprintf("volume shrink from %d to %d GiB is not supported, skipping size change", v.SizeGiB, target))
		case target > v.SizeGiB:
			mod.SizeGiB = types.Int32(target)
		}
	}
	if s.TargetVolumeType != "" && s.TargetVolumeType != v.Type {
		mod.Type = s.TargetVolumeType
	}
	if s.TargetVolumeIops != nil && (v.Iops == nil || *v.Iops != *s.TargetVolumeIops) {
		mod.Iops = types.Int32(*s.TargetVolumeIops)
	}
	if s.TargetVolumeThroughput != nil && (v.Throughput == nil || *v.Throughput != *s.TargetVolumeThroughput) {
		mod.Throughput = types.Int32(*s.TargetVolumeThroughput)
	}
	return mod, notes
}

func describeModification(volumeID string, m cloud.VolumeModification) string {
	var parts []string
	if m.SizeGiB != nil {
		parts = append(parts, fmt.Sprintf("size=%dGiB", *m.SizeGiB))
	}
	if m.Type != "" {
		parts = append(parts, "type="+m.Type)
	}
	if m.Iops != nil {
		parts = append(parts, fmt.Sprintf("iops=%d", *m.Iops))
	}
	if m.Throughput != nil {
		parts = append(parts, fmt.Sprintf("throughput=%dMiB/s", *m.Throughput))
	}
	return fmt.Sprintf("volume %s %s", volumeID, strings.Join(parts, " "))
}
