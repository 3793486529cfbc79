package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/types"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// Store defines the persistence contract of the scheduler.
// Implemented by BoltStore (embedded) and SQLStore (SQLite).
type Store interface {
	// Schedules
	CreateSchedule(ctx context.Context, schedule *types.Schedule) error
	GetSchedule(ctx context.Context, id string) (*types.Schedule, error)
	// ListSchedules returns schedules ordered by NextRunAt. An empty workspaceID
	// lists every workspace; an empty serverID disables the server filter.
	ListSchedules(ctx context.Context, workspaceID, serverID string) ([]*types.Schedule, error)
	UpdateSchedule(ctx context.Context, schedule *types.Schedule) error
	// DeleteSchedule removes the schedule and all of its executions
	DeleteSchedule(ctx context.Context, id string) error

	// ListDueSchedules returns enabled schedules with NextRunAt <= until, joined
	// with their server and cloud account, ordered by NextRunAt. Server and
	// CloudAccount are nil when the referenced record is missing.
	ListDueSchedules(ctx context.Context, until time.Time) ([]*types.DueSchedule, error)
	// AdvanceSchedule stores the next occurrence after a run
	AdvanceSchedule(ctx context.Context, id string, next, ranAt time.Time) error
	// DisableSchedule turns off a schedule whose rule is exhausted
	DisableSchedule(ctx context.Context, id string, ranAt time.Time) error
	// AdvanceMissed moves NextRunAt past an occurrence that was never run.
	// LastRunAt and ExecutionCount are unchanged.
	AdvanceMissed(ctx context.Context, id string, next time.Time) error

	// Executions
	RecordExecution(ctx context.Context, execution *types.ScheduleExecution) error
	// ListExecutions returns the newest executions first
	ListExecutions(ctx context.Context, scheduleID string, limit int) ([]*types.ScheduleExecution, error)

	// Servers
	PutServer(ctx context.Context, server *types.Server) error
	GetServer(ctx context.Context, id string) (*types.Server, error)
	ListServers(ctx context.Context) ([]*types.Server, error)
	UpdateServerStatus(ctx context.Context, id, status string) error
	UpdateServerInstanceType(ctx context.Context, id, instanceType string) error

	// Cloud accounts
	PutCloudAccount(ctx context.Context, account *types.CloudAccount) error
	GetCloudAccount(ctx context.Context, id string) (*types.CloudAccount, error)
	ListCloudAccounts(ctx context.Context) ([]*types.CloudAccount, error)

	// Traffic. Points are keyed by (ServerID, Hour); putting an existing key replaces it.
	PutTraffic(ctx context.Context, points []types.HourlyTraffic) error
	// ListTraffic returns points with Hour >= since in ascending order
	ListTraffic(ctx context.Context, serverID string, since time.Time) ([]types.HourlyTraffic, error)

	// Utility
	Ping(ctx context.Context) error
	Close() error
}

// Driver names accepted by Open
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

// Open creates a store for the given driver. For bolt, location is a data
// directory; for sqlite it is a DSN or file path.
func Open(driver, location string) (Store, error) {
	switch driver {
	case DriverBolt, "":
		return NewBoltStore(location)
	case DriverSQLite:
		return NewSQLStore(location)
	default:
		return nil, errors.New("unknown store driver: " + driver)
	}
}

// Copy writes every record of src into dst. Used to migrate between drivers.
// A nil dst only counts the records.
func Copy(ctx context.Context, src, dst Store) (CopyStats, error) {
	var stats CopyStats

	accounts, err := src.ListCloudAccounts(ctx)
	if err != nil {
		return stats, err
	}
	for _, a := range accounts {
		if err := put(dst, func() error { return dst.PutCloudAccount(ctx, a) }); err != nil {
			return stats, err
		}
		stats.CloudAccounts++
	}

	servers, err := src.ListServers(ctx)
	if err != nil {
		return stats, err
	}
	for _, s := range servers {
		if err := put(dst, func() error { return dst.PutServer(ctx, s) }); err != nil {
			return stats, err
		}
		stats.Servers++

		points, err := src.ListTraffic(ctx, s.ID, time.Time{})
		if err != nil {
			return stats, err
		}
		if err := put(dst, func() error { return dst.PutTraffic(ctx, points) }); err != nil {
			return stats, err
		}
		stats.TrafficPoints += len(points)
	}

	schedules, err := src.ListSchedules(ctx, "", "")
	if err != nil {
		return stats, err
	}
	for _, s := range schedules {
		if err := put(dst, func() error { return dst.CreateSchedule(ctx, s) }); err != nil {
			return stats, err
		}
		stats.Schedules++

		execs, err := src.ListExecutions(ctx, s.ID, 0)
		if err != nil {
			return stats, err
		}
		for _, e := range execs {
			if err := put(dst, func() error { return dst.RecordExecution(ctx, e) }); err != nil {
				return stats, err
			}
			stats.Executions++
		}
	}

	return stats, nil
}

func put(dst Store, write func() error) error {
	if dst == nil {
		return nil
	}
	return write()
}

// CopyStats counts the records written by Copy
type CopyStats struct {
	CloudAccounts int
	Servers       int
	TrafficPoints int
	Schedules     int
	Executions    int
}
