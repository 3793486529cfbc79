package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T) Store

func newBolt(t *testing.T) Store {
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newSQLite(t *testing.T) Store {
	s, err := NewSQLStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var factories = map[string]storeFactory{
	"bolt":   newBolt,
	"sqlite": newSQLite,
}

func base() time.Time {
	return time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC)
}

func seed(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.PutCloudAccount(ctx, &types.CloudAccount{
		ID: "acct-1", WorkspaceID: "ws-1", Provider: types.ProviderAWS, Region: "ap-south-1", Credentials: "aa:bb",
	}))
	require.NoError(t, s.PutServer(ctx, &types.Server{
		ID: "srv-1", WorkspaceID: "ws-1", Name: "web", Provider: types.ProviderAWS,
		InstanceID: "i-123", Region: "ap-south-1", InstanceType: "t3.large", Status: "running",
		CloudAccountID: "acct-1",
	}))
	require.NoError(t, s.PutServer(ctx, &types.Server{
		ID: "srv-2", WorkspaceID: "ws-2", Provider: types.ProviderGCP, InstanceID: "vm-9",
	}))
}

func schedule(id, workspace, server string, next time.Time, enabled bool) *types.Schedule {
	return &types.Schedule{
		ID:          id,
		WorkspaceID: workspace,
		ServerID:    server,
		Name:        "nightly " + id,
		Action:      types.ActionScaleDown,
		RRule:       "FREQ=DAILY;BYHOUR=21;BYMINUTE=0",
		Timezone:    "Asia/Kolkata",
		NextRunAt:   next,
		Enabled:     enabled,
		Scaling: types.Scaling{
			TargetInstanceType: "t3.small",
			TargetVolumeIops:   types.Int32(4000),
		},
		CreatedAt: base().Add(-time.Hour),
		UpdatedAt: base().Add(-time.Hour),
	}
}

func TestStores(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			t.Run("ScheduleCRUD", func(t *testing.T) { testScheduleCRUD(t, factory(t)) })
			t.Run("DueSchedules", func(t *testing.T) { testDueSchedules(t, factory(t)) })
			t.Run("AdvanceAndDisable", func(t *testing.T) { testAdvanceAndDisable(t, factory(t)) })
			t.Run("AdvanceMissed", func(t *testing.T) { testAdvanceMissed(t, factory(t)) })
			t.Run("Executions", func(t *testing.T) { testExecutions(t, factory(t)) })
			t.Run("Servers", func(t *testing.T) { testServers(t, factory(t)) })
			t.Run("Traffic", func(t *testing.T) { testTraffic(t, factory(t)) })
			t.Run("Ping", func(t *testing.T) { assert.NoError(t, factory(t).Ping(context.Background())) })
		})
	}
}

func testScheduleCRUD(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)

	sc := schedule("sch-1", "ws-1", "srv-1", base(), true)
	require.NoError(t, s.CreateSchedule(ctx, sc))

	got, err := s.GetSchedule(ctx, "sch-1")
	require.NoError(t, err)
	assert.Equal(t, "nightly sch-1", got.Name)
	assert.Equal(t, types.ActionScaleDown, got.Action)
	assert.True(t, got.NextRunAt.Equal(base()))
	assert.Nil(t, got.LastRunAt)
	assert.Equal(t, "t3.small", got.Scaling.TargetInstanceType)
	require.NotNil(t, got.Scaling.TargetVolumeIops)
	assert.Equal(t, int32(4000), *got.Scaling.TargetVolumeIops)
	assert.Nil(t, got.Scaling.TargetVolumeSize)

	got.Name = "renamed"
	got.Enabled = false
	require.NoError(t, s.UpdateSchedule(ctx, got))
	got, err = s.GetSchedule(ctx, "sch-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.False(t, got.Enabled)

	require.NoError(t, s.CreateSchedule(ctx, schedule("sch-2", "ws-1", "srv-1", base().Add(-time.Hour), true)))
	require.NoError(t, s.CreateSchedule(ctx, schedule("sch-3", "ws-2", "srv-2", base(), true)))

	list, err := s.ListSchedules(ctx, "ws-1", "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "sch-2", list[0].ID, "ordered by next run")

	list, err = s.ListSchedules(ctx, "ws-2", "srv-1")
	require.NoError(t, err)
	assert.Empty(t, list)

	all, err := s.ListSchedules(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, s.DeleteSchedule(ctx, "sch-1"))
	_, err = s.GetSchedule(ctx, "sch-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteSchedule(ctx, "sch-1"), ErrNotFound)
	assert.ErrorIs(t, s.UpdateSchedule(ctx, schedule("missing", "ws-1", "srv-1", base(), true)), ErrNotFound)
}

func testDueSchedules(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)

	require.NoError(t, s.CreateSchedule(ctx, schedule("due", "ws-1", "srv-1", base(), true)))
	require.NoError(t, s.CreateSchedule(ctx, schedule("later", "ws-1", "srv-1", base().Add(time.Hour), true)))
	require.NoError(t, s.CreateSchedule(ctx, schedule("off", "ws-1", "srv-1", base(), false)))
	require.NoError(t, s.CreateSchedule(ctx, schedule("orphan", "ws-1", "gone", base().Add(-time.Minute), true)))
	require.NoError(t, s.CreateSchedule(ctx, schedule("gcp", "ws-2", "srv-2", base().Add(time.Minute), true)))

	due, err := s.ListDueSchedules(ctx, base().Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 3)

	assert.Equal(t, "orphan", due[0].Schedule.ID)
	assert.Nil(t, due[0].Server)
	assert.Nil(t, due[0].CloudAccount)

	assert.Equal(t, "due", due[1].Schedule.ID)
	require.NotNil(t, due[1].Server)
	assert.Equal(t, "i-123", due[1].Server.InstanceID)
	require.NotNil(t, due[1].CloudAccount)
	assert.Equal(t, "aa:bb", due[1].CloudAccount.Credentials)

	assert.Equal(t, "gcp", due[2].Schedule.ID)
	require.NotNil(t, due[2].Server)
	assert.Nil(t, due[2].CloudAccount)
}

func testAdvanceAndDisable(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)
	require.NoError(t, s.CreateSchedule(ctx, schedule("sch-1", "ws-1", "srv-1", base(), true)))

	ranAt := base().Add(3 * time.Second)
	next := base().Add(24 * time.Hour)
	require.NoError(t, s.AdvanceSchedule(ctx, "sch-1", next, ranAt))

	got, err := s.GetSchedule(ctx, "sch-1")
	require.NoError(t, err)
	assert.True(t, got.NextRunAt.Equal(next))
	require.NotNil(t, got.LastRunAt)
	assert.True(t, got.LastRunAt.Equal(ranAt))
	assert.Equal(t, 1, got.ExecutionCount)
	assert.True(t, got.Enabled)

	require.NoError(t, s.DisableSchedule(ctx, "sch-1", next))
	got, err = s.GetSchedule(ctx, "sch-1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, 2, got.ExecutionCount)

	due, err := s.ListDueSchedules(ctx, next.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due, "disabled schedules are never selected")

	assert.ErrorIs(t, s.AdvanceSchedule(ctx, "missing", next, ranAt), ErrNotFound)
	assert.ErrorIs(t, s.DisableSchedule(ctx, "missing", ranAt), ErrNotFound)
	assert.ErrorIs(t, s.AdvanceMissed(ctx, "missing", next), ErrNotFound)
}

func testAdvanceMissed(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)
	require.NoError(t, s.CreateSchedule(ctx, schedule("sch-1", "ws-1", "srv-1", base(), true)))

	next := base().Add(48 * time.Hour)
	require.NoError(t, s.AdvanceMissed(ctx, "sch-1", next))

	got, err := s.GetSchedule(ctx, "sch-1")
	require.NoError(t, err)
	assert.True(t, got.NextRunAt.Equal(next))
	assert.Nil(t, got.LastRunAt)
	assert.Zero(t, got.ExecutionCount)
	assert.True(t, got.Enabled)
}

func testExecutions(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)
	require.NoError(t, s.CreateSchedule(ctx, schedule("sch-1", "ws-1", "srv-1", base(), true)))
	require.NoError(t, s.CreateSchedule(ctx, schedule("sch-10", "ws-1", "srv-1", base(), true)))

	for i := 0; i < 5; i++ {
		status := types.ExecutionSuccess
		if i%2 == 1 {
			status = types.ExecutionFailed
		}
		require.NoError(t, s.RecordExecution(ctx, &types.ScheduleExecution{
			ID:         fmt.Sprintf("exec-%d", i),
			ScheduleID: "sch-1",
			Action:     types.ActionStop,
			Status:     status,
			Error:      map[bool]string{true: "boom"}[status == types.ExecutionFailed],
			DurationMs: int64(100 * i),
			ExecutedAt: base().Add(time.Duration(i) * 24 * time.Hour),
		}))
	}
	require.NoError(t, s.RecordExecution(ctx, &types.ScheduleExecution{
		ID: "other", ScheduleID: "sch-10", Action: types.ActionStart, Status: types.ExecutionSuccess, ExecutedAt: base(),
	}))

	execs, err := s.ListExecutions(ctx, "sch-1", 3)
	require.NoError(t, err)
	require.Len(t, execs, 3)
	assert.Equal(t, "exec-4", execs[0].ID, "newest first")
	assert.Equal(t, "exec-2", execs[2].ID)
	assert.Equal(t, "boom", execs[1].Error)
	assert.Equal(t, types.ExecutionFailed, execs[1].Status)

	execs, err = s.ListExecutions(ctx, "sch-1", 0)
	require.NoError(t, err)
	assert.Len(t, execs, 5)

	require.NoError(t, s.DeleteSchedule(ctx, "sch-1"))
	execs, err = s.ListExecutions(ctx, "sch-1", 0)
	require.NoError(t, err)
	assert.Empty(t, execs, "executions cascade with their schedule")

	execs, err = s.ListExecutions(ctx, "sch-10", 0)
	require.NoError(t, err)
	assert.Len(t, execs, 1)
}

func testServers(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)

	require.NoError(t, s.UpdateServerStatus(ctx, "srv-1", "stopping"))
	require.NoError(t, s.UpdateServerInstanceType(ctx, "srv-1", "t3.small"))

	sv, err := s.GetServer(ctx, "srv-1")
	require.NoError(t, err)
	assert.Equal(t, "stopping", sv.Status)
	assert.Equal(t, "t3.small", sv.InstanceType)
	assert.Equal(t, types.ProviderAWS, sv.Provider)

	_, err = s.GetServer(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.ErrorIs(t, s.UpdateServerStatus(ctx, "nope", "x"), ErrNotFound)

	servers, err := s.ListServers(ctx)
	require.NoError(t, err)
	assert.Len(t, servers, 2)

	acct, err := s.GetCloudAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "ap-south-1", acct.Region)
	_, err = s.GetCloudAccount(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func testTraffic(t *testing.T, s Store) {
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var points []types.HourlyTraffic
	for i := 0; i < 48; i++ {
		points = append(points, types.HourlyTraffic{
			ServerID: "srv-1", Hour: start.Add(time.Duration(i) * time.Hour),
			AvgInMbps: float64(i), AvgOutMbps: 1, MaxInMbps: float64(i) * 2, MaxOutMbps: 2, Samples: 60,
		})
	}
	points = append(points, types.HourlyTraffic{ServerID: "srv-10", Hour: start, AvgInMbps: 99, Samples: 1})
	require.NoError(t, s.PutTraffic(ctx, points))

	// Replace one bucket
	require.NoError(t, s.PutTraffic(ctx, []types.HourlyTraffic{{
		ServerID: "srv-1", Hour: start, AvgInMbps: 7, AvgOutMbps: 7, MaxInMbps: 7, MaxOutMbps: 7, Samples: 12,
	}}))

	got, err := s.ListTraffic(ctx, "srv-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 48)
	assert.Equal(t, 7.0, got[0].AvgInMbps)
	assert.Equal(t, 12, got[0].Samples)
	assert.True(t, got[47].Hour.Equal(start.Add(47*time.Hour)))

	got, err = s.ListTraffic(ctx, "srv-1", start.Add(40*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 8)
	assert.Equal(t, 40.0, got[0].AvgInMbps)
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	src := newBolt(t)
	dst := newSQLite(t)

	seed(t, src)
	require.NoError(t, src.CreateSchedule(ctx, schedule("sch-1", "ws-1", "srv-1", base(), true)))
	require.NoError(t, src.RecordExecution(ctx, &types.ScheduleExecution{
		ID: "e1", ScheduleID: "sch-1", Action: types.ActionStop, Status: types.ExecutionSuccess, ExecutedAt: base(),
	}))
	require.NoError(t, src.PutTraffic(ctx, []types.HourlyTraffic{{ServerID: "srv-1", Hour: base().Truncate(time.Hour), AvgInMbps: 1}}))

	stats, err := Copy(ctx, src, dst)
	require.NoError(t, err)
	assert.Equal(t, CopyStats{CloudAccounts: 1, Servers: 2, TrafficPoints: 1, Schedules: 1, Executions: 1}, stats)

	got, err := dst.GetSchedule(ctx, "sch-1")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", got.Timezone)
}

func TestCopyCountOnly(t *testing.T) {
	ctx := context.Background()
	src := newBolt(t)
	seed(t, src)

	stats, err := Copy(ctx, src, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CloudAccounts)
	assert.Equal(t, 2, stats.Servers)
	assert.Zero(t, stats.Schedules)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("postgres", "x")
	assert.Error(t, err)
}
