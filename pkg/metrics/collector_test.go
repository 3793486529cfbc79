package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudevy/downtime-scheduler/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type fakeInventory struct {
	schedules []*types.Schedule
	servers   []*types.Server
	err       error
}

func (f *fakeInventory) ListSchedules(ctx context.Context, workspaceID, serverID string) ([]*types.Schedule, error) {
	return f.schedules, f.err
}

func (f *fakeInventory) ListServers(ctx context.Context) ([]*types.Server, error) {
	return f.servers, f.err
}

func TestCollectorCollect(t *testing.T) {
	inv := &fakeInventory{
		schedules: []*types.Schedule{
			{ID: "a", Action: types.ActionStop, Enabled: true},
			{ID: "b", Action: types.ActionStop, Enabled: true},
			{ID: "c", Action: types.ActionStart, Enabled: false},
		},
		servers: []*types.Server{
			{ID: "s1", Provider: types.ProviderAWS, Status: "running"},
			{ID: "s2", Provider: types.ProviderAWS, Status: "running"},
			{ID: "s3", Provider: types.ProviderGCP},
		},
	}

	NewCollector(inv).Collect(context.Background())

	assert.Equal(t, 2.0, testutil.ToFloat64(SchedulesTotal.WithLabelValues("stop", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(SchedulesTotal.WithLabelValues("start", "false")))
	assert.Equal(t, 0.0, testutil.ToFloat64(SchedulesTotal.WithLabelValues("reboot", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(ServersTotal.WithLabelValues("aws", "running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ServersTotal.WithLabelValues("gcp", "unknown")))
}

func TestCollectorKeepsValuesOnError(t *testing.T) {
	inv := &fakeInventory{schedules: []*types.Schedule{{ID: "a", Action: types.ActionReboot, Enabled: true}}}
	c := NewCollector(inv)
	c.Collect(context.Background())

	inv.err = errors.New("store down")
	c.Collect(context.Background())

	assert.Equal(t, 1.0, testutil.ToFloat64(SchedulesTotal.WithLabelValues("reboot", "true")))
}
