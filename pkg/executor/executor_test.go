package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/cloud"
	"github.com/cloudevy/downtime-scheduler/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) InstanceState(ctx context.Context, id string) (string, error) {
	args := m.Called(id)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) Stop(ctx context.Context, id string) error {
	return m.Called(id).Error(0)
}

func (m *mockProvider) Start(ctx context.Context, id string) error {
	return m.Called(id).Error(0)
}

func (m *mockProvider) Reboot(ctx context.Context, id string) error {
	return m.Called(id).Error(0)
}

func (m *mockProvider) WaitForState(ctx context.Context, id, state string, timeout time.Duration) error {
	return m.Called(id, state).Error(0)
}

func (m *mockProvider) ModifyInstanceType(ctx context.Context, id, instanceType string) error {
	return m.Called(id, instanceType).Error(0)
}

func (m *mockProvider) DescribeVolume(ctx context.Context, id string) (*cloud.Volume, error) {
	args := m.Called(id)
	v, _ := args.Get(0).(*cloud.Volume)
	return v, args.Error(1)
}

func (m *mockProvider) ModifyVolume(ctx context.Context, volumeID string, mod cloud.VolumeModification) error {
	return m.Called(volumeID, mod).Error(0)
}

type stubResolver struct {
	provider cloud.Provider
	err      error
	calls    int
}

func (r *stubResolver) Resolve(ctx context.Context, server *types.Server, account *types.CloudAccount) (cloud.Provider, error) {
	r.calls++
	return r.provider, r.err
}

type fakeStore struct {
	statuses      map[string]string
	instanceTypes map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{statuses: map[string]string{}, instanceTypes: map[string]string{}}
}

func (s *fakeStore) UpdateServerStatus(ctx context.Context, id, status string) error {
	s.statuses[id] = status
	return nil
}

func (s *fakeStore) UpdateServerInstanceType(ctx context.Context, id, instanceType string) error {
	s.instanceTypes[id] = instanceType
	return nil
}

func dueFor(action types.Action, scaling types.Scaling) *types.DueSchedule {
	return &types.DueSchedule{
		Schedule: &types.Schedule{
			ID:       "sched-1",
			ServerID: "srv-1",
			Action:   action,
			RRule:    "FREQ=DAILY;BYHOUR=21;BYMINUTE=0",
			Enabled:  true,
			Scaling:  scaling,
		},
		Server: &types.Server{
			ID:             "srv-1",
			Provider:       types.ProviderAWS,
			InstanceID:     "i-0abc",
			InstanceType:   "m5.large",
			CloudAccountID: "acct-1",
		},
		CloudAccount: &types.CloudAccount{
			ID:          "acct-1",
			Provider:    types.ProviderAWS,
			Credentials: "00:11",
		},
	}
}

func newTestExecutor(p cloud.Provider) (*Executor, *fakeStore) {
	store := newFakeStore()
	return New(&stubResolver{provider: p}, store), store
}

func TestExecuteStopRunning(t *testing.T) {
	p := &mockProvider{}
	p.On("InstanceState", "i-0abc").Return(cloud.StateRunning, nil)
	p.On("Stop", "i-0abc").Return(nil)

	e, store := newTestExecutor(p)
	out := e.Execute(context.Background(), dueFor(types.ActionStop, types.Scaling{}))

	assert.Equal(t, types.ExecutionSuccess, out.Status)
	assert.False(t, out.Skipped)
	assert.Empty(t, out.Error)
	assert.Equal(t, "stopping", store.statuses["srv-1"])
	p.AssertExpectations(t)
}

func TestExecuteIdempotentSkips(t *testing.T) {
	tests := []struct {
		name   string
		action types.Action
		state  string
	}{
		{"stop when stopped", types.ActionStop, cloud.StateStopped},
		{"stop when stopping", types.ActionStop, cloud.StateStopping},
		{"start when running", types.ActionStart, cloud.StateRunning},
		{"start when pending", types.ActionStart, cloud.StatePending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockProvider{}
			p.On("InstanceState", "i-0abc").Return(tt.state, nil)

			e, store := newTestExecutor(p)
			out := e.Execute(context.Background(), dueFor(tt.action, types.Scaling{}))

			assert.Equal(t, types.ExecutionSuccess, out.Status)
			assert.True(t, out.Skipped)
			assert.Contains(t, out.Message, tt.state)
			assert.Equal(t, tt.action.TransitionalStatus(), store.statuses["srv-1"])
			p.AssertNotCalled(t, "Stop", mock.Anything)
			p.AssertNotCalled(t, "Start", mock.Anything)
		})
	}
}

func TestExecuteRebootRequiresRunning(t *testing.T) {
	p := &mockProvider{}
	p.On("InstanceState", "i-0abc").Return(cloud.StateStopped, nil)

	e, store := newTestExecutor(p)
	out := e.Execute(context.Background(), dueFor(types.ActionReboot, types.Scaling{}))

	assert.Equal(t, types.ExecutionFailed, out.Status)
	assert.Equal(t, "cannot reboot instance in state stopped", out.Error)
	assert.Equal(t, "rebooting", store.statuses["srv-1"])
	p.AssertNotCalled(t, "Reboot", mock.Anything)
}

func TestExecuteRebootRunning(t *testing.T) {
	p := &mockProvider{}
	p.On("InstanceState", "i-0abc").Return(cloud.StateRunning, nil)
	p.On("Reboot", "i-0abc").Return(nil)

	e, _ := newTestExecutor(p)
	out := e.Execute(context.Background(), dueFor(types.ActionReboot, types.Scaling{}))

	assert.Equal(t, types.ExecutionSuccess, out.Status)
	p.AssertExpectations(t)
}

func TestExecuteProviderError(t *testing.T) {
	p := &mockProvider{}
	p.On("InstanceState", "i-0abc").Return(cloud.StateStopped, nil)
	p.On("Start", "i-0abc").Return(errors.New("InsufficientInstanceCapacity"))

	e, store := newTestExecutor(p)
	out := e.Execute(context.Background(), dueFor(types.ActionStart, types.Scaling{}))

	assert.Equal(t, types.ExecutionFailed, out.Status)
	assert.Contains(t, out.Error, "InsufficientInstanceCapacity")
	assert.Equal(t, "starting", store.statuses["srv-1"])
}

func TestExecutePreconditions(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.DueSchedule)
		wantErr string
	}{
		{"missing server", func(d *types.DueSchedule) { d.Server = nil }, "server srv-1 not found"},
		{"missing instance id", func(d *types.DueSchedule) { d.Server.InstanceID = "" }, errNoInstanceID.Error()},
		{"missing account", func(d *types.DueSchedule) { d.CloudAccount = nil }, errNoAccount.Error()},
		{"missing credentials", func(d *types.DueSchedule) { d.CloudAccount.Credentials = "" }, errNoCredentials.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &stubResolver{provider: &mockProvider{}}
			e := New(resolver, newFakeStore())

			due := dueFor(types.ActionStop, types.Scaling{})
			tt.mutate(due)
			out := e.Execute(context.Background(), due)

			assert.Equal(t, types.ExecutionFailed, out.Status)
			assert.Equal(t, tt.wantErr, out.Error)
			assert.Zero(t, resolver.calls)
		})
	}
}

func TestExecuteUnsupportedProvider(t *testing.T) {
	resolver := &stubResolver{err: cloud.ErrUnsupportedProvider}
	store := newFakeStore()
	e := New(resolver, store)

	due := dueFor(types.ActionStop, types.Scaling{})
	due.Server.Provider = types.ProviderAzure
	out := e.Execute(context.Background(), due)

	assert.Equal(t, types.ExecutionFailed, out.Status)
	assert.Contains(t, out.Error, "unsupported provider")
	assert.Equal(t, "stopping", store.statuses["srv-1"])
}

func TestExecuteStateLookupFails(t *testing.T) {
	p := &mockProvider{}
	p.On("InstanceState", "i-0abc").Return("", cloud.ErrInstanceNotFound)

	e, _ := newTestExecutor(p)
	out := e.Execute(context.Background(), dueFor(types.ActionStop, types.Scaling{}))

	assert.Equal(t, types.ExecutionFailed, out.Status)
	assert.Contains(t, out.Error, "instance not found")
	p.AssertNotCalled(t, "Stop", mock.Anything)
}

func TestScaleInstanceTypeRestartsRunningInstance(t *testing.T) {
	p := &mockProvider{}
	p.On("InstanceState", "i-0abc").Return(cloud.StateRunning, nil)
	p.On("Stop", "i-0abc").Return(nil).Once()
	p.On("WaitForState", "i-0abc", cloud.StateStopped).Return(nil).Once()
	p.On("ModifyInstanceType", "i-0abc", "t3.small").Return(nil).Once()
	p.On("Start", "i-0abc").Return(nil).Once()

	e, store := newTestExecutor(p)
	out := e.Execute(context.Background(), dueFor(types.ActionScaleDown, types.Scaling{TargetInstanceType: "t3.small"}))

	require.Equal(t, types.ExecutionSuccess, out.Status, out.Error)
	assert.False(t, out.Skipped)
	assert.Contains(t, out.Message, "m5.large -> t3.small")
	assert.Equal(t, "t3.small", store.instanceTypes["srv-1"])
	assert.Equal(t, "scaling", store.statuses["srv-1"])
	p.AssertExpectations(t)
}

func TestScaleInstanceTypeStoppedInstanceStaysStopped(t *testing.T) {
	p := &mockProvider{}
	p.On("InstanceState", "i-0abc").Return(cloud.StateStopped, nil)
	p.On("ModifyInstanceType", "i-0abc", "m5.xlarge").Return(nil).Once()

	e, _ := newTestExecutor(p)
	out := e.Execute(context.Background(), dueFor(types.ActionScaleUp, types.Scaling{TargetInstanceType: "m5.xlarge"}))

	assert.Equal(t, types.ExecutionSuccess, out.Status)
	p.AssertExpectations(t)
	p.AssertNotCalled(t, "Stop", mock.Anything)
	p.AssertNotCalled(t, "Start", mock.Anything)
	p.AssertNotCalled(t, "WaitForState", mock.Anything, mock.Anything)
}

func TestScaleInstanceTypeWaitTimeout(t *testing.T) {
	p := &mockProvider{}
	p.On("InstanceState", "i-0abc").Return(cloud.StateRunning, nil)
	p.On("Stop", "i-0abc").Return(nil)
	p.On("WaitForState", "i-0abc", cloud.StateStopped).Return(errors.New("timed out waiting for state stopped"))

	e, store := newTestExecutor(p)
	out := e.Execute(context.Background(), dueFor(types.ActionScaleDown, types.Scaling{TargetInstanceType: "t3.small"}))

	assert.Equal(t, types.ExecutionFailed, out.Status)
	assert.Contains(t, out.Error, "timed out")
	assert.Empty(t, store.instanceTypes)
	p.AssertNotCalled(t, "ModifyInstanceType", mock.Anything, mock.Anything)
}

func TestScaleInstanceTypeRestartFailureRecordsNewType(t *testing.T) {
	p := &mockProvider{}
	p.On("InstanceState", "i-0abc").Return(cloud.StateRunning, nil)
	p.On("Stop", "i-0abc").Return(nil).Once()
	p.On("WaitForState", "i-0abc", cloud.StateStopped).Return(nil).Once()
	p.On("ModifyInstanceType", "i-0abc", "t3.small").Return(nil).Once()
	p.On("Start", "i-0abc").Return(errors.New("InsufficientInstanceCapacity")).Once()

	e, store := newTestExecutor(p)
	out := e.Execute(context.Background(), dueFor(types.ActionScaleDown, types.Scaling{TargetInstanceType: "t3.small"}))

	assert.Equal(t, types.ExecutionFailed, out.Status)
	assert.Contains(t, out.Error, "restart failed")
	assert.Equal(t, "t3.small", store.instanceTypes["srv-1"])
	p.AssertExpectations(t)
}

func TestScaleInstanceTypePendingInstanceWaitsForRunning(t *testing.T) {
	p := &mockProvider{}
	p.On("InstanceState", "i-0abc").Return(cloud.StatePending, nil)
	p.On("WaitForState", "i-0abc", cloud.StateRunning).Return(nil).Once()
	p.On("Stop", "i-0abc").Return(nil).Once()
	p.On("WaitForState", "i-0abc", cloud.StateStopped).Return(nil).Once()
	p.On("ModifyInstanceType", "i-0abc", "t3.small").Return(nil).Once()
	p.On("Start", "i-0abc").Return(nil).Once()

	e, store := newTestExecutor(p)
	out := e.Execute(context.Background(), dueFor(types.ActionScaleDown, types.Scaling{TargetInstanceType: "t3.small"}))

	require.Equal(t, types.ExecutionSuccess, out.Status, out.Error)
	assert.Equal(t, "t3.small", store.instanceTypes["srv-1"])
	p.AssertExpectations(t)
}

func TestScaleInstanceTypePendingInstanceNeverRuns(t *testing.T) {
	p := &mockProvider{}
	p.On("InstanceState", "i-0abc").Return(cloud.StatePending, nil)
	p.On("WaitForState", "i-0abc", cloud.StateRunning).Return(errors.New("timed out waiting for state running"))

	e, store := newTestExecutor(p)
	out := e.Execute(context.Background(), dueFor(types.ActionScaleDown, types.Scaling{TargetInstanceType: "t3.small"}))

	assert.Equal(t, types.ExecutionFailed, out.Status)
	assert.Contains(t, out.Error, "instance still pending")
	assert.Empty(t, store.instanceTypes)
	p.AssertNotCalled(t, "Stop", mock.Anything)
	p.AssertNotCalled(t, "ModifyInstanceType", mock.Anything, mock.Anything)
}

func TestScaleSameInstanceTypeIsNoop(t *testing.T) {
	p := &mockProvider{}
	p.On("InstanceState", "i-0abc").Return(cloud.StateRunning, nil)

	e, _ := newTestExecutor(p)
	out := e.Execute(context.Background(), dueFor(types.ActionScaleUp, types.Scaling{TargetInstanceType: "m5.large"}))

	assert.Equal(t, types.ExecutionSuccess, out.Status)
	assert.True(t, out.Skipped)
	assert.Equal(t, "no changes required", out.Message)
	p.AssertNotCalled(t, "Stop", mock.Anything)
}

func TestScaleVolumeIopsOnlyKeepsInstanceRunning(t *testing.T) {
	p := &mockProvider{}
	p.On("InstanceState", "i-0abc").Return(cloud.StateRunning, nil)
	p.On("DescribeVolume", "i-0abc").Return(&cloud.Volume{
		ID:      "vol-1",
		SizeGiB: 100,
		Type:    "gp3",
		Iops:    types.Int32(3000),
	}, nil)
	p.On("ModifyVolume", "vol-1", cloud.VolumeModification{Iops: types.Int32(6000)}).Return(nil).Once()

	e, _ := newTestExecutor(p)
	out := e.Execute(context.Background(), dueFor(types.ActionScaleUp, types.Scaling{TargetVolumeIops: types.Int32(6000)}))

	require.Equal(t, types.ExecutionSuccess, out.Status, out.Error)
	assert.Contains(t, out.Message, "iops=6000")
	p.AssertExpectations(t)
	p.AssertNotCalled(t, "Stop", mock.Anything)
	p.AssertNotCalled(t, "Start", mock.Anything)
	p.AssertNotCalled(t, "ModifyInstanceType", mock.Anything, mock.Anything)
}

func TestScaleVolumeShrinkIsSkipped(t *testing.T) {
	p := &mockProvider{}
	p.On("InstanceState", "i-0abc").Return(cloud.StateRunning, nil)
	p.On("DescribeVolume", "i-0abc").Return(&cloud.Volume{ID: "vol-1", SizeGiB: 200, Type: "gp3"}, nil)

	e, _ := newTestExecutor(p)
	out := e.Execute(context.Background(), dueFor(types.ActionScaleDown, types.Scaling{TargetVolumeSize: types.Int32(100)}))

	assert.Equal(t, types.ExecutionSuccess, out.Status)
	assert.True(t, out.Skipped)
	p.AssertNotCalled(t, "ModifyVolume", mock.Anything, mock.Anything)
}

func TestScaleWithoutTargetFails(t *testing.T) {
	p := &mockProvider{}
	p.On("InstanceState", "i-0abc").Return(cloud.StateRunning, nil)

	e, _ := newTestExecutor(p)
	out := e.Execute(context.Background(), dueFor(types.ActionScaleUp, types.Scaling{}))

	assert.Equal(t, types.ExecutionFailed, out.Status)
	assert.Equal(t, "no scaling target configured", out.Error)
}

func TestVolumeChanges(t *testing.T) {
	current := &cloud.Volume{ID: "vol-1", SizeGiB: 100, Type: "gp2", Iops: types.Int32(300), Throughput: nil}

	tests := []struct {
		name      string
		scaling   types.Scaling
		want      cloud.VolumeModification
		wantNotes int
	}{
		{
			name:    "grow and retype",
			scaling: types.Scaling{TargetVolumeSize: types.Int32(200), TargetVolumeType: "gp3"},
			want:    cloud.VolumeModification{SizeGiB: types.Int32(200), Type: "gp3"},
		},
		{
			name:    "unchanged attributes are dropped",
			scaling: types.Scaling{TargetVolumeSize: types.Int32(100), TargetVolumeType: "gp2", TargetVolumeIops: types.Int32(300)},
			want:    cloud.VolumeModification{},
		},
		{
			name:      "shrink noted",
			scaling:   types.Scaling{TargetVolumeSize: types.Int32(50), TargetVolumeThroughput: types.Int32(250)},
			want:      cloud.VolumeModification{Throughput: types.Int32(250)},
			wantNotes: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, notes := volumeChanges(tt.scaling, current)
			assert.Equal(t, tt.want, mod)
			assert.Len(t, notes, tt.wantNotes)
		})
	}
}
