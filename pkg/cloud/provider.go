package cloud

import (
	"context"
	"errors"
	"time"
)

// Instance states as reported by providers
const (
	StatePending      = "pending"
	StateRunning      = "running"
	StateStopping     = "stopping"
	StateStopped      = "stopped"
	StateShuttingDown = "shutting-down"
	StateTerminated   = "terminated"
)

var (
	// ErrUnsupportedProvider is returned by every call on a provider that has
	// no implementation yet
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrInstanceNotFound is returned when the provider does not know the instance
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrVolumeNotFound is returned when the instance has no root volume
	ErrVolumeNotFound = errors.New("volume not found")
)

// Provider is the capability set the executor needs from a cloud vendor
type Provider interface {
	InstanceState(ctx context.Context, instanceID string) (string, error)
	Stop(ctx context.Context, instanceID string) error
	Start(ctx context.Context, instanceID string) error
	Reboot(ctx context.Context, instanceID string) error
	// WaitForState blocks until the instance reaches state or timeout elapses
	WaitForState(ctx context.Context, instanceID, state string, timeout time.Duration) error
	ModifyInstanceType(ctx context.Context, instanceID, instanceType string) error
	// DescribeVolume returns the root volume of the instance
	DescribeVolume(ctx context.Context, instanceID string) (*Volume, error)
	ModifyVolume(ctx context.Context, volumeID string, mod VolumeModification) error
}

// Volume is a block storage volume
type Volume struct {
	ID         string
	SizeGiB    int32
	Type       string
	Iops       *int32
	Throughput *int32 // MiB/s
}

// VolumeModification lists the attributes to change. Nil or empty means unchanged.
type VolumeModification struct {
	SizeGiB    *int32
	Type       string
	Iops       *int32
	Throughput *int32
}

// Empty reports whether no attribute is set
func (m VolumeModification) Empty() bool {
	return m.SizeGiB == nil && m.Type == "" && m.Iops == nil && m.Throughput == nil
}
