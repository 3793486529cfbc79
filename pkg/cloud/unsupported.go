package cloud

import (
	"context"
	"fmt"
	"time"
)

// unsupported is a Provider for vendors without an implementation. Every call
// fails with ErrUnsupportedProvider.
type unsupported struct {
	name string
}

func (u unsupported) err() error {
	return fmt.Errorf("%w: %s support coming soon", ErrUnsupportedProvider, u.name)
}

func (u unsupported) InstanceState(context.Context, string) (string, error) { return "", u.err() }
func (u unsupported) Stop(context.Context, string) error                   { return u.err() }
func (u unsupported) Start(context.Context, string) error                  { return u.err() }
func (u unsupported) Reboot(context.Context, string) error                 { return u.err() }
func (u unsupported) WaitForState(context.Context, string, string, time.Duration) error {
	return u.err()
}
func (u unsupported) ModifyInstanceType(context.Context, string, string) error { return u.err() }
func (u unsupported) DescribeVolume(context.Context, string) (*Volume, error) {
	return nil, u.err()
}
func (u unsupported) ModifyVolume(context.Context, string, VolumeModification) error {
	return u.err()
}
