package cloud

import (
	"context"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/metrics"
	"github.com/cloudevy/downtime-scheduler/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// instrumented wraps a Provider with a span, a call counter and a latency
// histogram per operation
type instrumented struct {
	name  string
	inner Provider
}

// Instrument wraps p so every call is traced and counted under name
func Instrument(name string, p Provider) Provider {
	return &instrumented{name: name, inner: p}
}

func (i *instrumented) call(ctx context.Context, op, target string, fn func(context.Context) error) error {
	timer := metrics.NewTimer()
	ctx, span := tracing.StartSpan(ctx, "cloud."+op,
		attribute.String("cloud.provider", i.name),
		attribute.String("cloud.target", target),
	)

	err := fn(ctx)

	tracing.End(span, err)
	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.ProviderCallsTotal.WithLabelValues(i.name, op, result).Inc()
	timer.ObserveDurationVec(metrics.ProviderCallDuration, i.name, op)
	return err
}

func (i *instrumented) InstanceState(ctx context.Context, instanceID string) (string, error) {
	var state string
	err := i.call(ctx, "instance_state", instanceID, func(ctx context.Context) error {
		var err error
		state, err = i.inner.InstanceState(ctx, instanceID)
		return err
	})
	return state, err
}

func (i *instrumented) Stop(ctx context.Context, instanceID string) error {
	return i.call(ctx, "stop", instanceID, func(ctx context.Context) error {
		return i.inner.Stop(ctx, instanceID)
	})
}

func (i *instrumented) Start(ctx context.Context, instanceID string) error {
	return i.call(ctx, "start", instanceID, func(ctx context.Context) error {
		return i.inner.Start(ctx, instanceID)
	})
}

func (i *instrumented) Reboot(ctx context.Context, instanceID string) error {
	return i.call(ctx, "reboot", instanceID, func(ctx context.Context) error {
		return i.inner.Reboot(ctx, instanceID)
	})
}

func (i *instrumented) WaitForState(ctx context.Context, instanceID, state string, timeout time.Duration) error {
	return i.call(ctx, "wait_"+state, instanceID, func(ctx context.Context) error {
		return i.inner.WaitForState(ctx, instanceID, state, timeout)
	})
}

func (i *instrumented) ModifyInstanceType(ctx context.Context, instanceID, instanceType string) error {
	return i.call(ctx, "modify_instance_type", instanceID, func(ctx context.Context) error {
		return i.inner.ModifyInstanceType(ctx, instanceID, instanceType)
	})
}

func (i *instrumented) DescribeVolume(ctx context.Context, instanceID string) (*Volume, error) {
	var v *Volume
	err := i.call(ctx, "describe_volume", instanceID, func(ctx context.Context) error {
		var err error
		v, err = i.inner.DescribeVolume(ctx, instanceID)
		return err
	})
	return v, err
}

func (i *instrumented) ModifyVolume(ctx context.Context, volumeID string, mod VolumeModification) error {
	return i.call(ctx, "modify_volume", volumeID, func(ctx context.Context) error {
		return i.inner.ModifyVolume(ctx, volumeID, mod)
	})
}
