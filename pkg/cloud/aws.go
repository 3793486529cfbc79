package cloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
)

// EC2API is the subset of the EC2 client used by EC2Provider
type EC2API interface {
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	StopInstances(ctx context.Context, in *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
	StartInstances(ctx context.Context, in *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	RebootInstances(ctx context.Context, in *ec2.RebootInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RebootInstancesOutput, error)
	ModifyInstanceAttribute(ctx context.Context, in *ec2.ModifyInstanceAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifyInstanceAttributeOutput, error)
	DescribeVolumes(ctx context.Context, in *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	ModifyVolume(ctx context.Context, in *ec2.ModifyVolumeInput, optFns ...func(*ec2.Options)) (*ec2.ModifyVolumeOutput, error)
}

// EC2Provider implements Provider on Amazon EC2
type EC2Provider struct {
	client EC2API

	// pollInterval is the minimum delay between state checks while waiting
	pollInterval time.Duration
}

// NewEC2Provider creates a provider around an EC2 client
func NewEC2Provider(client EC2API) *EC2Provider {
	return &EC2Provider{client: client, pollInterval: 5 * time.Second}
}

// NewEC2ProviderFromConfig creates a provider from an AWS SDK configuration
func NewEC2ProviderFromConfig(cfg aws.Config) *EC2Provider {
	return NewEC2Provider(ec2.NewFromConfig(cfg))
}

func (p *EC2Provider) describe(ctx context.Context, instanceID string) (*ec2types.Instance, error) {
	out, err := p.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidInstanceID.NotFound" {
			return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
		}
		return nil, fmt.Errorf("describe instance %s: %w", instanceID, err)
	}
	for _, r := range out.Reservations {
		for i := range r.Instances {
			if aws.ToString(r.Instances[i].InstanceId) == instanceID {
				return &r.Instances[i], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
}

// InstanceState returns the EC2 state name of the instance
func (p *EC2Provider) InstanceState(ctx context.Context, instanceID string) (string, error) {
	inst, err := p.describe(ctx, instanceID)
	if err != nil {
		return "", err
	}
	if inst.State == nil {
		return "", fmt.Errorf("instance %s has no state", instanceID)
	}
	return string(inst.State.Name), nil
}

func (p *EC2Provider) Stop(ctx context.Context, instanceID string) error {
	if _, err := p.client.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{instanceID}}); err != nil {
		return fmt.Errorf("stop instance %s: %w", instanceID, err)
	}
	return nil
}

func (p *EC2Provider) Start(ctx context.Context, instanceID string) error {
	if _, err := p.client.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{instanceID}}); err != nil {
		return fmt.Errorf("start instance %s: %w", instanceID, err)
	}
	return nil
}

func (p *EC2Provider) Reboot(ctx context.Context, instanceID string) error {
	if _, err := p.client.RebootInstances(ctx, &ec2.RebootInstancesInput{InstanceIds: []string{instanceID}}); err != nil {
		return fmt.Errorf("reboot instance %s: %w", instanceID, err)
	}
	return nil
}

// WaitForState uses the SDK waiters for stopped and running, and polls
// DescribeInstances for any other state.
func (p *EC2Provider) WaitForState(ctx context.Context, instanceID, state string, timeout time.Duration) error {
	in := &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}}

	var err error
	switch state {
	case StateStopped:
		w := ec2.NewInstanceStoppedWaiter(p.client, func(o *ec2.InstanceStoppedWaiterOptions) {
			o.MinDelay = p.pollInterval
			o.MaxDelay = p.pollInterval * 4
		})
		err = w.Wait(ctx, in, timeout)
	case StateRunning:
		w := ec2.NewInstanceRunningWaiter(p.client, func(o *ec2.InstanceRunningWaiterOptions) {
			o.MinDelay = p.pollInterval
			o.MaxDelay = p.pollInterval * 4
		})
		err = w.Wait(ctx, in, timeout)
	default:
		err = p.poll(ctx, instanceID, state, timeout)
	}
	if err != nil {
		return fmt.Errorf("wait for instance %s to be %s: %w", instanceID, state, err)
	}
	return nil
}

func (p *EC2Provider) poll(ctx context.Context, instanceID, state string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		current, err := p.InstanceState(ctx, instanceID)
		if err != nil {
			return err
		}
		if current == state {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("last state %s: %w", current, ctx.Err())
		}
	}
}

func (p *EC2Provider) ModifyInstanceType(ctx context.Context, instanceID, instanceType string) error {
	_, err := p.client.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
		InstanceId:   aws.String(instanceID),
		InstanceType: &ec2types.AttributeValue{Value: aws.String(instanceType)},
	})
	if err != nil {
		return fmt.Errorf("modify instance type of %s: %w", instanceID, err)
	}
	return nil
}

// DescribeVolume returns the EBS volume mapped to the instance's root device,
// or the first mapped volume when the root device is not listed.
func (p *EC2Provider) DescribeVolume(ctx context.Context, instanceID string) (*Volume, error) {
	inst, err := p.describe(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	var volumeID string
	root := aws.ToString(inst.RootDeviceName)
	for _, m := range inst.BlockDeviceMappings {
		if m.Ebs == nil || m.Ebs.VolumeId == nil {
			continue
		}
		if volumeID == "" || aws.ToString(m.DeviceName) == root {
			volumeID = aws.ToString(m.Ebs.VolumeId)
		}
		if aws.ToString(m.DeviceName) == root {
			break
		}
	}
	if volumeID == "" {
		return nil, fmt.Errorf("%w: instance %s has no EBS volume", ErrVolumeNotFound, instanceID)
	}

	out, err := p.client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{VolumeIds: []string{volumeID}})
	if err != nil {
		return nil, fmt.Errorf("describe volume %s: %w", volumeID, err)
	}
	if len(out.Volumes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrVolumeNotFound, volumeID)
	}

	v := out.Volumes[0]
	return &Volume{
		ID:         volumeID,
		SizeGiB:    aws.ToInt32(v.Size),
		Type:       string(v.VolumeType),
		Iops:       v.Iops,
		Throughput: v.Throughput,
	}, nil
}

func (p *EC2Provider) ModifyVolume(ctx context.Context, volumeID string, mod VolumeModification) error {
	in := &ec2.ModifyVolumeInput{
		VolumeId:   aws.String(volumeID),
		Size:       mod.SizeGiB,
		Iops:       mod.Iops,
		Throughput: mod.Throughput,
	}
	if mod.Type != "" {
		in.VolumeType = ec2types.VolumeType(mod.Type)
	}
	if _, err := p.client.ModifyVolume(ctx, in); err != nil {
		return fmt.Errorf("modify volume %s: %w", volumeID, err)
	}
	return nil
}
