package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/yairfalse/ilmarinen/internal/controlplane"
	healerrors "github.com/yairfalse/ilmarinen/internal/errors"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// DefaultStopTimeout bounds how long a stop step waits for the instance to report stopped
const DefaultStopTimeout = 10 * time.Minute

// EC2ControlPlane manages a compute resource through the EC2 API
type EC2ControlPlane struct {
	client      EC2API
	normalizer  *Normalizer
	stopTimeout time.Duration
}

// NewEC2ControlPlane creates an EC2 control plane
func NewEC2ControlPlane(client EC2API) *EC2ControlPlane {
	return &EC2ControlPlane{
		client:      client,
		normalizer:  NewNormalizer(),
		stopTimeout: DefaultStopTimeout,
	}
}

// WithStopTimeout overrides the stop waiter timeout
func (c *EC2ControlPlane) WithStopTimeout(d time.Duration) *EC2ControlPlane {
	c.stopTimeout = d
	return c
}

// FetchResource describes the instance and its root volume size
func (c *EC2ControlPlane) FetchResource(ctx context.Context, ref types.ResourceRef) (*types.ResourceSnapshot, error) {
	instance, err := c.describeInstance(ctx, ref.ID)
	if err != nil {
		return nil, err
	}

	size := 0
	if volumeID := rootVolumeID(*instance); volumeID != "" {
		// A failed volume lookup leaves storage unknown rather than failing the fetch
		if gb, err := c.volumeSize(ctx, volumeID); err == nil {
			size = gb
		}
	}

	return c.normalizer.NormalizeEC2Instance(*instance, size), nil
}

// ReadTags returns the instance tags
func (c *EC2ControlPlane) ReadTags(ctx context.Context, ref types.ResourceRef) (map[string]string, error) {
	instance, err := c.describeInstance(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	return convertEC2Tags(instance.Tags), nil
}

// WriteTags creates or overwrites instance tags
func (c *EC2ControlPlane) WriteTags(ctx context.Context, ref types.ResourceRef, tags map[string]string) error {
	_, err := c.client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{ref.ID},
		Tags:      toEC2Tags(tags),
	})
	return wrapAPIError(healerrors.ServiceEC2, "CreateTags", ref.ID, err)
}

// Execute performs one remediation step against the instance
func (c *EC2ControlPlane) Execute(ctx context.Context, ref types.ResourceRef, step types.RemediationStep) error {
	id := ref.ID

	switch step.Action {
	case types.ActionReboot:
		_, err := c.client.RebootInstances(ctx, &ec2.RebootInstancesInput{InstanceIds: []string{id}})
		return wrapAPIError(healerrors.ServiceEC2, "RebootInstances", id, err)

	case types.ActionStop:
		if _, err := c.client.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{id}}); err != nil {
			return wrapAPIError(healerrors.ServiceEC2, "StopInstances", id, err)
		}
		if !step.WaitForStop {
			return nil
		}
		waiter := ec2.NewInstanceStoppedWaiter(c.client)
		if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}}, c.stopTimeout); err != nil {
			return fmt.Errorf("waiting for %s to stop: %w", id, err)
		}
		return nil

	case types.ActionStart:
		_, err := c.client.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{id}})
		return wrapAPIError(healerrors.ServiceEC2, "StartInstances", id, err)

	case types.ActionResize:
		if step.SizeClass == "" {
			return fmt.Errorf("resize %s: target instance type is empty", id)
		}
		_, err := c.client.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
			InstanceId:   aws.String(id),
			InstanceType: &ec2types.AttributeValue{Value: aws.String(step.SizeClass)},
		})
		return wrapAPIError(healerrors.ServiceEC2, "ModifyInstanceAttribute", id, err)

	case types.ActionRestoreNetworkGroups:
		if len(step.NetworkGroups) == 0 {
			return fmt.Errorf("restore network groups %s: group set is empty", id)
		}
		_, err := c.client.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
			InstanceId: aws.String(id),
			Groups:     step.NetworkGroups,
		})
		return wrapAPIError(healerrors.ServiceEC2, "ModifyInstanceAttribute", id, err)

	case types.ActionResizeStorage:
		return c.resizeRootVolume(ctx, id, step.StorageGB)

	case types.ActionNoop:
		return nil

	default:
		return fmt.Errorf("%s on %s: %w", step.Action, ref, controlplane.ErrUnsupportedAction)
	}
}

func (c *EC2ControlPlane) resizeRootVolume(ctx context.Context, id string, sizeGB int) error {
	if sizeGB <= 0 {
		return fmt.Errorf("resize storage %s: invalid size %d", id, sizeGB)
	}

	instance, err := c.describeInstance(ctx, id)
	if err != nil {
		return err
	}

	volumeID := rootVolumeID(*instance)
	if volumeID == "" {
		return fmt.Errorf("resize storage %s: instance has no EBS root volume: %w", id, controlplane.ErrUnsupportedAction)
	}

	_, err = c.client.ModifyVolume(ctx, &ec2.ModifyVolumeInput{
		VolumeId: aws.String(volumeID),
		Size:     aws.Int32(int32(sizeGB)),
	})
	return wrapAPIError(healerrors.ServiceEC2, "ModifyVolume", volumeID, err)
}

func (c *EC2ControlPlane) describeInstance(ctx context.Context, id string) (*ec2types.Instance, error) {
	result, err := c.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	})
	if err != nil {
		return nil, wrapAPIError(healerrors.ServiceEC2, "DescribeInstances", id, err)
	}

	for _, reservation := range result.Reservations {
		for i := range reservation.Instances {
			if aws.ToString(reservation.Instances[i].InstanceId) == id {
				return &reservation.Instances[i], nil
			}
		}
	}

	return nil, fmt.Errorf("DescribeInstances %s: %w", id, controlplane.ErrNotFound)
}

func (c *EC2ControlPlane) volumeSize(ctx context.Context, volumeID string) (int, error) {
	result, err := c.client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		VolumeIds: []string{volumeID},
	})
	if err != nil {
		return 0, wrapAPIError(healerrors.ServiceEC2, "DescribeVolumes", volumeID, err)
	}
	if len(result.Volumes) == 0 {
		return 0, fmt.Errorf("DescribeVolumes %s: %w", volumeID, controlplane.ErrNotFound)
	}
	return int(aws.ToInt32(result.Volumes[0].Size)), nil
}
