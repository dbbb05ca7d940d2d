package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/yairfalse/ilmarinen/internal/controlplane"
	healerrors "github.com/yairfalse/ilmarinen/internal/errors"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// RDSControlPlane manages a database resource through the RDS API
type RDSControlPlane struct {
	client     RDSAPI
	normalizer *Normalizer
}

// NewRDSControlPlane creates an RDS control plane
func NewRDSControlPlane(client RDSAPI) *RDSControlPlane {
	return &RDSControlPlane{
		client:     client,
		normalizer: NewNormalizer(),
	}
}

// FetchResource describes the DB instance. Tags come from the describe call's
// TagList, so no separate ListTagsForResource is needed.
func (c *RDSControlPlane) FetchResource(ctx context.Context, ref types.ResourceRef) (*types.ResourceSnapshot, error) {
	instance, err := c.describeInstance(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	return c.normalizer.NormalizeRDSInstance(*instance), nil
}

// ReadTags returns the DB instance tags
func (c *RDSControlPlane) ReadTags(ctx context.Context, ref types.ResourceRef) (map[string]string, error) {
	arn, err := c.resolveARN(ctx, ref)
	if err != nil {
		return nil, err
	}

	result, err := c.client.ListTagsForResource(ctx, &rds.ListTagsForResourceInput{
		ResourceName: aws.String(arn),
	})
	if err != nil {
		return nil, wrapAPIError(healerrors.ServiceRDS, "ListTagsForResource", ref.ID, err)
	}
	return convertRDSTags(result.TagList), nil
}

// WriteTags adds or overwrites DB instance tags
func (c *RDSControlPlane) WriteTags(ctx context.Context, ref types.ResourceRef, tags map[string]string) error {
	arn, err := c.resolveARN(ctx, ref)
	if err != nil {
		return err
	}

	_, err = c.client.AddTagsToResource(ctx, &rds.AddTagsToResourceInput{
		ResourceName: aws.String(arn),
		Tags:         toRDSTags(tags),
	})
	return wrapAPIError(healerrors.ServiceRDS, "AddTagsToResource", ref.ID, err)
}

// Execute performs one remediation step against the DB instance.
// Modifications are applied immediately rather than in the next maintenance window.
func (c *RDSControlPlane) Execute(ctx context.Context, ref types.ResourceRef, step types.RemediationStep) error {
	id := aws.String(ref.ID)

	switch step.Action {
	case types.ActionReboot:
		_, err := c.client.RebootDBInstance(ctx, &rds.RebootDBInstanceInput{DBInstanceIdentifier: id})
		return wrapAPIError(healerrors.ServiceRDS, "RebootDBInstance", ref.ID, err)

	case types.ActionStop:
		_, err := c.client.StopDBInstance(ctx, &rds.StopDBInstanceInput{DBInstanceIdentifier: id})
		return wrapAPIError(healerrors.ServiceRDS, "StopDBInstance", ref.ID, err)

	case types.ActionStart:
		_, err := c.client.StartDBInstance(ctx, &rds.StartDBInstanceInput{DBInstanceIdentifier: id})
		return wrapAPIError(healerrors.ServiceRDS, "StartDBInstance", ref.ID, err)

	case types.ActionResize:
		if step.SizeClass == "" {
			return fmt.Errorf("resize %s: target instance class is empty", ref.ID)
		}
		return c.modify(ctx, ref.ID, &rds.ModifyDBInstanceInput{DBInstanceClass: aws.String(step.SizeClass)})

	case types.ActionResizeStorage:
		if step.StorageGB <= 0 {
			return fmt.Errorf("resize storage %s: invalid size %d", ref.ID, step.StorageGB)
		}
		return c.modify(ctx, ref.ID, &rds.ModifyDBInstanceInput{AllocatedStorage: aws.Int32(int32(step.StorageGB))})

	case types.ActionRestoreNetworkGroups:
		if len(step.NetworkGroups) == 0 {
			return fmt.Errorf("restore network groups %s: group set is empty", ref.ID)
		}
		return c.modify(ctx, ref.ID, &rds.ModifyDBInstanceInput{VpcSecurityGroupIds: step.NetworkGroups})

	case types.ActionNoop:
		return nil

	default:
		return fmt.Errorf("%s on %s: %w", step.Action, ref, controlplane.ErrUnsupportedAction)
	}
}

func (c *RDSControlPlane) modify(ctx context.Context, id string, input *rds.ModifyDBInstanceInput) error {
	input.DBInstanceIdentifier = aws.String(id)
	input.ApplyImmediately = aws.Bool(true)
	_, err := c.client.ModifyDBInstance(ctx, input)
	return wrapAPIError(healerrors.ServiceRDS, "ModifyDBInstance", id, err)
}

func (c *RDSControlPlane) resolveARN(ctx context.Context, ref types.ResourceRef) (string, error) {
	if ref.ARN != "" {
		return ref.ARN, nil
	}
	instance, err := c.describeInstance(ctx, ref.ID)
	if err != nil {
		return "", err
	}
	return aws.ToString(instance.DBInstanceArn), nil
}

func (c *RDSControlPlane) describeInstance(ctx context.Context, id string) (*rdstypes.DBInstance, error) {
	result, err := c.client.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(id),
	})
	if err != nil {
		return nil, wrapAPIError(healerrors.ServiceRDS, "DescribeDBInstances", id, err)
	}
	if len(result.DBInstances) == 0 {
		return nil, fmt.Errorf("DescribeDBInstances %s: %w", id, controlplane.ErrNotFound)
	}
	return &result.DBInstances[0], nil
}
