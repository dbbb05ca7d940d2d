package aws

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yairfalse/ilmarinen/internal/controlplane"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

const testDBArn = "arn:aws:rds:us-east-1:123456789012:db:prod-db"

func testDBInstance(status string) rdstypes.DBInstance {
	return rdstypes.DBInstance{
		DBInstanceIdentifier: aws.String("prod-db"),
		DBInstanceArn:        aws.String(testDBArn),
		DBInstanceStatus:     aws.String(status),
		DBInstanceClass:      aws.String("db.r5.large"),
		EngineVersion:        aws.String("15.4"),
		AllocatedStorage:     aws.Int32(100),
		VpcSecurityGroups: []rdstypes.VpcSecurityGroupMembership{
			{VpcSecurityGroupId: aws.String("sg-db")},
		},
		TagList: []rdstypes.Tag{
			{Key: aws.String("Maintenance"), Value: aws.String("inactive")},
		},
	}
}

var databaseRef = types.ResourceRef{ID: "prod-db", Kind: types.KindDatabase}

func TestRDSControlPlane_FetchResource(t *testing.T) {
	ctx := context.Background()
	mockClient := new(MockRDSClient)

	mockClient.On("DescribeDBInstances", ctx, &rds.DescribeDBInstancesInput{DBInstanceIdentifier: aws.String("prod-db")}).
		Return(&rds.DescribeDBInstancesOutput{DBInstances: []rdstypes.DBInstance{testDBInstance("available")}}, nil)

	snap, err := NewRDSControlPlane(mockClient).FetchResource(ctx, databaseRef)

	require.NoError(t, err)
	assert.Equal(t, "prod-db", snap.ID)
	assert.Equal(t, testDBArn, snap.ARN)
	assert.Equal(t, types.KindDatabase, snap.Kind)
	assert.Equal(t, "available", snap.State)
	assert.Equal(t, "db.r5.large", snap.SizeClass)
	assert.Equal(t, "15.4", snap.Image)
	assert.Equal(t, 100, snap.StorageGB)
	assert.Equal(t, []string{"sg-db"}, snap.NetworkGroups)
	assert.Equal(t, "inactive", snap.GetTag("Maintenance"))
	mockClient.AssertExpectations(t)
}

func TestRDSControlPlane_FetchResourceNotFound(t *testing.T) {
	ctx := context.Background()
	mockClient := new(MockRDSClient)
	mockClient.On("DescribeDBInstances", ctx, mock.Anything).
		Return(nil, &rdstypes.DBInstanceNotFoundFault{Message: aws.String("DBInstance prod-db not found")})

	_, err := NewRDSControlPlane(mockClient).FetchResource(ctx, databaseRef)
	assert.ErrorIs(t, err, controlplane.ErrNotFound)
}

func TestRDSControlPlane_Tags(t *testing.T) {
	ctx := context.Background()

	t.Run("read with known ARN", func(t *testing.T) {
		mockClient := new(MockRDSClient)
		mockClient.On("ListTagsForResource", ctx, &rds.ListTagsForResourceInput{ResourceName: aws.String(testDBArn)}).
			Return(&rds.ListTagsForResourceOutput{TagList: []rdstypes.Tag{
				{Key: aws.String(types.TagHealingAttempts), Value: aws.String("2")},
			}}, nil)

		ref := databaseRef
		ref.ARN = testDBArn
		tags, err := NewRDSControlPlane(mockClient).ReadTags(ctx, ref)

		require.NoError(t, err)
		assert.Equal(t, map[string]string{types.TagHealingAttempts: "2"}, tags)
		mockClient.AssertNotCalled(t, "DescribeDBInstances", mock.Anything, mock.Anything)
	})

	t.Run("write resolves ARN", func(t *testing.T) {
		mockClient := new(MockRDSClient)
		mockClient.On("DescribeDBInstances", ctx, mock.Anything).
			Return(&rds.DescribeDBInstancesOutput{DBInstances: []rdstypes.DBInstance{testDBInstance("available")}}, nil)
		mockClient.On("AddTagsToResource", ctx, &rds.AddTagsToResourceInput{
			ResourceName: aws.String(testDBArn),
			Tags:         []rdstypes.Tag{{Key: aws.String(types.TagHealingAttempts), Value: aws.String("1")}},
		}).Return(&rds.AddTagsToResourceOutput{}, nil)

		err := NewRDSControlPlane(mockClient).WriteTags(ctx, databaseRef, map[string]string{types.TagHealingAttempts: "1"})

		require.NoError(t, err)
		mockClient.AssertExpectations(t)
	})
}

func TestRDSControlPlane_Execute(t *testing.T) {
	ctx := context.Background()
	id := aws.String("prod-db")

	tests := []struct {
		name  string
		step  types.RemediationStep
		setup func(m *MockRDSClient)
	}{
		{
			name: "reboot",
			step: types.RemediationStep{Action: types.ActionReboot},
			setup: func(m *MockRDSClient) {
				m.On("RebootDBInstance", ctx, &rds.RebootDBInstanceInput{DBInstanceIdentifier: id}).
					Return(&rds.RebootDBInstanceOutput{}, nil)
			},
		},
		{
			name: "stop",
			step: types.RemediationStep{Action: types.ActionStop},
			setup: func(m *MockRDSClient) {
				m.On("StopDBInstance", ctx, &rds.StopDBInstanceInput{DBInstanceIdentifier: id}).
					Return(&rds.StopDBInstanceOutput{}, nil)
			},
		},
		{
			name: "start",
			step: types.RemediationStep{Action: types.ActionStart},
			setup: func(m *MockRDSClient) {
				m.On("StartDBInstance", ctx, &rds.StartDBInstanceInput{DBInstanceIdentifier: id}).
					Return(&rds.StartDBInstanceOutput{}, nil)
			},
		},
		{
			name: "resize class",
			step: types.RemediationStep{Action: types.ActionResize, SizeClass: "db.r5.xlarge"},
			setup: func(m *MockRDSClient) {
				m.On("ModifyDBInstance", ctx, &rds.ModifyDBInstanceInput{
					DBInstanceIdentifier: id,
					DBInstanceClass:      aws.String("db.r5.xlarge"),
					ApplyImmediately:     aws.Bool(true),
				}).Return(&rds.ModifyDBInstanceOutput{}, nil)
			},
		},
		{
			name: "resize storage",
			step: types.RemediationStep{Action: types.ActionResizeStorage, StorageGB: 120},
			setup: func(m *MockRDSClient) {
				m.On("ModifyDBInstance", ctx, &rds.ModifyDBInstanceInput{
					DBInstanceIdentifier: id,
					AllocatedStorage:     aws.Int32(120),
					ApplyImmediately:     aws.Bool(true),
				}).Return(&rds.ModifyDBInstanceOutput{}, nil)
			},
		},
		{
			name: "restore security groups",
			step: types.RemediationStep{Action: types.ActionRestoreNetworkGroups, NetworkGroups: []string{"sg-a", "sg-b"}},
			setup: func(m *MockRDSClient) {
				m.On("ModifyDBInstance", ctx, &rds.ModifyDBInstanceInput{
					DBInstanceIdentifier: id,
					VpcSecurityGroupIds:  []string{"sg-a", "sg-b"},
					ApplyImmediately:     aws.Bool(true),
				}).Return(&rds.ModifyDBInstanceOutput{}, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockClient := new(MockRDSClient)
			tt.setup(mockClient)

			err := NewRDSControlPlane(mockClient).Execute(ctx, databaseRef, tt.step)

			require.NoError(t, err)
			mockClient.AssertExpectations(t)
		})
	}
}

func TestRDSControlPlane_ExecuteInvalidSteps(t *testing.T) {
	ctx := context.Background()
	cp := NewRDSControlPlane(new(MockRDSClient))

	assert.Error(t, cp.Execute(ctx, databaseRef, types.RemediationStep{Action: types.ActionResizeStorage}))
	assert.Error(t, cp.Execute(ctx, databaseRef, types.RemediationStep{Action: types.ActionRestoreNetworkGroups}))
	assert.ErrorIs(t, cp.Execute(ctx, databaseRef, types.RemediationStep{Action: "failover"}), controlplane.ErrUnsupportedAction)
}

func TestNewControlPlane(t *testing.T) {
	clients := &Clients{EC2: new(MockEC2Client), RDS: new(MockRDSClient)}

	cp, err := NewControlPlane(clients, types.KindCompute)
	require.NoError(t, err)
	assert.IsType(t, &EC2ControlPlane{}, cp)

	cp, err = NewControlPlane(clients, types.KindDatabase)
	require.NoError(t, err)
	assert.IsType(t, &RDSControlPlane{}, cp)

	_, err = NewControlPlane(clients, "queue")
	assert.Error(t, err)

	_, err = NewControlPlane(&Clients{}, types.KindDatabase)
	assert.Error(t, err)
}
