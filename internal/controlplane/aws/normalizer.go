package aws

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// Normalizer converts AWS resources to snapshots
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a new AWS resource normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NormalizeEC2Instance converts an EC2 instance to a compute snapshot.
// rootVolumeGB is 0 when the root volume size could not be determined.
func (n *Normalizer) NormalizeEC2Instance(instance ec2types.Instance, rootVolumeGB int) *types.ResourceSnapshot {
	state := ""
	if instance.State != nil {
		state = string(instance.State.Name)
	}

	groups := make([]string, 0, len(instance.SecurityGroups))
	for _, sg := range instance.SecurityGroups {
		if id := aws.ToString(sg.GroupId); id != "" {
			groups = append(groups, id)
		}
	}

	return &types.ResourceSnapshot{
		ID:            aws.ToString(instance.InstanceId),
		Kind:          types.KindCompute,
		State:         state,
		SizeClass:     string(instance.InstanceType),
		Image:         aws.ToString(instance.ImageId),
		StorageGB:     rootVolumeGB,
		NetworkGroups: types.SortedSet(groups),
		Tags:          convertEC2Tags(instance.Tags),
		FetchedAt:     n.now(),
	}
}

// NormalizeRDSInstance converts an RDS DB instance to a database snapshot
func (n *Normalizer) NormalizeRDSInstance(instance rdstypes.DBInstance) *types.ResourceSnapshot {
	groups := make([]string, 0, len(instance.VpcSecurityGroups))
	for _, sg := range instance.VpcSecurityGroups {
		if id := aws.ToString(sg.VpcSecurityGroupId); id != "" {
			groups = append(groups, id)
		}
	}

	return &types.ResourceSnapshot{
		ID:            aws.ToString(instance.DBInstanceIdentifier),
		ARN:           aws.ToString(instance.DBInstanceArn),
		Kind:          types.KindDatabase,
		State:         aws.ToString(instance.DBInstanceStatus),
		SizeClass:     aws.ToString(instance.DBInstanceClass),
		Image:         aws.ToString(instance.EngineVersion),
		StorageGB:     int(aws.ToInt32(instance.AllocatedStorage)),
		NetworkGroups: types.SortedSet(groups),
		Tags:          convertRDSTags(instance.TagList),
		FetchedAt:     n.now(),
	}
}

// rootVolumeID returns the EBS volume attached at the instance's root device
func rootVolumeID(instance ec2types.Instance) string {
	root := aws.ToString(instance.RootDeviceName)
	for _, bdm := range instance.BlockDeviceMappings {
		if aws.ToString(bdm.DeviceName) == root && bdm.Ebs != nil {
			return aws.ToString(bdm.Ebs.VolumeId)
		}
	}
	return ""
}

func convertEC2Tags(tags []ec2types.Tag) map[string]string {
	result := make(map[string]string, len(tags))
	for _, tag := range tags {
		if tag.Key != nil {
			result[*tag.Key] = aws.ToString(tag.Value)
		}
	}
	return result
}

func convertRDSTags(tags []rdstypes.Tag) map[string]string {
	result := make(map[string]string, len(tags))
	for _, tag := range tags {
		if tag.Key != nil {
			result[*tag.Key] = aws.ToString(tag.Value)
		}
	}
	return result
}

func toEC2Tags(tags map[string]string) []ec2types.Tag {
	result := make([]ec2types.Tag, 0, len(tags))
	for _, k := range sortedKeys(tags) {
		result = append(result, ec2types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return result
}

func toRDSTags(tags map[string]string) []rdstypes.Tag {
	result := make([]rdstypes.Tag, 0, len(tags))
	for _, k := range sortedKeys(tags) {
		result = append(result, rdstypes.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return result
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return types.SortedSet(keys)
}
