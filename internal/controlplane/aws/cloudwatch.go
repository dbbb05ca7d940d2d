package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	healerrors "github.com/yairfalse/ilmarinen/internal/errors"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// AlarmSummary is a metric alarm watching the managed resource
type AlarmSummary struct {
	Name       string    `json:"name" yaml:"name"`
	State      string    `json:"state" yaml:"state"`
	Metric     string    `json:"metric" yaml:"metric"`
	Reason     string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`
	Actionable bool      `json:"actionable" yaml:"actionable"`
}

// dimensionFor returns the CloudWatch dimension name that identifies a resource of kind
func dimensionFor(kind types.Kind) string {
	if kind == types.KindDatabase {
		return "DBInstanceIdentifier"
	}
	return "InstanceId"
}

// AlarmsForResource lists the metric alarms whose dimensions reference the resource
func AlarmsForResource(ctx context.Context, client CloudWatchAPI, ref types.ResourceRef) ([]AlarmSummary, error) {
	var alarms []AlarmSummary
	var nextToken *string
	dimension := dimensionFor(ref.Kind)

	for {
		input := &cloudwatch.DescribeAlarmsInput{
			AlarmTypes: []cwtypes.AlarmType{cwtypes.AlarmTypeMetricAlarm},
		}
		if nextToken != nil {
			input.NextToken = nextToken
		}

		result, err := client.DescribeAlarms(ctx, input)
		if err != nil {
			return nil, wrapAPIError(healerrors.ServiceCloudWatch, "DescribeAlarms", ref.ID, err)
		}

		for _, alarm := range result.MetricAlarms {
			if !watches(alarm, dimension, ref.ID) {
				continue
			}
			alarms = append(alarms, AlarmSummary{
				Name:       aws.ToString(alarm.AlarmName),
				State:      string(alarm.StateValue),
				Metric:     fmt.Sprintf("%s/%s", aws.ToString(alarm.Namespace), aws.ToString(alarm.MetricName)),
				Reason:     aws.ToString(alarm.StateReason),
				UpdatedAt:  aws.ToTime(alarm.StateUpdatedTimestamp),
				Actionable: alarm.StateValue == cwtypes.StateValueAlarm,
			})
		}

		nextToken = result.NextToken
		if nextToken == nil {
			break
		}
	}

	sort.Slice(alarms, func(i, j int) bool { return alarms[i].Name < alarms[j].Name })
	return alarms, nil
}

func watches(alarm cwtypes.MetricAlarm, dimension, id string) bool {
	for _, d := range alarm.Dimensions {
		if aws.ToString(d.Name) == dimension && aws.ToString(d.Value) == id {
			return true
		}
	}
	return false
}
