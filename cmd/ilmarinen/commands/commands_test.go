package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yairfalse/ilmarinen/internal/app"
	awscp "github.com/yairfalse/ilmarinen/internal/controlplane/aws"
	healerrors "github.com/yairfalse/ilmarinen/internal/errors"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

const testConfig = `
resource:
  id: i-0abc
  kind: compute
baseline:
  size_class: t3.micro
  image: ami-123
fetch:
  attempts: 1
  delay: 1ms
notifications:
  log: false
logging:
  level: error
`

func instance(instanceType ec2types.InstanceType) *ec2.DescribeInstancesOutput {
	return &ec2.DescribeInstancesOutput{Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{{
		InstanceId:   aws.String("i-0abc"),
		InstanceType: instanceType,
		ImageId:      aws.String("ami-123"),
		State:        &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
		Tags:         []ec2types.Tag{{Key: aws.String(types.TagHealingAttempts), Value: aws.String("1")}},
	}}}}}
}

type harness struct {
	ec2 *awscp.MockEC2Client
	cw  *awscp.MockCloudWatchClient
	cfg string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	for _, k := range []string{"INSTANCE_ID", "DB_INSTANCE_ID", "ILMARINEN_CONFIG", "ILMARINEN_RESOURCE_ID"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "ilmarinen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))
	return &harness{
		ec2: new(awscp.MockEC2Client),
		cw:  new(awscp.MockCloudWatchClient),
		cfg: path,
	}
}

func (h *harness) run(args ...string) (string, error) {
	factory := &app.AppFactory{NewClients: func(context.Context, awscp.ClientConfig) (*awscp.Clients, error) {
		return &awscp.Clients{EC2: h.ec2, CloudWatch: h.cw}, nil
	}}
	cmd := NewRootCommand(factory)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", h.cfg}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	SetVersionInfo("1.2.3", "abc", "")
	h := newHarness(t)

	out, err := h.run("version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3\n", out)
}

func TestReconcile_ScheduledNoDrift(t *testing.T) {
	h := newHarness(t)
	h.ec2.On("DescribeInstances", mock.Anything, mock.Anything).Return(instance(ec2types.InstanceTypeT3Micro), nil)

	out, err := h.run("reconcile", "--scheduled", "-o", "json")
	require.NoError(t, err)

	var outcome types.ReconciliationOutcome
	require.NoError(t, json.Unmarshal([]byte(out), &outcome))
	assert.Equal(t, types.StatusNoDriftDetected, outcome.Status)
	assert.Equal(t, types.IntentScheduledDriftCheck, outcome.Intent)
}

func TestReconcile_DryRunAlarm(t *testing.T) {
	h := newHarness(t)
	h.ec2.On("DescribeInstances", mock.Anything, mock.Anything).Return(instance(ec2types.InstanceTypeT3Micro), nil)

	out, err := h.run("reconcile", "--alarm", "web-HighCPU", "--dry-run", "--no-color")
	require.NoError(t, err)

	assert.Contains(t, out, "Reconciliation Healed (dry run, nothing changed)")
	assert.Contains(t, out, "reboot")
	h.ec2.AssertNotCalled(t, "RebootInstances", mock.Anything, mock.Anything)
}

func TestReconcile_EventFromStdin(t *testing.T) {
	h := newHarness(t)
	factory := &app.AppFactory{NewClients: func(context.Context, awscp.ClientConfig) (*awscp.Clients, error) {
		return &awscp.Clients{EC2: h.ec2}, nil
	}}
	cmd := NewRootCommand(factory)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("not json"))
	cmd.SetArgs([]string{"--config", h.cfg, "reconcile", "--event", "-", "-o", "json"})

	err := cmd.Execute()
	var oe *outcomeError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, types.StatusUnknownIntent, oe.status)
}

func TestReconcile_EventFile(t *testing.T) {
	h := newHarness(t)
	h.ec2.On("DescribeInstances", mock.Anything, mock.Anything).Return(nil,
		&smithy.GenericAPIError{Code: "InvalidInstanceID.NotFound", Message: "gone"})

	event := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(event, types.ScheduledTrigger(time.Now()), 0o600))

	_, err := h.run("reconcile", "--event", event)

	var oe *outcomeError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, types.StatusResourceUnavailable, oe.status)
}

func TestReconcile_MissingEventFile(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("reconcile", "--event", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read event")
}

func TestReconcile_InvalidConfig(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.cfg, []byte("resource:\n  kind: compute\n"), 0o600))

	_, err := h.run("reconcile")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid configuration")
}

func TestCheck_DriftAndAlarms(t *testing.T) {
	h := newHarness(t)
	h.ec2.On("DescribeInstances", mock.Anything, mock.Anything).Return(instance(ec2types.InstanceTypeT3Nano), nil)
	h.cw.On("DescribeAlarms", mock.Anything, mock.Anything).Return(&cloudwatch.DescribeAlarmsOutput{
		MetricAlarms: []cwtypes.MetricAlarm{{
			AlarmName:  aws.String("web-HighCPU"),
			StateValue: cwtypes.StateValueAlarm,
			Namespace:  aws.String("AWS/EC2"),
			MetricName: aws.String("CPUUtilization"),
			Dimensions: []cwtypes.Dimension{{Name: aws.String("InstanceId"), Value: aws.String("i-0abc")}},
		}},
	}, nil)

	out, err := h.run("check", "-o", "json", "--exit-code")
	assert.ErrorIs(t, err, driftError{})

	var report struct {
		Findings []types.DriftFinding `json:"findings"`
		Alarms   []awscp.AlarmSummary `json:"alarms"`
		Attempts int                  `json:"attempts"`
		Plan     string               `json:"plan"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Findings, 1)
	assert.Equal(t, types.AttributeSizeClass, report.Findings[0].Attribute)
	require.Len(t, report.Alarms, 1)
	assert.True(t, report.Alarms[0].Actionable)
	assert.Equal(t, 1, report.Attempts)
	assert.NotEmpty(t, report.Plan)
	h.ec2.AssertNotCalled(t, "StopInstances", mock.Anything, mock.Anything)
	h.ec2.AssertNotCalled(t, "CreateTags", mock.Anything, mock.Anything)
}

func TestCheck_AlarmListingFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.ec2.On("DescribeInstances", mock.Anything, mock.Anything).Return(instance(ec2types.InstanceTypeT3Micro), nil)
	h.cw.On("DescribeAlarms", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	out, err := h.run("check", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "No configuration drift detected")
}

func TestCheck_MissingResource(t *testing.T) {
	for _, command := range []string{"check", "attempts"} {
		t.Run(command, func(t *testing.T) {
			h := newHarness(t)
			h.ec2.On("DescribeInstances", mock.Anything, mock.Anything).Return(nil,
				&smithy.GenericAPIError{Code: "InvalidInstanceID.NotFound", Message: "gone"})

			_, err := h.run(command)

			var healErr *healerrors.HealError
			require.ErrorAs(t, err, &healErr)
			assert.Equal(t, healerrors.ErrorTypeNotFound, healErr.Type)
			assert.Equal(t, 66, healerrors.GetExitCode(err))
			assert.Contains(t, healErr.Verify, "--instance-ids i-0abc")
		})
	}
}

func TestAttempts(t *testing.T) {
	h := newHarness(t)
	h.ec2.On("DescribeInstances", mock.Anything, mock.Anything).Return(instance(ec2types.InstanceTypeT3Micro), nil)

	out, err := h.run("attempts", "-o", "json")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "tags", report["store"])
	assert.Equal(t, float64(3), report["max_attempts"])
	assert.Equal(t, false, report["exhausted"])
}
