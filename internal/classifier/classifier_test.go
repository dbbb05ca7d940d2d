package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

func TestClassifier_Categorize(t *testing.T) {
	c := New()

	tests := []struct {
		alarm    string
		expected types.AlarmCategory
	}{
		{"prod-db-cpu-utilization", types.CategoryCPU},
		{"web-CPUUtilization-high", types.CategoryCPU},
		{"prod-db-free-storage-space", types.CategoryStorage},
		{"prod-db-database-connections", types.CategoryConnections},
		{"prod-db-freeable-memory", types.CategoryMemory},
		{"prod-db-swap-usage", types.CategoryMemory},
		{"prod-db-replica-lag", types.CategoryReplicaLag},
		{"prod-db-ReplicaLag", types.CategoryReplicaLag},
		{"prod-db-read-iops", types.CategoryIO},
		{"prod-db-write-latency", types.CategoryIO},
		{"prod-db-disk-queue-depth", types.CategoryIO},
		{"web-status-check-failed", types.CategoryUnknown},
		{"", types.CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.alarm, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.Categorize(tt.alarm))
		})
	}
}

func TestClassifier_ConnectionsBeforeIO(t *testing.T) {
	// "connections" contains "io"; the connections rule must win
	c := New()
	assert.Equal(t, types.CategoryConnections, c.Categorize("db-connections-io-heavy"))
}

func TestClassifier_CustomRules(t *testing.T) {
	c := NewWithRules([]CategoryRule{{Category: types.CategoryStorage, Patterns: []string{"ebs"}}})
	assert.Equal(t, types.CategoryStorage, c.Categorize("web-ebs-burst-balance"))
	assert.Equal(t, types.CategoryUnknown, c.Categorize("web-cpu"))
}

func TestClassifier_Classify(t *testing.T) {
	c := New()
	now := time.Now()

	tests := []struct {
		name     string
		trigger  types.Trigger
		expected types.Intent
		wantErr  bool
	}{
		{
			name:     "alarm event",
			trigger:  types.AlarmTrigger("prod-db-cpu-utilization", "ALARM", now),
			expected: types.Intent{Type: types.IntentAlarm, Category: types.CategoryCPU, AlarmName: "prod-db-cpu-utilization", AlarmState: "ALARM"},
		},
		{
			name:     "alarm without detail",
			trigger:  types.Trigger(`{"detail-type":"CloudWatch Alarm State Change"}`),
			expected: types.Intent{Type: types.IntentAlarm, Category: types.CategoryUnknown},
		},
		{
			name:     "alarm without name",
			trigger:  types.Trigger(`{"detail-type":"CloudWatch Alarm State Change","detail":{"state":{"value":"ALARM"}}}`),
			expected: types.Intent{Type: types.IntentAlarm, Category: types.CategoryUnknown, AlarmState: "ALARM"},
		},
		{
			name:     "scheduled event",
			trigger:  types.ScheduledTrigger(now),
			expected: types.Intent{Type: types.IntentScheduledDriftCheck},
		},
		{
			name:     "empty object is a drift check",
			trigger:  types.Trigger(`{}`),
			expected: types.Intent{Type: types.IntentScheduledDriftCheck},
		},
		{name: "empty payload", trigger: types.Trigger(``), wantErr: true},
		{name: "array payload", trigger: types.Trigger(`[1,2]`), wantErr: true},
		{name: "malformed json", trigger: types.Trigger(`{"detail-type":`), wantErr: true},
		{name: "wrong detail-type type", trigger: types.Trigger(`{"detail-type":42}`), wantErr: true},
		{name: "alarm detail not object", trigger: types.Trigger(`{"detail-type":"CloudWatch Alarm State Change","detail":"cpu"}`), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, err := c.Classify(tt.trigger)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrClassification)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, intent)
		})
	}
}
