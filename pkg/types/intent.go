package types

import (
	"encoding/json"
	"time"
)

// IntentType is the closed set of reconciliation intents
type IntentType string

const (
	// IntentAlarm is a CloudWatch alarm state change
	IntentAlarm IntentType = "alarm"
	// IntentScheduledDriftCheck is a periodic drift check
	IntentScheduledDriftCheck IntentType = "scheduled-drift-check"
)

// AlarmCategory is the signal category derived from an alarm name
type AlarmCategory string

const (
	CategoryCPU         AlarmCategory = "cpu"
	CategoryStorage     AlarmCategory = "storage"
	CategoryConnections AlarmCategory = "connections"
	CategoryMemory      AlarmCategory = "memory"
	CategoryReplicaLag  AlarmCategory = "replica-lag"
	CategoryIO          AlarmCategory = "io"
	CategoryUnknown     AlarmCategory = "unknown"
)

// Intent is the classified form of a trigger
type Intent struct {
	Type       IntentType    `json:"type"`
	Category   AlarmCategory `json:"category,omitempty"`
	AlarmName  string        `json:"alarm_name,omitempty"`
	AlarmState string        `json:"alarm_state,omitempty"`
}

// IsAlarm returns true for alarm intents
func (i Intent) IsAlarm() bool {
	return i.Type == IntentAlarm
}

// AlarmDetailType is the EventBridge detail-type of alarm state changes
const AlarmDetailType = "CloudWatch Alarm State Change"

// ScheduledDetailType is the EventBridge detail-type of scheduled rules
const ScheduledDetailType = "Scheduled Event"

// Trigger is the raw event payload a reconciliation is started with
type Trigger []byte

// Event is the EventBridge envelope used to build triggers
type Event struct {
	Version    string          `json:"version,omitempty"`
	ID         string          `json:"id,omitempty"`
	DetailType string          `json:"detail-type"`
	Source     string          `json:"source"`
	Time       time.Time       `json:"time"`
	Resources  []string        `json:"resources,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
}

// ScheduledTrigger builds the payload of a scheduled drift check
func ScheduledTrigger(now time.Time) Trigger {
	ev := Event{
		DetailType: ScheduledDetailType,
		Source:     "aws.events",
		Time:       now.UTC(),
		Detail:     json.RawMessage(`{}`),
	}
	b, _ := json.Marshal(ev)
	return Trigger(b)
}

// AlarmTrigger builds the payload of an alarm entering state
func AlarmTrigger(alarmName, state string, now time.Time) Trigger {
	detail, _ := json.Marshal(map[string]any{
		"alarmName": alarmName,
		"state":     map[string]string{"value": state},
	})
	ev := Event{
		DetailType: AlarmDetailType,
		Source:     "aws.cloudwatch",
		Time:       now.UTC(),
		Detail:     detail,
	}
	b, _ := json.Marshal(ev)
	return Trigger(b)
}
