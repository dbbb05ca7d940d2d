// Package classifier turns an inbound trigger payload into a reconciliation intent.
package classifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yairfalse/ilmarinen/pkg/types"
)

// ErrClassification is returned for payloads that are not a recognised trigger
var ErrClassification = errors.New("unrecognised trigger payload")

// CategoryRule maps alarm-name substrings onto a category
type CategoryRule struct {
	Category types.AlarmCategory
	Patterns []string
}

// DefaultRules returns the category table. Order matters: the first rule with a
// matching pattern wins, so narrower categories come before ones whose
// patterns are short substrings.
func DefaultRules() []CategoryRule {
	return []CategoryRule{
		{Category: types.CategoryReplicaLag, Patterns: []string{"replica-lag", "replicalag", "replica_lag"}},
		{Category: types.CategoryConnections, Patterns: []string{"connection"}},
		{Category: types.CategoryStorage, Patterns: []string{"storage", "disk-space", "diskspace"}},
		{Category: types.CategoryMemory, Patterns: []string{"memory", "swap"}},
		{Category: types.CategoryCPU, Patterns: []string{"cpu"}},
		{Category: types.CategoryIO, Patterns: []string{"iops", "io-", "-io", "throughput", "queue-depth", "latency"}},
	}
}

// Classifier turns raw trigger payloads into intents
type Classifier struct {
	rules []CategoryRule
}

// New creates a classifier with the default category table
func New() *Classifier {
	return NewWithRules(DefaultRules())
}

// NewWithRules creates a classifier with a custom category table
func NewWithRules(rules []CategoryRule) *Classifier {
	return &Classifier{rules: rules}
}

type envelope struct {
	DetailType string          `json:"detail-type"`
	Detail     json.RawMessage `json:"detail"`
}

type alarmDetail struct {
	AlarmName string `json:"alarmName"`
	State     struct {
		Value string `json:"value"`
	} `json:"state"`
}

// Classify returns an alarm intent for CloudWatch alarm state changes and a
// scheduled drift check for any other JSON object.
func (c *Classifier) Classify(trigger types.Trigger) (types.Intent, error) {
	payload := bytes.TrimSpace(trigger)
	if len(payload) == 0 || payload[0] != '{' {
		return types.Intent{}, fmt.Errorf("%w: payload is not a JSON object", ErrClassification)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return types.Intent{}, fmt.Errorf("%w: %v", ErrClassification, err)
	}

	if env.DetailType != types.AlarmDetailType {
		return types.Intent{Type: types.IntentScheduledDriftCheck}, nil
	}

	intent := types.Intent{Type: types.IntentAlarm, Category: types.CategoryUnknown}

	detail := bytes.TrimSpace(env.Detail)
	if len(detail) == 0 || bytes.Equal(detail, []byte("null")) {
		return intent, nil
	}

	var d alarmDetail
	if detail[0] != '{' {
		return types.Intent{}, fmt.Errorf("%w: alarm detail is not an object", ErrClassification)
	}
	if err := json.Unmarshal(detail, &d); err != nil {
		return types.Intent{}, fmt.Errorf("%w: alarm detail: %v", ErrClassification, err)
	}

	intent.AlarmName = d.AlarmName
	intent.AlarmState = d.State.Value
	intent.Category = c.Categorize(d.AlarmName)
	return intent, nil
}

// Categorize maps an alarm name onto a category, unknown when nothing matches
func (c *Classifier) Categorize(alarmName string) types.AlarmCategory {
	name := strings.ToLower(alarmName)
	if name == "" {
		return types.CategoryUnknown
	}
	for _, rule := range c.rules {
		for _, p := range rule.Patterns {
			if strings.Contains(name, p) {
				return rule.Category
			}
		}
	}
	return types.CategoryUnknown
}
