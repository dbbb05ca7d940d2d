package types

import "time"

// Tag keys the attempt budget is persisted under
const (
	TagHealingAttempts = "HealingAttempts"
	TagLastHealed      = "LastHealed"
)

// AttemptRecord is the persisted healing budget state of one resource
type AttemptRecord struct {
	Attempts   int       `json:"attempts"`
	LastHealed time.Time `json:"last_healed,omitempty"`
}

// Next returns the record after one more healing attempt at now
func (r AttemptRecord) Next(now time.Time) AttemptRecord {
	return AttemptRecord{
		Attempts:   r.Attempts + 1,
		LastHealed: now,
	}
}
