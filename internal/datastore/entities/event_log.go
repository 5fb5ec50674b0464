package entities

import "time"

// Event log entry types.
const (
	EventRuleFulfilled   = "rule_fulfilled"
	EventRuleUnfulfilled = "rule_unfulfilled"
)

// EventLogEntry is the append-only audit trail of every rule
// transition, independent of the alarm projections. Never mutated.
type EventLogEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RuleID    uint      `gorm:"not null;index" json:"rule_id"`
	Address   int       `gorm:"not null;index" json:"address"`
	Type      string    `gorm:"size:20;not null" json:"type"`
	Text      string    `gorm:"size:500;default:''" json:"text"`
	Value     string    `gorm:"size:64;default:''" json:"value"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
}

// TableName returns the table name for GORM.
func (EventLogEntry) TableName() string {
	return "event_log"
}
