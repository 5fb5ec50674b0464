package entities

import "time"

// History entry types.
const (
	EntryTypeAlarm     = "alarm"
	EntryTypeQuittance = "quittance"
)

// ActiveAlarm is the "currently live" projection of alarm instances.
// Rows are replaced per rule on each transition and deleted en masse by
// clear/acknowledge; history is never derived from this table.
type ActiveAlarm struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RuleID      uint      `gorm:"not null;index" json:"rule_id"`
	Address     int       `gorm:"not null;index" json:"address"`
	AddressName string    `gorm:"size:255;not null" json:"address_name"`
	Value       string    `gorm:"size:64;not null" json:"new_value"`
	Text        string    `gorm:"size:500;not null" json:"text"`
	Priority    string    `gorm:"size:10;not null;index" json:"priority"`
	Fulfilled   bool      `gorm:"not null" json:"fulfilled"`
	Timestamp   time.Time `gorm:"not null;index" json:"timestamp"`
}

// TableName returns the table name for GORM.
func (ActiveAlarm) TableName() string {
	return "active_alarms"
}

// AlarmRecord is the append-only all-alarms history. AddressName is a
// snapshot taken at write time so later renames do not rewrite history.
// Rows are never deleted; acknowledge only flips Quittanced.
type AlarmRecord struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	RuleID       uint       `gorm:"index" json:"rule_id"`
	Address      int        `gorm:"not null;index" json:"address"`
	AddressName  string     `gorm:"size:255;not null" json:"address_name"`
	Value        string     `gorm:"size:64;not null;default:''" json:"new_value"`
	Text         string     `gorm:"size:500;not null" json:"text"`
	Priority     string     `gorm:"size:10;not null" json:"priority"`
	Fulfilled    bool       `gorm:"not null;default:false" json:"fulfilled"`
	Quittanced   bool       `gorm:"not null;default:false;index" json:"quittanced"`
	QuittancedAt *time.Time `json:"quittanced_at"`
	EntryType    string     `gorm:"size:10;not null;default:'alarm'" json:"entry_type"`
	Timestamp    time.Time  `gorm:"not null;index" json:"timestamp"`
}

// TableName returns the table name for GORM.
func (AlarmRecord) TableName() string {
	return "alarm_history"
}
