package entities

import "time"

// Rule types.
const (
	RuleTypeValue = "value"
	RuleTypeBit   = "bit"
)

// Rule priorities, ordered from most to least urgent.
const (
	PriorityPrio1   = "prio1"
	PriorityPrio2   = "prio2"
	PriorityPrio3   = "prio3"
	PriorityWarnung = "warnung"
	PriorityInfo    = "info"
)

// Priorities lists all valid rule priorities.
var Priorities = []string{PriorityPrio1, PriorityPrio2, PriorityPrio3, PriorityWarnung, PriorityInfo}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p string) bool {
	for _, known := range Priorities {
		if p == known {
			return true
		}
	}
	return false
}

// Rule is an alarm condition attached to one address. A value rule
// compares the raw received value as a string against Value; a bit rule
// tests a single bit (0-15) of the integer-parsed value.
//
// Rules are read by the evaluation path and written only through the
// rule repository, which validates them so malformed rules never reach
// the evaluator.
type Rule struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Address         int       `gorm:"not null;index" json:"address"`
	Type            string    `gorm:"size:10;not null" json:"type"`
	Value           string    `gorm:"size:64;default:''" json:"value"`
	Text            string    `gorm:"size:500;default:''" json:"text"`
	TextUnfulfilled string    `gorm:"size:500;default:''" json:"text_unfulfilled"`
	BitPosition     int       `gorm:"default:0" json:"bit_position"`
	TextOn          string    `gorm:"size:500;default:''" json:"text_on"`
	TextOff         string    `gorm:"size:500;default:''" json:"text_off"`
	Priority        string    `gorm:"size:10;not null;default:'info'" json:"priority"`
	Enabled         bool      `gorm:"not null;default:true;index" json:"enabled"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Rule) TableName() string {
	return "rules"
}
