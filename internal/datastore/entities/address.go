// Package entities defines the persisted data model for alarmd.
package entities

import (
	"strconv"
	"time"
)

// Address is one telemetry point on the field bus, keyed by its stable
// integer address. Value and OldValue are mutated only by the ingestion
// path (row-locked) and the bulk reset; Name only by the operator UI.
type Address struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Address     int       `gorm:"uniqueIndex;not null" json:"address"`
	Name        *string   `gorm:"size:255" json:"name"`
	Value       string    `gorm:"size:64;not null;default:''" json:"value"`
	OldValue    string    `gorm:"size:64;not null;default:''" json:"old_value"`
	SourceTopic string    `gorm:"size:255;default:''" json:"source_topic"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Address) TableName() string {
	return "addresses"
}

// DisplayName returns the operator label, falling back to the numeric
// address when none is assigned.
func (a *Address) DisplayName() string {
	if a.Name != nil && *a.Name != "" {
		return *a.Name
	}
	return strconv.Itoa(a.Address)
}
