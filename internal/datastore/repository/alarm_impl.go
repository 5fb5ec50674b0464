package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/hklweb/alarmd/internal/datastore/entities"
)

// quittanceAddress is the sentinel address of the synthetic history row
// appended by AcknowledgeAll.
const (
	quittanceAddress = 0
	quittanceName    = "System"
	quittanceText    = "All alarms acknowledged"
)

// alarmRepository implements AlarmRepository.
type alarmRepository struct {
	db *gorm.DB
}

// NewAlarmRepository creates an AlarmRepository bound to db. Pass a
// transaction handle to make RecordTransition atomic with the
// surrounding batch.
func NewAlarmRepository(db *gorm.DB) AlarmRepository {
	return &alarmRepository{db: db}
}

// displayName resolves the operator label for an address at write time.
// Unknown or unnamed addresses fall back to the numeric address string.
func (r *alarmRepository) displayName(ctx context.Context, address int) string {
	var record entities.Address
	err := r.db.WithContext(ctx).Where("address = ?", address).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return strconv.Itoa(address)
	}
	if err != nil {
		return strconv.Itoa(address)
	}
	return record.DisplayName()
}

// RecordTransition replaces the rule's active row and appends one
// history row and one event-log entry. At most one active row per rule
// survives.
func (r *alarmRepository) RecordTransition(ctx context.Context, rec TransitionRecord) error {
	name := r.displayName(ctx, rec.Address)

	if err := r.db.WithContext(ctx).
		Where("rule_id = ?", rec.RuleID).
		Delete(&entities.ActiveAlarm{}).Error; err != nil {
		return fmt.Errorf("failed to replace active alarm for rule %d: %w", rec.RuleID, err)
	}
	active := entities.ActiveAlarm{
		RuleID:      rec.RuleID,
		Address:     rec.Address,
		AddressName: name,
		Value:       rec.Value,
		Text:        rec.Text,
		Priority:    rec.Priority,
		Fulfilled:   rec.Fulfilled,
		Timestamp:   rec.Timestamp,
	}
	if err := r.db.WithContext(ctx).Create(&active).Error; err != nil {
		return fmt.Errorf("failed to insert active alarm: %w", err)
	}

	record := entities.AlarmRecord{
		RuleID:      rec.RuleID,
		Address:     rec.Address,
		AddressName: name,
		Value:       rec.Value,
		Text:        rec.Text,
		Priority:    rec.Priority,
		Fulfilled:   rec.Fulfilled,
		EntryType:   entities.EntryTypeAlarm,
		Timestamp:   rec.Timestamp,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert alarm history: %w", err)
	}

	eventType := entities.EventRuleUnfulfilled
	if rec.Fulfilled {
		eventType = entities.EventRuleFulfilled
	}
	logEntry := entities.EventLogEntry{
		RuleID:    rec.RuleID,
		Address:   rec.Address,
		Type:      eventType,
		Text:      rec.Text,
		Value:     rec.Value,
		Timestamp: rec.Timestamp,
	}
	if err := r.db.WithContext(ctx).Create(&logEntry).Error; err != nil {
		return fmt.Errorf("failed to insert event log entry: %w", err)
	}
	return nil
}

// ClearActive deletes all rows from the active projection.
func (r *alarmRepository) ClearActive(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Where("1 = 1").Delete(&entities.ActiveAlarm{}).Error; err != nil {
		return fmt.Errorf("failed to clear active alarms: %w", err)
	}
	return nil
}

// AcknowledgeAll stamps unacknowledged history rows and appends the
// quittance marker. The WHERE guard makes a retry after partial failure
// a no-op for already-stamped rows.
func (r *alarmRepository) AcknowledgeAll(ctx context.Context, now time.Time) error {
	err := r.db.WithContext(ctx).Model(&entities.AlarmRecord{}).
		Where("quittanced = ?", false).
		Updates(map[string]any{"quittanced": true, "quittanced_at": now}).Error
	if err != nil {
		return fmt.Errorf("failed to acknowledge alarm history: %w", err)
	}

	marker := entities.AlarmRecord{
		Address:      quittanceAddress,
		AddressName:  quittanceName,
		Text:         quittanceText,
		Priority:     entities.PriorityInfo,
		Quittanced:   true,
		QuittancedAt: &now,
		EntryType:    entities.EntryTypeQuittance,
		Timestamp:    now,
	}
	if err := r.db.WithContext(ctx).Create(&marker).Error; err != nil {
		return fmt.Errorf("failed to insert quittance record: %w", err)
	}
	return nil
}

// ListActive returns the active projection, newest first.
func (r *alarmRepository) ListActive(ctx context.Context) ([]entities.ActiveAlarm, error) {
	var alarms []entities.ActiveAlarm
	if err := r.db.WithContext(ctx).Order("timestamp DESC, id DESC").Find(&alarms).Error; err != nil {
		return nil, fmt.Errorf("failed to list active alarms: %w", err)
	}
	return alarms, nil
}

// ListHistory returns a paginated slice of the all-alarms history,
// newest first, plus the total row count.
func (r *alarmRepository) ListHistory(ctx context.Context, limit, offset int) ([]entities.AlarmRecord, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&entities.AlarmRecord{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count alarm history: %w", err)
	}

	query := r.db.WithContext(ctx).Order("timestamp DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var records []entities.AlarmRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list alarm history: %w", err)
	}
	return records, total, nil
}

// ListEventLog returns a paginated slice of the event log, newest first.
func (r *alarmRepository) ListEventLog(ctx context.Context, limit, offset int) ([]entities.EventLogEntry, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&entities.EventLogEntry{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count event log: %w", err)
	}

	query := r.db.WithContext(ctx).Order("timestamp DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var entries []entities.EventLogEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list event log: %w", err)
	}
	return entries, total, nil
}

// CountByPriority rolls the active projection up into the status
// counter record.
func (r *alarmRepository) CountByPriority(ctx context.Context) (StatusCounts, error) {
	var counts StatusCounts
	row := r.db.WithContext(ctx).Model(&entities.ActiveAlarm{}).
		Select(`COUNT(*) AS total_active,
			SUM(CASE WHEN priority = 'prio1' THEN 1 ELSE 0 END) AS prio1,
			SUM(CASE WHEN priority = 'prio2' THEN 1 ELSE 0 END) AS prio2,
			SUM(CASE WHEN priority = 'prio3' THEN 1 ELSE 0 END) AS prio3,
			SUM(CASE WHEN priority = 'warnung' THEN 1 ELSE 0 END) AS warnung,
			SUM(CASE WHEN priority = 'info' THEN 1 ELSE 0 END) AS info`)
	if err := row.Scan(&counts).Error; err != nil {
		return StatusCounts{}, fmt.Errorf("failed to count active alarms: %w", err)
	}
	return counts, nil
}
