package repository

import (
	"context"
	"time"

	"github.com/hklweb/alarmd/internal/datastore/entities"
)

// TransitionRecord is one rule transition to persist. The ledger writes
// it to the active projection, the history, and the event log.
type TransitionRecord struct {
	RuleID    uint
	Address   int
	Value     string
	Text      string
	Priority  string
	Fulfilled bool
	Timestamp time.Time
}

// StatusCounts is the rolled-up counter record over the active
// projection, published to external dashboards. JSON keys are a wire
// compatibility contract with the existing consumers.
type StatusCounts struct {
	TotalActive int64 `json:"totalActive"`
	Prio1       int64 `json:"prio1"`
	Prio2       int64 `json:"prio2"`
	Prio3       int64 `json:"prio3"`
	Warnung     int64 `json:"warnung"`
	Info        int64 `json:"info"`
}

// AlarmRepository is the alarm ledger: active projection, append-only
// history, and event log.
type AlarmRepository interface {
	// RecordTransition writes one transition to all three projections.
	// The address display name is resolved at write time so later
	// renames do not rewrite history.
	RecordTransition(ctx context.Context, rec TransitionRecord) error
	// ClearActive deletes the whole active projection. History is
	// untouched.
	ClearActive(ctx context.Context) error
	// AcknowledgeAll stamps every unacknowledged history row and
	// appends the synthetic quittance record. Idempotent: re-running
	// after a partial failure re-stamps nothing.
	AcknowledgeAll(ctx context.Context, now time.Time) error

	ListActive(ctx context.Context) ([]entities.ActiveAlarm, error)
	ListHistory(ctx context.Context, limit, offset int) ([]entities.AlarmRecord, int64, error)
	ListEventLog(ctx context.Context, limit, offset int) ([]entities.EventLogEntry, int64, error)
	CountByPriority(ctx context.Context) (StatusCounts, error)
}
