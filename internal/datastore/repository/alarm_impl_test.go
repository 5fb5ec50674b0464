package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hklweb/alarmd/internal/datastore/entities"
)

func testTransition(ruleID uint, address int, fulfilled bool, text string) TransitionRecord {
	return TransitionRecord{
		RuleID:    ruleID,
		Address:   address,
		Value:     "5",
		Text:      text,
		Priority:  entities.PriorityPrio1,
		Fulfilled: fulfilled,
		Timestamp: time.Now(),
	}
}

func recordTransition(t *testing.T, db *gorm.DB, rec TransitionRecord) {
	t.Helper()
	require.NoError(t, NewAlarmRepository(db).RecordTransition(t.Context(), rec))
}

func TestAlarmRepository_RecordTransitionWritesAllThreeTables(t *testing.T) {
	db := setupTestDB(t)
	seedAddress(t, db, 100)
	repo := NewAlarmRepository(db)

	require.NoError(t, repo.RecordTransition(t.Context(), testTransition(1, 100, true, "pump failure")))

	active, err := repo.ListActive(t.Context())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "pump failure", active[0].Text)

	history, total, err := repo.ListHistory(t.Context(), 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, entities.EntryTypeAlarm, history[0].EntryType)
	assert.False(t, history[0].Quittanced)

	events, _, err := repo.ListEventLog(t.Context(), 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, entities.EventRuleFulfilled, events[0].Type)
}

func TestAlarmRepository_RecordTransitionDenormalizesAddressName(t *testing.T) {
	db := setupTestDB(t)
	name := "Pump 1"
	require.NoError(t, db.Create(&entities.Address{Address: 100, Name: &name, Value: "5", OldValue: "0"}).Error)
	repo := NewAlarmRepository(db)

	require.NoError(t, repo.RecordTransition(t.Context(), testTransition(1, 100, true, "x")))

	active, err := repo.ListActive(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Pump 1", active[0].AddressName)

	// Unknown address falls back to the numeric string.
	require.NoError(t, repo.RecordTransition(t.Context(), testTransition(2, 777, true, "y")))
	active, err = repo.ListActive(t.Context())
	require.NoError(t, err)
	require.Len(t, active, 2)
	for _, a := range active {
		if a.Address == 777 {
			assert.Equal(t, "777", a.AddressName)
		}
	}
}

func TestAlarmRepository_ActiveProjectionReplacesPerRule(t *testing.T) {
	db := setupTestDB(t)
	seedAddress(t, db, 100)
	repo := NewAlarmRepository(db)

	require.NoError(t, repo.RecordTransition(t.Context(), testTransition(1, 100, true, "came")))
	require.NoError(t, repo.RecordTransition(t.Context(), testTransition(1, 100, false, "went")))

	active, err := repo.ListActive(t.Context())
	require.NoError(t, err)
	require.Len(t, active, 1, "one active row per rule")
	assert.Equal(t, "went", active[0].Text)

	_, total, err := repo.ListHistory(t.Context(), 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestAlarmRepository_ListHistoryNewestFirstPaginated(t *testing.T) {
	db := setupTestDB(t)
	seedAddress(t, db, 100)
	repo := NewAlarmRepository(db)

	for i := 0; i < 5; i++ {
		rec := testTransition(uint(i+1), 100, true, "x")
		rec.Timestamp = time.Now().Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.RecordTransition(t.Context(), rec))
	}

	page, total, err := repo.ListHistory(t.Context(), 2, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, page, 2)
	assert.True(t, page[0].Timestamp.After(page[1].Timestamp) || page[0].Timestamp.Equal(page[1].Timestamp))

	rest, _, err := repo.ListHistory(t.Context(), 10, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 3)
}

func TestAlarmRepository_ClearActiveLeavesHistory(t *testing.T) {
	db := setupTestDB(t)
	seedAddress(t, db, 100)
	repo := NewAlarmRepository(db)

	require.NoError(t, repo.RecordTransition(t.Context(), testTransition(1, 100, true, "x")))
	require.NoError(t, repo.ClearActive(t.Context()))

	active, err := repo.ListActive(t.Context())
	require.NoError(t, err)
	assert.Empty(t, active)

	_, total, err := repo.ListHistory(t.Context(), 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestAlarmRepository_AcknowledgeAllFlagsAndAppendsMarker(t *testing.T) {
	db := setupTestDB(t)
	seedAddress(t, db, 100)
	repo := NewAlarmRepository(db)

	require.NoError(t, repo.RecordTransition(t.Context(), testTransition(1, 100, true, "x")))
	require.NoError(t, repo.RecordTransition(t.Context(), testTransition(2, 100, true, "y")))

	now := time.Now()
	require.NoError(t, repo.AcknowledgeAll(t.Context(), now))

	history, total, err := repo.ListHistory(t.Context(), 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total, "two alarms plus the quittance marker")

	var markers, flagged int
	for _, h := range history {
		switch h.EntryType {
		case entities.EntryTypeQuittance:
			markers++
			assert.Equal(t, 0, h.Address)
			assert.Equal(t, "System", h.AddressName)
			assert.Equal(t, entities.PriorityInfo, h.Priority)
		case entities.EntryTypeAlarm:
			assert.True(t, h.Quittanced)
			require.NotNil(t, h.QuittancedAt)
			flagged++
		}
	}
	assert.Equal(t, 1, markers)
	assert.Equal(t, 2, flagged)
}

func TestAlarmRepository_AcknowledgeAllIsIdempotentPerRecord(t *testing.T) {
	db := setupTestDB(t)
	seedAddress(t, db, 100)
	repo := NewAlarmRepository(db)

	require.NoError(t, repo.RecordTransition(t.Context(), testTransition(1, 100, true, "x")))
	first := time.Now().Add(-time.Minute)
	require.NoError(t, repo.AcknowledgeAll(t.Context(), first))

	// A second acknowledge must not re-stamp already flagged records.
	require.NoError(t, repo.AcknowledgeAll(t.Context(), time.Now()))

	var rec entities.AlarmRecord
	require.NoError(t, db.Where("entry_type = ?", entities.EntryTypeAlarm).First(&rec).Error)
	require.NotNil(t, rec.QuittancedAt)
	assert.WithinDuration(t, first, *rec.QuittancedAt, 2*time.Second)
}

func TestAlarmRepository_CountByPriority(t *testing.T) {
	db := setupTestDB(t)
	seedAddress(t, db, 100)
	repo := NewAlarmRepository(db)

	priorities := []string{
		entities.PriorityPrio1,
		entities.PriorityPrio1,
		entities.PriorityPrio3,
		entities.PriorityWarnung,
		entities.PriorityInfo,
	}
	for i, p := range priorities {
		rec := testTransition(uint(i+1), 100, true, "x")
		rec.Priority = p
		require.NoError(t, repo.RecordTransition(t.Context(), rec))
	}

	counts, err := repo.CountByPriority(t.Context())
	require.NoError(t, err)
	assert.EqualValues(t, 5, counts.TotalActive)
	assert.EqualValues(t, 2, counts.Prio1)
	assert.EqualValues(t, 0, counts.Prio2)
	assert.EqualValues(t, 1, counts.Prio3)
	assert.EqualValues(t, 1, counts.Warnung)
	assert.EqualValues(t, 1, counts.Info)
}
