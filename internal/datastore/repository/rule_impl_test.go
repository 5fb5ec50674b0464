package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hklweb/alarmd/internal/datastore/entities"
)

func seedAddress(t *testing.T, db *gorm.DB, address int) {
	t.Helper()
	require.NoError(t, db.Create(&entities.Address{Address: address, Value: "0", OldValue: "0"}).Error)
}

func validValueRule(address int) *entities.Rule {
	return &entities.Rule{
		Address:  address,
		Type:     entities.RuleTypeValue,
		Value:    "5",
		Text:     "pump failure",
		Priority: entities.PriorityPrio1,
		Enabled:  true,
	}
}

func TestRuleRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	seedAddress(t, db, 100)
	repo := NewRuleRepository(db)

	rule := validValueRule(100)
	require.NoError(t, repo.Create(t.Context(), rule))
	require.NotZero(t, rule.ID)

	got, err := repo.Get(t.Context(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "pump failure", got.Text)
}

func TestRuleRepository_CreateRejectsUnknownAddress(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRuleRepository(db)

	err := repo.Create(t.Context(), validValueRule(999))
	require.ErrorIs(t, err, ErrAddressNotFound)
}

func TestRuleRepository_CreateRejectsBadPriority(t *testing.T) {
	db := setupTestDB(t)
	seedAddress(t, db, 100)
	repo := NewRuleRepository(db)

	rule := validValueRule(100)
	rule.Priority = "urgent"
	err := repo.Create(t.Context(), rule)
	require.ErrorIs(t, err, ErrInvalidRule)
}

func TestRuleRepository_CreateRejectsValueRuleWithoutValue(t *testing.T) {
	db := setupTestDB(t)
	seedAddress(t, db, 100)
	repo := NewRuleRepository(db)

	rule := validValueRule(100)
	rule.Value = ""
	err := repo.Create(t.Context(), rule)
	require.ErrorIs(t, err, ErrInvalidRule)
}

func TestRuleRepository_CreateValidatesBitPosition(t *testing.T) {
	db := setupTestDB(t)
	seedAddress(t, db, 100)
	repo := NewRuleRepository(db)

	for _, pos := range []int{-1, 16} {
		rule := &entities.Rule{
			Address:     100,
			Type:        entities.RuleTypeBit,
			BitPosition: pos,
			TextOn:      "on",
			Priority:    entities.PriorityWarnung,
			Enabled:     true,
		}
		err := repo.Create(t.Context(), rule)
		require.ErrorIs(t, err, ErrInvalidRule, "bit position %d must be rejected", pos)
	}

	rule := &entities.Rule{
		Address:     100,
		Type:        entities.RuleTypeBit,
		BitPosition: 15,
		TextOn:      "on",
		Priority:    entities.PriorityWarnung,
		Enabled:     true,
	}
	require.NoError(t, repo.Create(t.Context(), rule))
}

func TestRuleRepository_ListByAddressFiltersDisabled(t *testing.T) {
	db := setupTestDB(t)
	seedAddress(t, db, 100)
	seedAddress(t, db, 101)
	repo := NewRuleRepository(db)

	enabled := validValueRule(100)
	require.NoError(t, repo.Create(t.Context(), enabled))

	disabled := validValueRule(100)
	disabled.Enabled = false
	require.NoError(t, repo.Create(t.Context(), disabled))

	other := validValueRule(101)
	require.NoError(t, repo.Create(t.Context(), other))

	rules, err := repo.ListByAddress(t.Context(), 100)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, enabled.ID, rules[0].ID)
}

func TestRuleRepository_UpdateUnknownRule(t *testing.T) {
	db := setupTestDB(t)
	seedAddress(t, db, 100)
	repo := NewRuleRepository(db)

	rule := validValueRule(100)
	rule.ID = 42
	err := repo.Update(t.Context(), rule)
	require.ErrorIs(t, err, ErrRuleNotFound)
}

func TestRuleRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	seedAddress(t, db, 100)
	repo := NewRuleRepository(db)

	rule := validValueRule(100)
	require.NoError(t, repo.Create(t.Context(), rule))
	require.NoError(t, repo.Delete(t.Context(), rule.ID))

	_, err := repo.Get(t.Context(), rule.ID)
	require.ErrorIs(t, err, ErrRuleNotFound)

	err = repo.Delete(t.Context(), rule.ID)
	require.ErrorIs(t, err, ErrRuleNotFound)
}
