package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/hklweb/alarmd/internal/datastore/entities"
)

// setupTestDB creates an in-memory SQLite database. Uses shared-cache
// mode with a single connection so all operations see the same
// in-memory database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_foreign_keys=ON"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err, "failed to open in-memory database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "failed to get sql.DB")
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(
		&entities.Address{},
		&entities.Rule{},
		&entities.ActiveAlarm{},
		&entities.AlarmRecord{},
		&entities.EventLogEntry{},
	)
	require.NoError(t, err, "failed to migrate tables")
	return db
}

func TestAddressRepository_ApplyNewAddress(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAddressRepository(db)

	change, err := repo.Apply(t.Context(), 100, "5", "plc/1")
	require.NoError(t, err)
	assert.True(t, change.IsNew)
	assert.False(t, change.Changed)

	addr, err := repo.Get(t.Context(), 100)
	require.NoError(t, err)
	assert.Equal(t, "5", addr.Value)
	assert.Equal(t, "5", addr.OldValue, "first value doubles as baseline")
	assert.Equal(t, "plc/1", addr.SourceTopic)
}

func TestAddressRepository_ApplyUnchangedValueIsNoop(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAddressRepository(db)

	_, err := repo.Apply(t.Context(), 100, "5", "")
	require.NoError(t, err)

	change, err := repo.Apply(t.Context(), 100, "5", "")
	require.NoError(t, err)
	assert.False(t, change.IsNew)
	assert.False(t, change.Changed)
}

func TestAddressRepository_ApplyChangeShiftsOldValue(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAddressRepository(db)

	_, err := repo.Apply(t.Context(), 100, "5", "")
	require.NoError(t, err)

	change, err := repo.Apply(t.Context(), 100, "8", "")
	require.NoError(t, err)
	assert.True(t, change.Changed)
	assert.Equal(t, "5", change.OldValue)

	addr, err := repo.Get(t.Context(), 100)
	require.NoError(t, err)
	assert.Equal(t, "8", addr.Value)
	assert.Equal(t, "5", addr.OldValue)
}

func TestAddressRepository_GetUnknownAddress(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAddressRepository(db)

	_, err := repo.Get(t.Context(), 999)
	require.ErrorIs(t, err, ErrAddressNotFound)
}

func TestAddressRepository_Rename(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAddressRepository(db)

	_, err := repo.Apply(t.Context(), 100, "0", "")
	require.NoError(t, err)

	require.NoError(t, repo.Rename(t.Context(), 100, "Pump 1"))

	addr, err := repo.Get(t.Context(), 100)
	require.NoError(t, err)
	assert.Equal(t, "Pump 1", addr.DisplayName())

	err = repo.Rename(t.Context(), 999, "ghost")
	require.ErrorIs(t, err, ErrAddressNotFound)
}

func TestAddressRepository_ResetAllZeroesEveryValue(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAddressRepository(db)

	for addr, value := range map[int]string{100: "5", 101: "8", 102: "fault"} {
		_, err := repo.Apply(t.Context(), addr, value, "")
		require.NoError(t, err)
	}

	require.NoError(t, repo.ResetAll(t.Context()))

	addresses, err := repo.List(t.Context())
	require.NoError(t, err)
	require.Len(t, addresses, 3)
	for _, a := range addresses {
		assert.Equal(t, "0", a.Value)
		assert.Equal(t, "0", a.OldValue)
	}
}
