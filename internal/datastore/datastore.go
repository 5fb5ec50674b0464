// Package datastore owns the GORM database handle and schema for alarmd.
package datastore

import (
	"fmt"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/hklweb/alarmd/internal/datastore/entities"
)

const (
	mysqlMaxOpenConns    = 10
	mysqlConnMaxLifetime = time.Hour
)

// Config selects the database backend.
type Config struct {
	// Path is the SQLite database file. Used when DSN is empty.
	Path string
	// DSN is a MySQL data source name. Takes precedence over Path.
	DSN string
}

// Manager owns the database connection and schema lifecycle.
type Manager struct {
	db      *gorm.DB
	isMySQL bool
}

// NewSQLiteManager opens (or creates) a SQLite database at cfg.Path.
func NewSQLiteManager(cfg Config) (*Manager, error) {
	path := cfg.Path
	if path == "" {
		path = "alarmd.db"
	}
	dsn := fmt.Sprintf("%s?_foreign_keys=ON&_busy_timeout=5000", filepath.Clean(path))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// churn under the per-batch transactions.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sqlite connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return &Manager{db: db}, nil
}

// NewMySQLManager opens a MySQL database with the given DSN.
func NewMySQLManager(cfg Config) (*Manager, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mysql manager requires a DSN")
	}
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access mysql connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(mysqlMaxOpenConns)
	sqlDB.SetConnMaxLifetime(mysqlConnMaxLifetime)
	return &Manager{db: db, isMySQL: true}, nil
}

// Initialize migrates the alarmd schema.
func (m *Manager) Initialize() error {
	if err := m.db.AutoMigrate(
		&entities.Address{},
		&entities.Rule{},
		&entities.ActiveAlarm{},
		&entities.AlarmRecord{},
		&entities.EventLogEntry{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// DB returns the underlying GORM handle.
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// IsMySQL reports whether the manager runs against MySQL.
func (m *Manager) IsMySQL() bool {
	return m.isMySQL
}

// Close closes the underlying database connection.
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
