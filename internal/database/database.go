package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gluk-w/miaoagent/internal/config"
)

var DB *gorm.DB

// Init opens the sqlite database at config.Cfg.DBPath, enables WAL mode, and
// migrates the row types this module persists. Must be called after
// config.Load().
func Init() error {
	dbPath := config.Cfg.DBPath
	dbDir := filepath.Dir(dbPath)
	if dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}

	if err := DB.AutoMigrate(&TunnelConfigRow{}, &TunnelSetConfigRow{}, &BackupRunRow{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	return nil
}
