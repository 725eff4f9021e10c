package pkg

import (
	"fmt"

	"github.com/SAP-F-2025/worksheet-session/internal/config"
	contentstore "github.com/SAP-F-2025/worksheet-session/internal/repositories/postgres"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDatabase connects to the worksheet content database and migrates its
// tables.
func InitDatabase(cfg *config.Config) (*gorm.DB, error) {
	logLevel := logger.Info
	if cfg.Environment == "production" {
		logLevel = logger.Error
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := contentstore.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate worksheet content: %w", err)
	}

	return db, nil
}
