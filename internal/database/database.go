package database

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tradesim/paper-api/internal/types"
)

// NewDatabase opens the SQLite audit log and migrates the order and fill
// tables. The log is append-only trade history; the in-memory ledger is
// not rebuilt from it on restart.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&types.Order{},
		&types.Fill{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
