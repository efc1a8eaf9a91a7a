package trading

import (
	"gorm.io/gorm"

	"github.com/tradesim/paper-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// RecordFill appends an order and its fill to the audit log in a single
// transaction.
func (d *Database) RecordFill(order *types.Order, fill *types.Fill) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(order).Error; err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Create(fill).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
