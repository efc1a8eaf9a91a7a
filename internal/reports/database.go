package reports

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

// OrdersInWindow returns orders with from <= timestamp <= to, oldest first.
func (d *Database) OrdersInWindow(from, to int64) ([]types.Order, error) {
	var orders []types.Order
	err := d.db.
		Where("timestamp >= ? AND timestamp <= ?", from, to).
		Order("timestamp asc").
		Find(&orders).Error
	return orders, err
}

// FillsInWindow returns fills with from <= timestamp <= to, oldest first.
func (d *Database) FillsInWindow(from, to int64) ([]types.Fill, error) {
	var fills []types.Fill
	err := d.db.
		Where("timestamp >= ? AND timestamp <= ?", from, to).
		Order("timestamp asc").
		Find(&fills).Error
	return fills, err
}
