package orders

import (
	"errors"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateOrder(order *Order) error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Create(order).Error
}

func (d *Database) GetOrder(orderID string) (*Order, error) {
	if d == nil || d.db == nil {
		return nil, nil
	}
	var order Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) UpdateOrder(order *Order) error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Save(order).Error
}

func (d *Database) GetOrdersByStatus(status string) ([]Order, error) {
	if d == nil || d.db == nil {
		return nil, nil
	}
	var out []Order
	if err := d.db.Where("status = ?", status).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
