package migrations

import (
	"github.com/ksred/trading-engine/internal/orders"
	"gorm.io/gorm"
)

func AddOrderIndexes(db *gorm.DB) error {
	if err := db.AutoMigrate(&orders.Order{}); err != nil {
		return err
	}

	// Status and ticker are the hot query paths for order lookups
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)").Error; err != nil {
		return err
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_orders_ticker ON orders(ticker)").Error; err != nil {
		return err
	}

	return nil
}
