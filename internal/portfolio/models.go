package portfolio

import (
	"time"

	"gorm.io/gorm"
)

// Transaction types
const (
	TransactionOpen  = "open"
	TransactionClose = "close"
)

// Transaction is one entry in the portfolio's append-only audit trail
type Transaction struct {
	gorm.Model    `json:"-"`
	TransactionID string    `gorm:"uniqueIndex" json:"transaction_id"`
	Type          string    `json:"type"` // open or close
	Ticker        string    `json:"ticker"`
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price"`
	Value         float64   `json:"value"`
	PnL           float64   `json:"pnl,omitempty"`
	PnLPercent    float64   `json:"pnl_percent,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// PositionRecord is the persisted form of a closed position
type PositionRecord struct {
	gorm.Model `json:"-"`
	PositionID string    `gorm:"uniqueIndex" json:"position_id"`
	Ticker     string    `json:"ticker"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
	ExitPrice  float64   `json:"exit_price"`
	ExitTime   time.Time `json:"exit_time"`
	PnL        float64   `json:"pnl"`
	PnLPercent float64   `json:"pnl_percent"`
}

// EquitySample is one point on the equity curve
type EquitySample struct {
	gorm.Model     `json:"-"`
	Timestamp      time.Time `json:"timestamp"`
	PortfolioValue float64   `json:"portfolio_value"`
	Cash           float64   `json:"cash"`
}
