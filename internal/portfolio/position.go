package portfolio

import (
	"time"

	"github.com/google/uuid"
)

// Position statuses; a position moves open -> closed exactly once
const (
	PositionOpen   = "open"
	PositionClosed = "closed"
)

// Position is a single-instrument holding. Quantity is signed: positive
// for long, negative for short. Positions are owned exclusively by the
// Portfolio and mutated only through its methods.
type Position struct {
	PositionID string            `json:"position_id"`
	Ticker     string            `json:"ticker"`
	Quantity   float64           `json:"quantity"`
	EntryPrice float64           `json:"entry_price"`
	EntryTime  time.Time         `json:"entry_time"`
	StopLoss   *float64          `json:"stop_loss,omitempty"`
	TakeProfit *float64          `json:"take_profit,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`

	// Set on close
	ExitPrice  float64   `json:"exit_price,omitempty"`
	ExitTime   time.Time `json:"exit_time,omitempty"`
	PnL        float64   `json:"pnl"`
	PnLPercent float64   `json:"pnl_percent"`
	Status     string    `json:"status"`
}

// NewPosition creates an open position with a fresh identity
func NewPosition(ticker string, quantity, entryPrice float64, entryTime time.Time) *Position {
	return &Position{
		PositionID: "POS_" + uuid.New().String(),
		Ticker:     ticker,
		Quantity:   quantity,
		EntryPrice: entryPrice,
		EntryTime:  entryTime,
		Status:     PositionOpen,
	}
}

// Long reports whether the position is long (positive quantity)
func (p *Position) Long() bool {
	return p.Quantity > 0
}

// UnrealizedPnL returns the mark-to-market profit at the given price
func (p *Position) UnrealizedPnL(currentPrice float64) float64 {
	return (currentPrice - p.EntryPrice) * p.Quantity
}

// close realizes the position at the given exit price. PnL percentage is
// sign-flipped for shorts so a favorable move is always positive.
func (p *Position) close(exitPrice float64, exitTime time.Time) {
	p.ExitPrice = exitPrice
	p.ExitTime = exitTime
	p.PnL = (exitPrice - p.EntryPrice) * p.Quantity
	p.PnLPercent = (exitPrice/p.EntryPrice - 1) * 100
	if !p.Long() {
		p.PnLPercent = -p.PnLPercent
	}
	p.Status = PositionClosed
}
