package types

import "time"

// ExecutionResult reports the outcome of executing an order
type ExecutionResult struct {
	OrderID        string      `json:"order_id"`
	Status         OrderStatus `json:"status"`
	FillPrice      float64     `json:"fill_price,omitempty"`
	FilledQuantity float64     `json:"filled_quantity,omitempty"`
	Commission     float64     `json:"commission,omitempty"`
	Attempts       int         `json:"attempts,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// PortfolioSummary is the read-model returned by the portfolio endpoints
type PortfolioSummary struct {
	InitialCapital  float64   `json:"initial_capital"`
	Cash            float64   `json:"cash"`
	PortfolioValue  float64   `json:"portfolio_value"`
	PositionValue   float64   `json:"position_value"`
	OpenPositions   int       `json:"open_positions"`
	ClosedPositions int       `json:"closed_positions"`
	RealizedPnL     float64   `json:"realized_pnl"`
	Timestamp       time.Time `json:"timestamp"`
}

// SignalAck acknowledges that a signal was accepted onto the engine queue
type SignalAck struct {
	Ticker    string    `json:"ticker"`
	Direction int       `json:"direction"`
	Strength  float64   `json:"strength"`
	QueuedAt  time.Time `json:"queued_at"`
}
