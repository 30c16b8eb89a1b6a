package types

import (
	"fmt"
	"time"
)

// EventType identifies the kind of event flowing through the engine
type EventType string

const (
	EventSignal     EventType = "SIGNAL"
	EventOrder      EventType = "ORDER"
	EventFill       EventType = "FILL"
	EventPosition   EventType = "POSITION"
	EventMarketData EventType = "MARKET_DATA"
	EventError      EventType = "ERROR"
	EventSystem     EventType = "SYSTEM"
)

// OrderType identifies how an order should be executed
type OrderType string

const (
	OrderTypeMarket       OrderType = "MARKET"
	OrderTypeLimit        OrderType = "LIMIT"
	OrderTypeStop         OrderType = "STOP"
	OrderTypeStopLimit    OrderType = "STOP_LIMIT"
	OrderTypeTrailingStop OrderType = "TRAILING_STOP"
)

// Valid reports whether the order type is one of the recognized variants
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStop, OrderTypeStopLimit, OrderTypeTrailingStop:
		return true
	}
	return false
}

// RequiresLimitPrice reports whether orders of this type must carry a limit price
func (t OrderType) RequiresLimitPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStopLimit
}

// RequiresStopPrice reports whether orders of this type must carry a stop price
func (t OrderType) RequiresStopPrice() bool {
	return t == OrderTypeStop || t == OrderTypeStopLimit || t == OrderTypeTrailingStop
}

// OrderSide identifies the direction of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Valid reports whether the side is one of the recognized variants
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderStatus tracks an order through its lifecycle.
// Pending is the only initial status; Filled, Rejected, Canceled and
// Expired are terminal.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// Terminal reports whether no further transitions are permitted from this status
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// orderTransitions defines the permitted order status transitions
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {
		OrderStatusOpen,
		OrderStatusRejected,
		OrderStatusCanceled,
		OrderStatusExpired,
	},
	OrderStatusOpen: {
		OrderStatusFilled,
		OrderStatusPartiallyFilled,
		OrderStatusRejected,
		OrderStatusCanceled,
		OrderStatusExpired,
	},
	OrderStatusPartiallyFilled: {
		OrderStatusFilled,
		OrderStatusCanceled,
	},
}

// CanTransition reports whether a transition from s to next is permitted
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Signal directions
const (
	DirectionLong  = 1
	DirectionShort = -1
)

// SignalEvent is a directional trading recommendation produced by an
// external predictor. Strength is a confidence in [0.0, 1.0].
type SignalEvent struct {
	Ticker    string            `json:"ticker"`
	Direction int               `json:"direction"` // +1 long, -1 short
	Strength  float64           `json:"strength"`
	Source    string            `json:"source"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Validate checks the signal fields before the engine acts on it
func (s SignalEvent) Validate() error {
	if s.Ticker == "" {
		return &ValidationError{Field: "ticker", Reason: "must not be empty"}
	}
	if s.Direction != DirectionLong && s.Direction != DirectionShort {
		return &ValidationError{Field: "direction", Reason: "must be +1 (long) or -1 (short)"}
	}
	if s.Strength < 0 || s.Strength > 1 {
		return &ValidationError{Field: "strength", Reason: "must be within [0.0, 1.0]"}
	}
	return nil
}

// OrderEvent is the immutable specification an order is created from
type OrderEvent struct {
	Ticker     string            `json:"ticker"`
	OrderType  OrderType         `json:"order_type"`
	Side       OrderSide         `json:"side"`
	Quantity   float64           `json:"quantity"`
	LimitPrice *float64          `json:"limit_price,omitempty"`
	StopPrice  *float64          `json:"stop_price,omitempty"`
	OrderID    string            `json:"order_id,omitempty"` // set once assigned
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Validate checks the required fields for the order's type.
// A malformed spec is rejected before any state is mutated.
func (o OrderEvent) Validate() error {
	if o.Ticker == "" {
		return &ValidationError{Field: "ticker", Reason: "must not be empty"}
	}
	if o.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}
	if !o.Side.Valid() {
		return &ValidationError{Field: "side", Reason: fmt.Sprintf("unknown side %q", string(o.Side))}
	}
	if !o.OrderType.Valid() {
		return &ValidationError{Field: "order_type", Reason: fmt.Sprintf("unknown order type %q", string(o.OrderType))}
	}
	if o.OrderType.RequiresLimitPrice() && (o.LimitPrice == nil || *o.LimitPrice <= 0) {
		return &ValidationError{Field: "limit_price", Reason: fmt.Sprintf("required for %s orders", string(o.OrderType))}
	}
	if o.OrderType.RequiresStopPrice() && (o.StopPrice == nil || *o.StopPrice <= 0) {
		return &ValidationError{Field: "stop_price", Reason: fmt.Sprintf("required for %s orders", string(o.OrderType))}
	}
	return nil
}

// FillEvent confirms that an order executed, at a price and quantity
type FillEvent struct {
	Ticker     string    `json:"ticker"`
	Side       OrderSide `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Commission float64   `json:"commission"`
	OrderID    string    `json:"order_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// PositionEvent reports a change to a portfolio position
type PositionEvent struct {
	Ticker    string    `json:"ticker"`
	Change    string    `json:"change"` // OPEN or CLOSE
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	PnL       float64   `json:"pnl"`
	Timestamp time.Time `json:"timestamp"`
}
