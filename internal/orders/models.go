package orders

import (
	"time"

	"github.com/ksred/trading-engine/internal/types"
	"gorm.io/gorm"
)

// Order is the mutable lifecycle record built from an immutable OrderEvent
// spec. Status moves through the lifecycle machine defined in types; no
// transition is permitted out of a terminal status.
type Order struct {
	gorm.Model `json:"-"`
	OrderID    string            `gorm:"uniqueIndex" json:"order_id"`
	Ticker     string            `json:"ticker"`
	OrderType  types.OrderType   `json:"order_type"`
	Side       types.OrderSide   `json:"side"`
	Quantity   float64           `json:"quantity"`
	LimitPrice *float64          `json:"limit_price,omitempty"`
	StopPrice  *float64          `json:"stop_price,omitempty"`
	Status     types.OrderStatus `json:"status"`
	Source     string            `json:"source"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Terminal reports whether the order has reached a final status
func (o *Order) Terminal() bool {
	return o.Status.Terminal()
}
