package orders

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/trading-engine/internal/types"
	"github.com/ksred/trading-engine/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Manager validates order specs, assigns identity, and tracks live orders
// through their lifecycle. Malformed specs are rejected before any state
// is created.
type Manager struct {
	mu     sync.RWMutex
	orders map[string]*Order // orderID -> order, until terminal
	db     *Database
}

// NewManager creates an order manager. gormDB may be nil, in which case
// orders are tracked in memory only.
func NewManager(gormDB *gorm.DB) *Manager {
	return &Manager{
		orders: make(map[string]*Order),
		db:     NewDatabase(gormDB),
	}
}

// CreateOrder validates the spec and constructs a Pending order with a
// fresh identity. The spec is rejected with a ValidationError when a
// required field is missing or malformed.
func (m *Manager) CreateOrder(spec types.OrderEvent) (*Order, error) {
	if err := spec.Validate(); err != nil {
		log.Warn().
			Str("ticker", spec.Ticker).
			Str("side", string(spec.Side)).
			Float64("quantity", spec.Quantity).
			Err(err).
			Msg("rejected malformed order spec")
		return nil, err
	}

	now := time.Now()
	order := &Order{
		OrderID:    "ORD_" + uuid.New().String(),
		Ticker:     spec.Ticker,
		OrderType:  spec.OrderType,
		Side:       spec.Side,
		Quantity:   spec.Quantity,
		LimitPrice: spec.LimitPrice,
		StopPrice:  spec.StopPrice,
		Status:     types.OrderStatusPending,
		Source:     spec.Metadata["source"],
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := m.db.CreateOrder(order); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.orders[order.OrderID] = order
	m.mu.Unlock()

	log.Info().
		Str("order_id", order.OrderID).
		Str("ticker", order.Ticker).
		Str("side", string(order.Side)).
		Str("order_type", string(order.OrderType)).
		Float64("quantity", order.Quantity).
		Msg("order created")

	return order, nil
}

// GetOrder returns a copy of the order for the given ID, falling back
// to the database for orders that have already reached a terminal
// status. Callers get a detached snapshot; the live record is only ever
// mutated under the manager's lock.
func (m *Manager) GetOrder(orderID string) (*Order, error) {
	m.mu.RLock()
	if order, ok := m.orders[orderID]; ok {
		cp := *order
		m.mu.RUnlock()
		return &cp, nil
	}
	m.mu.RUnlock()

	stored, err := m.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, types.ErrOrderNotFound
	}
	return stored, nil
}

// Transition moves an order to the next status, enforcing the lifecycle
// machine. The order must be the record returned by CreateOrder, not a
// GetOrder snapshot. Orders in a terminal status are dropped from live
// tracking.
func (m *Manager) Transition(order *Order, next types.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !order.Status.CanTransition(next) {
		return &types.InvalidTransitionError{
			OrderID: order.OrderID,
			From:    order.Status,
			To:      next,
		}
	}

	prev := order.Status
	order.Status = next
	order.UpdatedAt = time.Now()

	if err := m.db.UpdateOrder(order); err != nil {
		order.Status = prev
		return err
	}

	if next.Terminal() {
		delete(m.orders, order.OrderID)
	}

	log.Debug().
		Str("order_id", order.OrderID).
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("order status transition")

	return nil
}

// CancelOrder cancels a live order and returns a copy of the canceled
// record. Orders already in a terminal status cannot be canceled.
func (m *Manager) CancelOrder(orderID string) (*Order, error) {
	m.mu.RLock()
	order, ok := m.orders[orderID]
	m.mu.RUnlock()
	if !ok {
		stored, err := m.db.GetOrder(orderID)
		if err != nil {
			return nil, err
		}
		if stored == nil {
			return nil, types.ErrOrderNotFound
		}
		// Already terminal; Transition rejects it below
		order = stored
	}

	if err := m.Transition(order, types.OrderStatusCanceled); err != nil {
		return nil, err
	}

	cp := *order
	return &cp, nil
}

// PendingOrders returns copies of orders not yet in a terminal status
func (m *Manager) PendingOrders() []Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out
}

// OrdersByStatus returns copies of orders in the given status. Live
// statuses are served from the tracked map, terminal statuses from the
// database.
func (m *Manager) OrdersByStatus(status types.OrderStatus) ([]Order, error) {
	if status.Terminal() {
		return m.db.GetOrdersByStatus(string(status))
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Order, 0)
	for _, o := range m.orders {
		if o.Status == status {
			out = append(out, *o)
		}
	}
	return out, nil
}

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	manager *Manager
}

// NewGinHandlers creates a new set of HTTP handlers for order endpoints
func NewGinHandlers(manager *Manager) *GinHandlers {
	return &GinHandlers{manager: manager}
}

// ListOrdersHandler handles GET requests to list orders in a status
// Query parameter: status
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := types.OrderStatus(c.Query("status"))
		if status == "" {
			response.BadRequest(c, "Status is required")
			return
		}

		orders, err := h.manager.OrdersByStatus(status)
		response.Handle(c, orders, err)
	}
}

// GetOrderHandler handles GET requests to retrieve order status
// URL parameter: order_id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "Order ID is required")
			return
		}

		order, err := h.manager.GetOrder(orderID)
		response.Handle(c, order, err)
	}
}

// CancelOrderHandler handles DELETE requests to cancel a live order
// URL parameter: order_id
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "Order ID is required")
			return
		}

		order, err := h.manager.CancelOrder(orderID)
		response.Handle(c, order, err)
	}
}
