package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/ksred/trading-engine/internal/orders"
	"github.com/ksred/trading-engine/internal/types"
	"github.com/rs/zerolog/log"
)

// ExecutorConfig bounds the retry behavior for broker submissions
type ExecutorConfig struct {
	MaxRetries int           // total submit attempts per order
	RetryDelay time.Duration // wait between attempts
}

// Executor drives orders through the broker. Transient broker failures
// are retried up to the configured bound with a delay between attempts;
// after exhaustion the order is Rejected and the failure surfaces to the
// caller. No failure path is silently dropped.
type Executor struct {
	broker Broker
	orders *orders.Manager
	cfg    ExecutorConfig
}

// NewExecutor creates an executor submitting through the given broker
func NewExecutor(broker Broker, orderManager *orders.Manager, cfg ExecutorConfig) *Executor {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Executor{
		broker: broker,
		orders: orderManager,
		cfg:    cfg,
	}
}

// ExecuteOrder submits the order and returns the execution result plus
// the fill event when the order executed. Executing an order already in
// a terminal status is a no-op reporting the existing status. Broker
// calls block; callers must not hold the portfolio lock across this call.
func (e *Executor) ExecuteOrder(ctx context.Context, order *orders.Order) (*types.ExecutionResult, *types.FillEvent, error) {
	logger := log.With().
		Str("order_id", order.OrderID).
		Str("ticker", order.Ticker).
		Str("side", string(order.Side)).
		Logger()

	if order.Terminal() {
		logger.Warn().Str("status", string(order.Status)).Msg("execution requested for terminal order")
		return &types.ExecutionResult{
			OrderID:   order.OrderID,
			Status:    order.Status,
			Timestamp: time.Now(),
		}, nil, nil
	}

	var submitErr error
	attempts := 0
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		attempts = attempt
		result, err := e.broker.Submit(ctx, order)
		if err == nil {
			return e.applyResult(order, result, attempt)
		}

		submitErr = err
		if !IsTransient(err) {
			logger.Error().Err(err).Int("attempt", attempt).Msg("non-retriable broker failure")
			break
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_retries", e.cfg.MaxRetries).
			Msg("transient broker failure")

		if attempt < e.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				submitErr = ctx.Err()
				attempt = e.cfg.MaxRetries // stop retrying
			case <-time.After(e.cfg.RetryDelay):
			}
		}
	}

	if err := e.reject(order); err != nil {
		logger.Error().Err(err).Msg("failed to mark order rejected")
	}

	logger.Error().Err(submitErr).Msg("order rejected after broker failures")

	return &types.ExecutionResult{
		OrderID:   order.OrderID,
		Status:    types.OrderStatusRejected,
		Attempts:  attempts,
		Timestamp: time.Now(),
	}, nil, fmt.Errorf("execute order %s: %w", order.OrderID, submitErr)
}

func (e *Executor) applyResult(order *orders.Order, result *SubmitResult, attempts int) (*types.ExecutionResult, *types.FillEvent, error) {
	now := time.Now()

	switch result.Status {
	case types.OrderStatusRejected:
		if err := e.reject(order); err != nil {
			return nil, nil, err
		}
		return &types.ExecutionResult{
			OrderID:   order.OrderID,
			Status:    types.OrderStatusRejected,
			Attempts:  attempts,
			Timestamp: now,
		}, nil, nil

	case types.OrderStatusOpen:
		// Acknowledged but resting; a later fill or cancellation moves it on.
		if err := e.orders.Transition(order, types.OrderStatusOpen); err != nil {
			return nil, nil, err
		}
		return &types.ExecutionResult{
			OrderID:   order.OrderID,
			Status:    types.OrderStatusOpen,
			Attempts:  attempts,
			Timestamp: now,
		}, nil, nil

	case types.OrderStatusFilled, types.OrderStatusPartiallyFilled:
		// Broker acknowledgement precedes the fill.
		if order.Status == types.OrderStatusPending {
			if err := e.orders.Transition(order, types.OrderStatusOpen); err != nil {
				return nil, nil, err
			}
		}
		if err := e.orders.Transition(order, result.Status); err != nil {
			return nil, nil, err
		}

		fill := &types.FillEvent{
			Ticker:     order.Ticker,
			Side:       order.Side,
			Quantity:   result.FilledQuantity,
			Price:      result.FillPrice,
			Commission: result.Commission,
			OrderID:    order.OrderID,
			Timestamp:  now,
		}

		return &types.ExecutionResult{
			OrderID:        order.OrderID,
			Status:         result.Status,
			FillPrice:      result.FillPrice,
			FilledQuantity: result.FilledQuantity,
			Commission:     result.Commission,
			Attempts:       attempts,
			Timestamp:      now,
		}, fill, nil
	}

	return nil, nil, &BrokerError{
		Reason: fmt.Sprintf("unexpected submit status %q", string(result.Status)),
	}
}

func (e *Executor) reject(order *orders.Order) error {
	if order.Terminal() {
		return nil
	}
	return e.orders.Transition(order, types.OrderStatusRejected)
}

// CancelOrder cancels the order with the broker, then locally
func (e *Executor) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	ok, err := e.broker.Cancel(ctx, orderID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if _, err := e.orders.CancelOrder(orderID); err != nil {
		return false, err
	}
	return true, nil
}
