// Package execution submits orders to a broker and turns broker
// responses into fill events. Two broker implementations satisfy the same
// capability interface: a paper simulator with no network dependency and
// a live client against an external broker API.
package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/ksred/trading-engine/internal/orders"
	"github.com/ksred/trading-engine/internal/types"
)

// SubmitResult is the broker's answer to a submitted order: an
// acknowledgement, a fill, or a rejection.
type SubmitResult struct {
	Status         types.OrderStatus // OPEN (ack), FILLED, PARTIALLY_FILLED or REJECTED
	FillPrice      float64
	FilledQuantity float64
	Commission     float64
}

// Broker is the capability interface both the paper and live
// implementations satisfy. Submit blocks for the duration of the broker
// round trip and must be called without holding the portfolio lock.
type Broker interface {
	Submit(ctx context.Context, order *orders.Order) (*SubmitResult, error)
	Cancel(ctx context.Context, orderID string) (bool, error)
}

// BrokerError reports a broker-layer failure. Transient failures are
// retried up to the executor's configured bound; fatal failures reject
// the order immediately.
type BrokerError struct {
	Reason    string
	Transient bool
	Err       error
}

func (e *BrokerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("broker: %s", e.Reason)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retriable broker failure
func IsTransient(err error) bool {
	var be *BrokerError
	return errors.As(err, &be) && be.Transient
}
