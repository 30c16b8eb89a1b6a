package execution

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/ksred/trading-engine/internal/orders"
	"github.com/ksred/trading-engine/internal/types"
	"github.com/rs/zerolog/log"
)

// PriceSource yields the last known price for a ticker. The simulated
// market data feed satisfies it.
type PriceSource interface {
	Price(ticker string) (float64, bool)
}

// PaperBrokerConfig tunes the simulated venue
type PaperBrokerConfig struct {
	MinLatency      time.Duration // simulated round-trip floor
	MaxLatency      time.Duration
	SuccessRate     float64 // probability a submit fills, in [0,1]
	SlippagePercent float64 // max fill price variance, 0.1 means 0.1%
	CommissionRate  float64 // fraction of notional, e.g. 0.001
}

// PaperBroker simulates immediate fills against the last known price.
// It has no external network dependency; failures are injected according
// to the configured success rate and surface as transient broker errors.
type PaperBroker struct {
	cfg    PaperBrokerConfig
	prices PriceSource

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPaperBroker creates a simulated broker filling against prices
func NewPaperBroker(cfg PaperBrokerConfig, prices PriceSource) *PaperBroker {
	if cfg.SuccessRate <= 0 || cfg.SuccessRate > 1 {
		cfg.SuccessRate = 1.0
	}
	return &PaperBroker{
		cfg:    cfg,
		prices: prices,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Submit simulates executing the order at the last known price with
// bounded random latency, slippage and commission.
func (b *PaperBroker) Submit(ctx context.Context, order *orders.Order) (*SubmitResult, error) {
	logger := log.With().
		Str("broker", "paper").
		Str("order_id", order.OrderID).
		Str("ticker", order.Ticker).
		Str("side", string(order.Side)).
		Float64("quantity", order.Quantity).
		Logger()

	logger.Debug().Msg("submitting order to paper broker")

	if err := b.sleep(ctx); err != nil {
		return nil, &BrokerError{Reason: "submit interrupted", Transient: false, Err: err}
	}

	price, ok := b.prices.Price(order.Ticker)
	if !ok || price <= 0 {
		logger.Warn().Msg("no price available for ticker")
		return nil, &BrokerError{Reason: "no market price for " + order.Ticker, Transient: true}
	}

	b.mu.Lock()
	roll := b.rng.Float64()
	variance := (b.rng.Float64()*2 - 1) * b.cfg.SlippagePercent / 100.0
	b.mu.Unlock()

	if roll > b.cfg.SuccessRate {
		logger.Warn().Float64("success_rate", b.cfg.SuccessRate).Msg("simulated venue failure")
		return nil, &BrokerError{Reason: "simulated venue failure", Transient: true}
	}

	fillPrice := price * (1 + variance)
	commission := fillPrice * order.Quantity * b.cfg.CommissionRate

	logger.Info().
		Float64("fill_price", fillPrice).
		Float64("commission", commission).
		Msg("order filled by paper broker")

	return &SubmitResult{
		Status:         types.OrderStatusFilled,
		FillPrice:      fillPrice,
		FilledQuantity: order.Quantity,
		Commission:     commission,
	}, nil
}

// Cancel reports success for any order; the paper broker fills
// immediately, so nothing rests on its book.
func (b *PaperBroker) Cancel(ctx context.Context, orderID string) (bool, error) {
	log.Debug().Str("broker", "paper").Str("order_id", orderID).Msg("cancel requested")
	return true, nil
}

func (b *PaperBroker) sleep(ctx context.Context) error {
	if b.cfg.MaxLatency <= 0 {
		return nil
	}
	span := b.cfg.MaxLatency - b.cfg.MinLatency
	delay := b.cfg.MinLatency
	if span > 0 {
		b.mu.Lock()
		delay += time.Duration(b.rng.Int63n(int64(span)))
		b.mu.Unlock()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
