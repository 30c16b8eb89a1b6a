// Package engine runs the trading event loop. Signals arrive on a
// buffered channel and a single consumer goroutine drives them through
// risk sizing, order creation, broker execution and the portfolio
// ledger, so all portfolio mutation is serialized through one owner.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/ksred/trading-engine/internal/execution"
	"github.com/ksred/trading-engine/internal/marketdata"
	"github.com/ksred/trading-engine/internal/orders"
	"github.com/ksred/trading-engine/internal/portfolio"
	"github.com/ksred/trading-engine/internal/risk"
	"github.com/ksred/trading-engine/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Event bus topics published by the engine
const (
	TopicFill     = "engine:fill"
	TopicPosition = "engine:position"
	TopicError    = "engine:error"
)

// ErrQueueFull is returned when the signal buffer cannot accept another
// signal. The caller decides whether to retry; the engine never drops a
// signal silently.
var ErrQueueFull = errors.New("engine: signal queue full")

// Config carries the engine's tunables
type Config struct {
	SignalBuffer         int
	MarketUpdateInterval time.Duration
	// StopLossPercent and TakeProfitPercent set initial exit levels on
	// new positions relative to the fill price. Zero disables the level.
	StopLossPercent   float64
	TakeProfitPercent float64
}

// Engine wires the signal queue to the risk manager, order manager,
// executor and portfolio.
type Engine struct {
	cfg       Config
	portfolio *portfolio.Portfolio
	risk      *risk.Manager
	orders    *orders.Manager
	executor  *execution.Executor
	prices    marketdata.Source
	bus       EventBus.Bus

	signals chan types.SignalEvent

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an engine. The bus may be nil, in which case no events are
// published.
func New(cfg Config, pf *portfolio.Portfolio, riskManager *risk.Manager, orderManager *orders.Manager, executor *execution.Executor, prices marketdata.Source, bus EventBus.Bus) *Engine {
	if cfg.SignalBuffer < 1 {
		cfg.SignalBuffer = 1
	}
	if cfg.MarketUpdateInterval <= 0 {
		cfg.MarketUpdateInterval = 5 * time.Second
	}
	return &Engine{
		cfg:       cfg,
		portfolio: pf,
		risk:      riskManager,
		orders:    orderManager,
		executor:  executor,
		prices:    prices,
		bus:       bus,
		signals:   make(chan types.SignalEvent, cfg.SignalBuffer),
	}
}

// Start launches the event loop. Calling Start on a running engine is a
// no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return
	}
	e.running = true

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.run(runCtx)

	log.Info().
		Int("signal_buffer", e.cfg.SignalBuffer).
		Dur("market_update_interval", e.cfg.MarketUpdateInterval).
		Msg("engine started")
}

// Stop cancels the event loop and waits for it to drain
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	cancel()
	<-done

	log.Info().Msg("engine stopped")
}

// SubmitSignal validates the signal and enqueues it for the event loop.
// A full queue is reported to the caller, never silently dropped.
func (e *Engine) SubmitSignal(sig types.SignalEvent) error {
	if err := sig.Validate(); err != nil {
		log.Warn().
			Str("ticker", sig.Ticker).
			Int("direction", sig.Direction).
			Err(err).
			Msg("rejected malformed signal")
		return err
	}

	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now()
	}

	select {
	case e.signals <- sig:
		log.Debug().
			Str("ticker", sig.Ticker).
			Int("direction", sig.Direction).
			Float64("strength", sig.Strength).
			Msg("signal queued")
		return nil
	default:
		log.Error().
			Str("ticker", sig.Ticker).
			Int("queue_size", e.cfg.SignalBuffer).
			Msg("signal queue full")
		return ErrQueueFull
	}
}

// QueueDepth returns the number of signals waiting for the event loop
func (e *Engine) QueueDepth() int {
	return len(e.signals)
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.MarketUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-e.signals:
			e.processSignal(ctx, sig)
		case <-ticker.C:
			e.updateMarket()
		}
	}
}

// processSignal runs one signal through sizing, execution and the
// ledger. Broker calls happen outside the portfolio lock; the loop's
// single-consumer discipline keeps sizing and the resulting position
// change atomic with respect to other signals.
func (e *Engine) processSignal(ctx context.Context, sig types.SignalEvent) {
	logger := log.With().
		Str("ticker", sig.Ticker).
		Int("direction", sig.Direction).
		Float64("strength", sig.Strength).
		Logger()

	snapshot := e.prices.Snapshot()
	price, ok := snapshot[sig.Ticker]
	if !ok || price <= 0 {
		logger.Warn().Msg("no market price for signal, skipping")
		e.publishError(sig.Ticker, errors.New("no market price for "+sig.Ticker))
		return
	}

	if pos, held := e.portfolio.GetPosition(sig.Ticker); held {
		holdingLong := pos.Long()
		wantLong := sig.Direction == types.DirectionLong
		if holdingLong == wantLong {
			logger.Debug().Msg("already positioned in signal direction, skipping")
			return
		}
		e.closePositionFromSignal(ctx, sig, pos, logger)
		return
	}

	equity := e.portfolio.GetPortfolioValue(snapshot)
	confidence := sig.Strength * 100
	quantity := e.risk.CalculatePositionSize(sig.Ticker, sig.Direction, confidence, price, equity)
	if quantity <= 0 {
		logger.Debug().Float64("confidence", confidence).Msg("risk sizing yielded zero, skipping")
		return
	}

	side := types.OrderSideBuy
	if sig.Direction == types.DirectionShort {
		side = types.OrderSideSell
	}

	order, err := e.orders.CreateOrder(types.OrderEvent{
		Ticker:    sig.Ticker,
		OrderType: types.OrderTypeMarket,
		Side:      side,
		Quantity:  quantity,
		Metadata:  map[string]string{"source": sig.Source},
		Timestamp: time.Now(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to create order from signal")
		e.publishError(sig.Ticker, err)
		return
	}

	result, fill, err := e.executor.ExecuteOrder(ctx, order)
	if err != nil {
		logger.Error().Err(err).Str("order_id", order.OrderID).Msg("order execution failed")
		e.publishError(sig.Ticker, err)
		return
	}
	if fill == nil {
		logger.Info().
			Str("order_id", result.OrderID).
			Str("status", string(result.Status)).
			Msg("order did not fill")
		return
	}

	e.openPositionFromFill(sig, fill, logger)
}

// closePositionFromSignal exits an existing position when a signal
// arrives in the opposite direction.
func (e *Engine) closePositionFromSignal(ctx context.Context, sig types.SignalEvent, pos portfolio.Position, logger zerolog.Logger) {
	side := types.OrderSideSell
	quantity := pos.Quantity
	if !pos.Long() {
		side = types.OrderSideBuy
		quantity = -pos.Quantity
	}

	order, err := e.orders.CreateOrder(types.OrderEvent{
		Ticker:    sig.Ticker,
		OrderType: types.OrderTypeMarket,
		Side:      side,
		Quantity:  quantity,
		Metadata:  map[string]string{"source": sig.Source, "intent": "close"},
		Timestamp: time.Now(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to create closing order")
		e.publishError(sig.Ticker, err)
		return
	}

	result, fill, err := e.executor.ExecuteOrder(ctx, order)
	if err != nil {
		logger.Error().Err(err).Str("order_id", order.OrderID).Msg("closing order execution failed")
		e.publishError(sig.Ticker, err)
		return
	}
	if fill == nil {
		logger.Info().
			Str("order_id", result.OrderID).
			Str("status", string(result.Status)).
			Msg("closing order did not fill")
		return
	}

	if err := e.portfolio.ClosePosition(sig.Ticker, fill.Price, fill.Timestamp); err != nil {
		logger.Error().Err(err).Msg("failed to close position after fill")
		e.publishError(sig.Ticker, err)
		return
	}

	e.publishFill(fill)
	if closed, ok := e.lastClosed(sig.Ticker); ok {
		e.publishPosition(&types.PositionEvent{
			Ticker:    closed.Ticker,
			Change:    "CLOSE",
			Quantity:  closed.Quantity,
			Price:     closed.ExitPrice,
			PnL:       closed.PnL,
			Timestamp: fill.Timestamp,
		})
	}

	logger.Info().
		Str("order_id", order.OrderID).
		Float64("exit_price", fill.Price).
		Msg("position closed on opposing signal")
}

func (e *Engine) openPositionFromFill(sig types.SignalEvent, fill *types.FillEvent, logger zerolog.Logger) {
	quantity := fill.Quantity
	if sig.Direction == types.DirectionShort {
		quantity = -quantity
	}

	pos := portfolio.NewPosition(sig.Ticker, quantity, fill.Price, fill.Timestamp)
	pos.Metadata = map[string]string{"source": sig.Source, "order_id": fill.OrderID}

	if e.cfg.StopLossPercent > 0 {
		stop := fill.Price * (1 - e.cfg.StopLossPercent/100)
		if sig.Direction == types.DirectionShort {
			stop = fill.Price * (1 + e.cfg.StopLossPercent/100)
		}
		pos.StopLoss = &stop
	}
	if e.cfg.TakeProfitPercent > 0 {
		target := fill.Price * (1 + e.cfg.TakeProfitPercent/100)
		if sig.Direction == types.DirectionShort {
			target = fill.Price * (1 - e.cfg.TakeProfitPercent/100)
		}
		pos.TakeProfit = &target
	}

	if err := e.portfolio.AddPosition(pos); err != nil {
		logger.Error().Err(err).Msg("failed to add position after fill")
		e.publishError(sig.Ticker, err)
		return
	}

	e.publishFill(fill)
	e.publishPosition(&types.PositionEvent{
		Ticker:    sig.Ticker,
		Change:    "OPEN",
		Quantity:  quantity,
		Price:     fill.Price,
		Timestamp: fill.Timestamp,
	})

	logger.Info().
		Str("position_id", pos.PositionID).
		Str("order_id", fill.OrderID).
		Float64("quantity", quantity).
		Float64("fill_price", fill.Price).
		Msg("position opened from signal")
}

// updateMarket re-evaluates every open position against the latest
// snapshot and publishes any exit-trigger closes.
func (e *Engine) updateMarket() {
	snapshot := e.prices.Snapshot()
	closed := e.portfolio.UpdatePortfolio(snapshot, time.Now())
	for i := range closed {
		e.publishPosition(&closed[i])
	}
}

func (e *Engine) lastClosed(ticker string) (portfolio.Position, bool) {
	all := e.portfolio.ClosedPositions()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Ticker == ticker {
			return all[i], true
		}
	}
	return portfolio.Position{}, false
}

func (e *Engine) publishFill(fill *types.FillEvent) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(TopicFill, *fill)
}

func (e *Engine) publishPosition(ev *types.PositionEvent) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(TopicPosition, *ev)
}

func (e *Engine) publishError(ticker string, err error) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(TopicError, ticker, err)
}
