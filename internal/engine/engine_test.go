package engine

import (
	"context"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/ksred/trading-engine/internal/execution"
	"github.com/ksred/trading-engine/internal/marketdata"
	"github.com/ksred/trading-engine/internal/orders"
	"github.com/ksred/trading-engine/internal/portfolio"
	"github.com/ksred/trading-engine/internal/risk"
	"github.com/ksred/trading-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testHarness struct {
	engine    *Engine
	portfolio *portfolio.Portfolio
	orders    *orders.Manager
	prices    *marketdata.SimulatedSource
	bus       EventBus.Bus
}

// newTestHarness wires an engine against a zero-volatility price feed and
// a deterministic paper broker (no latency, no slippage, always fills).
func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	prices := marketdata.NewSimulatedSource(map[string]float64{
		"AAPL": 150.0,
		"MSFT": 410.0,
	}, 0)

	pf := portfolio.New(portfolio.Config{
		InitialCapital:  100000,
		TrailingStop:    true,
		TrailingPercent: 3.0,
	}, nil, nil)

	orderManager := orders.NewManager(nil)
	broker := execution.NewPaperBroker(execution.PaperBrokerConfig{
		SuccessRate:    1.0,
		CommissionRate: 0.001,
	}, prices)
	executor := execution.NewExecutor(broker, orderManager, execution.ExecutorConfig{
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})

	bus := EventBus.New()
	eng := New(Config{
		SignalBuffer:         16,
		MarketUpdateInterval: time.Hour, // driven manually in tests
		StopLossPercent:      5.0,
		TakeProfitPercent:    10.0,
	}, pf, risk.NewManager(2.0, 60.0), orderManager, executor, prices, bus)

	return &testHarness{
		engine:    eng,
		portfolio: pf,
		orders:    orderManager,
		prices:    prices,
		bus:       bus,
	}
}

func longSignal(ticker string, strength float64) types.SignalEvent {
	return types.SignalEvent{
		Ticker:    ticker,
		Direction: types.DirectionLong,
		Strength:  strength,
		Source:    "test",
		Timestamp: time.Now(),
	}
}

func TestSignalOpensPosition(t *testing.T) {
	h := newTestHarness(t)

	h.engine.processSignal(context.Background(), longSignal("AAPL", 1.0))

	pos, ok := h.portfolio.GetPosition("AAPL")
	require.True(t, ok)

	// 2% of 100000 at full confidence buys 13 units at 150
	assert.Equal(t, 13.0, pos.Quantity)
	assert.Equal(t, 150.0, pos.EntryPrice)
	assert.Equal(t, 100000.0-13*150.0, h.portfolio.Cash())

	// Exit levels placed relative to the fill price
	require.NotNil(t, pos.StopLoss)
	require.NotNil(t, pos.TakeProfit)
	assert.InDelta(t, 150.0*0.95, *pos.StopLoss, 1e-9)
	assert.InDelta(t, 150.0*1.10, *pos.TakeProfit, 1e-9)

	// Order reached a terminal status
	assert.Empty(t, h.orders.PendingOrders())
}

func TestShortSignalOpensNegativePosition(t *testing.T) {
	h := newTestHarness(t)

	sig := longSignal("AAPL", 1.0)
	sig.Direction = types.DirectionShort
	h.engine.processSignal(context.Background(), sig)

	pos, ok := h.portfolio.GetPosition("AAPL")
	require.True(t, ok)
	assert.Equal(t, -13.0, pos.Quantity)

	// Short exit levels sit on the opposite sides of entry
	require.NotNil(t, pos.StopLoss)
	require.NotNil(t, pos.TakeProfit)
	assert.InDelta(t, 150.0*1.05, *pos.StopLoss, 1e-9)
	assert.InDelta(t, 150.0*0.90, *pos.TakeProfit, 1e-9)
}

func TestWeakSignalIsSkipped(t *testing.T) {
	h := newTestHarness(t)

	// Strength 0.5 -> confidence 50, below the 60 floor
	h.engine.processSignal(context.Background(), longSignal("AAPL", 0.5))

	assert.False(t, h.portfolio.HasPosition("AAPL"))
	assert.Empty(t, h.orders.PendingOrders())
}

func TestSameDirectionSignalIsSkipped(t *testing.T) {
	h := newTestHarness(t)

	h.engine.processSignal(context.Background(), longSignal("AAPL", 1.0))
	pos, _ := h.portfolio.GetPosition("AAPL")
	cashAfterOpen := h.portfolio.Cash()

	h.engine.processSignal(context.Background(), longSignal("AAPL", 0.9))

	// Position and cash untouched by the second signal
	after, ok := h.portfolio.GetPosition("AAPL")
	require.True(t, ok)
	assert.Equal(t, pos.PositionID, after.PositionID)
	assert.Equal(t, cashAfterOpen, h.portfolio.Cash())
}

func TestOpposingSignalClosesPosition(t *testing.T) {
	h := newTestHarness(t)

	h.engine.processSignal(context.Background(), longSignal("AAPL", 1.0))
	require.True(t, h.portfolio.HasPosition("AAPL"))

	h.prices.Set("AAPL", 160.0)

	sig := longSignal("AAPL", 0.9)
	sig.Direction = types.DirectionShort
	h.engine.processSignal(context.Background(), sig)

	assert.False(t, h.portfolio.HasPosition("AAPL"))

	closed := h.portfolio.ClosedPositions()
	require.Len(t, closed, 1)
	assert.Equal(t, 160.0, closed[0].ExitPrice)
	assert.Equal(t, 130.0, closed[0].PnL)
}

func TestSignalWithoutMarketPrice(t *testing.T) {
	h := newTestHarness(t)

	var errTickers []string
	require.NoError(t, h.bus.Subscribe(TopicError, func(ticker string, err error) {
		errTickers = append(errTickers, ticker)
	}))

	h.engine.processSignal(context.Background(), longSignal("TSLA", 1.0))

	assert.False(t, h.portfolio.HasPosition("TSLA"))
	assert.Equal(t, []string{"TSLA"}, errTickers)
}

func TestMarketUpdateTriggersStops(t *testing.T) {
	h := newTestHarness(t)

	var closes []types.PositionEvent
	require.NoError(t, h.bus.Subscribe(TopicPosition, func(ev types.PositionEvent) {
		if ev.Change == "CLOSE" {
			closes = append(closes, ev)
		}
	}))

	h.engine.processSignal(context.Background(), longSignal("AAPL", 1.0))
	require.True(t, h.portfolio.HasPosition("AAPL"))

	// Drop through the 5% stop
	h.prices.Set("AAPL", 140.0)
	h.engine.updateMarket()

	assert.False(t, h.portfolio.HasPosition("AAPL"))
	require.Len(t, closes, 1)
	assert.Equal(t, "AAPL", closes[0].Ticker)
	assert.Equal(t, 140.0, closes[0].Price)
}

func TestFillEventsPublished(t *testing.T) {
	h := newTestHarness(t)

	var fills []types.FillEvent
	require.NoError(t, h.bus.Subscribe(TopicFill, func(ev types.FillEvent) {
		fills = append(fills, ev)
	}))

	h.engine.processSignal(context.Background(), longSignal("AAPL", 1.0))

	require.Len(t, fills, 1)
	assert.Equal(t, "AAPL", fills[0].Ticker)
	assert.Equal(t, types.OrderSideBuy, fills[0].Side)
	assert.Equal(t, 13.0, fills[0].Quantity)
	assert.Equal(t, 150.0, fills[0].Price)
}

func TestSubmitSignalValidation(t *testing.T) {
	h := newTestHarness(t)

	err := h.engine.SubmitSignal(types.SignalEvent{Ticker: "", Direction: types.DirectionLong, Strength: 0.9})
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))

	err = h.engine.SubmitSignal(types.SignalEvent{Ticker: "AAPL", Direction: 0, Strength: 0.9})
	require.Error(t, err)
}

func TestSubmitSignalQueueFull(t *testing.T) {
	prices := marketdata.NewSimulatedSource(map[string]float64{"AAPL": 150.0}, 0)
	pf := portfolio.New(portfolio.Config{InitialCapital: 100000}, nil, nil)
	orderManager := orders.NewManager(nil)
	broker := execution.NewPaperBroker(execution.PaperBrokerConfig{SuccessRate: 1.0}, prices)
	executor := execution.NewExecutor(broker, orderManager, execution.ExecutorConfig{MaxRetries: 1, RetryDelay: time.Millisecond})

	// Buffer of one, engine not started: the second submit must fail
	eng := New(Config{SignalBuffer: 1, MarketUpdateInterval: time.Hour}, pf, risk.NewManager(2.0, 60.0), orderManager, executor, prices, nil)

	require.NoError(t, eng.SubmitSignal(longSignal("AAPL", 0.9)))
	err := eng.SubmitSignal(longSignal("AAPL", 0.9))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, eng.QueueDepth())
}

func TestEngineRunLoop(t *testing.T) {
	h := newTestHarness(t)

	h.engine.Start(context.Background())
	defer h.engine.Stop()

	require.NoError(t, h.engine.SubmitSignal(longSignal("AAPL", 1.0)))

	require.Eventually(t, func() bool {
		return h.portfolio.HasPosition("AAPL")
	}, 2*time.Second, 10*time.Millisecond)

	pos, _ := h.portfolio.GetPosition("AAPL")
	assert.Equal(t, 13.0, pos.Quantity)
}

func TestEngineStartTwiceIsNoOp(t *testing.T) {
	h := newTestHarness(t)

	h.engine.Start(context.Background())
	h.engine.Start(context.Background())
	h.engine.Stop()
	h.engine.Stop()
}
