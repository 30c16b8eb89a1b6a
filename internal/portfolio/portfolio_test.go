package portfolio

import (
	"testing"
	"time"

	"github.com/ksred/trading-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPortfolio(capital float64) *Portfolio {
	return New(Config{
		InitialCapital:  capital,
		TrailingStop:    true,
		TrailingPercent: 3.0,
	}, nil, nil)
}

func ptr(v float64) *float64 { return &v }

func TestAddPositionDebitsCash(t *testing.T) {
	p := newTestPortfolio(100000)
	now := time.Now()

	pos := NewPosition("AAPL", 10, 150.0, now)
	require.NoError(t, p.AddPosition(pos))

	assert.Equal(t, 98500.0, p.Cash())
	assert.True(t, p.HasPosition("AAPL"))

	txns := p.Transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, TransactionOpen, txns[0].Type)
	assert.Equal(t, 1500.0, txns[0].Value)
}

func TestAddPositionRejectsDuplicateTicker(t *testing.T) {
	p := newTestPortfolio(100000)
	now := time.Now()

	require.NoError(t, p.AddPosition(NewPosition("AAPL", 10, 150.0, now)))
	err := p.AddPosition(NewPosition("AAPL", 5, 151.0, now))
	assert.ErrorIs(t, err, types.ErrPositionExists)

	// First position untouched
	pos, ok := p.GetPosition("AAPL")
	require.True(t, ok)
	assert.Equal(t, 10.0, pos.Quantity)
	assert.Equal(t, 98500.0, p.Cash())
}

func TestClosePositionRealizesPnL(t *testing.T) {
	p := newTestPortfolio(100000)
	entry := time.Now()
	exit := entry.Add(time.Hour)

	require.NoError(t, p.AddPosition(NewPosition("AAPL", 10, 150.0, entry)))
	require.NoError(t, p.ClosePosition("AAPL", 160.0, exit))

	assert.False(t, p.HasPosition("AAPL"))
	assert.Equal(t, 100100.0, p.Cash())

	closed := p.ClosedPositions()
	require.Len(t, closed, 1)
	assert.Equal(t, 100.0, closed[0].PnL)
	assert.InDelta(t, 6.6667, closed[0].PnLPercent, 0.001)
	assert.Equal(t, PositionClosed, closed[0].Status)
	assert.Equal(t, 100.0, p.RealizedPnL())
}

func TestClosePositionMissingTickerIsNoOp(t *testing.T) {
	p := newTestPortfolio(100000)

	err := p.ClosePosition("AAPL", 150.0, time.Now())
	assert.ErrorIs(t, err, types.ErrPositionNotFound)
	assert.Equal(t, 100000.0, p.Cash())
	assert.Empty(t, p.ClosedPositions())
	assert.Empty(t, p.Transactions())
}

func TestShortPositionLedger(t *testing.T) {
	p := newTestPortfolio(100000)
	entry := time.Now()

	// Short 10 @ 150: signed quantity is negative, so cash goes up on open
	require.NoError(t, p.AddPosition(NewPosition("AAPL", -10, 150.0, entry)))
	assert.Equal(t, 101500.0, p.Cash())

	// Price falls to 140: short profits
	require.NoError(t, p.ClosePosition("AAPL", 140.0, entry.Add(time.Hour)))
	assert.Equal(t, 100100.0, p.Cash())

	closed := p.ClosedPositions()
	require.Len(t, closed, 1)
	assert.Equal(t, 100.0, closed[0].PnL)
	// Favorable move reports positive pnl percent for shorts
	assert.InDelta(t, 6.6667, closed[0].PnLPercent, 0.001)
}

func TestCashReconciliation(t *testing.T) {
	p := newTestPortfolio(100000)
	now := time.Now()

	require.NoError(t, p.AddPosition(NewPosition("AAPL", 10, 150.0, now)))
	require.NoError(t, p.AddPosition(NewPosition("MSFT", 5, 400.0, now)))
	require.NoError(t, p.ClosePosition("AAPL", 155.0, now.Add(time.Hour)))

	// cash + open value at entry == initial capital + realized pnl
	openAtEntry := 0.0
	for _, pos := range p.OpenPositions() {
		openAtEntry += pos.Quantity * pos.EntryPrice
	}
	assert.InDelta(t, p.InitialCapital()+p.RealizedPnL(), p.Cash()+openAtEntry, 1e-9)
}

func TestStopLossTrigger(t *testing.T) {
	p := newTestPortfolio(100000)
	now := time.Now()

	pos := NewPosition("AAPL", 10, 150.0, now)
	pos.StopLoss = ptr(145.0)
	require.NoError(t, p.AddPosition(pos))

	// Above the stop: nothing happens
	ev := p.UpdatePosition("AAPL", 146.0, now.Add(time.Minute))
	assert.Nil(t, ev)
	assert.True(t, p.HasPosition("AAPL"))

	// At or below the stop: position closes at the current price
	ev = p.UpdatePosition("AAPL", 140.0, now.Add(2*time.Minute))
	require.NotNil(t, ev)
	assert.Equal(t, "CLOSE", ev.Change)
	assert.Equal(t, 140.0, ev.Price)
	assert.Equal(t, -100.0, ev.PnL)
	assert.False(t, p.HasPosition("AAPL"))
	assert.Equal(t, 99900.0, p.Cash())
}

func TestStopLossTriggersAtExactStop(t *testing.T) {
	now := time.Now()

	t.Run("long closes when price equals the stop", func(t *testing.T) {
		p := newTestPortfolio(100000)
		pos := NewPosition("AAPL", 10, 150.0, now)
		pos.StopLoss = ptr(145.0)
		require.NoError(t, p.AddPosition(pos))

		ev := p.UpdatePosition("AAPL", 145.0, now.Add(time.Minute))
		require.NotNil(t, ev)
		assert.Equal(t, 145.0, ev.Price)
		assert.False(t, p.HasPosition("AAPL"))
	})

	t.Run("short closes when price equals the stop", func(t *testing.T) {
		p := newTestPortfolio(100000)
		pos := NewPosition("AAPL", -10, 150.0, now)
		pos.StopLoss = ptr(155.0)
		require.NoError(t, p.AddPosition(pos))

		ev := p.UpdatePosition("AAPL", 155.0, now.Add(time.Minute))
		require.NotNil(t, ev)
		assert.Equal(t, -50.0, ev.PnL)
		assert.False(t, p.HasPosition("AAPL"))
	})
}

func TestTakeProfitTriggersAtExactTarget(t *testing.T) {
	now := time.Now()

	t.Run("long closes when price equals the target", func(t *testing.T) {
		p := newTestPortfolio(100000)
		pos := NewPosition("AAPL", 10, 150.0, now)
		pos.TakeProfit = ptr(165.0)
		require.NoError(t, p.AddPosition(pos))

		ev := p.UpdatePosition("AAPL", 165.0, now.Add(time.Minute))
		require.NotNil(t, ev)
		assert.Equal(t, 150.0, ev.PnL)
		assert.False(t, p.HasPosition("AAPL"))
	})

	t.Run("short closes when price equals the target", func(t *testing.T) {
		p := newTestPortfolio(100000)
		pos := NewPosition("AAPL", -10, 150.0, now)
		pos.TakeProfit = ptr(135.0)
		require.NoError(t, p.AddPosition(pos))

		ev := p.UpdatePosition("AAPL", 135.0, now.Add(time.Minute))
		require.NotNil(t, ev)
		assert.Equal(t, 150.0, ev.PnL)
		assert.False(t, p.HasPosition("AAPL"))
	})
}

func TestTakeProfitTrigger(t *testing.T) {
	p := newTestPortfolio(100000)
	now := time.Now()

	pos := NewPosition("AAPL", 10, 150.0, now)
	pos.TakeProfit = ptr(165.0)
	require.NoError(t, p.AddPosition(pos))

	ev := p.UpdatePosition("AAPL", 166.0, now.Add(time.Minute))
	require.NotNil(t, ev)
	assert.Equal(t, "CLOSE", ev.Change)
	assert.Equal(t, 160.0, p.ClosedPositions()[0].PnL)
}

func TestShortStopLossTrigger(t *testing.T) {
	p := newTestPortfolio(100000)
	now := time.Now()

	pos := NewPosition("AAPL", -10, 150.0, now)
	pos.StopLoss = ptr(155.0)
	require.NoError(t, p.AddPosition(pos))

	// Shorts stop out when the price rises through the stop
	ev := p.UpdatePosition("AAPL", 156.0, now.Add(time.Minute))
	require.NotNil(t, ev)
	assert.Equal(t, -60.0, ev.PnL)
}

func TestTrailingStopTightensOnly(t *testing.T) {
	p := newTestPortfolio(100000)
	now := time.Now()

	pos := NewPosition("AAPL", 10, 150.0, now)
	pos.StopLoss = ptr(145.0)
	require.NoError(t, p.AddPosition(pos))

	// Price rises: stop follows at 3% below
	p.UpdatePosition("AAPL", 160.0, now.Add(time.Minute))
	got, ok := p.GetPosition("AAPL")
	require.True(t, ok)
	require.NotNil(t, got.StopLoss)
	assert.InDelta(t, 155.2, *got.StopLoss, 1e-9)

	// Price falls back but stays above the stop: stop must not loosen
	p.UpdatePosition("AAPL", 157.0, now.Add(2*time.Minute))
	got, _ = p.GetPosition("AAPL")
	assert.InDelta(t, 155.2, *got.StopLoss, 1e-9)

	// Further rise tightens again
	p.UpdatePosition("AAPL", 170.0, now.Add(3*time.Minute))
	got, _ = p.GetPosition("AAPL")
	assert.InDelta(t, 164.9, *got.StopLoss, 1e-9)
}

func TestTrailingStopShortTightensDown(t *testing.T) {
	p := newTestPortfolio(100000)
	now := time.Now()

	pos := NewPosition("AAPL", -10, 150.0, now)
	pos.StopLoss = ptr(155.0)
	require.NoError(t, p.AddPosition(pos))

	// Price falls in the short's favor: stop follows down at 3% above
	p.UpdatePosition("AAPL", 140.0, now.Add(time.Minute))
	got, ok := p.GetPosition("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 144.2, *got.StopLoss, 1e-9)

	// Price bounces up below the stop: stop stays put
	p.UpdatePosition("AAPL", 143.0, now.Add(2*time.Minute))
	got, _ = p.GetPosition("AAPL")
	assert.InDelta(t, 144.2, *got.StopLoss, 1e-9)
}

func TestTrailingSkippedWithoutInitialStop(t *testing.T) {
	p := newTestPortfolio(100000)
	now := time.Now()

	// No stop-loss set: trailing recompute never installs one
	require.NoError(t, p.AddPosition(NewPosition("AAPL", 10, 150.0, now)))
	p.UpdatePosition("AAPL", 170.0, now.Add(time.Minute))

	got, ok := p.GetPosition("AAPL")
	require.True(t, ok)
	assert.Nil(t, got.StopLoss)
}

func TestStopLossCheckedBeforeTakeProfit(t *testing.T) {
	p := newTestPortfolio(100000)
	now := time.Now()

	// Degenerate config where one price satisfies both triggers
	pos := NewPosition("AAPL", 10, 150.0, now)
	pos.StopLoss = ptr(160.0)
	pos.TakeProfit = ptr(155.0)
	require.NoError(t, p.AddPosition(pos))

	p.UpdatePosition("AAPL", 158.0, now.Add(time.Minute))

	// Stop-loss runs first, so the close is attributed to it
	require.Len(t, p.ClosedPositions(), 1)
	assert.False(t, p.HasPosition("AAPL"))
}

func TestUpdatePortfolio(t *testing.T) {
	p := newTestPortfolio(100000)
	now := time.Now()

	aapl := NewPosition("AAPL", 10, 150.0, now)
	aapl.StopLoss = ptr(145.0)
	require.NoError(t, p.AddPosition(aapl))

	msft := NewPosition("MSFT", 5, 400.0, now)
	require.NoError(t, p.AddPosition(msft))

	prices := map[string]float64{"AAPL": 140.0, "MSFT": 410.0}
	events := p.UpdatePortfolio(prices, now.Add(time.Minute))

	// AAPL stopped out, MSFT survives
	require.Len(t, events, 1)
	assert.Equal(t, "AAPL", events[0].Ticker)
	assert.False(t, p.HasPosition("AAPL"))
	assert.True(t, p.HasPosition("MSFT"))

	// One equity sample appended, valued against the snapshot
	curve := p.EquityCurve()
	require.Len(t, curve, 1)
	assert.Equal(t, p.Cash()+5*410.0, curve[0].PortfolioValue)
}

func TestUpdatePortfolioSkipsUnpricedTickers(t *testing.T) {
	p := newTestPortfolio(100000)
	now := time.Now()

	pos := NewPosition("AAPL", 10, 150.0, now)
	pos.StopLoss = ptr(145.0)
	require.NoError(t, p.AddPosition(pos))

	events := p.UpdatePortfolio(map[string]float64{"MSFT": 400.0}, now.Add(time.Minute))
	assert.Empty(t, events)
	assert.True(t, p.HasPosition("AAPL"))
}

func TestStopLossScenario(t *testing.T) {
	// Open 10 @ 150 from 100k, stop at 145, price drops to 140:
	// cash ends at 99900 with a -100 realized pnl.
	p := newTestPortfolio(100000)
	now := time.Now()

	pos := NewPosition("AAPL", 10, 150.0, now)
	pos.StopLoss = ptr(145.0)
	require.NoError(t, p.AddPosition(pos))
	assert.Equal(t, 98500.0, p.Cash())

	events := p.UpdatePortfolio(map[string]float64{"AAPL": 140.0}, now.Add(time.Minute))
	require.Len(t, events, 1)

	assert.Equal(t, 99900.0, p.Cash())
	assert.Equal(t, -100.0, p.RealizedPnL())
}

func TestGetPositionValue(t *testing.T) {
	p := newTestPortfolio(100000)
	now := time.Now()

	require.NoError(t, p.AddPosition(NewPosition("AAPL", 10, 150.0, now)))
	require.NoError(t, p.AddPosition(NewPosition("MSFT", -5, 400.0, now)))

	prices := map[string]float64{"AAPL": 160.0, "MSFT": 390.0}
	assert.Equal(t, 10*160.0-5*390.0, p.GetPositionValue(prices))
	assert.Equal(t, p.Cash()+10*160.0-5*390.0, p.GetPortfolioValue(prices))
}

func TestGetPositionExposure(t *testing.T) {
	p := newTestPortfolio(100000)
	now := time.Now()

	require.NoError(t, p.AddPosition(NewPosition("AAPL", 10, 150.0, now)))
	require.NoError(t, p.AddPosition(NewPosition("MSFT", 5, 400.0, now)))

	exposure := p.GetPositionExposure()
	require.Len(t, exposure, 2)
	assert.InDelta(t, 1500.0/100000.0, exposure["AAPL"], 1e-9)
	assert.InDelta(t, 2000.0/100000.0, exposure["MSFT"], 1e-9)
}

func TestTransactionHistory(t *testing.T) {
	p := newTestPortfolio(100000)
	now := time.Now()

	require.NoError(t, p.AddPosition(NewPosition("AAPL", 10, 150.0, now)))
	require.NoError(t, p.AddPosition(NewPosition("MSFT", 5, 400.0, now)))
	require.NoError(t, p.ClosePosition("AAPL", 155.0, now.Add(time.Hour)))

	all, err := p.TransactionHistory("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	aapl, err := p.TransactionHistory("AAPL")
	require.NoError(t, err)
	require.Len(t, aapl, 2)
	assert.Equal(t, TransactionOpen, aapl[0].Type)
	assert.Equal(t, TransactionClose, aapl[1].Type)

	none, err := p.TransactionHistory("TSLA")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEquityHistory(t *testing.T) {
	p := newTestPortfolio(100000)
	now := time.Now()

	for i := 0; i < 5; i++ {
		p.UpdatePortfolio(map[string]float64{}, now.Add(time.Duration(i)*time.Minute))
	}

	all, err := p.EquityHistory(0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	recent, err := p.EquityHistory(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	// The limited view keeps the newest samples
	assert.Equal(t, all[3].Timestamp, recent[0].Timestamp)
	assert.Equal(t, all[4].Timestamp, recent[1].Timestamp)

	large, err := p.EquityHistory(100)
	require.NoError(t, err)
	assert.Len(t, large, 5)
}

func TestSummary(t *testing.T) {
	p := newTestPortfolio(100000)
	now := time.Now()

	require.NoError(t, p.AddPosition(NewPosition("AAPL", 10, 150.0, now)))
	require.NoError(t, p.ClosePosition("AAPL", 160.0, now.Add(time.Hour)))
	require.NoError(t, p.AddPosition(NewPosition("MSFT", 5, 400.0, now)))

	summary := p.Summary(map[string]float64{"MSFT": 420.0})
	assert.Equal(t, 100000.0, summary.InitialCapital)
	assert.Equal(t, 1, summary.OpenPositions)
	assert.Equal(t, 1, summary.ClosedPositions)
	assert.Equal(t, 100.0, summary.RealizedPnL)
	assert.Equal(t, 5*420.0, summary.PositionValue)
	assert.Equal(t, summary.Cash+summary.PositionValue, summary.PortfolioValue)
}
