package execution

import (
	"context"
	"testing"
	"time"

	"github.com/ksred/trading-engine/internal/marketdata"
	"github.com/ksred/trading-engine/internal/orders"
	"github.com/ksred/trading-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paperOrder(t *testing.T) *orders.Order {
	t.Helper()
	m := orders.NewManager(nil)
	order, err := m.CreateOrder(types.OrderEvent{
		Ticker:    "AAPL",
		OrderType: types.OrderTypeMarket,
		Side:      types.OrderSideBuy,
		Quantity:  10,
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	return order
}

func TestPaperBrokerFillsAtMarketPrice(t *testing.T) {
	prices := marketdata.NewSimulatedSource(map[string]float64{"AAPL": 150.0}, 0)
	broker := NewPaperBroker(PaperBrokerConfig{
		SuccessRate:    1.0,
		CommissionRate: 0.001,
	}, prices)

	result, err := broker.Submit(context.Background(), paperOrder(t))
	require.NoError(t, err)

	assert.Equal(t, types.OrderStatusFilled, result.Status)
	assert.Equal(t, 150.0, result.FillPrice)
	assert.Equal(t, 10.0, result.FilledQuantity)
	assert.InDelta(t, 150.0*10*0.001, result.Commission, 1e-9)
}

func TestPaperBrokerAppliesSlippage(t *testing.T) {
	prices := marketdata.NewSimulatedSource(map[string]float64{"AAPL": 150.0}, 0)
	broker := NewPaperBroker(PaperBrokerConfig{
		SuccessRate:     1.0,
		SlippagePercent: 0.5,
	}, prices)

	result, err := broker.Submit(context.Background(), paperOrder(t))
	require.NoError(t, err)

	// Fill lands within the slippage band around the market price
	assert.GreaterOrEqual(t, result.FillPrice, 150.0*(1-0.005))
	assert.LessOrEqual(t, result.FillPrice, 150.0*(1+0.005))
}

func TestPaperBrokerNoPriceIsTransient(t *testing.T) {
	prices := marketdata.NewSimulatedSource(nil, 0)
	broker := NewPaperBroker(PaperBrokerConfig{SuccessRate: 1.0}, prices)

	_, err := broker.Submit(context.Background(), paperOrder(t))
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestPaperBrokerInjectedFailureIsTransient(t *testing.T) {
	prices := marketdata.NewSimulatedSource(map[string]float64{"AAPL": 150.0}, 0)
	// Success rate outside (0,1] falls back to 1.0, so force failures via
	// a tiny positive rate instead.
	broker := NewPaperBroker(PaperBrokerConfig{SuccessRate: 1e-12}, prices)

	failed := false
	for i := 0; i < 50 && !failed; i++ {
		_, err := broker.Submit(context.Background(), paperOrder(t))
		if err != nil {
			assert.True(t, IsTransient(err))
			failed = true
		}
	}
	assert.True(t, failed, "expected at least one injected failure")
}

func TestPaperBrokerCancel(t *testing.T) {
	prices := marketdata.NewSimulatedSource(map[string]float64{"AAPL": 150.0}, 0)
	broker := NewPaperBroker(PaperBrokerConfig{SuccessRate: 1.0}, prices)

	ok, err := broker.Cancel(context.Background(), "ORD_anything")
	require.NoError(t, err)
	assert.True(t, ok)
}
