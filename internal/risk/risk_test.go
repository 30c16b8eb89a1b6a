package risk

import (
	"testing"

	"github.com/ksred/trading-engine/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestCalculatePositionSize(t *testing.T) {
	m := NewManager(2.0, 60.0)

	t.Run("full confidence uses the whole risk budget", func(t *testing.T) {
		// 2% of 100000 = 2000 risk capital, at confidence 100 -> 2000/150
		qty := m.CalculatePositionSize("AAPL", types.DirectionLong, 100, 150.0, 100000.0)
		assert.Equal(t, 13.0, qty)
	})

	t.Run("confidence scales the size down", func(t *testing.T) {
		// 2000 * 0.8 = 1600 -> 1600/150 = 10.67 -> 10
		qty := m.CalculatePositionSize("AAPL", types.DirectionLong, 80, 150.0, 100000.0)
		assert.Equal(t, 10.0, qty)
	})

	t.Run("notional never exceeds the risk cap", func(t *testing.T) {
		qty := m.CalculatePositionSize("AAPL", types.DirectionLong, 100, 150.0, 100000.0)
		assert.LessOrEqual(t, qty*150.0, 100000.0*0.02)
	})

	t.Run("confidence at the floor yields zero", func(t *testing.T) {
		qty := m.CalculatePositionSize("AAPL", types.DirectionLong, 60, 150.0, 100000.0)
		assert.Zero(t, qty)
	})

	t.Run("confidence below the floor yields zero", func(t *testing.T) {
		qty := m.CalculatePositionSize("AAPL", types.DirectionShort, 30, 150.0, 100000.0)
		assert.Zero(t, qty)
	})

	t.Run("price too high for the budget floors to zero", func(t *testing.T) {
		// 2% of 10000 = 200, scaled by 0.7 = 140, below the 150 price
		qty := m.CalculatePositionSize("AAPL", types.DirectionLong, 70, 150.0, 10000.0)
		assert.Zero(t, qty)
	})

	t.Run("invalid inputs fail safely to zero", func(t *testing.T) {
		assert.Zero(t, m.CalculatePositionSize("AAPL", types.DirectionLong, 80, 0, 100000.0))
		assert.Zero(t, m.CalculatePositionSize("AAPL", types.DirectionLong, 80, -10, 100000.0))
		assert.Zero(t, m.CalculatePositionSize("AAPL", types.DirectionLong, -5, 150.0, 100000.0))
		assert.Zero(t, m.CalculatePositionSize("AAPL", types.DirectionLong, 150, 150.0, 100000.0))
		assert.Zero(t, m.CalculatePositionSize("AAPL", types.DirectionLong, 80, 150.0, 0))
		assert.Zero(t, m.CalculatePositionSize("AAPL", types.DirectionLong, 80, 150.0, -5000))
	})

	t.Run("sizing is identical for both directions", func(t *testing.T) {
		long := m.CalculatePositionSize("AAPL", types.DirectionLong, 90, 150.0, 100000.0)
		short := m.CalculatePositionSize("AAPL", types.DirectionShort, 90, 150.0, 100000.0)
		assert.Equal(t, long, short)
	})
}
