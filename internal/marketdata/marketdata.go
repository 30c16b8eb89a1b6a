// Package marketdata supplies point-in-time price snapshots to the
// engine. Real data acquisition lives outside this system; the simulated
// source here drives paper trading and local development.
package marketdata

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Source yields a consistent ticker -> price map at a point in time
type Source interface {
	Snapshot() map[string]float64
}

// SimulatedSource is a seeded random-walk price feed. Safe for
// concurrent use.
type SimulatedSource struct {
	mu         sync.RWMutex
	prices     map[string]float64
	volatility float64 // per-step fractional move, e.g. 0.002
	rng        *rand.Rand
}

// NewSimulatedSource creates a source seeded with the given prices.
// Volatility is the per-step fractional price move.
func NewSimulatedSource(seed map[string]float64, volatility float64) *SimulatedSource {
	prices := make(map[string]float64, len(seed))
	for ticker, price := range seed {
		prices[ticker] = price
	}
	return &SimulatedSource{
		prices:     prices,
		volatility: volatility,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Snapshot returns a copy of the current price map
func (s *SimulatedSource) Snapshot() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]float64, len(s.prices))
	for ticker, price := range s.prices {
		out[ticker] = price
	}
	return out
}

// Price returns the last known price for ticker
func (s *SimulatedSource) Price(ticker string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	price, ok := s.prices[ticker]
	return price, ok
}

// Set pins a ticker's price, adding it to the feed if absent
func (s *SimulatedSource) Set(ticker string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prices[ticker] = price
}

// Tick advances every price one random-walk step
func (s *SimulatedSource) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ticker, price := range s.prices {
		move := 1 + (s.rng.Float64()*2-1)*s.volatility
		s.prices[ticker] = price * move
	}
}

// Start advances the walk on the given interval until ctx is canceled
func (s *SimulatedSource) Start(ctx context.Context, interval time.Duration) {
	logger := log.With().Str("component", "simulated_prices").Logger()
	logger.Info().Dur("interval", interval).Msg("starting simulated price feed")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("stopping simulated price feed")
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}
