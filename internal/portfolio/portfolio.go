// Package portfolio is the authoritative ledger of cash and positions.
// All mutation happens under the portfolio's own lock; read accessors may
// run concurrently with each other but never interleave with a mutation.
package portfolio

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/trading-engine/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// TradeLog receives one record per open/close transaction. Implemented by
// pkg/tradelog; may be left nil.
type TradeLog interface {
	RecordOpen(ticker string, quantity, price float64, ts time.Time) error
	RecordClose(ticker string, quantity, price float64, ts time.Time, pnl, pnlPercent float64) error
}

// Config carries the portfolio's construction parameters
type Config struct {
	InitialCapital float64
	// TrailingStop enables recomputing stops as prices move favorably.
	// TrailingPercent is expressed as 3.0 for 3%.
	TrailingStop    bool
	TrailingPercent float64
}

// Portfolio owns every Position and the cash balance. Opening a position
// debits quantity*entry_price from cash; closing credits quantity*exit_price,
// so cash plus open position value at entry always reconciles against
// initial capital plus realized pnl.
type Portfolio struct {
	mu             sync.RWMutex
	initialCapital float64
	cash           float64
	positions      map[string]*Position // ticker -> open position
	closed         []*Position
	equityCurve    []EquitySample
	transactions   []Transaction

	trailingStop bool
	trailingPct  float64 // fraction, e.g. 0.03

	db       *Database
	tradeLog TradeLog
}

// New creates a portfolio. gormDB and tradeLog may be nil; the in-memory
// ledger stays authoritative either way.
func New(cfg Config, gormDB *gorm.DB, tradeLog TradeLog) *Portfolio {
	return &Portfolio{
		initialCapital: cfg.InitialCapital,
		cash:           cfg.InitialCapital,
		positions:      make(map[string]*Position),
		trailingStop:   cfg.TrailingStop,
		trailingPct:    cfg.TrailingPercent / 100.0,
		db:             NewDatabase(gormDB),
		tradeLog:       tradeLog,
	}
}

// AddPosition opens a position and debits its entry value from cash.
// At most one open position is permitted per ticker; a second open for
// the same ticker is rejected with the state unchanged.
func (p *Portfolio) AddPosition(pos *Position) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.positions[pos.Ticker]; exists {
		return types.ErrPositionExists
	}

	p.positions[pos.Ticker] = pos
	p.cash -= pos.Quantity * pos.EntryPrice

	txn := Transaction{
		TransactionID: "TXN_" + uuid.New().String(),
		Type:          TransactionOpen,
		Ticker:        pos.Ticker,
		Quantity:      pos.Quantity,
		Price:         pos.EntryPrice,
		Value:         pos.Quantity * pos.EntryPrice,
		Timestamp:     pos.EntryTime,
	}
	p.recordTransaction(&txn)

	if p.tradeLog != nil {
		if err := p.tradeLog.RecordOpen(pos.Ticker, pos.Quantity, pos.EntryPrice, pos.EntryTime); err != nil {
			log.Error().Err(err).Str("ticker", pos.Ticker).Msg("failed to write trade log open record")
		}
	}

	log.Info().
		Str("position_id", pos.PositionID).
		Str("ticker", pos.Ticker).
		Float64("quantity", pos.Quantity).
		Float64("entry_price", pos.EntryPrice).
		Float64("cash", p.cash).
		Msg("position opened")

	return nil
}

// ClosePosition realizes the position for ticker at the given exit price,
// credits the proceeds to cash and moves the position to the closed list.
// Closing a ticker with no open position is a logged no-op.
func (p *Portfolio) ClosePosition(ticker string, exitPrice float64, exitTime time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := p.closePositionLocked(ticker, exitPrice, exitTime, "manual")
	return err
}

func (p *Portfolio) closePositionLocked(ticker string, exitPrice float64, exitTime time.Time, reason string) (*Position, error) {
	pos, ok := p.positions[ticker]
	if !ok {
		log.Warn().Str("ticker", ticker).Msg("cannot close position: not found")
		return nil, types.ErrPositionNotFound
	}

	pos.close(exitPrice, exitTime)
	p.cash += pos.Quantity * exitPrice
	p.closed = append(p.closed, pos)
	delete(p.positions, ticker)

	txn := Transaction{
		TransactionID: "TXN_" + uuid.New().String(),
		Type:          TransactionClose,
		Ticker:        ticker,
		Quantity:      pos.Quantity,
		Price:         exitPrice,
		Value:         pos.Quantity * exitPrice,
		PnL:           pos.PnL,
		PnLPercent:    pos.PnLPercent,
		Timestamp:     exitTime,
	}
	p.recordTransaction(&txn)

	if err := p.db.SaveClosedPosition(&PositionRecord{
		PositionID: pos.PositionID,
		Ticker:     pos.Ticker,
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		EntryTime:  pos.EntryTime,
		ExitPrice:  pos.ExitPrice,
		ExitTime:   pos.ExitTime,
		PnL:        pos.PnL,
		PnLPercent: pos.PnLPercent,
	}); err != nil {
		log.Error().Err(err).Str("ticker", ticker).Msg("failed to persist closed position")
	}

	if p.tradeLog != nil {
		if err := p.tradeLog.RecordClose(ticker, pos.Quantity, exitPrice, exitTime, pos.PnL, pos.PnLPercent); err != nil {
			log.Error().Err(err).Str("ticker", ticker).Msg("failed to write trade log close record")
		}
	}

	log.Info().
		Str("position_id", pos.PositionID).
		Str("ticker", ticker).
		Str("reason", reason).
		Float64("exit_price", exitPrice).
		Float64("pnl", pos.PnL).
		Float64("pnl_percent", pos.PnLPercent).
		Float64("cash", p.cash).
		Msg("position closed")

	return pos, nil
}

func (p *Portfolio) recordTransaction(txn *Transaction) {
	p.transactions = append(p.transactions, *txn)
	if err := p.db.SaveTransaction(txn); err != nil {
		log.Error().Err(err).Str("ticker", txn.Ticker).Msg("failed to persist transaction")
	}
}

// UpdatePosition re-evaluates the exit triggers for one ticker against the
// current price. Checks run in a fixed order: stop-loss, then take-profit,
// then the trailing-stop recompute. The trailing stop only ever tightens:
// it moves up for longs and down for shorts, never the other way.
// A ticker with no open position is a no-op.
func (p *Portfolio) UpdatePosition(ticker string, currentPrice float64, currentTime time.Time) *types.PositionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.updatePositionLocked(ticker, currentPrice, currentTime)
}

func (p *Portfolio) updatePositionLocked(ticker string, currentPrice float64, currentTime time.Time) *types.PositionEvent {
	pos, ok := p.positions[ticker]
	if !ok {
		log.Debug().Str("ticker", ticker).Msg("update for ticker with no open position")
		return nil
	}

	if pos.StopLoss != nil {
		if (pos.Long() && currentPrice <= *pos.StopLoss) ||
			(!pos.Long() && currentPrice >= *pos.StopLoss) {
			log.Info().
				Str("ticker", ticker).
				Float64("price", currentPrice).
				Float64("stop_loss", *pos.StopLoss).
				Msg("stop loss triggered")
			closed, _ := p.closePositionLocked(ticker, currentPrice, currentTime, "stop_loss")
			return positionClosedEvent(closed, currentTime)
		}
	}

	if pos.TakeProfit != nil {
		if (pos.Long() && currentPrice >= *pos.TakeProfit) ||
			(!pos.Long() && currentPrice <= *pos.TakeProfit) {
			log.Info().
				Str("ticker", ticker).
				Float64("price", currentPrice).
				Float64("take_profit", *pos.TakeProfit).
				Msg("take profit triggered")
			closed, _ := p.closePositionLocked(ticker, currentPrice, currentTime, "take_profit")
			return positionClosedEvent(closed, currentTime)
		}
	}

	if p.trailingStop && pos.StopLoss != nil {
		if pos.Long() {
			newStop := currentPrice * (1 - p.trailingPct)
			if newStop > *pos.StopLoss {
				pos.StopLoss = &newStop
				log.Debug().
					Str("ticker", ticker).
					Float64("stop_loss", newStop).
					Msg("trailing stop tightened")
			}
		} else {
			newStop := currentPrice * (1 + p.trailingPct)
			if newStop < *pos.StopLoss {
				pos.StopLoss = &newStop
				log.Debug().
					Str("ticker", ticker).
					Float64("stop_loss", newStop).
					Msg("trailing stop tightened")
			}
		}
	}

	return nil
}

func positionClosedEvent(pos *Position, ts time.Time) *types.PositionEvent {
	if pos == nil {
		return nil
	}
	return &types.PositionEvent{
		Ticker:    pos.Ticker,
		Change:    "CLOSE",
		Quantity:  pos.Quantity,
		Price:     pos.ExitPrice,
		PnL:       pos.PnL,
		Timestamp: ts,
	}
}

// UpdatePortfolio applies UpdatePosition to every open ticker present in
// the snapshot, recomputes total portfolio value and appends one equity
// curve sample. The whole pass runs under one lock so it sees a single
// consistent snapshot. Positions closed by exit triggers are returned.
func (p *Portfolio) UpdatePortfolio(currentPrices map[string]float64, currentTime time.Time) []types.PositionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	tickers := make([]string, 0, len(p.positions))
	for t := range p.positions {
		tickers = append(tickers, t)
	}

	var closedEvents []types.PositionEvent
	for _, ticker := range tickers {
		price, ok := currentPrices[ticker]
		if !ok {
			continue
		}
		if ev := p.updatePositionLocked(ticker, price, currentTime); ev != nil {
			closedEvents = append(closedEvents, *ev)
		}
	}

	sample := EquitySample{
		Timestamp:      currentTime,
		PortfolioValue: p.portfolioValueLocked(currentPrices),
		Cash:           p.cash,
	}
	p.equityCurve = append(p.equityCurve, sample)
	if err := p.db.SaveEquitySample(&sample); err != nil {
		log.Error().Err(err).Msg("failed to persist equity sample")
	}

	return closedEvents
}

func (p *Portfolio) portfolioValueLocked(currentPrices map[string]float64) float64 {
	value := p.cash
	for ticker, pos := range p.positions {
		if price, ok := currentPrices[ticker]; ok {
			value += pos.Quantity * price
		}
	}
	return value
}

// GetPortfolioValue returns cash plus the mark-to-market value of every
// open position priced in the snapshot.
func (p *Portfolio) GetPortfolioValue(currentPrices map[string]float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.portfolioValueLocked(currentPrices)
}

// GetPositionValue returns the mark-to-market value of open positions
func (p *Portfolio) GetPositionValue(currentPrices map[string]float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	value := 0.0
	for ticker, pos := range p.positions {
		if price, ok := currentPrices[ticker]; ok {
			value += pos.Quantity * price
		}
	}
	return value
}

// GetPositionExposure returns each open position's share of total
// portfolio value, valued consistently at entry prices.
func (p *Portfolio) GetPositionExposure() map[string]float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := p.cash
	for _, pos := range p.positions {
		total += pos.Quantity * pos.EntryPrice
	}

	exposure := make(map[string]float64, len(p.positions))
	if total == 0 {
		return exposure
	}
	for ticker, pos := range p.positions {
		exposure[ticker] = pos.Quantity * pos.EntryPrice / total
	}
	return exposure
}

// GetPosition returns a copy of the open position for ticker
func (p *Portfolio) GetPosition(ticker string) (Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pos, ok := p.positions[ticker]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// HasPosition reports whether an open position exists for ticker
func (p *Portfolio) HasPosition(ticker string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.positions[ticker]
	return ok
}

// OpenPositions returns copies of all open positions
func (p *Portfolio) OpenPositions() []Position {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out
}

// ClosedPositions returns copies of all closed positions in close order
func (p *Portfolio) ClosedPositions() []Position {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Position, 0, len(p.closed))
	for _, pos := range p.closed {
		out = append(out, *pos)
	}
	return out
}

// Transactions returns a copy of the append-only transaction log
func (p *Portfolio) Transactions() []Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Transaction, len(p.transactions))
	copy(out, p.transactions)
	return out
}

// TransactionHistory returns the transaction log for a ticker, served
// from the database when one is attached and from the in-memory log
// otherwise. An empty ticker returns everything.
func (p *Portfolio) TransactionHistory(ticker string) ([]Transaction, error) {
	stored, err := p.db.GetTransactions(ticker)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return stored, nil
	}

	txns := p.Transactions()
	if ticker == "" {
		return txns, nil
	}
	out := make([]Transaction, 0, len(txns))
	for _, txn := range txns {
		if txn.Ticker == ticker {
			out = append(out, txn)
		}
	}
	return out, nil
}

// EquityHistory returns the most recent equity samples. limit <= 0
// returns the whole in-memory curve; a positive limit is served from the
// database when one is attached.
func (p *Portfolio) EquityHistory(limit int) ([]EquitySample, error) {
	if limit > 0 {
		stored, err := p.db.GetRecentEquity(limit)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			// The query returns newest-first; callers get chronological order
			for i, j := 0, len(stored)-1; i < j; i, j = i+1, j-1 {
				stored[i], stored[j] = stored[j], stored[i]
			}
			return stored, nil
		}
	}

	curve := p.EquityCurve()
	if limit > 0 && len(curve) > limit {
		curve = curve[len(curve)-limit:]
	}
	return curve, nil
}

// EquityCurve returns a copy of the recorded equity samples
func (p *Portfolio) EquityCurve() []EquitySample {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]EquitySample, len(p.equityCurve))
	copy(out, p.equityCurve)
	return out
}

// Cash returns the current cash balance
func (p *Portfolio) Cash() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.cash
}

// InitialCapital returns the starting capital
func (p *Portfolio) InitialCapital() float64 {
	return p.initialCapital
}

// RealizedPnL returns the sum of pnl across closed positions
func (p *Portfolio) RealizedPnL() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := 0.0
	for _, pos := range p.closed {
		total += pos.PnL
	}
	return total
}

// Summary builds the portfolio read-model against the given snapshot
func (p *Portfolio) Summary(currentPrices map[string]float64) types.PortfolioSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	positionValue := 0.0
	for ticker, pos := range p.positions {
		if price, ok := currentPrices[ticker]; ok {
			positionValue += pos.Quantity * price
		}
	}

	realized := 0.0
	for _, pos := range p.closed {
		realized += pos.PnL
	}

	return types.PortfolioSummary{
		InitialCapital:  p.initialCapital,
		Cash:            p.cash,
		PortfolioValue:  p.cash + positionValue,
		PositionValue:   positionValue,
		OpenPositions:   len(p.positions),
		ClosedPositions: len(p.closed),
		RealizedPnL:     realized,
		Timestamp:       time.Now(),
	}
}
