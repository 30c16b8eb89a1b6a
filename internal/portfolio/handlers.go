package portfolio

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ksred/trading-engine/pkg/response"
)

// SnapshotFunc supplies the current point-in-time price map for valuation
type SnapshotFunc func() map[string]float64

// GinHandlers contains HTTP handlers for portfolio endpoints
type GinHandlers struct {
	portfolio *Portfolio
	snapshot  SnapshotFunc
}

// NewGinHandlers creates a new set of HTTP handlers for portfolio endpoints
func NewGinHandlers(p *Portfolio, snapshot SnapshotFunc) *GinHandlers {
	return &GinHandlers{portfolio: p, snapshot: snapshot}
}

// GetPortfolioHandler handles GET requests for the portfolio summary
func (h *GinHandlers) GetPortfolioHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, h.portfolio.Summary(h.snapshot()))
	}
}

// GetPositionsHandler handles GET requests for open and closed positions
func (h *GinHandlers) GetPositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, gin.H{
			"open":   h.portfolio.OpenPositions(),
			"closed": h.portfolio.ClosedPositions(),
		})
	}
}

// GetTransactionsHandler handles GET requests for the transaction log.
// Optional query parameter: ticker
func (h *GinHandlers) GetTransactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		txns, err := h.portfolio.TransactionHistory(c.Query("ticker"))
		response.Handle(c, txns, err)
	}
}

// GetEquityCurveHandler handles GET requests for the equity curve.
// Optional query parameter: limit
func (h *GinHandlers) GetEquityCurveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
		if err != nil || limit < 0 {
			response.BadRequest(c, "Limit must be a non-negative integer")
			return
		}

		samples, err := h.portfolio.EquityHistory(limit)
		response.Handle(c, samples, err)
	}
}
