package engine

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/trading-engine/internal/types"
	"github.com/ksred/trading-engine/pkg/response"
)

// GinHandlers contains HTTP handlers for engine endpoints
type GinHandlers struct {
	engine *Engine
}

// NewGinHandlers creates a new set of HTTP handlers for engine endpoints
func NewGinHandlers(engine *Engine) *GinHandlers {
	return &GinHandlers{engine: engine}
}

type signalRequest struct {
	Ticker    string            `json:"ticker" binding:"required"`
	Direction int               `json:"direction" binding:"required"`
	Strength  float64           `json:"strength"`
	Source    string            `json:"source"`
	Metadata  map[string]string `json:"metadata"`
}

// SubmitSignalHandler handles POST requests carrying a trading signal.
// The signal is validated and queued; execution happens asynchronously
// on the engine's event loop.
func (h *GinHandlers) SubmitSignalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req signalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid signal payload: "+err.Error())
			return
		}

		sig := types.SignalEvent{
			Ticker:    req.Ticker,
			Direction: req.Direction,
			Strength:  req.Strength,
			Source:    req.Source,
			Metadata:  req.Metadata,
			Timestamp: time.Now(),
		}

		if err := h.engine.SubmitSignal(sig); err != nil {
			if errors.Is(err, ErrQueueFull) {
				response.ServiceUnavailable(c, "Signal queue is full, retry later")
				return
			}
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, types.SignalAck{
			Ticker:    sig.Ticker,
			Direction: sig.Direction,
			Strength:  sig.Strength,
			QueuedAt:  sig.Timestamp,
		})
	}
}
