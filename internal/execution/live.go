package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ksred/trading-engine/internal/orders"
	"github.com/ksred/trading-engine/internal/types"
	"github.com/rs/zerolog/log"
)

// LiveBroker submits orders to an external broker's REST API. Server
// errors and transport failures are transient; client errors reject the
// order immediately.
type LiveBroker struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewLiveBroker creates a broker client for the given API base URL
func NewLiveBroker(baseURL, apiKey string) *LiveBroker {
	return &LiveBroker{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type liveOrderRequest struct {
	Ticker     string   `json:"ticker"`
	Side       string   `json:"side"`
	OrderType  string   `json:"order_type"`
	Quantity   float64  `json:"quantity"`
	LimitPrice *float64 `json:"limit_price,omitempty"`
	StopPrice  *float64 `json:"stop_price,omitempty"`
	ClientID   string   `json:"client_order_id"`
}

type liveOrderResponse struct {
	Status         string  `json:"status"`
	FillPrice      float64 `json:"fill_price"`
	FilledQuantity float64 `json:"filled_quantity"`
	Commission     float64 `json:"commission"`
}

// Submit posts the order to the broker API and maps the response onto a
// SubmitResult.
func (b *LiveBroker) Submit(ctx context.Context, order *orders.Order) (*SubmitResult, error) {
	logger := log.With().
		Str("broker", "live").
		Str("order_id", order.OrderID).
		Str("ticker", order.Ticker).
		Logger()

	body, err := json.Marshal(liveOrderRequest{
		Ticker:     order.Ticker,
		Side:       string(order.Side),
		OrderType:  string(order.OrderType),
		Quantity:   order.Quantity,
		LimitPrice: order.LimitPrice,
		StopPrice:  order.StopPrice,
		ClientID:   order.OrderID,
	})
	if err != nil {
		return nil, &BrokerError{Reason: "encode order", Transient: false, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, &BrokerError{Reason: "build request", Transient: false, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		logger.Warn().Err(err).Msg("broker request failed")
		return nil, &BrokerError{Reason: "submit request", Transient: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		logger.Warn().Int("status_code", resp.StatusCode).Msg("broker server error")
		return nil, &BrokerError{
			Reason:    fmt.Sprintf("broker returned %d", resp.StatusCode),
			Transient: true,
		}
	case resp.StatusCode >= 400:
		logger.Error().Int("status_code", resp.StatusCode).Msg("broker rejected order")
		return nil, &BrokerError{
			Reason:    fmt.Sprintf("broker rejected order with %d", resp.StatusCode),
			Transient: false,
		}
	}

	var out liveOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &BrokerError{Reason: "decode response", Transient: true, Err: err}
	}

	result := &SubmitResult{
		FillPrice:      out.FillPrice,
		FilledQuantity: out.FilledQuantity,
		Commission:     out.Commission,
	}

	switch out.Status {
	case "FILLED":
		result.Status = types.OrderStatusFilled
	case "PARTIALLY_FILLED":
		result.Status = types.OrderStatusPartiallyFilled
	case "OPEN", "ACKNOWLEDGED":
		result.Status = types.OrderStatusOpen
	case "REJECTED":
		result.Status = types.OrderStatusRejected
	default:
		return nil, &BrokerError{
			Reason:    fmt.Sprintf("unrecognized broker status %q", out.Status),
			Transient: false,
		}
	}

	logger.Info().
		Str("status", string(result.Status)).
		Float64("fill_price", result.FillPrice).
		Msg("broker accepted order")

	return result, nil
}

// Cancel asks the broker to cancel a resting order
func (b *LiveBroker) Cancel(ctx context.Context, orderID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, b.baseURL+"/orders/"+orderID, nil)
	if err != nil {
		return false, &BrokerError{Reason: "build cancel request", Transient: false, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return false, &BrokerError{Reason: "cancel request", Transient: true, Err: err}
	}
	defer resp.Body.Close()

	return resp.StatusCode < 300, nil
}
