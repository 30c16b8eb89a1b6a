package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/gin-gonic/gin"
	"github.com/ksred/trading-engine/internal/auth"
	"github.com/ksred/trading-engine/internal/config"
	"github.com/ksred/trading-engine/internal/engine"
	"github.com/ksred/trading-engine/internal/execution"
	"github.com/ksred/trading-engine/internal/marketdata"
	"github.com/ksred/trading-engine/internal/orders"
	"github.com/ksred/trading-engine/internal/portfolio"
	"github.com/ksred/trading-engine/internal/risk"
	"github.com/ksred/trading-engine/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minSignals    = 20
	maxSignals    = 120
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
)

var symbols = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "META"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the engine API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client
// It authenticates with the API and prepares performance tracking
func newSimulationClient() (*simulationClient, error) {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		stats: map[string]*routeStats{
			"auth":      {name: "Authentication"},
			"signal":    {name: "Submit Signal"},
			"portfolio": {name: "Get Portfolio"},
			"positions": {name: "Get Positions"},
		},
	}

	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

// authenticate performs API authentication and returns a JWT token
func (sc *simulationClient) authenticate() (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	credentials := map[string]string{
		"api_key":    auth.TestAPIKey,
		"api_secret": auth.TestAPISecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Data.Token, nil
}

// submitSignal posts a trading signal to the API
func (sc *simulationClient) submitSignal(sig types.SignalEvent) error {
	start := time.Now()
	defer func() {
		sc.stats["signal"].addDuration(time.Since(start))
	}()

	body, err := json.Marshal(sig)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/signals", sc.baseURL),
		bytes.NewBuffer(body),
	)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.stats["signal"].failures++
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("submit signal failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// getPortfolio retrieves the current portfolio summary
func (sc *simulationClient) getPortfolio() (*types.PortfolioSummary, error) {
	start := time.Now()
	defer func() {
		sc.stats["portfolio"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("%s/api/v1/portfolio", sc.baseURL),
		nil,
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Msg("Get portfolio response")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get portfolio failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool                   `json:"success"`
		Data    types.PortfolioSummary `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return &result.Data, nil
}

// getPositions retrieves open and closed position counts
func (sc *simulationClient) getPositions() (open, closed int, err error) {
	start := time.Now()
	defer func() {
		sc.stats["positions"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("%s/api/v1/portfolio/positions", sc.baseURL),
		nil,
	)
	if err != nil {
		return 0, 0, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("get positions failed with status %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Open   []json.RawMessage `json:"open"`
			Closed []json.RawMessage `json:"closed"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, 0, err
	}

	return len(result.Data.Open), len(result.Data.Closed), nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the paper trading simulation
// It starts a local engine server and simulates concurrent signal producers
func main() {
	// Start the server in a goroutine
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	// Initialize simulation client
	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	targetSignals := rand.Intn(maxSignals-minSignals) + minSignals
	log.Info().Int("target_signals", targetSignals).Msg("Starting simulation")

	stats := struct {
		TotalSignals  int
		FailedSignals int
		StartTime     time.Time
		Symbols       map[string]int
		Directions    map[string]int
		mu            sync.Mutex
	}{
		StartTime:  time.Now(),
		Symbols:    make(map[string]int),
		Directions: make(map[string]int),
	}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < targetSignals/numWorkers; j++ {
				direction := types.DirectionLong
				directionLabel := "LONG"
				if rand.Intn(2) == 1 {
					direction = types.DirectionShort
					directionLabel = "SHORT"
				}

				sig := types.SignalEvent{
					Ticker:    symbols[rand.Intn(len(symbols))],
					Direction: direction,
					Strength:  0.5 + rand.Float64()*0.5,
					Source:    fmt.Sprintf("sim-worker-%d", workerID),
				}

				err := simClient.submitSignal(sig)

				stats.mu.Lock()
				stats.TotalSignals++
				if err != nil {
					stats.FailedSignals++
				} else {
					stats.Symbols[sig.Ticker]++
					stats.Directions[directionLabel]++
				}
				stats.mu.Unlock()

				if err != nil {
					log.Error().Err(err).
						Int("worker_id", workerID).
						Str("ticker", sig.Ticker).
						Msg("Failed to submit signal")
				} else {
					log.Info().
						Int("worker_id", workerID).
						Str("ticker", sig.Ticker).
						Str("direction", directionLabel).
						Float64("strength", sig.Strength).
						Msg("Signal submitted")
				}

				// Random sleep between signals
				time.Sleep(time.Duration(rand.Intn(500)) * time.Millisecond)
			}
		}(i)
	}

	wg.Wait()

	// Let the engine drain its queue and run exit triggers
	log.Info().Msg("All signals submitted, waiting for engine to process")
	time.Sleep(10 * time.Second)

	summary, err := simClient.getPortfolio()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch portfolio summary")
	}
	openCount, closedCount, err := simClient.getPositions()
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch positions")
	}

	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("TRADING SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
Signal Statistics
-----------------
Total Signals:    %d
Failed Signals:   %d
Duration:         %v

Portfolio
---------
Initial Capital:  $%.2f
Cash:             $%.2f
Portfolio Value:  $%.2f
Open Positions:   %d
Closed Positions: %d
Realized PnL:     $%.2f

Symbol Distribution
-------------------
`, stats.TotalSignals, stats.FailedSignals, duration.Round(time.Millisecond),
		summary.InitialCapital, summary.Cash, summary.PortfolioValue,
		openCount, closedCount, summary.RealizedPnL)

	maxSymbolCount := 0
	for _, count := range stats.Symbols {
		if count > maxSymbolCount {
			maxSymbolCount = count
		}
	}
	for symbol, count := range stats.Symbols {
		barLength := int(float64(count) / float64(maxSymbolCount) * 20)
		bar := strings.Repeat("#", barLength)
		fmt.Printf("%-6s: %s (%d)\n", symbol, bar, count)
	}

	fmt.Println("\nDirection Distribution")
	fmt.Println("----------------------")
	for direction, count := range stats.Directions {
		barLength := int(float64(count) / float64(stats.TotalSignals) * 20)
		bar := strings.Repeat("#", barLength)
		fmt.Printf("%-5s: %s (%d)\n", direction, bar, count)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	log.Info().
		Int("total_signals", stats.TotalSignals).
		Int("open_positions", openCount).
		Int("closed_positions", closedCount).
		Float64("portfolio_value", summary.PortfolioValue).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// startServer initializes and starts a paper trading engine server
// Sets up all required services, handlers and routes
func startServer() error {
	cfg := config.Default()
	cfg.Broker.RetryDelay = 500 * time.Millisecond
	cfg.Engine.MarketUpdateInterval = time.Second

	prices := marketdata.NewSimulatedSource(map[string]float64{
		"AAPL":  150.0,
		"GOOGL": 140.0,
		"MSFT":  410.0,
		"AMZN":  180.0,
		"META":  500.0,
	}, 0.005)

	pf := portfolio.New(portfolio.Config{
		InitialCapital:  cfg.Engine.InitialCapital,
		TrailingStop:    cfg.Exits.TrailingStop,
		TrailingPercent: cfg.Exits.TrailingPercent,
	}, nil, nil)
	riskManager := risk.NewManager(cfg.Risk.MaxRiskPercent, cfg.Risk.MinConfidence)
	orderManager := orders.NewManager(nil)

	broker := execution.NewPaperBroker(execution.PaperBrokerConfig{
		MinLatency:      5 * time.Millisecond,
		MaxLatency:      50 * time.Millisecond,
		SuccessRate:     cfg.Broker.SuccessRate,
		SlippagePercent: cfg.Broker.SlippagePercent,
		CommissionRate:  cfg.Broker.CommissionRate,
	}, prices)

	executor := execution.NewExecutor(broker, orderManager, execution.ExecutorConfig{
		MaxRetries: cfg.Broker.MaxRetries,
		RetryDelay: cfg.Broker.RetryDelay,
	})

	tradingEngine := engine.New(engine.Config{
		SignalBuffer:         cfg.Engine.SignalBuffer,
		MarketUpdateInterval: cfg.Engine.MarketUpdateInterval,
		StopLossPercent:      cfg.Exits.StopLossPercent,
		TakeProfitPercent:    cfg.Exits.TakeProfitPercent,
	}, pf, riskManager, orderManager, executor, prices, EventBus.New())

	ctx := context.Background()
	go prices.Start(ctx, 500*time.Millisecond)
	tradingEngine.Start(ctx)

	authService := auth.NewService(cfg.Server.JWTSecret)
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	engineHandlers := engine.NewGinHandlers(tradingEngine)
	orderHandlers := orders.NewGinHandlers(orderManager)
	portfolioHandlers := portfolio.NewGinHandlers(pf, prices.Snapshot)

	setupRoutes(router, authHandlers, engineHandlers, orderHandlers, portfolioHandlers)

	return router.Run(":8080")
}

// setupRoutes configures all API endpoints and their handlers
// Groups routes by functionality; the embedded server skips JWT middleware
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	engineHandlers *engine.GinHandlers,
	orderHandlers *orders.GinHandlers,
	portfolioHandlers *portfolio.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Signal routes
		signals := v1.Group("/signals")
		{
			signals.POST("", engineHandlers.SubmitSignalHandler())
		}

		// Order routes
		ordersGroup := v1.Group("/orders")
		{
			ordersGroup.GET("", orderHandlers.ListOrdersHandler())
			ordersGroup.GET("/:order_id", orderHandlers.GetOrderHandler())
			ordersGroup.DELETE("/:order_id", orderHandlers.CancelOrderHandler())
		}

		// Portfolio routes
		portfolioGroup := v1.Group("/portfolio")
		{
			portfolioGroup.GET("", portfolioHandlers.GetPortfolioHandler())
			portfolioGroup.GET("/positions", portfolioHandlers.GetPositionsHandler())
			portfolioGroup.GET("/transactions", portfolioHandlers.GetTransactionsHandler())
			portfolioGroup.GET("/equity", portfolioHandlers.GetEquityCurveHandler())
		}
	}
}
