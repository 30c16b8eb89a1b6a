package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/asaskevich/EventBus"
	"github.com/ksred/trading-engine/internal/auth"
	"github.com/ksred/trading-engine/internal/config"
	"github.com/ksred/trading-engine/internal/database"
	"github.com/ksred/trading-engine/internal/engine"
	"github.com/ksred/trading-engine/internal/execution"
	"github.com/ksred/trading-engine/internal/marketdata"
	"github.com/ksred/trading-engine/internal/orders"
	"github.com/ksred/trading-engine/internal/portfolio"
	"github.com/ksred/trading-engine/internal/risk"
	"github.com/ksred/trading-engine/internal/types"
	"github.com/ksred/trading-engine/pkg/middleware"
	"github.com/ksred/trading-engine/pkg/tradelog"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the trading engine server with graceful
// shutdown support. It wires the portfolio ledger, risk manager, order
// manager, broker and event loop, then exposes them over the API.
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Trade journal
	journal, err := tradelog.New(cfg.TradeLog.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to open trade log")
	}
	defer journal.Close()

	// Simulated market data feed drives paper trading
	prices := marketdata.NewSimulatedSource(map[string]float64{
		"AAPL":  150.0,
		"GOOGL": 140.0,
		"MSFT":  410.0,
		"AMZN":  180.0,
		"META":  500.0,
	}, 0.002)

	// Core services
	pf := portfolio.New(portfolio.Config{
		InitialCapital:  cfg.Engine.InitialCapital,
		TrailingStop:    cfg.Exits.TrailingStop,
		TrailingPercent: cfg.Exits.TrailingPercent,
	}, db, journal)
	riskManager := risk.NewManager(cfg.Risk.MaxRiskPercent, cfg.Risk.MinConfidence)
	orderManager := orders.NewManager(db)

	var broker execution.Broker
	if cfg.Broker.Mode == config.ModeLive {
		broker = execution.NewLiveBroker(cfg.Broker.LiveURL, cfg.Broker.LiveAPIKey)
	} else {
		broker = execution.NewPaperBroker(execution.PaperBrokerConfig{
			MinLatency:      10 * time.Millisecond,
			MaxLatency:      100 * time.Millisecond,
			SuccessRate:     cfg.Broker.SuccessRate,
			SlippagePercent: cfg.Broker.SlippagePercent,
			CommissionRate:  cfg.Broker.CommissionRate,
		}, prices)
	}
	zlog.Info().Str("mode", cfg.Broker.Mode).Msg("broker initialized")

	executor := execution.NewExecutor(broker, orderManager, execution.ExecutorConfig{
		MaxRetries: cfg.Broker.MaxRetries,
		RetryDelay: cfg.Broker.RetryDelay,
	})

	// Event bus fan-out for fills, position changes and errors
	bus := EventBus.New()
	bus.Subscribe(engine.TopicFill, func(fill types.FillEvent) {
		zlog.Info().
			Str("order_id", fill.OrderID).
			Str("ticker", fill.Ticker).
			Float64("price", fill.Price).
			Float64("quantity", fill.Quantity).
			Msg("fill event")
	})
	bus.Subscribe(engine.TopicError, func(ticker string, err error) {
		zlog.Error().Str("ticker", ticker).Err(err).Msg("engine error event")
	})

	tradingEngine := engine.New(engine.Config{
		SignalBuffer:         cfg.Engine.SignalBuffer,
		MarketUpdateInterval: cfg.Engine.MarketUpdateInterval,
		StopLossPercent:      cfg.Exits.StopLossPercent,
		TakeProfitPercent:    cfg.Exits.TakeProfitPercent,
	}, pf, riskManager, orderManager, executor, prices, bus)

	// Background processors
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	go prices.Start(runCtx, time.Second)
	tradingEngine.Start(runCtx)

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.Server.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	engineHandlers := engine.NewGinHandlers(tradingEngine)
	orderHandlers := orders.NewGinHandlers(orderManager)
	portfolioHandlers := portfolio.NewGinHandlers(pf, prices.Snapshot)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.Server.JWTSecret, authHandlers, engineHandlers, orderHandlers, portfolioHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Stop accepting signals, drain the event loop, then stop the server
	tradingEngine.Stop()
	runCancel()

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Signal routes: Protected by JWT authentication
// - Order and portfolio routes: Protected by JWT authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
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
		signals.Use(middleware.JWTAuth(jwtSecret))
		{
			signals.POST("", engineHandlers.SubmitSignalHandler())
		}

		// Order routes
		ordersGroup := v1.Group("/orders")
		ordersGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			ordersGroup.GET("", orderHandlers.ListOrdersHandler())
			ordersGroup.GET("/:order_id", orderHandlers.GetOrderHandler())
			ordersGroup.DELETE("/:order_id", orderHandlers.CancelOrderHandler())
		}

		// Portfolio routes
		portfolioGroup := v1.Group("/portfolio")
		portfolioGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			portfolioGroup.GET("", portfolioHandlers.GetPortfolioHandler())
			portfolioGroup.GET("/positions", portfolioHandlers.GetPositionsHandler())
			portfolioGroup.GET("/transactions", portfolioHandlers.GetTransactionsHandler())
			portfolioGroup.GET("/equity", portfolioHandlers.GetEquityCurveHandler())
		}
	}
}
