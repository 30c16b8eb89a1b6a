package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries every tunable the engine recognizes. Values come from
// defaults, then an optional YAML file, then environment overrides.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Engine   EngineConfig   `yaml:"engine"`
	Risk     RiskConfig     `yaml:"risk"`
	Exits    ExitConfig     `yaml:"exits"`
	Broker   BrokerConfig   `yaml:"broker"`
	Database DatabaseConfig `yaml:"database"`
	TradeLog TradeLogConfig `yaml:"trade_log"`
}

type ServerConfig struct {
	Port      string `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type EngineConfig struct {
	InitialCapital       float64       `yaml:"initial_capital"`
	SignalBuffer         int           `yaml:"signal_buffer"`
	MarketUpdateInterval time.Duration `yaml:"market_update_interval"`
}

type RiskConfig struct {
	// MaxRiskPercent caps a single trade's notional at this percentage
	// of current portfolio equity (2.0 means 2%).
	MaxRiskPercent float64 `yaml:"max_risk_percent"`
	// MinConfidence is the floor (0-100) below which signals are not acted on
	MinConfidence float64 `yaml:"min_confidence"`
}

type ExitConfig struct {
	// StopLossPercent and TakeProfitPercent place initial exit levels
	// relative to the fill price (5.0 means 5%). Zero disables the level.
	StopLossPercent   float64 `yaml:"stop_loss_percent"`
	TakeProfitPercent float64 `yaml:"take_profit_percent"`
	TrailingStop      bool    `yaml:"trailing_stop"`
	TrailingPercent   float64 `yaml:"trailing_percent"`
}

type BrokerConfig struct {
	Mode            string        `yaml:"mode"` // paper or live
	LiveURL         string        `yaml:"live_url"`
	LiveAPIKey      string        `yaml:"live_api_key"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	CommissionRate  float64       `yaml:"commission_rate"`
	SlippagePercent float64       `yaml:"slippage_percent"`
	// SuccessRate is the paper broker's fill probability in [0,1]
	SuccessRate float64 `yaml:"success_rate"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type TradeLogConfig struct {
	Path string `yaml:"path"`
}

const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// Default returns the configuration used when no file is supplied
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      "8080",
			JWTSecret: "engine-secret-key",
		},
		Engine: EngineConfig{
			InitialCapital:       100000.0,
			SignalBuffer:         256,
			MarketUpdateInterval: 5 * time.Second,
		},
		Risk: RiskConfig{
			MaxRiskPercent: 2.0,
			MinConfidence:  60.0,
		},
		Exits: ExitConfig{
			StopLossPercent:   5.0,
			TakeProfitPercent: 10.0,
			TrailingStop:      true,
			TrailingPercent:   3.0,
		},
		Broker: BrokerConfig{
			Mode:            ModePaper,
			MaxRetries:      3,
			RetryDelay:      5 * time.Second,
			CommissionRate:  0.001,
			SlippagePercent: 0.1,
			SuccessRate:     0.95,
		},
		Database: DatabaseConfig{
			Path: "engine.db",
		},
		TradeLog: TradeLogConfig{
			Path: "trades.log",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Server.JWTSecret = secret
	}
	if mode := os.Getenv("BROKER_MODE"); mode != "" {
		cfg.Broker.Mode = mode
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with
func (c *Config) Validate() error {
	if c.Engine.InitialCapital <= 0 {
		return fmt.Errorf("config: initial_capital must be positive, got %v", c.Engine.InitialCapital)
	}
	if c.Risk.MaxRiskPercent <= 0 || c.Risk.MaxRiskPercent > 100 {
		return fmt.Errorf("config: max_risk_percent must be in (0, 100], got %v", c.Risk.MaxRiskPercent)
	}
	if c.Risk.MinConfidence < 0 || c.Risk.MinConfidence > 100 {
		return fmt.Errorf("config: min_confidence must be in [0, 100], got %v", c.Risk.MinConfidence)
	}
	if c.Broker.Mode != ModePaper && c.Broker.Mode != ModeLive {
		return fmt.Errorf("config: broker mode must be %q or %q, got %q", ModePaper, ModeLive, c.Broker.Mode)
	}
	if c.Broker.Mode == ModeLive && c.Broker.LiveURL == "" {
		return fmt.Errorf("config: live broker mode requires live_url")
	}
	if c.Broker.MaxRetries < 1 {
		return fmt.Errorf("config: max_retries must be at least 1, got %d", c.Broker.MaxRetries)
	}
	if c.Exits.TrailingStop && (c.Exits.TrailingPercent <= 0 || c.Exits.TrailingPercent >= 100) {
		return fmt.Errorf("config: trailing_percent must be in (0, 100), got %v", c.Exits.TrailingPercent)
	}
	return nil
}
