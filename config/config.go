// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Gateway
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ConfigCacheTTL  time.Duration `env:"CONFIG_CACHE_TTL" envDefault:"5m"`
	PublishSchedule string        `env:"PUBLISH_SCHEDULE" envDefault:"@every 1s"`

	// Infrastructure
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"data/dashboard.db"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	// Candle simulator
	SimSymbols   []string `env:"SIM_SYMBOLS" envSeparator:"," envDefault:"BTCUSDT,ETHUSDT"`
	SimIntervals []string `env:"SIM_INTERVALS" envSeparator:"," envDefault:"1h,4h"`
	SimStep      string   `env:"SIM_STEP" envDefault:"@every 1s"`
	SimMode      string   `env:"SIM_MODE" envDefault:"walk"` // walk | replay | binance
	SimSpeed     float64  `env:"SIM_REPLAY_SPEED" envDefault:"3600"`

	// Binance market data (SIM_MODE=binance)
	BinanceRESTURL string        `env:"BINANCE_REST_URL" envDefault:"https://api.binance.com"`
	BinanceWSURL   string        `env:"BINANCE_WS_URL" envDefault:"wss://stream.binance.com:9443"`
	PriceFlush     string        `env:"PRICE_FLUSH" envDefault:"@every 1s"`
	LivePriceTTL   time.Duration `env:"LIVE_PRICE_TTL" envDefault:"30s"`

	// Dashboard
	FeedURL           string `env:"FEED_URL" envDefault:"ws://localhost:8080/api/ws"`
	ConfigURL         string `env:"CONFIG_URL" envDefault:"http://localhost:8080"`
	DashboardSymbol   string `env:"DASHBOARD_SYMBOL" envDefault:"BTCUSDT"`
	DashboardInterval string `env:"DASHBOARD_INTERVAL" envDefault:"1h"`
	PanelPreset       string `env:"PANEL_PRESET"`
	DashboardMetrics  string `env:"DASHBOARD_METRICS_ADDR" envDefault:":9091"`

	NotifyWebhookURL string `env:"NOTIFY_WEBHOOK_URL"`
}

// Load reads a .env file if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
