package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"marketpulse/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Price feed
	FeedURL        string
	FeedAPIKey     string
	FeedTOTPSecret string
	SimMode        bool // use the built-in simulated feed instead of FeedURL

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	APIAddr       string

	// Analysis
	Symbols        string // comma-separated, e.g. "BTC-USD,ETH-USD"
	SeriesCapacity int

	// Risk gate
	RiskPerTradePct  float64
	DailyStopLossPct float64
	MaxPositions     int
	Capital          float64
	MinIncrement     float64
	HighVolHaircut   float64

	// Paper trading
	StrategyEnabled bool
	TradesDBPath    string
	SlippageBps     float64

	// Notifications
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string
}

// Load reads configuration from environment variables with sensible defaults.
// Feed credentials are only required when SIM_MODE is off.
func Load() *Config {
	cfg := &Config{
		SimMode: getBool("SIM_MODE", false),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/marketpulse.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		APIAddr:       getEnv("API_ADDR", ":8081"),

		Symbols:        getEnv("SYMBOLS", "BTC-USD,ETH-USD,SOL-USD"),
		SeriesCapacity: getInt("SERIES_CAPACITY", 50),

		RiskPerTradePct:  getFloat("RISK_PER_TRADE_PCT", 1),
		DailyStopLossPct: getFloat("DAILY_STOP_LOSS_PCT", 5),
		MaxPositions:     getInt("MAX_POSITIONS", 5),
		Capital:          getFloat("CAPITAL", 10000),
		MinIncrement:     getFloat("MIN_INCREMENT", 0.0001),
		HighVolHaircut:   getFloat("HIGH_VOL_HAIRCUT", 0.5),

		StrategyEnabled: getBool("STRATEGY_ENABLED", true),
		TradesDBPath:    getEnv("TRADES_DB_PATH", "data/trades.db"),
		SlippageBps:     getFloat("SLIPPAGE_BPS", 5),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}

	if cfg.SimMode {
		cfg.FeedURL = getEnv("FEED_URL", "ws://localhost:8082/ws")
		cfg.FeedAPIKey = getEnv("FEED_API_KEY", "")
		cfg.FeedTOTPSecret = getEnv("FEED_TOTP_SECRET", "")
	} else {
		cfg.FeedURL = mustEnv("FEED_URL")
		cfg.FeedAPIKey = mustEnv("FEED_API_KEY")
		cfg.FeedTOTPSecret = mustEnv("FEED_TOTP_SECRET")
	}

	return cfg
}

// ParseSymbols parses the Symbols string into a deduplicated slice.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.Symbols, ",")
	seen := make(map[string]bool, len(parts))
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		symbols = append(symbols, p)
	}
	return symbols
}

// RiskConfig assembles the account-level risk parameters.
func (c *Config) RiskConfig() model.RiskConfig {
	return model.RiskConfig{
		RiskPerTradePct:  c.RiskPerTradePct,
		DailyStopLossPct: c.DailyStopLossPct,
		MaxPositions:     c.MaxPositions,
		Capital:          c.Capital,
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}
