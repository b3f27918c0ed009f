package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/indicator"
	"github.com/0xBreath/binance-engine-sub000/internal/model"
	"github.com/0xBreath/binance-engine-sub000/internal/strategy"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Market
	Symbol   string
	Base     string
	Quote    string
	Interval string

	// Strategy
	Strategy     string // dreamrunner | crossover
	KagiReversal float64
	KagiMode     string // highlow | close
	KagiSource   string
	MASource     string
	WMAPeriod    int
	FastPeriod   int
	SlowPeriod   int

	// Trading
	EquityPct       float64
	StaleAfter      time.Duration
	ReconcileEvery  time.Duration
	RecvWindow      time.Duration
	Testnet         bool
	DisableTrading  bool
	Paper           bool
	Equalize        bool
	MinNotional     float64
	MaxDrawdownPct  float64
	WarmupCandles   int
	PaperQuoteFunds float64

	// Binance credentials and endpoints
	BinanceAPIKey    string
	BinanceSecretKey string
	BinanceRESTURL   string
	BinanceWSURL     string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	APIAddr       string
	TOTPSecret    string

	// Notifications
	TelegramToken  string
	TelegramChatID string
	WebhookURL     string

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
// Binance keys are required unless PAPER_TRADING is set.
func Load() *Config {
	c := &Config{
		Symbol:   strings.ToUpper(getEnv("SYMBOL", "SOLUSDT")),
		Base:     strings.ToUpper(getEnv("BASE_ASSET", "SOL")),
		Quote:    strings.ToUpper(getEnv("QUOTE_ASSET", "USDT")),
		Interval: getEnv("KLINE_INTERVAL", "1m"),

		Strategy:     getEnv("STRATEGY", "dreamrunner"),
		KagiReversal: getFloat("KAGI_REVERSAL", 0),
		KagiMode:     getEnv("KAGI_MODE", "highlow"),
		KagiSource:   getEnv("KAGI_SOURCE", "close"),
		MASource:     getEnv("MA_SOURCE", "open"),
		WMAPeriod:    getInt("WMA_PERIOD", 0),
		FastPeriod:   getInt("FAST_PERIOD", 5),
		SlowPeriod:   getInt("SLOW_PERIOD", 20),

		EquityPct:       getFloat("EQUITY_PCT", 95),
		StaleAfter:      getDuration("STALE_AFTER", 10*time.Minute),
		ReconcileEvery:  getDuration("RECONCILE_INTERVAL", time.Minute),
		RecvWindow:      getDuration("RECV_WINDOW", 10*time.Second),
		Testnet:         getBool("TESTNET", false),
		DisableTrading:  getBool("DISABLE_TRADING", false),
		Paper:           getBool("PAPER_TRADING", false),
		Equalize:        getBool("EQUALIZE_ASSETS", false),
		MinNotional:     getFloat("MIN_NOTIONAL", 10),
		MaxDrawdownPct:  getFloat("MAX_DRAWDOWN_PCT", 0),
		WarmupCandles:   getInt("WARMUP_CANDLES", 100),
		PaperQuoteFunds: getFloat("PAPER_QUOTE_FUNDS", 1000),

		BinanceRESTURL: getEnv("BINANCE_REST_URL", ""),
		BinanceWSURL:   getEnv("BINANCE_WS_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/dreamrunner.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		APIAddr:       getEnv("API_ADDR", ":8080"),
		TOTPSecret:    getEnv("TOTP_SECRET", ""),

		TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:     getEnv("WEBHOOK_URL", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	if c.Paper {
		c.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
		c.BinanceSecretKey = getEnv("BINANCE_SECRET_KEY", "")
	} else {
		c.BinanceAPIKey = mustEnv("BINANCE_API_KEY")
		c.BinanceSecretKey = mustEnv("BINANCE_SECRET_KEY")
	}
	return c
}

// StrategyConfig builds the strategy configuration. Zero Dreamrunner
// parameters are taken from the symbol preset.
func (c *Config) StrategyConfig() (strategy.Config, error) {
	mode, err := indicator.ParseKagiMode(c.KagiMode)
	if err != nil {
		return strategy.Config{}, fmt.Errorf("KAGI_MODE: %w", err)
	}
	kagiSrc, err := model.ParseSource(c.KagiSource)
	if err != nil {
		return strategy.Config{}, fmt.Errorf("KAGI_SOURCE: %w", err)
	}
	maSrc, err := model.ParseSource(c.MASource)
	if err != nil {
		return strategy.Config{}, fmt.Errorf("MA_SOURCE: %w", err)
	}
	return strategy.ApplyPreset(strategy.Config{
		Name:       c.Strategy,
		Symbol:     c.Symbol,
		Reversal:   c.KagiReversal,
		Period:     c.WMAPeriod,
		KagiMode:   mode,
		KagiSource: kagiSrc,
		MASource:   maSrc,
		FastPeriod: c.FastPeriod,
		SlowPeriod: c.SlowPeriod,
	}), nil
}

// TradingEnabled reports whether orders may be placed.
func (c *Config) TradingEnabled() bool { return !c.DisableTrading }

// Redacted is a loggable copy with secrets masked.
func (c *Config) Redacted() Config {
	r := *c
	for _, s := range []*string{&r.BinanceAPIKey, &r.BinanceSecretKey, &r.RedisPassword, &r.TOTPSecret, &r.TelegramToken} {
		if *s != "" {
			*s = "***"
		}
	}
	return r
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

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
