package config

import (
	"testing"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/indicator"
	"github.com/0xBreath/binance-engine-sub000/internal/model"
)

func TestLoad_PaperDefaults(t *testing.T) {
	t.Setenv("PAPER_TRADING", "true")
	c := Load()

	if c.Symbol != "SOLUSDT" || c.Base != "SOL" || c.Quote != "USDT" || c.Interval != "1m" {
		t.Errorf("market = %s %s %s %s", c.Symbol, c.Base, c.Quote, c.Interval)
	}
	if c.EquityPct != 95 || c.StaleAfter != 10*time.Minute || c.RecvWindow != 10*time.Second {
		t.Errorf("trading defaults = %+v", c)
	}
	if !c.TradingEnabled() || c.RedisAddr != "" {
		t.Errorf("unexpected defaults %+v", c)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PAPER_TRADING", "1")
	t.Setenv("SYMBOL", "ethusdt")
	t.Setenv("EQUITY_PCT", "50")
	t.Setenv("STALE_AFTER", "2m")
	t.Setenv("DISABLE_TRADING", "true")
	t.Setenv("WMA_PERIOD", "not-a-number")
	t.Setenv("BINANCE_SECRET_KEY", "s3cret")
	c := Load()

	if c.Symbol != "ETHUSDT" || c.EquityPct != 50 || c.StaleAfter != 2*time.Minute || c.TradingEnabled() {
		t.Errorf("overrides not applied: %+v", c)
	}
	if c.WMAPeriod != 0 {
		t.Errorf("invalid int should fall back, got %d", c.WMAPeriod)
	}
	if r := c.Redacted(); r.BinanceSecretKey != "***" || c.BinanceSecretKey != "s3cret" {
		t.Errorf("redaction = %q / %q", r.BinanceSecretKey, c.BinanceSecretKey)
	}
}

func TestStrategyConfig_Preset(t *testing.T) {
	t.Setenv("PAPER_TRADING", "true")
	t.Setenv("SYMBOL", "ETHUSDT")
	t.Setenv("KAGI_MODE", "close")
	sc, err := Load().StrategyConfig()
	if err != nil {
		t.Fatal(err)
	}
	if sc.Reversal != 58.4 || sc.Period != 14 {
		t.Errorf("preset not applied: %+v", sc)
	}
	if sc.KagiMode != indicator.KagiModeClose || sc.KagiSource != model.SourceClose || sc.MASource != model.SourceOpen {
		t.Errorf("sources = %+v", sc)
	}
}

func TestStrategyConfig_Invalid(t *testing.T) {
	t.Setenv("PAPER_TRADING", "true")
	t.Setenv("MA_SOURCE", "vwap")
	if _, err := Load().StrategyConfig(); err == nil {
		t.Error("expected MA_SOURCE error")
	}
}
