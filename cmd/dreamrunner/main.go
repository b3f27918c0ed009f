// cmd/dreamrunner trades one Binance spot symbol with the Kagi/WMA strategy.
//
// Live mode streams klines and order updates from Binance. Paper mode
// (PAPER_TRADING=true) fills orders in memory against the same live klines,
// or against stored history with --replay-from / --csv.
//
// Usage:
//
//	go run ./cmd/dreamrunner
//	PAPER_TRADING=true go run ./cmd/dreamrunner --csv=data/SOLUSDT.csv --speed=0
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/0xBreath/binance-engine-sub000/config"
	"github.com/0xBreath/binance-engine-sub000/internal/api"
	"github.com/0xBreath/binance-engine-sub000/internal/engine"
	"github.com/0xBreath/binance-engine-sub000/internal/exchange/binance"
	"github.com/0xBreath/binance-engine-sub000/internal/exchange/paper"
	"github.com/0xBreath/binance-engine-sub000/internal/logger"
	"github.com/0xBreath/binance-engine-sub000/internal/marketdata/bus"
	"github.com/0xBreath/binance-engine-sub000/internal/marketdata/csvfeed"
	"github.com/0xBreath/binance-engine-sub000/internal/marketdata/replay"
	"github.com/0xBreath/binance-engine-sub000/internal/metrics"
	"github.com/0xBreath/binance-engine-sub000/internal/model"
	"github.com/0xBreath/binance-engine-sub000/internal/notification"
	"github.com/0xBreath/binance-engine-sub000/internal/portfolio"
	redisstore "github.com/0xBreath/binance-engine-sub000/internal/store/redis"
	sqlitestore "github.com/0xBreath/binance-engine-sub000/internal/store/sqlite"
	"github.com/0xBreath/binance-engine-sub000/internal/strategy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const minEqualizeQty = "0.01"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	csvPath := flag.String("csv", "", "Paper mode: replay candles from this CSV file")
	replayFrom := flag.String("replay-from", "", "Paper mode: replay stored candles from this RFC3339 time")
	replayTo := flag.String("replay-to", "", "Paper mode: replay end (RFC3339, default now)")
	speed := flag.Float64("speed", 0, "Replay speed multiplier (0=max, 1=realtime)")
	flag.Parse()

	cfg := config.Load()
	slogger := logger.Init("dreamrunner", logger.ParseLevel(cfg.LogLevel))
	log.Printf("[dreamrunner] config: %+v", cfg.Redacted())

	replaying := *csvPath != "" || *replayFrom != ""
	if replaying && !cfg.Paper {
		log.Fatal("[dreamrunner] --csv and --replay-from require PAPER_TRADING=true")
	}

	sc, err := cfg.StrategyConfig()
	if err != nil {
		log.Fatalf("[dreamrunner] strategy config: %v", err)
	}
	strat, err := strategy.New(sc)
	if err != nil {
		log.Fatalf("[dreamrunner] strategy: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics & health ----
	reg := prometheus.NewRegistry()
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus()
	health.SetTradingEnabled(cfg.TradingEnabled())
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, reg)
	metricsSrv.Start()

	// ---- Storage ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
		os.MkdirAll(dir, 0o755)
	}
	store, err := sqlitestore.Open(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[dreamrunner] sqlite init failed: %v", err)
	}
	defer store.Close()

	var redisPub *redisstore.Publisher
	if cfg.RedisAddr != "" {
		redisPub, err = redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Printf("[dreamrunner] WARNING: redis init failed: %v (continuing without redis)", err)
			redisPub = nil
		} else {
			redisPub.Breaker().OnStateChange = func(from, to redisstore.State) {
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
			}
		}
	}
	health.StartLivenessChecker(ctx, redisPub.Client(), store.DB(), 10*time.Second)

	// ---- Notifications ----
	notifiers := notification.Multi{notification.NewLogNotifier()}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.MinLevel(notification.AlertWarning, notification.NewWebhookNotifier(cfg.WebhookURL)))
	}

	// ---- Exchange ----
	restURL, wsURL := binance.LiveREST, binance.LiveWS
	if cfg.Testnet {
		restURL, wsURL = binance.TestnetREST, binance.TestnetWS
	}
	if cfg.BinanceRESTURL != "" {
		restURL = cfg.BinanceRESTURL
	}
	if cfg.BinanceWSURL != "" {
		wsURL = cfg.BinanceWSURL
	}
	client := binance.NewClient(binance.Config{
		APIKey:     cfg.BinanceAPIKey,
		SecretKey:  cfg.BinanceSecretKey,
		BaseURL:    restURL,
		RecvWindow: cfg.RecvWindow,
	})
	client.OnCall = prom.ObserveCall

	var (
		exchange model.Exchange = client
		paperEx  *paper.Exchange
		events   <-chan model.OrderEvent
	)
	liveEvents := make(chan model.OrderEvent, 256)
	if cfg.Paper {
		paperEx = paper.New(paper.Config{Base: cfg.Base, Quote: cfg.Quote, Mode: paper.FillOnCandle}, map[string]decimal.Decimal{
			cfg.Quote: decimal.NewFromFloat(cfg.PaperQuoteFunds),
		})
		exchange, events = paperEx, paperEx.Events()
		log.Printf("[dreamrunner] *** PAPER TRADING with %.2f %s ***", cfg.PaperQuoteFunds, cfg.Quote)
	} else {
		events = liveEvents
	}

	// ---- Candle pipeline ----
	rawCandles := make(chan model.Candle, 1000)
	fanout := bus.New(1000)
	fanout.OnDrop = func(name string) {
		prom.FanoutDropsTotal.WithLabelValues(name).Inc()
	}
	engineCh := fanout.SubscribeBlocking("engine")
	var paperCh <-chan model.Candle
	if paperEx != nil {
		paperCh = fanout.SubscribeBlocking("paper")
	}
	archiveCh := fanout.Subscribe("sqlite")
	hubCh := fanout.Subscribe("api")
	var redisCh <-chan model.Candle
	if redisPub != nil {
		redisCh = fanout.Subscribe("redis")
	}

	hub := api.NewHub()
	publishers := engine.Publishers{hub}
	if redisPub != nil {
		publishers = append(publishers, redisPub)
	}

	eng, err := engine.New(engine.Config{
		Symbol:         cfg.Symbol,
		Base:           cfg.Base,
		Quote:          cfg.Quote,
		EquityPct:      cfg.EquityPct,
		StaleAfter:     cfg.StaleAfter,
		ReconcileEvery: cfg.ReconcileEvery,
		TradingEnabled: cfg.TradingEnabled(),
		Equalize:       cfg.Equalize,
		MinEqualizeQty: decimal.RequireFromString(minEqualizeQty),
		Risk: portfolio.RiskLimits{
			MinNotional:    decimal.NewFromFloat(cfg.MinNotional),
			MaxDrawdownPct: cfg.MaxDrawdownPct,
		},
	}, engine.Deps{
		Exchange:  exchange,
		Strategy:  strat,
		Journal:   store,
		Publisher: publishers,
		Notifier:  notifiers,
		Metrics:   prom,
		Health:    health,
		Logger:    slogger,
	})
	if err != nil {
		log.Fatalf("[dreamrunner] engine init failed: %v", err)
	}

	// ---- Warm-up history ----
	var history []model.Candle
	if !replaying {
		history, err = client.Klines(ctx, cfg.Symbol, cfg.Interval, time.Time{}, time.Time{}, cfg.WarmupCandles)
		if err != nil {
			log.Printf("[dreamrunner] kline history failed: %v, falling back to sqlite", err)
			history, err = store.RecentCandles(cfg.Symbol, cfg.WarmupCandles)
			if err != nil {
				log.Printf("[dreamrunner] sqlite history failed: %v", err)
			}
		}
	}
	if err := eng.Start(ctx, history); err != nil {
		log.Fatalf("[dreamrunner] startup failed: %v", err)
	}

	// ---- Start consumers ----
	go fanout.Run(ctx, rawCandles)
	go store.Run(ctx, archiveCh)
	go hub.Run(ctx, hubCh)
	if redisCh != nil {
		go redisPub.Run(ctx, redisCh)
	}
	if paperCh != nil {
		go func() {
			for c := range paperCh {
				paperEx.OnCandle(c)
			}
		}()
	}

	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(ctx, engineCh, events) }()

	// ---- Candle source ----
	switch {
	case *csvPath != "":
		candles, err := csvfeed.LoadFile(*csvPath, csvfeed.Options{Symbol: cfg.Symbol})
		if err != nil {
			log.Fatalf("[dreamrunner] csv load failed: %v", err)
		}
		go runReplay(ctx, replay.New(csvfeed.NewSource(candles)), cfg.Symbol, time.Time{}, time.Now(), *speed, rawCandles)
	case *replayFrom != "":
		from, err := time.Parse(time.RFC3339, *replayFrom)
		if err != nil {
			log.Fatalf("[dreamrunner] invalid --replay-from: %v", err)
		}
		to := time.Now()
		if *replayTo != "" {
			if to, err = time.Parse(time.RFC3339, *replayTo); err != nil {
				log.Fatalf("[dreamrunner] invalid --replay-to: %v", err)
			}
		}
		go runReplay(ctx, replay.New(store), cfg.Symbol, from, to, *speed, rawCandles)
	default:
		var users binance.UserStreams
		if !cfg.Paper {
			users = client
		}
		stream := binance.NewStream(binance.StreamConfig{BaseURL: wsURL, Symbol: cfg.Symbol, Interval: cfg.Interval}, users)
		stream.OnBalances = eng.UpdateBalances
		stream.OnReconnect = func() {
			prom.StreamReconnects.Inc()
			health.SetStreamConnected(false)
		}
		health.SetStreamConnected(true)
		go func() {
			if err := stream.Run(ctx, rawCandles, liveEvents); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[dreamrunner] stream error: %v", err)
				health.SetStreamConnected(false)
			}
		}()
	}

	// ---- Inspection API ----
	apiSrv := &http.Server{
		Addr: cfg.APIAddr,
		Handler: api.NewRouter(&api.Handler{
			Exchange:   exchange,
			State:      eng,
			Symbol:     cfg.Symbol,
			TOTPSecret: cfg.TOTPSecret,
			Hub:        hub,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("[api] listening on %s", cfg.APIAddr)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()

	mode := "LIVE"
	if cfg.Paper {
		mode = "PAPER"
	}
	log.Println("[dreamrunner] ╔══════════════════════════════════════════════════════╗")
	log.Printf("[dreamrunner] ║  Dreamrunner %-8s %-31s ║", mode, cfg.Symbol+" "+cfg.Interval)
	log.Printf("[dreamrunner] ║  Strategy: %-41s ║", strat.Name())
	log.Printf("[dreamrunner] ║  Trading enabled: %-34v ║", cfg.TradingEnabled())
	log.Printf("[dreamrunner] ║  API %-15s  Metrics %-22s ║", cfg.APIAddr, cfg.MetricsAddr)
	log.Println("[dreamrunner] ╚══════════════════════════════════════════════════════╝")

	// ---- Wait for shutdown ----
	select {
	case <-sigCh:
		log.Println("[dreamrunner] shutdown signal received, cleaning up...")
	case err := <-engineDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[dreamrunner] engine stopped: %v", err)
			notifiers.Send(context.Background(), notification.Criticalf("engine stopped", "%v", err))
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	apiSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	if redisPub != nil {
		redisPub.Close()
	}

	snap := eng.Snapshot()
	log.Printf("[dreamrunner] final: slot=%s fills=%d realized=%.4f unrealized=%.4f ambiguous=%d",
		snap.ActiveOrder.State, snap.PnL.Fills, snap.PnL.Realized, snap.PnL.Unrealized, snap.Ambiguous)
	log.Println("[dreamrunner] shutdown complete.")
}

// runReplay feeds stored candles into out and closes it when done, which
// ends the fan-out and the engine.
func runReplay(ctx context.Context, r *replay.Replayer, symbol string, from, to time.Time, speed float64, out chan<- model.Candle) {
	defer close(out)
	n, err := r.Run(ctx, symbol, from, to, speed, out)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[dreamrunner] replay error: %v", err)
	}
	log.Printf("[dreamrunner] replay finished: %d candles", n)
}
