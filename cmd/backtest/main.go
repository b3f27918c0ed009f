// cmd/backtest replays historical candles from a CSV file or SQLite through a
// strategy and prints the trade summary. With --optimize it searches a
// reversal x period grid instead.
//
// Usage:
//
//	go run ./cmd/backtest --csv=data/SOLUSDT.csv --symbol=SOLUSDT
//	go run ./cmd/backtest --db=data/dreamrunner.db --from=2023-01-01T00:00:00Z --save
//	go run ./cmd/backtest --csv=data/ETHUSDT.csv --optimize --reversals=40,50,58.4 --periods=8,14
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/backtest"
	"github.com/0xBreath/binance-engine-sub000/internal/indicator"
	"github.com/0xBreath/binance-engine-sub000/internal/marketdata/csvfeed"
	"github.com/0xBreath/binance-engine-sub000/internal/model"
	sqlitestore "github.com/0xBreath/binance-engine-sub000/internal/store/sqlite"
	"github.com/0xBreath/binance-engine-sub000/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	csvPath := flag.String("csv", "", "CSV file of date,open,high,low,close[,volume] rows")
	dbPath := flag.String("db", "data/dreamrunner.db", "SQLite database (used when --csv is empty)")
	symbol := flag.String("symbol", "SOLUSDT", "Symbol; also selects the parameter preset")
	fromStr := flag.String("from", "", "Start time, RFC3339 (inclusive)")
	toStr := flag.String("to", "", "End time, RFC3339 (exclusive)")
	capital := flag.Float64("capital", 1000, "Starting quote capital")
	fee := flag.Float64("fee", 0, "Fee percent of entry notional per round trip")
	stopLoss := flag.Float64("stop-loss", 0, "Stop loss percent below entry (0 = preset, negative disables)")
	stratName := flag.String("strategy", "dreamrunner", "dreamrunner | crossover")
	reversal := flag.Float64("reversal", 0, "Kagi reversal amount (0 = preset)")
	period := flag.Int("period", 0, "WMA period (0 = preset)")
	kagiMode := flag.String("kagi-mode", "highlow", "Kagi mode: highlow | close")
	kagiSource := flag.String("kagi-source", "close", "Candle field driving Kagi in close mode")
	maSource := flag.String("ma-source", "open", "Candle field driving the WMA")
	fast := flag.Int("fast", 5, "Crossover fast WMA period")
	slow := flag.Int("slow", 20, "Crossover slow WMA period")
	optimize := flag.Bool("optimize", false, "Search the --reversals x --periods grid")
	reversals := flag.String("reversals", "", "Comma-separated reversal grid")
	periods := flag.String("periods", "", "Comma-separated period grid")
	save := flag.Bool("save", false, "Store the run and its trades in --db")
	outPath := flag.String("out", "", "Write the full result as JSON to this file")
	flag.Parse()

	from, to := parseTime("from", *fromStr), parseTime("to", *toStr)
	sym := strings.ToUpper(*symbol)

	mode, err := indicator.ParseKagiMode(*kagiMode)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	ks, err := model.ParseSource(*kagiSource)
	if err != nil {
		log.Fatalf("[backtest] kagi-source: %v", err)
	}
	ms, err := model.ParseSource(*maSource)
	if err != nil {
		log.Fatalf("[backtest] ma-source: %v", err)
	}
	sc := strategy.ApplyPreset(strategy.Config{
		Name:        *stratName,
		Symbol:      sym,
		Reversal:    *reversal,
		Period:      *period,
		KagiMode:    mode,
		KagiSource:  ks,
		MASource:    ms,
		FastPeriod:  *fast,
		SlowPeriod:  *slow,
		StopLossPct: *stopLoss,
	})
	if sc.StopLossPct < 0 {
		sc.StopLossPct = 0
	}

	// ---- Load candles ----
	var (
		candles []model.Candle
		store   *sqlitestore.Store
	)
	if *save || *csvPath == "" {
		store, err = sqlitestore.Open(sqlitestore.Config{DBPath: *dbPath})
		if err != nil {
			log.Fatalf("[backtest] sqlite open failed: %v", err)
		}
		defer store.Close()
	}
	if *csvPath != "" {
		candles, err = csvfeed.LoadFile(*csvPath, csvfeed.Options{Symbol: sym, Start: from, End: to})
	} else {
		if to.IsZero() {
			to = time.Now()
		}
		candles, err = store.ReadCandles(sym, from, to)
	}
	if err != nil {
		log.Fatalf("[backtest] load candles: %v", err)
	}
	if len(candles) == 0 {
		log.Fatal("[backtest] no candles in range")
	}
	log.Printf("[backtest] %d %s candles %s .. %s", len(candles), sym,
		candles[0].TS.Format(time.RFC3339), candles[len(candles)-1].TS.Format(time.RFC3339))

	btCfg := backtest.Config{Capital: *capital, FeePct: *fee, StopLossPct: sc.StopLossPct}

	if *optimize {
		runOptimize(sc, candles, btCfg, *reversals, *periods, *outPath)
		return
	}

	strat, err := strategy.New(sc)
	if err != nil {
		log.Fatalf("[backtest] strategy: %v", err)
	}
	start := time.Now()
	res, err := backtest.Run(strat, candles, btCfg)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	took := time.Since(start)

	for i, tr := range res.Trades {
		if i < 10 || i%50 == 0 {
			fmt.Printf("  [%s] %-5s qty=%.6f @ %.4f capital=%.2f\n",
				tr.TS.Format("2006-01-02 15:04"), tr.Side, tr.Quantity, tr.Price, tr.Capital)
		}
	}

	s := res.Summary
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Strategy:        %-18s ║\n", strat.Name())
	fmt.Printf("║  Candles:         %-18d ║\n", res.Candles)
	fmt.Printf("║  Trades / pairs:  %-18s ║\n", fmt.Sprintf("%d / %d", s.Trades, s.Pairs))
	fmt.Printf("║  Win rate:        %-18s ║\n", pct(s.WinRate))
	fmt.Printf("║  Total return:    %-18s ║\n", pct(s.TotalReturnPct))
	fmt.Printf("║  Buy & hold:      %-18s ║\n", pct(s.BuyHoldPct))
	fmt.Printf("║  Max drawdown:    %-18s ║\n", pct(s.MaxDrawdown))
	fmt.Printf("║  Avg/best/worst:  %-18s ║\n", fmt.Sprintf("%.2f/%.2f/%.2f", s.AvgTradePct, s.BestTradePct, s.WorstTradePct))
	fmt.Printf("║  Final capital:   %-18.2f ║\n", s.FinalCapital)
	fmt.Printf("║  Ambiguous:       %-18d ║\n", res.Ambiguous)
	fmt.Printf("║  Stop losses:     %-18s ║\n", fmt.Sprintf("%d @ %.2f%%", res.StopLosses, sc.StopLossPct))
	fmt.Printf("║  Took:            %-18s ║\n", took.Round(time.Millisecond))
	fmt.Println("╚══════════════════════════════════════╝")

	if *save {
		trades := make([]sqlitestore.BacktestTrade, len(res.Trades))
		for i, tr := range res.Trades {
			trades[i] = sqlitestore.BacktestTrade{TS: tr.TS, Side: tr.Side.String(), Qty: tr.Quantity, Price: tr.Price, Capital: tr.Capital}
		}
		id, err := store.SaveBacktest(sym, strat.Name(), res.Candles, sc, s, trades)
		if err != nil {
			log.Fatalf("[backtest] save failed: %v", err)
		}
		log.Printf("[backtest] saved run %s", id)
	}
	if *outPath != "" {
		writeJSON(*outPath, res)
	}
}

func runOptimize(sc strategy.Config, candles []model.Candle, cfg backtest.Config, revStr, periodStr, outPath string) {
	grid := backtest.Grid{Reversals: parseFloats(revStr), Periods: parseInts(periodStr)}
	if len(grid.Reversals) == 0 {
		grid.Reversals = []float64{sc.Reversal}
	}
	if len(grid.Periods) == 0 {
		grid.Periods = []int{sc.Period}
	}
	results, err := backtest.Optimize(sc, candles, grid, cfg)
	if err != nil {
		log.Fatalf("[backtest] optimize: %v", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════╗")
	fmt.Println("║   reversal   period    return%    drawdown%  pairs ║")
	fmt.Println("╠═══════════════════════════════════════════════════╣")
	for i, r := range results {
		if i >= 20 {
			break
		}
		if r.Err != "" {
			fmt.Printf("║ %10.4f %8d  error: %-23.23s ║\n", r.Reversal, r.Period, r.Err)
			continue
		}
		fmt.Printf("║ %10.4f %8d %10.2f %11.2f %6d ║\n",
			r.Reversal, r.Period, r.Summary.TotalReturnPct, r.Summary.MaxDrawdown, r.Summary.Pairs)
	}
	fmt.Println("╚═══════════════════════════════════════════════════╝")

	if outPath != "" {
		writeJSON(outPath, results)
	}
}

func writeJSON(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("[backtest] marshal result: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Fatalf("[backtest] write %s: %v", path, err)
	}
	log.Printf("[backtest] wrote %s", path)
}

func pct(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) + "%" }

func parseTime(name, s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		log.Fatalf("[backtest] invalid --%s: %v", name, err)
	}
	return t
}

func parseFloats(s string) []float64 {
	var out []float64
	for _, p := range strings.Split(s, ",") {
		if f, err := strconv.ParseFloat(strings.TrimSpace(p), 64); err == nil && f > 0 {
			out = append(out, f)
		}
	}
	return out
}

func parseInts(s string) []int {
	var out []int
	for _, p := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil && n > 0 {
			out = append(out, n)
		}
	}
	return out
}
