// cmd/backfill downloads closed Binance klines into SQLite or a CSV file.
// Without --from it resumes after the newest candle already stored.
//
// Usage:
//
//	go run ./cmd/backfill --symbol=SOLUSDT --interval=1m --from=2023-01-01T00:00:00Z
//	go run ./cmd/backfill --symbol=ETHUSDT --from=2023-06-01T00:00:00Z --csv=data/ETHUSDT.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/exchange/binance"
	"github.com/0xBreath/binance-engine-sub000/internal/marketdata/csvfeed"
	"github.com/0xBreath/binance-engine-sub000/internal/model"
	sqlitestore "github.com/0xBreath/binance-engine-sub000/internal/store/sqlite"
)

const pageLimit = 1000

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	symbol := flag.String("symbol", "SOLUSDT", "Symbol to download")
	interval := flag.String("interval", "1m", "Kline interval")
	fromStr := flag.String("from", "", "Start time, RFC3339 (default: resume from the database)")
	toStr := flag.String("to", "", "End time, RFC3339 (default: now)")
	dbPath := flag.String("db", "data/dreamrunner.db", "SQLite database")
	csvPath := flag.String("csv", "", "Write a CSV file instead of SQLite")
	baseURL := flag.String("rest", binance.LiveREST, "Binance REST base URL")
	pause := flag.Duration("pause", 250*time.Millisecond, "Delay between pages")
	flag.Parse()

	sym := strings.ToUpper(*symbol)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var store *sqlitestore.Store
	if *csvPath == "" {
		os.MkdirAll(filepath.Dir(*dbPath), 0o755)
		var err error
		store, err = sqlitestore.Open(sqlitestore.Config{DBPath: *dbPath})
		if err != nil {
			log.Fatalf("[backfill] sqlite open failed: %v", err)
		}
		defer store.Close()
	}

	from, err := startTime(*fromStr, store, sym)
	if err != nil {
		log.Fatalf("[backfill] %v", err)
	}
	to := time.Now()
	if *toStr != "" {
		if to, err = time.Parse(time.RFC3339, *toStr); err != nil {
			log.Fatalf("[backfill] invalid --to: %v", err)
		}
	}
	if !from.Before(to) {
		log.Printf("[backfill] nothing to do: %s is not before %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
		return
	}

	client := binance.NewClient(binance.Config{BaseURL: *baseURL})
	log.Printf("[backfill] %s %s from %s to %s", sym, *interval, from.Format(time.RFC3339), to.Format(time.RFC3339))

	var all []model.Candle
	total, pages := 0, 0
	for cursor := from; cursor.Before(to); {
		page, err := client.Klines(ctx, sym, *interval, cursor, to, pageLimit)
		if err != nil {
			log.Fatalf("[backfill] klines at %s: %v", cursor.Format(time.RFC3339), err)
		}
		if len(page) == 0 {
			break
		}
		if store != nil {
			if err := store.InsertCandles(page); err != nil {
				log.Fatalf("[backfill] insert: %v", err)
			}
		} else {
			all = append(all, page...)
		}
		total += len(page)
		pages++
		last := page[len(page)-1].TS
		if pages%10 == 0 {
			log.Printf("[backfill] %d candles, at %s", total, last.Format(time.RFC3339))
		}
		cursor = last.Add(time.Millisecond)
		if len(page) < pageLimit {
			break
		}

		select {
		case <-ctx.Done():
			log.Printf("[backfill] interrupted after %d candles", total)
			to = cursor
		case <-time.After(*pause):
		}
	}

	if *csvPath != "" {
		if err := writeCSV(*csvPath, all); err != nil {
			log.Fatalf("[backfill] %v", err)
		}
	}

	dest := *dbPath
	if *csvPath != "" {
		dest = *csvPath
	}
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKFILL COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Symbol:   %-25s ║\n", sym+" "+*interval)
	fmt.Printf("║  Candles:  %-25d ║\n", total)
	fmt.Printf("║  Pages:    %-25d ║\n", pages)
	fmt.Printf("║  Output:   %-25.25s ║\n", dest)
	fmt.Println("╚══════════════════════════════════════╝")
}

// startTime resolves --from, falling back to one millisecond past the newest
// stored candle.
func startTime(s string, store *sqlitestore.Store, symbol string) (time.Time, error) {
	if s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --from: %w", err)
		}
		return t, nil
	}
	if store == nil {
		return time.Time{}, fmt.Errorf("--from is required with --csv")
	}
	last, err := store.LastTimestamp(symbol)
	if err != nil {
		return time.Time{}, fmt.Errorf("last stored candle: %w", err)
	}
	if last.IsZero() {
		return time.Time{}, fmt.Errorf("no stored %s candles, --from is required", symbol)
	}
	return last.Add(time.Millisecond), nil
}

func writeCSV(path string, candles []model.Candle) error {
	if dir := filepath.Dir(path); dir != "" {
		os.MkdirAll(dir, 0o755)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := csvfeed.Write(f, candles); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
