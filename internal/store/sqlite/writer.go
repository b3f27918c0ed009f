package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to the database file, e.g. "data/dreamrunner.db"
}

// Store is the SQLite store for candles, backtest runs and the fill journal.
// Candle writes go through a single goroutine with transaction batching.
type Store struct {
	db *sql.DB
}

var (
	_ model.CandleArchive = (*Store)(nil)
	_ model.CandleSource  = (*Store)(nil)
	_ model.FillJournal   = (*Store)(nil)
)

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open creates or opens the database in WAL mode and applies the schema.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol  TEXT    NOT NULL,
			ts      INTEGER NOT NULL,
			open    REAL    NOT NULL,
			high    REAL    NOT NULL,
			low     REAL    NOT NULL,
			close   REAL    NOT NULL,
			volume  REAL,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS fills (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol          TEXT    NOT NULL,
			client_order_id TEXT    NOT NULL,
			order_id        INTEGER NOT NULL,
			tag             TEXT    NOT NULL,
			side            TEXT    NOT NULL,
			order_type      TEXT    NOT NULL,
			status          TEXT    NOT NULL,
			qty             REAL    NOT NULL,
			price           REAL    NOT NULL,
			event_time      INTEGER NOT NULL,
			created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol, event_time);

		CREATE TABLE IF NOT EXISTS backtest_runs (
			id         TEXT    PRIMARY KEY,
			symbol     TEXT    NOT NULL,
			strategy   TEXT    NOT NULL,
			params     TEXT    NOT NULL,
			summary    TEXT    NOT NULL,
			candles    INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS backtest_trades (
			run_id   TEXT    NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
			seq      INTEGER NOT NULL,
			ts       INTEGER NOT NULL,
			side     TEXT    NOT NULL,
			qty      REAL    NOT NULL,
			price    REAL    NOT NULL,
			capital  REAL    NOT NULL,
			PRIMARY KEY (run_id, seq)
		);
	`)
	return err
}

// Run reads candles from candleCh and inserts them in batched transactions.
// Flushes every batchSize candles or every flushDelay, whichever comes first.
// Blocks until ctx is cancelled or candleCh is closed.
func (s *Store) Run(ctx context.Context, candleCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := s.InsertCandles(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d candles in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case c, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, c)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// InsertCandles upserts candles in a single transaction. Timestamps are
// stored as unix milliseconds.
func (s *Store) InsertCandles(candles []model.Candle) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.Exec(c.Symbol, c.TS.UnixMilli(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LastTimestamp returns the newest stored candle time for symbol, or the
// zero time when there is none.
func (s *Store) LastTimestamp(symbol string) (time.Time, error) {
	var ts sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(ts) FROM candles WHERE symbol = ?`, symbol).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(ts.Int64).UTC(), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
