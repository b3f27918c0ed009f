package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BacktestRun describes one stored simulation.
type BacktestRun struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Strategy  string          `json:"strategy"`
	Params    json.RawMessage `json:"params"`
	Summary   json.RawMessage `json:"summary"`
	Candles   int             `json:"candles"`
	CreatedAt time.Time       `json:"created_at"`
}

// BacktestTrade is one logged simulator trade.
type BacktestTrade struct {
	TS      time.Time `json:"ts"`
	Side    string    `json:"side"`
	Qty     float64   `json:"qty"`
	Price   float64   `json:"price"`
	Capital float64   `json:"capital"`
}

// SaveBacktest stores a run and its trades in one transaction and returns
// the generated run id. params and summary are stored as JSON.
func (s *Store) SaveBacktest(symbol, strategy string, candles int, params, summary any, trades []BacktestTrade) (string, error) {
	p, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	sum, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}

	id := uuid.NewString()
	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	_, err = tx.Exec(
		`INSERT INTO backtest_runs (id, symbol, strategy, params, summary, candles, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, symbol, strategy, string(p), string(sum), candles, time.Now().UnixMilli())
	if err != nil {
		tx.Rollback()
		return "", fmt.Errorf("sqlite insert run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO backtest_trades (run_id, seq, ts, side, qty, price, capital) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return "", err
	}
	defer stmt.Close()
	for i, t := range trades {
		if _, err := stmt.Exec(id, i, t.TS.UnixMilli(), t.Side, t.Qty, t.Price, t.Capital); err != nil {
			tx.Rollback()
			return "", fmt.Errorf("sqlite insert trade %d: %w", i, err)
		}
	}
	return id, tx.Commit()
}

// BacktestRuns lists stored runs for symbol, newest first. An empty symbol
// lists every run.
func (s *Store) BacktestRuns(symbol string, limit int) ([]BacktestRun, error) {
	rows, err := s.db.Query(`
		SELECT id, symbol, strategy, params, summary, candles, created_at
		FROM backtest_runs
		WHERE ? = '' OR symbol = ?
		ORDER BY created_at DESC
		LIMIT ?`, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query runs: %w", err)
	}
	defer rows.Close()

	var out []BacktestRun
	for rows.Next() {
		var r BacktestRun
		var p, sum string
		var ms int64
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Strategy, &p, &sum, &r.Candles, &ms); err != nil {
			return nil, fmt.Errorf("sqlite scan runs: %w", err)
		}
		r.Params = json.RawMessage(p)
		r.Summary = json.RawMessage(sum)
		r.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// BacktestTrades returns the trades of run in log order.
func (s *Store) BacktestTrades(runID string) ([]BacktestTrade, error) {
	rows, err := s.db.Query(`
		SELECT ts, side, qty, price, capital FROM backtest_trades
		WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var out []BacktestTrade
	for rows.Next() {
		var t BacktestTrade
		var ms int64
		if err := rows.Scan(&ms, &t.Side, &t.Qty, &t.Price, &t.Capital); err != nil {
			return nil, fmt.Errorf("sqlite scan trades: %w", err)
		}
		t.TS = time.UnixMilli(ms).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}
