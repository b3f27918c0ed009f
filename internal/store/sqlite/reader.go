package sqlite

import (
	"fmt"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
)

// ReadCandles returns candles for symbol with from <= ts < to, ordered by
// timestamp ascending for replay. A zero bound is open.
func (s *Store) ReadCandles(symbol string, from, to time.Time) ([]model.Candle, error) {
	lo := int64(0)
	if !from.IsZero() {
		lo = from.UnixMilli()
	}
	hi := int64(1<<63 - 1)
	if !to.IsZero() {
		hi = to.UnixMilli()
	}

	rows, err := s.db.Query(`
		SELECT symbol, ts, open, high, low, close, COALESCE(volume, 0)
		FROM candles
		WHERE symbol = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, symbol, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var ms int64
		if err := rows.Scan(&c.Symbol, &ms, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.TS = time.UnixMilli(ms).UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// RecentCandles returns the newest n candles for symbol, oldest first.
func (s *Store) RecentCandles(symbol string, n int) ([]model.Candle, error) {
	rows, err := s.db.Query(`
		SELECT symbol, ts, open, high, low, close, COALESCE(volume, 0)
		FROM (SELECT * FROM candles WHERE symbol = ? ORDER BY ts DESC LIMIT ?)
		ORDER BY ts ASC
	`, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("sqlite query recent candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var ms int64
		if err := rows.Scan(&c.Symbol, &ms, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.TS = time.UnixMilli(ms).UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}
