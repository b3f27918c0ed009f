package sqlite

import (
	"fmt"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
)

// RecordFill appends a confirmed order update to the fills journal.
func (s *Store) RecordFill(info model.TradeInfo, symbol string) error {
	_, err := s.db.Exec(
		`INSERT INTO fills (symbol, client_order_id, order_id, tag, side, order_type, status, qty, price, event_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		symbol,
		info.ClientOrderID.String(),
		info.OrderID,
		string(info.ClientOrderID.Tag),
		info.Side.String(),
		info.OrderType.String(),
		info.Status.String(),
		info.Quantity,
		info.Price,
		info.EventTime.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite record fill: %w", err)
	}
	return nil
}

// FillRecord is a row from the fills table.
type FillRecord struct {
	ID            int64     `json:"id"`
	Symbol        string    `json:"symbol"`
	ClientOrderID string    `json:"client_order_id"`
	OrderID       int64     `json:"order_id"`
	Tag           string    `json:"tag"`
	Side          string    `json:"side"`
	OrderType     string    `json:"order_type"`
	Status        string    `json:"status"`
	Qty           float64   `json:"qty"`
	Price         float64   `json:"price"`
	EventTime     time.Time `json:"event_time"`
}

// Fills returns the last n journal rows, newest first.
func (s *Store) Fills(limit int) ([]FillRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, symbol, client_order_id, order_id, tag, side, order_type, status, qty, price, event_time
		 FROM fills ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query fills: %w", err)
	}
	defer rows.Close()

	var out []FillRecord
	for rows.Next() {
		var f FillRecord
		var ms int64
		if err := rows.Scan(&f.ID, &f.Symbol, &f.ClientOrderID, &f.OrderID, &f.Tag, &f.Side,
			&f.OrderType, &f.Status, &f.Qty, &f.Price, &ms); err != nil {
			return nil, fmt.Errorf("sqlite scan fills: %w", err)
		}
		f.EventTime = time.UnixMilli(ms).UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}
