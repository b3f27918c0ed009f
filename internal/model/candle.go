package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Candle is a closed OHLC bar for a single symbol.
// Volume is zero when the feed does not carry it.
type Candle struct {
	Symbol string    `json:"symbol"`
	TS     time.Time `json:"ts"` // bar open time, UTC
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Key returns "symbol:unixms", unique per bar.
func (c *Candle) Key() string {
	return fmt.Sprintf("%s:%d", c.Symbol, c.TS.UnixMilli())
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Source selects which price of a candle an indicator reads.
type Source int

const (
	SourceOpen Source = iota
	SourceHigh
	SourceLow
	SourceClose
)

func (s Source) String() string {
	switch s {
	case SourceOpen:
		return "open"
	case SourceHigh:
		return "high"
	case SourceLow:
		return "low"
	case SourceClose:
		return "close"
	default:
		return "unknown"
	}
}

// ParseSource accepts open, high, low or close (case-insensitive).
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return SourceOpen, nil
	case "high":
		return SourceHigh, nil
	case "low":
		return SourceLow, nil
	case "close":
		return SourceClose, nil
	}
	return 0, fmt.Errorf("unknown price source %q", s)
}

// Price returns the candle price selected by s.
func (s Source) Price(c Candle) float64 {
	switch s {
	case SourceOpen:
		return c.Open
	case SourceHigh:
		return c.High
	case SourceLow:
		return c.Low
	default:
		return c.Close
	}
}
