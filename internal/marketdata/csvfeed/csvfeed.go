// Package csvfeed loads and writes historical candles in the
// `date,open,high,low,close,volume` layout, dates in UNIX seconds.
package csvfeed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
)

// msThreshold separates second from millisecond timestamps: 1e11 seconds is
// the year 5138, 1e11 ms is March 1973.
const msThreshold = 100_000_000_000

// Options filters a load. Zero bounds are open.
type Options struct {
	Symbol string
	Start  time.Time // inclusive
	End    time.Time // exclusive
}

// Load parses r, sorts by time ascending and drops duplicate timestamps
// (first occurrence wins). A non-numeric first row is treated as a header.
// Volume is optional.
func Load(r io.Reader, opts Options) ([]model.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []model.Candle
	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csvfeed: line %d: %w", line, err)
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if line == 1 && !isNumber(row[0]) {
			continue
		}
		c, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("csvfeed: line %d: %w", line, err)
		}
		c.Symbol = opts.Symbol
		if !opts.Start.IsZero() && c.TS.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && !c.TS.Before(opts.End) {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	dedup := out[:0]
	for i, c := range out {
		if i > 0 && c.TS.Equal(dedup[len(dedup)-1].TS) {
			continue
		}
		dedup = append(dedup, c)
	}
	return dedup, nil
}

// LoadFile opens path and calls Load.
func LoadFile(path string, opts Options) ([]model.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvfeed: %w", err)
	}
	defer f.Close()
	return Load(f, opts)
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

func parseRow(row []string) (model.Candle, error) {
	if len(row) < 5 {
		return model.Candle{}, fmt.Errorf("want at least 5 fields, got %d", len(row))
	}
	var f [6]float64
	n := 5
	if len(row) >= 6 && strings.TrimSpace(row[5]) != "" {
		n = 6
	}
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("field %d %q: %w", i, row[i], err)
		}
		f[i] = v
	}

	ts := int64(f[0])
	var t time.Time
	if ts >= msThreshold {
		t = time.UnixMilli(ts)
	} else {
		t = time.Unix(ts, 0)
	}
	return model.Candle{TS: t.UTC(), Open: f[1], High: f[2], Low: f[3], Close: f[4], Volume: f[5]}, nil
}

// Write writes candles with a header row, dates in UNIX seconds.
func Write(w io.Writer, candles []model.Candle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, c := range candles {
		rec := []string{
			strconv.FormatInt(c.TS.Unix(), 10),
			fmtFloat(c.Open), fmtFloat(c.High), fmtFloat(c.Low), fmtFloat(c.Close), fmtFloat(c.Volume),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func fmtFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// Source serves an in-memory candle set as a model.CandleSource.
type Source struct {
	candles []model.Candle
}

// NewSource wraps candles, which must be ascending.
func NewSource(candles []model.Candle) *Source { return &Source{candles: candles} }

// ReadCandles returns candles with from <= ts < to. Symbol is ignored since a
// file holds one instrument.
func (s *Source) ReadCandles(_ string, from, to time.Time) ([]model.Candle, error) {
	var out []model.Candle
	for _, c := range s.candles {
		if (!from.IsZero() && c.TS.Before(from)) || (!to.IsZero() && !c.TS.Before(to)) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
