package backtest

import (
	"fmt"
	"sort"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
	"github.com/0xBreath/binance-engine-sub000/internal/strategy"
)

// Grid is the parameter space searched by Optimize.
type Grid struct {
	Reversals []float64
	Periods   []int
}

// GridResult is the outcome of one grid point.
type GridResult struct {
	Reversal float64 `json:"reversal"`
	Period   int     `json:"period"`
	Summary  Summary `json:"summary"`
	Err      string  `json:"err,omitempty"`
}

// Optimize runs one dreamrunner backtest per grid point and returns the
// results sorted by total return, best first. Warm-up logging is silenced.
func Optimize(base strategy.Config, candles []model.Candle, grid Grid, cfg Config) ([]GridResult, error) {
	if len(grid.Reversals) == 0 || len(grid.Periods) == 0 {
		return nil, fmt.Errorf("backtest: empty grid")
	}
	out := make([]GridResult, 0, len(grid.Reversals)*len(grid.Periods))
	for _, rev := range grid.Reversals {
		for _, period := range grid.Periods {
			sc := base
			sc.Name = "dreamrunner"
			sc.Reversal, sc.Period = rev, period
			gr := GridResult{Reversal: rev, Period: period}

			strat, err := strategy.New(sc)
			if err != nil {
				gr.Err = err.Error()
				out = append(out, gr)
				continue
			}
			if q, ok := strat.(interface {
				SetLogf(func(string, ...any))
			}); ok {
				q.SetLogf(nil)
			}
			res, err := Run(strat, candles, cfg)
			if err != nil {
				gr.Err = err.Error()
			}
			gr.Summary = res.Summary
			out = append(out, gr)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if (out[i].Err == "") != (out[j].Err == "") {
			return out[i].Err == ""
		}
		return out[i].Summary.TotalReturnPct > out[j].Summary.TotalReturnPct
	})
	return out, nil
}
