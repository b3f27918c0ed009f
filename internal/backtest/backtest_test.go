package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/indicator"
	"github.com/0xBreath/binance-engine-sub000/internal/model"
	"github.com/0xBreath/binance-engine-sub000/internal/strategy"
)

func assertClose(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func at(i int) time.Time { return time.Unix(1690000000+int64(i)*60, 0).UTC() }

func dreamrunner(t *testing.T, period int, rev float64) strategy.Strategy {
	t.Helper()
	s, err := strategy.New(strategy.Config{
		Name: "dreamrunner", Symbol: "SOLUSDT", Reversal: rev, Period: period,
		KagiMode: indicator.KagiModeHighLow, KagiSource: model.SourceClose, MASource: model.SourceOpen,
	})
	if err != nil {
		t.Fatalf("strategy: %v", err)
	}
	return s
}

func TestRun_FlatMarketNoTrades(t *testing.T) {
	for _, period := range []int{2, 4, 14} {
		candles := make([]model.Candle, 60)
		for i := range candles {
			candles[i] = model.Candle{Symbol: "SOLUSDT", TS: at(i), Open: 25, High: 25, Low: 25, Close: 25}
		}
		res, err := Run(dreamrunner(t, period, 0.5), candles, Config{Capital: 1000})
		if err != nil {
			t.Fatalf("period %d: %v", period, err)
		}
		if len(res.Trades) != 0 || len(res.Summary.CumPct) != 0 || len(res.Summary.CumQuote) != 0 {
			t.Errorf("period %d: expected no trades, got %d", period, len(res.Trades))
		}
		for _, p := range res.Equity {
			if p.Value != 1000 {
				t.Fatalf("period %d: equity moved to %v", period, p.Value)
			}
		}
		assertClose(t, "total return", res.Summary.TotalReturnPct, 0)
		assertClose(t, "max drawdown", res.Summary.MaxDrawdown, 0)
	}
}

// scripted replays a fixed list of signals and errors.
type scripted struct {
	sigs []strategy.Kind
	errs map[int]error
	i    int
}

func (s *scripted) Name() string { return "scripted" }
func (s *scripted) Warmup() int  { return 0 }
func (s *scripted) ProcessCandle(c model.Candle) (strategy.Signal, error) {
	i := s.i
	s.i++
	if err := s.errs[i]; err != nil {
		return strategy.Signal{}, err
	}
	return strategy.Signal{Kind: s.sigs[i], Symbol: c.Symbol, Price: c.Close, TS: c.TS}, nil
}

func closes(prices ...float64) []model.Candle {
	out := make([]model.Candle, len(prices))
	for i, p := range prices {
		out[i] = model.Candle{Symbol: "SOLUSDT", TS: at(i), Open: p, High: p, Low: p, Close: p}
	}
	return out
}

func TestRun_LongOrFlat(t *testing.T) {
	s := &scripted{
		sigs: []strategy.Kind{strategy.Short, strategy.Long, strategy.Long, strategy.None, strategy.Short, strategy.Short, strategy.Long},
		errs: map[int]error{3: model.ErrAmbiguousSignal},
	}
	res, err := Run(s, closes(9, 10, 12, 13, 15, 14, 20), Config{Capital: 100})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Ambiguous != 1 {
		t.Errorf("ambiguous = %d, want 1", res.Ambiguous)
	}
	if len(res.Trades) != 3 {
		t.Fatalf("trades = %+v", res.Trades)
	}
	entry, exit, reentry := res.Trades[0], res.Trades[1], res.Trades[2]
	if entry.Side != model.SideLong || entry.Price != 10 {
		t.Errorf("entry = %+v", entry)
	}
	assertClose(t, "entry qty", entry.Quantity, 10)
	assertClose(t, "entry capital", entry.Capital, 100)
	if exit.Side != model.SideShort || exit.Price != 15 {
		t.Errorf("exit = %+v", exit)
	}
	assertClose(t, "exit capital", exit.Capital, 150)
	assertClose(t, "reentry qty", reentry.Quantity, 7.5)

	// marked to market while long
	assertClose(t, "equity at 13", res.Equity[3].Value, 130)
	assertClose(t, "buy and hold", res.Summary.BuyHoldPct, (20.0-9)/9*100)
	if res.Summary.Pairs != 1 {
		t.Errorf("pairs = %d, the trailing entry should be excluded", res.Summary.Pairs)
	}
}

func TestRun_StopLoss(t *testing.T) {
	sigs := []strategy.Kind{strategy.None, strategy.Long, strategy.None, strategy.Short}

	candles := closes(12, 10, 10, 11)
	candles[2].Low = 9.8
	res, err := Run(&scripted{sigs: sigs}, candles, Config{Capital: 100, StopLossPct: 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Trades) != 2 || res.StopLosses != 1 {
		t.Fatalf("trades = %+v stops = %d", res.Trades, res.StopLosses)
	}
	stop := res.Trades[1]
	if stop.Side != model.SideShort || !stop.TS.Equal(at(2)) {
		t.Errorf("stop exit = %+v", stop)
	}
	assertClose(t, "stop price", stop.Price, 9.9)
	assertClose(t, "capital after stop", stop.Capital, 99)
	assertClose(t, "equity after stop", res.Equity[3].Value, 99)
	assertClose(t, "stopped pair pct", res.Summary.PctPerTrade[0].Value, -1)

	// a low that stays above the stop leaves the position to the strategy
	candles = closes(12, 10, 10, 11)
	candles[2].Low = 9.95
	res, err = Run(&scripted{sigs: sigs}, candles, Config{Capital: 100, StopLossPct: 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.StopLosses != 0 || len(res.Trades) != 2 || res.Trades[1].Price != 11 {
		t.Errorf("no stop expected, got %+v", res.Trades)
	}

	if _, err := Run(&scripted{sigs: sigs}, candles, Config{Capital: 100, StopLossPct: -1}); err == nil {
		t.Error("negative stop loss should be rejected")
	}
}

func TestRun_NonPositivePriceSkipped(t *testing.T) {
	s := &scripted{sigs: []strategy.Kind{strategy.Long, strategy.Long, strategy.Short}}
	res, err := Run(s, closes(0, 10, 12), Config{Capital: 100})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Trades) != 2 || res.Trades[0].Price != 10 {
		t.Fatalf("zero-price entry should be skipped, got %+v", res.Trades)
	}
	for _, v := range []float64{res.Summary.TotalReturnPct, res.Summary.FinalCapital, res.Summary.AvgTradePct} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("summary not finite: %+v", res.Summary)
		}
	}
	assertClose(t, "total return", res.Summary.TotalReturnPct, 20)

	s2 := Summarize([]Trade{
		{Side: model.SideLong, Quantity: 1, Price: 0},
		{Side: model.SideShort, Quantity: 1, Price: 5},
	}, Config{})
	if s2.Pairs != 0 || math.IsNaN(s2.TotalReturnPct) {
		t.Errorf("zero entry price pair should be excluded: %+v", s2)
	}
}

func TestRun_StrategyErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	s := &scripted{sigs: make([]strategy.Kind, 3), errs: map[int]error{1: boom}}
	if _, err := Run(s, closes(1, 2, 3), Config{Capital: 100}); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if _, err := Run(s, closes(1), Config{}); err == nil {
		t.Error("zero capital should be rejected")
	}
}

func TestSummarize_Pairs(t *testing.T) {
	trades := []Trade{
		{TS: at(0), Side: model.SideLong, Quantity: 1, Price: 100},
		{TS: at(1), Side: model.SideShort, Quantity: 1, Price: 110},
		{TS: at(2), Side: model.SideLong, Quantity: 1, Price: 110},
		{TS: at(3), Side: model.SideShort, Quantity: 1, Price: 99},
		{TS: at(4), Side: model.SideLong, Quantity: 1, Price: 99},
	}
	s := Summarize(trades, Config{Capital: 100})

	if s.Pairs != 2 || s.Trades != 5 {
		t.Fatalf("pairs=%d trades=%d", s.Pairs, s.Trades)
	}
	assertClose(t, "pct[0]", s.PctPerTrade[0].Value, 10)
	assertClose(t, "pct[1]", s.PctPerTrade[1].Value, -10)
	assertClose(t, "cum quote[1]", s.CumQuote[1].Value, -1)
	assertClose(t, "cum pct[0]", s.CumPct[0].Value, 10)
	assertClose(t, "cum pct[1]", s.CumPct[1].Value, -1)
	assertClose(t, "win rate", s.WinRate, 50)
	assertClose(t, "max drawdown", s.MaxDrawdown, -11)
	assertClose(t, "avg trade size", s.AvgTradeSize, (100+110+110+99+99)/5.0)
	assertClose(t, "best", s.BestTradePct, 10)
	assertClose(t, "worst", s.WorstTradePct, -10)
	assertClose(t, "avg", s.AvgTradePct, 0)
	assertClose(t, "final capital", s.FinalCapital, 99)
	if !s.CumPct[1].TS.Equal(at(2)) {
		t.Errorf("series should be stamped at the entry, got %v", s.CumPct[1].TS)
	}
}

func TestSummarize_ShortEntryAndFee(t *testing.T) {
	short := []Trade{
		{Side: model.SideShort, Quantity: 2, Price: 50},
		{Side: model.SideLong, Quantity: 2, Price: 45},
	}
	s := Summarize(short, Config{Capital: 100})
	assertClose(t, "short pct", s.PctPerTrade[0].Value, 10)
	assertClose(t, "short quote", s.CumQuote[0].Value, 10)

	long := []Trade{
		{Side: model.SideLong, Quantity: 1, Price: 100},
		{Side: model.SideShort, Quantity: 1, Price: 110},
	}
	s = Summarize(long, Config{Capital: 100, FeePct: 1})
	assertClose(t, "quote after fee", s.CumQuote[0].Value, 9)
	assertClose(t, "win rate", s.WinRate, 100)
}

func TestMaxDrawdown(t *testing.T) {
	series := func(vals ...float64) []Point {
		out := make([]Point, len(vals))
		for i, v := range vals {
			out[i] = Point{Value: v}
		}
		return out
	}
	cases := []struct {
		name string
		in   []Point
		want float64
	}{
		{"empty", nil, 0},
		{"rising", series(1, 2, 3), 0},
		{"single dip", series(5, 2, 8), -3},
		{"deepest after new peak", series(5, 2, 10, 1, 4), -9},
		{"starts negative", series(-2, -5, -1), -3},
	}
	for _, tc := range cases {
		assertClose(t, tc.name, MaxDrawdown(tc.in), tc.want)
	}
}

func wave(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		mid := 100 + 10*math.Sin(float64(i)/6)
		out[i] = model.Candle{Symbol: "SOLUSDT", TS: at(i), Open: mid - 0.5, High: mid + 1, Low: mid - 1, Close: mid + 0.5}
	}
	return out
}

func TestRun_DreamrunnerAlternates(t *testing.T) {
	res, err := Run(dreamrunner(t, 4, 2), wave(300), Config{Capital: 1000})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Trades) == 0 {
		t.Fatal("expected trades on an oscillating series")
	}
	for i, tr := range res.Trades {
		want := model.SideLong
		if i%2 == 1 {
			want = model.SideShort
		}
		if tr.Side != want {
			t.Fatalf("trade %d side = %v, want %v", i, tr.Side, want)
		}
	}
}

func TestOptimize(t *testing.T) {
	base := strategy.Config{Symbol: "SOLUSDT", KagiSource: model.SourceClose, MASource: model.SourceOpen}
	got, err := Optimize(base, wave(200), Grid{Reversals: []float64{1, 2}, Periods: []int{1, 4, 8}}, Config{Capital: 1000})
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("results = %d, want 6", len(got))
	}
	for i := 0; i < 4; i++ {
		if got[i].Err != "" {
			t.Errorf("result %d unexpectedly failed: %s", i, got[i].Err)
		}
		if i > 0 && got[i].Summary.TotalReturnPct > got[i-1].Summary.TotalReturnPct {
			t.Errorf("results not sorted at %d", i)
		}
	}
	// period 1 is invalid and sorts last
	if got[4].Err == "" || got[5].Err == "" || got[5].Period != 1 {
		t.Errorf("invalid grid points should sort last: %+v %+v", got[4], got[5])
	}

	if _, err := Optimize(base, nil, Grid{}, Config{Capital: 1}); err == nil {
		t.Error("empty grid should fail")
	}
}
