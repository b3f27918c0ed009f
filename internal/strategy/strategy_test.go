package strategy

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/indicator"
	"github.com/0xBreath/binance-engine-sub000/internal/model"
)

var t0 = time.Unix(1690000000, 0)

func bar(i int, o, h, l, c float64) model.Candle {
	return model.Candle{Symbol: "SOLUSDT", TS: t0.Add(time.Duration(i) * time.Minute), Open: o, High: h, Low: l, Close: c}
}

func constBar(i int, p float64) model.Candle { return bar(i, p, p, p, p) }

func defaultParams() Params {
	return Params{Reversal: 1, Period: 3, Mode: indicator.KagiModeHighLow, KagiSource: model.SourceClose, MASource: model.SourceClose}
}

func TestDreamrunner_InsufficientHistory(t *testing.T) {
	d := NewDreamrunner("SOLUSDT", defaultParams())
	// capacity 4: the first three candles never signal
	for i := 0; i < 3; i++ {
		sig, err := d.ProcessCandle(constBar(i, 10))
		if err != nil || !sig.IsNone() {
			t.Fatalf("candle %d: expected None, got %v %v", i, sig, err)
		}
	}
	if d.Kagi().Line != 10 || d.Kagi().Direction != indicator.Down {
		t.Errorf("kagi should only be seeded during warm-up, got %s", d.Kagi())
	}
}

func TestDreamrunner_LongThenShort(t *testing.T) {
	d := NewDreamrunner("SOLUSDT", Params{Reversal: 5, Period: 2, Mode: indicator.KagiModeHighLow, KagiSource: model.SourceClose, MASource: model.SourceClose})

	// seeds at low 100, direction down
	seq := []model.Candle{
		bar(0, 100, 100, 100, 100),
		bar(1, 100, 100, 100, 100),
		bar(2, 100, 100, 100, 100),
	}
	for _, c := range seq {
		if sig, err := d.ProcessCandle(c); err != nil || !sig.IsNone() {
			t.Fatalf("flat warm-up produced %v %v", sig, err)
		}
	}

	// wma0 over [104, 100] = (104*4+100*2)/6 = 102.67 > line 100,
	// wma1 over [100, 100] = 100 is not above the previous line 100
	sig, err := d.ProcessCandle(bar(3, 100, 104, 100, 104))
	if err != nil {
		t.Fatal(err)
	}
	if sig.Kind != Long || sig.Price != 104 || !sig.TS.Equal(seq[0].TS.Add(3*time.Minute)) {
		t.Fatalf("expected Long @104, got %v", sig)
	}

	// low 90 extends the line, high 100 then reverses it up at 100.
	// wma0 over [90, 104] = (90*4+104*2)/6 = 94.67 < 100, wma1 = 102.67 was not below 100
	sig, err = d.ProcessCandle(bar(4, 104, 100, 90, 90))
	if err != nil {
		t.Fatal(err)
	}
	if sig.Kind != Short {
		t.Fatalf("expected Short, got %v (kagi %s)", sig, d.Kagi())
	}
}

func TestDreamrunner_FlatMarketNeverSignals(t *testing.T) {
	d := NewDreamrunner("SOLUSDT", defaultParams())
	for i := 0; i < 100; i++ {
		sig, err := d.ProcessCandle(constBar(i, 25))
		if err != nil || !sig.IsNone() {
			t.Fatalf("candle %d: flat market produced %v %v", i, sig, err)
		}
	}
}

// Long needs wma0 > k0 and short needs wma0 < k0, so the two can never hold
// together on any input.
func TestDreamrunner_NeverAmbiguous_RandomOHLC(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	modes := []indicator.KagiMode{indicator.KagiModeHighLow, indicator.KagiModeClose}
	sources := []model.Source{model.SourceOpen, model.SourceHigh, model.SourceLow, model.SourceClose}

	for round := 0; round < 200; round++ {
		p := Params{
			Reversal:   rng.Float64() * 3,
			Period:     2 + rng.Intn(10),
			Mode:       modes[rng.Intn(len(modes))],
			KagiSource: sources[rng.Intn(len(sources))],
			MASource:   sources[rng.Intn(len(sources))],
		}
		d := NewDreamrunner("TEST", p)
		price := 50 + rng.Float64()*50
		for i := 0; i < 300; i++ {
			price += rng.NormFloat64()
			o := price + rng.NormFloat64()*0.3
			c := price + rng.NormFloat64()*0.3
			// OHLC consistency is deliberately not enforced
			h := price + rng.NormFloat64()
			l := price + rng.NormFloat64()
			if _, err := d.ProcessCandle(bar(i, o, h, l, c)); errors.Is(err, model.ErrAmbiguousSignal) {
				t.Fatalf("round %d candle %d: %v", round, i, err)
			} else if err != nil {
				t.Fatalf("round %d candle %d: unexpected error %v", round, i, err)
			}
		}
	}
}

func TestCrossover_Signals(t *testing.T) {
	s := NewCrossover(2, 3, model.SourceClose)
	prices := []float64{10, 10, 10, 10, 14, 14, 6, 6}
	var got []Kind
	for i, p := range prices {
		sig, err := s.ProcessCandle(constBar(i, p))
		if err != nil {
			t.Fatal(err)
		}
		if !sig.IsNone() {
			got = append(got, sig.Kind)
		}
	}
	if len(got) != 2 || got[0] != Long || got[1] != Short {
		t.Fatalf("expected [long short], got %v", got)
	}
	if s.Name() != "crossover_2_3" || s.Warmup() != 4 {
		t.Errorf("name=%q warmup=%d", s.Name(), s.Warmup())
	}
}

func TestNew(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{"dreamrunner", Config{Name: "dreamrunner", Reversal: 0.03, Period: 4}, "dreamrunner", false},
		{"default", Config{Period: 4}, "dreamrunner", false},
		{"crossover", Config{Name: "crossover", FastPeriod: 5, SlowPeriod: 20}, "crossover_5_20", false},
		{"bad period", Config{Name: "dreamrunner", Period: 1}, "", true},
		{"bad crossover", Config{Name: "crossover", FastPeriod: 20, SlowPeriod: 5}, "", true},
		{"unknown", Config{Name: "martingale"}, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := New(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if s.Name() != tc.want {
				t.Errorf("Name()=%q want %q", s.Name(), tc.want)
			}
		})
	}
}

func TestApplyPreset(t *testing.T) {
	cfg := ApplyPreset(Config{Symbol: "ethusdt"})
	if cfg.Reversal != 58.4 || cfg.Period != 14 || cfg.StopLossPct != 100 {
		t.Errorf("ETH preset not applied: %+v", cfg)
	}
	cfg = ApplyPreset(Config{Symbol: "SOLUSDT", StopLossPct: 2.5})
	if cfg.StopLossPct != 2.5 || cfg.Reversal != 0.03 {
		t.Errorf("explicit stop loss should win: %+v", cfg)
	}
	cfg = ApplyPreset(Config{Symbol: "BTCUSDT", Period: 3})
	if cfg.Period != 3 || cfg.Reversal != 58 {
		t.Errorf("explicit period should win: %+v", cfg)
	}
	cfg = ApplyPreset(Config{Symbol: "DOGEUSDT"})
	if cfg.Reversal != 0 {
		t.Errorf("unknown symbol should be untouched: %+v", cfg)
	}
}
