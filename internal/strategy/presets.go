package strategy

import (
	"strings"

	"github.com/0xBreath/binance-engine-sub000/internal/indicator"
	"github.com/0xBreath/binance-engine-sub000/internal/model"
)

// Presets holds tuned Dreamrunner parameters per symbol. Kagi runs on the
// close and the WMA on the open. ETH's 100% stop never triggers.
var Presets = map[string]Params{
	"SOLUSDT": {Reversal: 0.03, Period: 4, Mode: indicator.KagiModeHighLow, KagiSource: model.SourceClose, MASource: model.SourceOpen, StopLossPct: 1},
	"ETHUSDT": {Reversal: 58.4, Period: 14, Mode: indicator.KagiModeHighLow, KagiSource: model.SourceClose, MASource: model.SourceOpen, StopLossPct: 100},
	"BTCUSDT": {Reversal: 58, Period: 8, Mode: indicator.KagiModeHighLow, KagiSource: model.SourceClose, MASource: model.SourceOpen, StopLossPct: 1},
}

// Preset looks up the parameters for symbol (case-insensitive).
func Preset(symbol string) (Params, bool) {
	p, ok := Presets[strings.ToUpper(symbol)]
	return p, ok
}

// ApplyPreset fills zero-valued Dreamrunner fields of cfg from the symbol's
// preset. Explicit values win.
func ApplyPreset(cfg Config) Config {
	p, ok := Preset(cfg.Symbol)
	if !ok {
		return cfg
	}
	if cfg.Reversal == 0 {
		cfg.Reversal = p.Reversal
	}
	if cfg.Period == 0 {
		cfg.Period = p.Period
	}
	if cfg.StopLossPct == 0 {
		cfg.StopLossPct = p.StopLossPct
	}
	return cfg
}
