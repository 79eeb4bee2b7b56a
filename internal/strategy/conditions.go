package strategy

import (
	"errors"
	"fmt"

	"github.com/amirphl/eps-trader/internal/indicator"
	"github.com/amirphl/eps-trader/internal/series"
)

// Lookahead is how many days after the evaluation day a window covers. Entry
// windows are [i, i+Lookahead] and exit scans look at most Lookahead days ahead.
const Lookahead = 3

// Thresholds are the constants of the entry and exit rules. Ratios are fractions
// (0.02 is 2%), multipliers are applied to the reference value.
type Thresholds struct {
	EPSBeat         float64 `yaml:"eps_beat" json:"eps_beat"`                 // actual > estimate * EPSBeat
	EPSMiss         float64 `yaml:"eps_miss" json:"eps_miss"`                 // actual <= estimate * EPSMiss
	RSIMove         float64 `yaml:"rsi_move" json:"rsi_move"`                 // relative RSI change over the window
	PriceMove       float64 `yaml:"price_move" json:"price_move"`             // next-day relative price change
	VolatilitySpike float64 `yaml:"volatility_spike" json:"volatility_spike"` // next-day volatility multiplier
	ExitPriceMove   float64 `yaml:"exit_price_move" json:"exit_price_move"`
	ExitRSIMove     float64 `yaml:"exit_rsi_move" json:"exit_rsi_move"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		EPSBeat:         1.05,
		EPSMiss:         0.95,
		RSIMove:         0.10,
		PriceMove:       0.02,
		VolatilitySpike: 1.2,
		ExitPriceMove:   0.02,
		ExitRSIMove:     0.05,
	}
}

// Validate rejects thresholds that are not positive finite numbers. A zero
// multiplier or ratio would make its rule trivially true or false.
func (th Thresholds) Validate() error {
	var errs []error
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"eps_beat", th.EPSBeat},
		{"eps_miss", th.EPSMiss},
		{"rsi_move", th.RSIMove},
		{"price_move", th.PriceMove},
		{"volatility_spike", th.VolatilitySpike},
		{"exit_price_move", th.ExitPriceMove},
		{"exit_rsi_move", th.ExitRSIMove},
	} {
		if !indicator.IsDefined(f.value) || f.value <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidThresholds, f.name, f.value))
		}
	}
	return errors.Join(errs...)
}

// Check holds each entry sub-condition for one evaluation day.
type Check struct {
	EPS        bool `json:"eps"`
	RSI        bool `json:"rsi"`
	PriceJump  bool `json:"price_jump"`
	Follow1    bool `json:"follow_1"`
	Follow2    bool `json:"follow_2"`
	Volatility bool `json:"volatility"`
}

// Met reports whether every sub-condition holds.
func (c Check) Met() bool {
	return c.EPS && c.RSI && c.PriceJump && c.Follow1 && c.Follow2 && c.Volatility
}

// EvaluateBuy checks the buy rules on window [i, i+3]. Windows running past the
// table, undefined values and zero divisors all leave the affected checks false.
func EvaluateBuy(t *series.Table, i int, th Thresholds) Check {
	if i < 0 || i+Lookahead >= t.Len() {
		return Check{}
	}
	c := t.Close
	return Check{
		EPS:        defined(t.ActualEPS[i], t.EPSEstimate[i]) && t.ActualEPS[i] > t.EPSEstimate[i]*th.EPSBeat,
		RSI:        change(t.RSI[i], t.RSI[i+Lookahead], th.RSIMove),
		PriceJump:  strictChange(c[i], c[i+1], th.PriceMove),
		Follow1:    defined(c[i+1], c[i+2]) && c[i+2] > c[i+1],
		Follow2:    defined(c[i+2], c[i+3]) && c[i+3] > c[i+2],
		Volatility: spike(t.Volatility[i], t.Volatility[i+1], th.VolatilitySpike),
	}
}

// EvaluateSell mirrors EvaluateBuy for an earnings miss followed by a sell-off.
// The volatility rule is the same upward spike as for buys.
func EvaluateSell(t *series.Table, i int, th Thresholds) Check {
	if i < 0 || i+Lookahead >= t.Len() {
		return Check{}
	}
	c := t.Close
	return Check{
		EPS:        defined(t.ActualEPS[i], t.EPSEstimate[i]) && t.ActualEPS[i] <= t.EPSEstimate[i]*th.EPSMiss,
		RSI:        change(t.RSI[i], t.RSI[i+Lookahead], -th.RSIMove),
		PriceJump:  strictChange(c[i], c[i+1], -th.PriceMove),
		Follow1:    defined(c[i+1], c[i+2]) && c[i+2] < c[i+1],
		Follow2:    defined(c[i+2], c[i+3]) && c[i+3] < c[i+2],
		Volatility: spike(t.Volatility[i], t.Volatility[i+1], th.VolatilitySpike),
	}
}

func BuyEligible(t *series.Table, i int, th Thresholds) bool {
	return EvaluateBuy(t, i, th).Met()
}

func SellEligible(t *series.Table, i int, th Thresholds) bool {
	return EvaluateSell(t, i, th).Met()
}

// Exit is the day an open position should be closed.
type Exit struct {
	Index  int
	Reason string
}

// BuyExit scans the Lookahead days after entry for the first day the price fell
// more than ExitPriceMove, or RSI fell more than ExitRSIMove, relative to the
// entry day.
func BuyExit(t *series.Table, entry int, th Thresholds) (Exit, bool) {
	return scanExit(t, entry, -1, th)
}

// SellExit is BuyExit for rises.
func SellExit(t *series.Table, entry int, th Thresholds) (Exit, bool) {
	return scanExit(t, entry, 1, th)
}

// scanExit triggers when the move in direction dir (+1 rise, -1 fall) exceeds the exit thresholds.
func scanExit(t *series.Table, entry, dir int, th Thresholds) (Exit, bool) {
	if entry < 0 || entry >= t.Len() {
		return Exit{}, false
	}
	last := min(entry+Lookahead, t.Len()-1)
	d := float64(dir)
	for j := entry + 1; j <= last; j++ {
		if rel, ok := relative(t.Close[entry], t.Close[j]); ok && rel*d > th.ExitPriceMove {
			return Exit{Index: j, Reason: "price"}, true
		}
		if rel, ok := relative(t.RSI[entry], t.RSI[j]); ok && rel*d > th.ExitRSIMove {
			return Exit{Index: j, Reason: "rsi"}, true
		}
	}
	return Exit{}, false
}

// change reports (to-from)/from >= move for positive move, or (from-to)/from >= -move for negative move.
func change(from, to, move float64) bool {
	rel, ok := relative(from, to)
	if !ok {
		return false
	}
	if move < 0 {
		return -rel >= -move
	}
	return rel >= move
}

// strictChange is change with a strict inequality.
func strictChange(from, to, move float64) bool {
	rel, ok := relative(from, to)
	if !ok {
		return false
	}
	if move < 0 {
		return -rel > -move
	}
	return rel > move
}

func spike(prev, next, mult float64) bool {
	return defined(prev, next) && next > prev*mult
}

// relative is (to-from)/from; it is not ok when either value is undefined or from is zero.
func relative(from, to float64) (float64, bool) {
	if !defined(from, to) || from == 0 {
		return 0, false
	}
	return (to - from) / from, true
}

func defined(vals ...float64) bool {
	for _, v := range vals {
		if !indicator.IsDefined(v) {
			return false
		}
	}
	return true
}
