// Package series builds the enriched daily table the strategy reads: prices,
// aligned EPS and indicators as parallel slices sharing one index.
package series

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/amirphl/eps-trader/internal/candle"
	"github.com/amirphl/eps-trader/internal/earnings"
	"github.com/amirphl/eps-trader/internal/indicator"
)

var ErrInvalidPeriod = errors.New("indicator periods must be at least 2")

// Options selects indicator periods.
type Options struct {
	RSIPeriod        int
	VolatilityPeriod int
}

// DefaultOptions uses the 14-day look-back for both indicators.
func DefaultOptions() Options {
	return Options{RSIPeriod: indicator.DefaultPeriod, VolatilityPeriod: indicator.DefaultPeriod}
}

// Table is read-only after Build. Undefined values are NaN.
type Table struct {
	Symbol      string
	Dates       []time.Time
	Close       []float64
	Volume      []float64
	EPSEstimate []float64
	ActualEPS   []float64
	RSI         []float64
	Volatility  []float64
}

// Build validates candles and derives the table.
func Build(candles []candle.Candle, reports []earnings.Report, opts Options) (*Table, error) {
	if opts.RSIPeriod < 2 || opts.VolatilityPeriod < 2 {
		return nil, fmt.Errorf("%w: rsi=%d volatility=%d", ErrInvalidPeriod, opts.RSIPeriod, opts.VolatilityPeriod)
	}
	if err := candle.ValidateSeries(candles); err != nil {
		return nil, fmt.Errorf("build table: %w", err)
	}

	n := len(candles)
	t := &Table{
		Symbol: candles[0].Symbol,
		Dates:  make([]time.Time, n),
		Close:  candle.Closes(candles),
		Volume: make([]float64, n),
	}
	for i, c := range candles {
		t.Dates[i] = candle.Date(c.Timestamp)
		t.Volume[i] = c.Volume
	}

	t.ActualEPS, t.EPSEstimate = earnings.Align(t.Dates, reports)
	t.RSI = indicator.NewRSI(opts.RSIPeriod).Calculate(t.Close)
	t.Volatility = indicator.NewVolatility(opts.VolatilityPeriod).Calculate(t.Close)
	return t, nil
}

// Len is the number of trading days.
func (t *Table) Len() int { return len(t.Dates) }

// IndexOf returns the row of the calendar day of d, or -1.
func (t *Table) IndexOf(d time.Time) int {
	day := candle.Date(d)
	lo, hi := 0, len(t.Dates)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.Dates[mid].Before(day) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(t.Dates) && t.Dates[lo].Equal(day) {
		return lo
	}
	return -1
}

// Row is a single day of the table, handy for reports.
type Row struct {
	Date        time.Time `json:"date"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	EPSEstimate *float64  `json:"eps_estimate,omitempty"`
	ActualEPS   *float64  `json:"actual_eps,omitempty"`
	RSI         *float64  `json:"rsi,omitempty"`
	Volatility  *float64  `json:"volatility,omitempty"`
}

// Row returns day i with undefined values as nil. Indicator and EPS columns
// shorter than the table read as undefined, a missing volume as zero.
func (t *Table) Row(i int) Row {
	var volume float64
	if i < len(t.Volume) {
		volume = t.Volume[i]
	}
	return Row{
		Date:        t.Dates[i],
		Close:       t.Close[i],
		Volume:      volume,
		EPSEstimate: optional(at(t.EPSEstimate, i)),
		ActualEPS:   optional(at(t.ActualEPS, i)),
		RSI:         optional(at(t.RSI, i)),
		Volatility:  optional(at(t.Volatility, i)),
	}
}

func at(col []float64, i int) float64 {
	if i < len(col) {
		return col[i]
	}
	return math.NaN()
}

func optional(v float64) *float64 {
	if !indicator.IsDefined(v) {
		return nil
	}
	return &v
}
