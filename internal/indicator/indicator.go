// Package indicator computes technical indicators over closing-price series.
//
// Every calculation returns a slice aligned with its input; positions without
// enough history hold NaN.
package indicator

import "math"

// DefaultPeriod is the look-back used by the EPS momentum strategy for both RSI and volatility.
const DefaultPeriod = 14

// Indicator is the interface for all technical indicators.
type Indicator interface {
	Name() string
	Period() int
	Calculate(values []float64) []float64
}

// RSI is the rolling-mean Relative Strength Index.
type RSI struct{ period int }

// NewRSI returns an RSI indicator over period price changes.
func NewRSI(period int) RSI { return RSI{period: period} }

func (r RSI) Name() string                          { return "rsi" }
func (r RSI) Period() int                           { return r.period }
func (r RSI) Calculate(values []float64) []float64 { return CalculateRSI(values, r.period) }

// Volatility is the rolling sample standard deviation of prices.
type Volatility struct{ period int }

// NewVolatility returns a volatility indicator over period prices.
func NewVolatility(period int) Volatility { return Volatility{period: period} }

func (v Volatility) Name() string { return "volatility" }
func (v Volatility) Period() int  { return v.period }
func (v Volatility) Calculate(values []float64) []float64 {
	return CalculateVolatility(values, v.period)
}

// IsDefined reports whether v holds a usable value.
func IsDefined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
