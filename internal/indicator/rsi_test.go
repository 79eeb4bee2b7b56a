package indicator

import (
	"math"
	"testing"

	talib "github.com/markcheno/go-talib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateRSI(t *testing.T) {
	nan := math.NaN()

	tests := []struct {
		name     string
		prices   []float64
		period   int
		expected []float64
		isNil    bool
	}{
		{
			name:   "Basic RSI calculation",
			prices: []float64{10, 11, 12, 11, 10, 9, 10, 11, 12, 13, 14, 13, 12, 11, 12},
			period: 5,
			expected: []float64{
				nan, nan, nan, nan, nan,
				40, 40, 40, 60, 80, 100, 80, 60, 40, 40,
			},
		},
		{
			name:     "All increasing prices",
			prices:   []float64{10, 11, 12, 13, 14, 15, 16},
			period:   3,
			expected: []float64{nan, nan, nan, 100, 100, 100, 100},
		},
		{
			name:     "All decreasing prices",
			prices:   []float64{20, 19, 18, 17, 16, 15},
			period:   3,
			expected: []float64{nan, nan, nan, 0, 0, 0},
		},
		{
			name:     "Flat prices",
			prices:   []float64{10, 10, 10, 10, 10, 10},
			period:   3,
			expected: []float64{nan, nan, nan, 100, 100, 100},
		},
		{
			name:     "Alternating prices",
			prices:   []float64{10, 11, 10, 11, 10},
			period:   2,
			expected: []float64{nan, nan, 50, 50, 50},
		},
		{
			name:     "Insufficient data",
			prices:   []float64{10, 11, 12},
			period:   5,
			expected: []float64{nan, nan, nan},
		},
		{
			name:     "Exactly period prices",
			prices:   []float64{10, 11, 12},
			period:   3,
			expected: []float64{nan, nan, nan},
		},
		{
			name:   "Invalid period",
			prices: []float64{10, 11, 12, 13, 14},
			period: 0,
			isNil:  true,
		},
		{
			name:     "Empty prices",
			prices:   []float64{},
			period:   5,
			expected: []float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateRSI(tt.prices, tt.period)

			if tt.isNil {
				assert.Nil(t, result)
				return
			}

			require.Equal(t, len(tt.expected), len(result), "RSI array length mismatch")
			for i := range tt.expected {
				if math.IsNaN(tt.expected[i]) {
					assert.True(t, math.IsNaN(result[i]), "Expected NaN at index %d", i)
				} else {
					assert.InDelta(t, tt.expected[i], result[i], 0.01, "RSI mismatch at index %d", i)
				}
			}
		})
	}
}

func TestCalculateRSI_NoLossesIsHundred(t *testing.T) {
	// Losses early on, then a long rally: every window made only of gains must read exactly 100.
	prices := []float64{50, 48, 47, 49, 50, 51, 52, 53, 54, 55, 56, 57, 58, 59, 60, 61, 62, 63, 64, 65, 66}
	period := 5
	rsi := CalculateRSI(prices, period)

	for i := period; i < len(prices); i++ {
		if i-period+1 >= 3 {
			assert.Equal(t, 100.0, rsi[i], "index %d", i)
		} else {
			assert.Less(t, rsi[i], 100.0, "index %d", i)
		}
	}
}

func TestCalculateRSI_WarmupLength(t *testing.T) {
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}

	for _, period := range []int{2, 5, 14} {
		rsi := CalculateRSI(prices, period)
		for i, v := range rsi {
			if i < period {
				assert.True(t, math.IsNaN(v), "period %d index %d should be undefined", period, i)
			} else {
				assert.True(t, IsDefined(v), "period %d index %d should be defined", period, i)
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 100.0)
			}
		}
	}
}

func TestCalculateRSI_MatchesTalibMeans(t *testing.T) {
	prices := wavePrices(120)
	period := DefaultPeriod

	gains := make([]float64, len(prices)-1)
	losses := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gains[i-1] = d
		} else {
			losses[i-1] = -d
		}
	}
	meanGain := talib.Sma(gains, period)
	meanLoss := talib.Sma(losses, period)

	rsi := CalculateRSI(prices, period)
	for i := period; i < len(prices); i++ {
		k := i - 1
		require.Greater(t, meanLoss[k], 1e-9, "fixture must keep losses in every window")
		expected := 100 - 100/(1+meanGain[k]/meanLoss[k])
		assert.InDelta(t, expected, rsi[i], 1e-6, "RSI mismatch at index %d", i)
	}
}

func TestRSIIndicator(t *testing.T) {
	var ind Indicator = NewRSI(3)
	assert.Equal(t, "rsi", ind.Name())
	assert.Equal(t, 3, ind.Period())
	assert.Len(t, ind.Calculate([]float64{1, 2, 3, 4, 5}), 5)
}

// wavePrices oscillates fast enough that every 14-change window has both gains and losses.
func wavePrices(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 8*math.Sin(float64(i)*1.3) + 0.05*float64(i)
	}
	return out
}
