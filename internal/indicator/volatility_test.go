package indicator

import (
	"math"
	"testing"

	talib "github.com/markcheno/go-talib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateVolatility(t *testing.T) {
	nan := math.NaN()

	tests := []struct {
		name     string
		prices   []float64
		period   int
		expected []float64
		isNil    bool
	}{
		{
			name:     "Linear prices",
			prices:   []float64{1, 2, 3, 4, 5},
			period:   3,
			expected: []float64{nan, nan, 1, 1, 1},
		},
		{
			name:     "Textbook sample",
			prices:   []float64{2, 4, 4, 4, 5, 5, 7, 9},
			period:   8,
			expected: []float64{nan, nan, nan, nan, nan, nan, nan, math.Sqrt(32.0 / 7.0)},
		},
		{
			name:     "Flat prices",
			prices:   []float64{100, 100, 100, 100},
			period:   2,
			expected: []float64{nan, 0, 0, 0},
		},
		{
			name:     "Insufficient data",
			prices:   []float64{1, 2},
			period:   3,
			expected: []float64{nan, nan},
		},
		{
			name:   "Period too small",
			prices: []float64{1, 2, 3},
			period: 1,
			isNil:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateVolatility(tt.prices, tt.period)
			if tt.isNil {
				assert.Nil(t, result)
				return
			}
			require.Len(t, result, len(tt.expected))
			for i := range tt.expected {
				if math.IsNaN(tt.expected[i]) {
					assert.True(t, math.IsNaN(result[i]), "Expected NaN at index %d", i)
				} else {
					assert.InDelta(t, tt.expected[i], result[i], 1e-9, "volatility mismatch at index %d", i)
				}
			}
		})
	}
}

func TestCalculateVolatility_WarmupLength(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 50 + 1.5*float64(i)
	}
	vol := CalculateVolatility(prices, DefaultPeriod)
	for i, v := range vol {
		if i < DefaultPeriod-1 {
			assert.True(t, math.IsNaN(v), "index %d should be undefined", i)
		} else {
			assert.True(t, IsDefined(v), "index %d should be defined", i)
			assert.GreaterOrEqual(t, v, 0.0)
		}
	}
}

func TestCalculateVolatility_MatchesTalib(t *testing.T) {
	prices := wavePrices(80)
	period := DefaultPeriod

	// talib reports the population deviation; rescale to the sample estimator.
	population := talib.StdDev(prices, period, 1)
	scale := math.Sqrt(float64(period) / float64(period-1))

	vol := CalculateVolatility(prices, period)
	for i := period - 1; i < len(prices); i++ {
		assert.InDelta(t, population[i]*scale, vol[i], 1e-6, "volatility mismatch at index %d", i)
	}
}

func TestVolatilityIndicator(t *testing.T) {
	var ind Indicator = NewVolatility(4)
	assert.Equal(t, "volatility", ind.Name())
	assert.Equal(t, 4, ind.Period())
}
