package indicator

import "math"

// CalculateVolatility returns the trailing sample standard deviation (n-1
// denominator) of prices over period values. The first period-1 values are NaN.
// Periods below 2 have no sample deviation and return nil.
func CalculateVolatility(prices []float64, period int) []float64 {
	if period < 2 {
		return nil
	}
	out := nanSlice(len(prices))
	for i := period - 1; i < len(prices); i++ {
		window := prices[i-period+1 : i+1]
		var mean float64
		for _, p := range window {
			mean += p
		}
		mean /= float64(period)

		var ss float64
		for _, p := range window {
			ss += (p - mean) * (p - mean)
		}
		out[i] = math.Sqrt(ss / float64(period-1))
	}
	return out
}
