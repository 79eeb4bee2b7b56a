package indicator

// CalculateRSI returns the RSI of prices using a trailing simple mean of gains and
// losses over period price changes:
//
//	RS  = mean(gain) / mean(loss)
//	RSI = 100 - 100/(1+RS)
//
// A window without losses yields 100, flat windows included. The first period
// values are NaN since they lack period changes. A non-positive period returns nil.
func CalculateRSI(prices []float64, period int) []float64 {
	if period <= 0 {
		return nil
	}
	rsi := nanSlice(len(prices))
	if len(prices) <= period {
		return rsi
	}

	gains := make([]float64, len(prices))
	losses := make([]float64, len(prices))
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	for i := period; i < len(prices); i++ {
		// Sum each window from scratch so a loss-free window gives an exact zero.
		var gain, loss float64
		for j := i - period + 1; j <= i; j++ {
			gain += gains[j]
			loss += losses[j]
		}
		rsi[i] = rsiFromMeans(gain/float64(period), loss/float64(period))
	}
	return rsi
}

func rsiFromMeans(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
