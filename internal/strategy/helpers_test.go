package strategy

import (
	"math"
	"time"

	"github.com/amirphl/eps-trader/internal/series"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func fill(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// buyScenario is a 20-day table: flat at 100 for days 0-9, an earnings beat
// (2.0 vs 1.0) reported on day 5, then 100 -> 103 -> 104 -> 105 on days 10-13
// with RSI up 12% and a volatility spike on day 11. Only day 10 satisfies the
// buy rules and nothing afterwards reverses.
func buyScenario() *series.Table {
	const n = 20
	t := &series.Table{
		Symbol:      "TEST",
		Dates:       make([]time.Time, n),
		Close:       fill(n, 100),
		Volume:      fill(n, 1000),
		ActualEPS:   fill(n, math.NaN()),
		EPSEstimate: fill(n, math.NaN()),
		RSI:         fill(n, 50),
		Volatility:  fill(n, 1),
	}
	for i := range t.Dates {
		t.Dates[i] = day0.AddDate(0, 0, i)
	}
	for i := 5; i < n; i++ {
		t.ActualEPS[i] = 2.0
		t.EPSEstimate[i] = 1.0
	}
	copy(t.Close[10:], []float64{100, 103, 104, 105, 105, 106, 107, 108, 109, 110})
	for i := 13; i < n; i++ {
		t.RSI[i] = 56
	}
	t.Volatility[11] = 2
	return t
}

// sellScenario mirrors buyScenario with an earnings miss and a sell-off.
func sellScenario() *series.Table {
	t := buyScenario()
	for i := 5; i < t.Len(); i++ {
		t.ActualEPS[i] = 0.5
	}
	copy(t.Close[10:], []float64{100, 97, 96, 95, 95, 94, 93, 92, 91, 90})
	for i := range t.RSI {
		t.RSI[i] = 50
		if i >= 13 {
			t.RSI[i] = 44
		}
	}
	return t
}
