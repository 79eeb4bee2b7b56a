package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeRegistersMetrics(t *testing.T) {
	srv := Serve(":0")
	defer srv.Close()

	ObserveRun("AAPL", "ok", 120*time.Millisecond)
	ObserveSignal("AAPL", "Buy")
	SetReturn("AAPL", 10)

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, want := range []string{"backtest_runs_total", "backtest_signals_total", "backtest_run_duration_seconds", "backtest_return_percent"} {
		assert.True(t, names[want], "%s metric not found", want)
	}
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(SignalsTotal.WithLabelValues("MSFT", "Sell"))
	ObserveSignal("MSFT", "Sell")
	ObserveSignal("MSFT", "Sell")
	assert.Equal(t, before+2, testutil.ToFloat64(SignalsTotal.WithLabelValues("MSFT", "Sell")))

	SetReturn("MSFT", -3.5)
	assert.Equal(t, -3.5, testutil.ToFloat64(ReturnPercent.WithLabelValues("MSFT")))
}

func TestHandlerExposesText(t *testing.T) {
	ObserveRun("TSLA", "error", time.Second)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `backtest_runs_total{status="error",symbol="TSLA"}`)
}
