package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "backtest_runs_total", Help: "Backtest runs by outcome"},
		[]string{"symbol", "status"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "backtest_signals_total", Help: "Signals emitted by the strategy"},
		[]string{"symbol", "kind"},
	)
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "backtest_run_duration_seconds", Help: "Wall time of a full backtest pipeline", Buckets: prometheus.DefBuckets},
		[]string{"symbol"},
	)
	ReturnPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "backtest_return_percent", Help: "Return of the latest successful run"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(RunsTotal, SignalsTotal, RunDuration, ReturnPercent)
}

// ObserveRun records a finished pipeline. status is "ok" or "error".
func ObserveRun(symbol, status string, took time.Duration) {
	RunsTotal.WithLabelValues(symbol, status).Inc()
	RunDuration.WithLabelValues(symbol).Observe(took.Seconds())
}

func ObserveSignal(symbol, kind string) {
	SignalsTotal.WithLabelValues(symbol, kind).Inc()
}

func SetReturn(symbol string, pct float64) {
	ReturnPercent.WithLabelValues(symbol).Set(pct)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
