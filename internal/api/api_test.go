package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/eps-trader/internal/backtest"
	"github.com/amirphl/eps-trader/internal/candle"
	"github.com/amirphl/eps-trader/internal/db"
	"github.com/amirphl/eps-trader/internal/earnings"
	"github.com/amirphl/eps-trader/internal/journal"
	"github.com/amirphl/eps-trader/internal/strategy"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *db.MemoryStorage, symbol string, n int) {
	candles := make([]candle.Candle, n)
	for i := range candles {
		candles[i] = candle.Candle{
			Timestamp: day0.AddDate(0, 0, i),
			Close:     100 + float64(i%5),
			Volume:    1000,
			Symbol:    symbol,
			Source:    "test",
		}
	}
	require.NoError(t, store.SaveCandles(context.Background(), candles))
}

func newTestServer(t *testing.T) (*Server, *db.MemoryStorage) {
	gin.SetMode(gin.TestMode)
	store := db.NewMemory()
	seed(t, store, "AAPL", 40)
	seed(t, store, "TINY", 3)

	runner := backtest.NewRunner(store, earnings.DefaultCalendar(), nil)
	runner.Store = store
	runner.Journal = journal.NewMemory(0)
	return NewServer(runner, store, nil), store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetBacktest(t *testing.T) {
	s, _ := newTestServer(t)
	r := s.Router()

	w := do(t, r, http.MethodPost, "/api/v1/backtests", `{"symbol":"aapl","from":"2023-01-02","initial_balance":5000}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created backtest.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "AAPL", created.Symbol)
	assert.Equal(t, 40, created.Candles)
	assert.Equal(t, 5000.0, created.Results.StartingBalance)

	w = do(t, r, http.MethodGet, "/api/v1/backtests/"+created.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	var fetched backtest.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, created.Results.FinalBalance, fetched.Results.FinalBalance)

	w = do(t, r, http.MethodGet, "/api/v1/backtests?symbol=aapl&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Runs []backtest.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, created.ID, list.Runs[0].ID)

	w = do(t, r, http.MethodDelete, "/api/v1/backtests/"+created.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, r, http.MethodGet, "/api/v1/backtests/"+created.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateBacktestErrors(t *testing.T) {
	s, _ := newTestServer(t)
	r := s.Router()

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"symbol":`, http.StatusBadRequest},
		{"missing symbol", `{"from":"2023-01-02"}`, http.StatusBadRequest},
		{"bad date", `{"symbol":"AAPL","from":"02/01/2023"}`, http.StatusBadRequest},
		{"negative balance", `{"symbol":"AAPL","initial_balance":-1}`, http.StatusBadRequest},
		{"zero threshold", `{"symbol":"AAPL","thresholds":{"eps_miss":0}}`, http.StatusBadRequest},
		{"malformed thresholds", `{"symbol":"AAPL","thresholds":{"eps_beat":"high"}}`, http.StatusBadRequest},
		{"reversed range", `{"symbol":"AAPL","from":"2023-02-01","to":"2023-01-01"}`, http.StatusUnprocessableEntity},
		{"too few days", `{"symbol":"TINY"}`, http.StatusUnprocessableEntity},
		{"unknown symbol", `{"symbol":"NOPE"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/api/v1/backtests", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestCreateBacktestPartialThresholds(t *testing.T) {
	s, _ := newTestServer(t)
	s.Runner.Thresholds.VolatilitySpike = 1.5
	r := s.Router()

	w := do(t, r, http.MethodPost, "/api/v1/backtests", `{"symbol":"AAPL","thresholds":{"eps_beat":1.1}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created backtest.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	want := strategy.DefaultThresholds()
	want.EPSBeat = 1.1
	want.VolatilitySpike = 1.5
	assert.Equal(t, want, created.Thresholds)

	w = do(t, r, http.MethodPost, "/api/v1/backtests", `{"symbol":"AAPL","thresholds":null}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, s.Runner.Thresholds, created.Thresholds)
}

func TestGetBacktestErrors(t *testing.T) {
	s, _ := newTestServer(t)
	r := s.Router()

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/v1/backtests/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/v1/backtests/"+uuid.NewString(), "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/v1/backtests?limit=0", "").Code)
}

func TestServerWithoutStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := db.NewMemory()
	seed(t, store, "AAPL", 20)
	s := NewServer(backtest.NewRunner(store, nil, nil), nil, nil)
	r := s.Router()

	w := do(t, r, http.MethodPost, "/api/v1/backtests", `{"symbol":"AAPL"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/backtests", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"runs":[]}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/v1/backtests/"+uuid.NewString(), "").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	r := s.Router()

	w := do(t, r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]any
	require.NoError(t, json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&health))
	assert.Equal(t, "healthy", health["status"])

	do(t, r, http.MethodPost, "/api/v1/backtests", `{"symbol":"AAPL"}`)
	w = do(t, r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "backtest_runs_total")
}

func TestJournal(t *testing.T) {
	s, _ := newTestServer(t)
	r := s.Router()

	w := do(t, r, http.MethodPost, "/api/v1/backtests", `{"symbol":"AAPL"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/journal?type=run&symbol=aapl", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Events []journal.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, "AAPL", body.Events[0].Symbol)
	assert.Equal(t, day0.AddDate(0, 0, 39), body.Events[0].Time)

	w = do(t, r, http.MethodGet, "/api/v1/journal?symbol=MSFT", "")
	assert.JSONEq(t, `{"events":[]}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/v1/journal?from=yesterday", "").Code)
}
