package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/eps-trader/internal/backtest"
	"github.com/amirphl/eps-trader/internal/candle"
	"github.com/amirphl/eps-trader/internal/earnings"
	"github.com/google/uuid"
)

// MemoryStorage keeps everything in maps. Useful for tests and for the HTTP
// server when no database is configured.
type MemoryStorage struct {
	mu sync.RWMutex

	// Candles keyed by upper-case symbol, then day
	candles map[string]map[time.Time]candle.Candle

	// Earnings keyed by upper-case symbol, then report day
	earnings map[string]map[time.Time]earnings.Report

	// Runs by id, plus insertion order for listing
	runs     map[uuid.UUID]*backtest.Run
	runOrder []uuid.UUID
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		candles:  make(map[string]map[time.Time]candle.Candle),
		earnings: make(map[string]map[time.Time]earnings.Report),
		runs:     make(map[uuid.UUID]*backtest.Run),
	}
}

func (m *MemoryStorage) Close() error { return nil }

// -------- CandleStorage --------

func (m *MemoryStorage) SaveCandles(ctx context.Context, candles []candle.Candle) error {
	for i := range candles {
		if err := candles[i].Validate(); err != nil {
			return fmt.Errorf("invalid candle at index %d for %s: %w", i, candles[i].Symbol, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range candles {
		c.Symbol = strings.ToUpper(c.Symbol)
		c.Timestamp = candle.Date(c.Timestamp)
		byDay, ok := m.candles[c.Symbol]
		if !ok {
			byDay = make(map[time.Time]candle.Candle)
			m.candles[c.Symbol] = byDay
		}
		byDay[c.Timestamp] = c
	}
	return nil
}

func (m *MemoryStorage) GetCandles(ctx context.Context, symbol string, start, end time.Time) ([]candle.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []candle.Candle
	for _, c := range m.candles[strings.ToUpper(symbol)] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return candle.InRange(out, candle.Date(start), dayBoundOrZero(end)), nil
}

func dayBoundOrZero(end time.Time) time.Time {
	if end.IsZero() {
		return end
	}
	return dayBound(end)
}

func (m *MemoryStorage) FetchCandles(ctx context.Context, symbol string, start, end time.Time) ([]candle.Candle, error) {
	return m.GetCandles(ctx, symbol, start, end)
}

func (m *MemoryStorage) DeleteCandles(ctx context.Context, symbol string, before time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	before = candle.Date(before)
	for day := range m.candles[strings.ToUpper(symbol)] {
		if day.Before(before) {
			delete(m.candles[strings.ToUpper(symbol)], day)
		}
	}
	return nil
}

// -------- EarningsStorage --------

func (m *MemoryStorage) SaveEarnings(ctx context.Context, symbol string, reports []earnings.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToUpper(symbol)
	byDay, ok := m.earnings[key]
	if !ok {
		byDay = make(map[time.Time]earnings.Report)
		m.earnings[key] = byDay
	}
	for _, r := range reports {
		r.Date = candle.Date(r.Date)
		byDay[r.Date] = r
	}
	return nil
}

func (m *MemoryStorage) GetEarnings(ctx context.Context, symbol string) ([]earnings.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []earnings.Report
	for _, r := range m.earnings[strings.ToUpper(symbol)] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// -------- RunStorage --------

func (m *MemoryStorage) SaveRun(ctx context.Context, run *backtest.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	cp := *run
	cp.Signals = append(cp.Signals[:0:0], run.Signals...)
	m.runs[run.ID] = &cp
	m.runOrder = append(m.runOrder, run.ID)
	return nil
}

func (m *MemoryStorage) GetRun(ctx context.Context, id uuid.UUID) (*backtest.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	cp := *run
	cp.Signals = append(cp.Signals[:0:0], run.Signals...)
	return &cp, nil
}

func (m *MemoryStorage) ListRuns(ctx context.Context, symbol string, limit int) ([]*backtest.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*backtest.Run
	for i := len(m.runOrder) - 1; i >= 0 && len(out) < limit; i-- {
		run, ok := m.runs[m.runOrder[i]]
		if !ok {
			continue
		}
		if symbol != "" && !strings.EqualFold(run.Symbol, symbol) {
			continue
		}
		cp := *run
		cp.Signals = nil
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStorage) DeleteRuns(ctx context.Context, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.runs, id)
	}
	kept := m.runOrder[:0]
	for _, id := range m.runOrder {
		if _, ok := m.runs[id]; ok {
			kept = append(kept, id)
		}
	}
	m.runOrder = kept
	return nil
}
