// Package db
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/eps-trader/internal/backtest"
	"github.com/amirphl/eps-trader/internal/candle"
	"github.com/amirphl/eps-trader/internal/earnings"
	"github.com/google/uuid"
)

var ErrRunNotFound = errors.New("backtest run not found")

// CandleStorage keeps daily candles. It doubles as a price feed.
type CandleStorage interface {
	candle.PriceFeed
	SaveCandles(ctx context.Context, candles []candle.Candle) error
	GetCandles(ctx context.Context, symbol string, start, end time.Time) ([]candle.Candle, error)
	DeleteCandles(ctx context.Context, symbol string, before time.Time) error
}

// EarningsStorage keeps quarterly reports per symbol.
type EarningsStorage interface {
	SaveEarnings(ctx context.Context, symbol string, reports []earnings.Report) error
	GetEarnings(ctx context.Context, symbol string) ([]earnings.Report, error)
}

// RunStorage keeps finished backtests with their signal logs.
type RunStorage interface {
	backtest.RunSaver
	GetRun(ctx context.Context, id uuid.UUID) (*backtest.Run, error)
	// ListRuns returns the newest runs first, without signal logs. An empty
	// symbol lists every symbol.
	ListRuns(ctx context.Context, symbol string, limit int) ([]*backtest.Run, error)
	DeleteRuns(ctx context.Context, ids []uuid.UUID) error
}

// Storage is the interface for all persistent storage.
type Storage interface {
	CandleStorage
	EarningsStorage
	RunStorage
	Close() error
}

var (
	_ Storage = (*Default)(nil)
	_ Storage = (*MemoryStorage)(nil)
)

// LoadCalendar reads the stored reports of symbols into a calendar.
func LoadCalendar(ctx context.Context, s EarningsStorage, symbols []string) (earnings.Calendar, error) {
	cal := make(earnings.Calendar, len(symbols))
	for _, symbol := range symbols {
		reports, err := s.GetEarnings(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("LoadCalendar | %s: %w", symbol, err)
		}
		cal.Add(symbol, reports...)
	}
	return cal, nil
}

// CachedFeed serves candles from storage and falls back to source when the
// range is empty, saving what it downloaded.
type CachedFeed struct {
	Store  CandleStorage
	Source candle.PriceFeed
}

func (f *CachedFeed) FetchCandles(ctx context.Context, symbol string, start, end time.Time) ([]candle.Candle, error) {
	candles, err := f.Store.GetCandles(ctx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("CachedFeed | error loading candles from database: %w", err)
	}
	if len(candles) > 0 || f.Source == nil {
		return candles, nil
	}

	downloaded, err := f.Source.FetchCandles(ctx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("CachedFeed | error downloading candles: %w", err)
	}
	if err := f.Store.SaveCandles(ctx, downloaded); err != nil {
		return nil, fmt.Errorf("CachedFeed | error saving candles to database: %w", err)
	}
	return downloaded, nil
}
