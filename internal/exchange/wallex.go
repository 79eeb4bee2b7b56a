package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/amirphl/eps-trader/internal/candle"
	"github.com/amirphl/eps-trader/internal/utils"
	wallex "github.com/wallexchange/wallex-go"
)

// DailyResolution is the wallex candle resolution for one trading day.
const DailyResolution = "1D"

type candleClient interface {
	Candles(symbol, resolution string, from, to time.Time) ([]*wallex.Candle, error)
}

var _ Exchange = (*WallexExchange)(nil)

type WallexExchange struct {
	client candleClient

	// Attempts and Delay configure the retry with exponential backoff.
	Attempts int
	Delay    time.Duration
	// ChunkDays bounds the range requested in a single call.
	ChunkDays int
	// now anchors an open end bound.
	now func() time.Time
}

func NewWallexExchange(apiKey string) *WallexExchange {
	return &WallexExchange{
		client:    wallex.New(wallex.ClientOptions{APIKey: apiKey}),
		Attempts:  3,
		Delay:     2 * time.Second,
		ChunkDays: 365,
		now:       time.Now,
	}
}

func (w *WallexExchange) Name() string {
	return "wallex"
}

// retry wraps a function with retry logic for transient errors, using exponential backoff and error logging.
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	backoff := delay
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		utils.GetLogger().Warn().Err(err).Int("attempt", i).Int("attempts", attempts).Dur("backoff", backoff).
			Msg("Exchange | Wallex retry attempt failed")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		// Exponential backoff, but cap at 5 minutes
		if backoff < 5*time.Minute {
			backoff = min(backoff*2, 5*time.Minute)
		}
	}
	return fmt.Errorf("all %d retry attempts failed: %w", attempts, err)
}

// FetchCandles downloads daily candles in [start, end), chunked by ChunkDays.
// A zero start is rejected because wallex needs a bounded range; a zero end
// means now.
func (w *WallexExchange) FetchCandles(ctx context.Context, symbol string, start, end time.Time) ([]candle.Candle, error) {
	if start.IsZero() {
		return nil, fmt.Errorf("Wallex FetchCandles | a start date is required")
	}
	if end.IsZero() {
		end = w.now().UTC()
	}
	chunk := time.Duration(max(w.ChunkDays, 1)) * 24 * time.Hour

	var candles []candle.Candle
	for from := start; from.Before(end); from = from.Add(chunk) {
		to := from.Add(chunk)
		if to.After(end) {
			to = end
		}

		var wallexCandles []*wallex.Candle
		err := retry(ctx, max(w.Attempts, 1), w.Delay, func() error {
			var err error
			wallexCandles, err = w.client.Candles(NormalizeSymbol(symbol), DailyResolution, from, to)
			if err != nil {
				return fmt.Errorf("fetching candles: %w", err)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("Wallex FetchCandles | %s [%s-%s]: %w",
				symbol, from.Format(candle.DateLayout), to.Format(candle.DateLayout), err)
		}

		for _, wc := range wallexCandles {
			c, err := toCandle(wc, symbol, w.Name())
			if err != nil {
				utils.GetLogger().Warn().Err(err).Str("symbol", symbol).Msg("Exchange | skipping invalid wallex candle")
				continue
			}
			candles = append(candles, c)
		}
	}

	// chunk edges can return the same day twice
	return candle.InRange(candle.Normalize(candles), candle.Date(start), end), nil
}

func toCandle(wc *wallex.Candle, symbol, source string) (candle.Candle, error) {
	var (
		c   = candle.Candle{Timestamp: candle.Date(wc.Timestamp), Symbol: symbol, Source: source}
		err error
	)
	for _, f := range []struct {
		name string
		raw  wallex.Number
		dst  *float64
	}{
		{"open", wc.Open, &c.Open},
		{"high", wc.High, &c.High},
		{"low", wc.Low, &c.Low},
		{"close", wc.Close, &c.Close},
		{"volume", wc.Volume, &c.Volume},
	} {
		if *f.dst, err = strconv.ParseFloat(string(f.raw), 64); err != nil {
			return c, fmt.Errorf("%s %q: %w", f.name, f.raw, err)
		}
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}
