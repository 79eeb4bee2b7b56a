package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirphl/eps-trader/internal/candle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	wallex "github.com/wallexchange/wallex-go"
)

type call struct {
	symbol, resolution string
	from, to           time.Time
}

type fakeClient struct {
	calls    []call
	failures int
	candles  []*wallex.Candle
}

func (f *fakeClient) Candles(symbol, resolution string, from, to time.Time) ([]*wallex.Candle, error) {
	f.calls = append(f.calls, call{symbol, resolution, from, to})
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("503 service unavailable")
	}
	var out []*wallex.Candle
	for _, c := range f.candles {
		if !c.Timestamp.Before(from) && c.Timestamp.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// wc is a flat bar: open, high, low and close are all the given price.
func wc(day int, price string) *wallex.Candle {
	return &wallex.Candle{
		Timestamp: day0.AddDate(0, 0, day).Add(3 * time.Hour),
		Open:      wallex.Number(price),
		High:      wallex.Number(price),
		Low:       wallex.Number(price),
		Close:     wallex.Number(price),
		Volume:    "12.5",
	}
}

func newTestExchange(client candleClient) *WallexExchange {
	return &WallexExchange{
		client:    client,
		Attempts:  3,
		Delay:     time.Millisecond,
		ChunkDays: 365,
		now:       func() time.Time { return day0.AddDate(0, 0, 10) },
	}
}

func TestWallexFetchCandles(t *testing.T) {
	outside := wc(4, "120")
	outside.High, outside.Low = "110", "90"
	client := &fakeClient{candles: []*wallex.Candle{wc(0, "101"), wc(1, "102.5"), wc(2, "bad"), wc(3, "104"), outside}}
	w := newTestExchange(client)

	var feed candle.PriceFeed = w
	candles, err := feed.FetchCandles(context.Background(), "btc-usdt", day0, time.Time{})
	require.NoError(t, err)

	require.Len(t, candles, 3, "unparseable and out-of-range candles are skipped")
	assert.Equal(t, []float64{101, 102.5, 104}, candle.Closes(candles))
	assert.Equal(t, day0, candles[0].Timestamp)
	assert.Equal(t, 12.5, candles[0].Volume)
	assert.Equal(t, "wallex", candles[0].Source)
	assert.Equal(t, "btc-usdt", candles[0].Symbol)

	require.Len(t, client.calls, 1)
	assert.Equal(t, "BTCUSDT", client.calls[0].symbol)
	assert.Equal(t, DailyResolution, client.calls[0].resolution)
	assert.Equal(t, day0.AddDate(0, 0, 10), client.calls[0].to)
}

func TestWallexFetchCandlesChunks(t *testing.T) {
	client := &fakeClient{candles: []*wallex.Candle{wc(0, "1"), wc(4, "2"), wc(8, "3")}}
	w := newTestExchange(client)
	w.ChunkDays = 3

	candles, err := w.FetchCandles(context.Background(), "AAPL", day0, day0.AddDate(0, 0, 9))
	require.NoError(t, err)
	assert.Len(t, client.calls, 3)
	assert.Equal(t, []float64{1, 2, 3}, candle.Closes(candles))
	assert.Equal(t, 3.0, candles[2].High)
	assert.Equal(t, 3.0, candles[2].Low)
}

func TestWallexFetchCandlesRetries(t *testing.T) {
	client := &fakeClient{failures: 2, candles: []*wallex.Candle{wc(0, "1")}}
	w := newTestExchange(client)

	candles, err := w.FetchCandles(context.Background(), "AAPL", day0, day0.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Len(t, candles, 1)
	assert.Len(t, client.calls, 3)

	client = &fakeClient{failures: 5}
	w = newTestExchange(client)
	_, err = w.FetchCandles(context.Background(), "AAPL", day0, day0.AddDate(0, 0, 2))
	assert.ErrorContains(t, err, "all 3 retry attempts failed")
	assert.ErrorContains(t, err, "503")
}

func TestWallexFetchCandlesRequiresStart(t *testing.T) {
	_, err := newTestExchange(&fakeClient{}).FetchCandles(context.Background(), "AAPL", time.Time{}, day0)
	assert.Error(t, err)
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := retry(ctx, 5, time.Hour, func() error {
		calls++
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", NormalizeSymbol("btc-usdt"))
	assert.Equal(t, "ETHDAI", NormalizeSymbol("ETH/DAI"))
	assert.Equal(t, "AAPL", NormalizeSymbol(" aapl "))
}
