// Package candle
package candle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// DateLayout is the calendar-day format used in feeds, configs and reports.
const DateLayout = "2006-01-02"

var ErrEmptySeries = errors.New("candle series is empty")

// Candle is one daily bar. Only Close and Volume feed the strategy; Open, High
// and Low are kept when the source provides them.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open,omitempty"`
	High      float64   `json:"high,omitempty"`
	Low       float64   `json:"low,omitempty"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Symbol    string    `json:"symbol"`
	Source    string    `json:"source"`
}

// PriceFeed supplies daily candles for a symbol in [start, end).
type PriceFeed interface {
	FetchCandles(ctx context.Context, symbol string, start, end time.Time) ([]Candle, error)
}

// Date truncates t to its UTC calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Validate checks if a candle has valid data
func (c *Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return errors.New("candle timestamp is zero")
	}
	if c.Close <= 0 {
		return errors.New("candle close must be positive")
	}
	if c.Volume < 0 {
		return errors.New("candle volume cannot be negative")
	}
	if c.Symbol == "" {
		return errors.New("candle symbol cannot be empty")
	}
	if c.High > 0 && c.Low > 0 {
		if c.High < c.Low {
			return errors.New("candle high cannot be less than low")
		}
		if c.Close < c.Low || c.Close > c.High {
			return errors.New("candle close price must be between high and low")
		}
	}
	return nil
}

// ValidateSeries checks that candles form one symbol's daily series with unique,
// strictly increasing dates.
func ValidateSeries(candles []Candle) error {
	if len(candles) == 0 {
		return ErrEmptySeries
	}
	symbol := candles[0].Symbol
	for i := range candles {
		c := &candles[i]
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid candle at index %d (%s): %w", i, c.Timestamp.Format(DateLayout), err)
		}
		if c.Symbol != symbol {
			return fmt.Errorf("candle at index %d has different symbol: %s, expected: %s", i, c.Symbol, symbol)
		}
		if i > 0 && !Date(c.Timestamp).After(Date(candles[i-1].Timestamp)) {
			return fmt.Errorf("candle at index %d (%s) is not after %s",
				i, c.Timestamp.Format(DateLayout), candles[i-1].Timestamp.Format(DateLayout))
		}
	}
	return nil
}

// Normalize returns a copy of candles with timestamps truncated to calendar days,
// sorted by date, keeping the last candle for duplicated days.
func Normalize(candles []Candle) []Candle {
	byDay := make(map[time.Time]Candle, len(candles))
	for _, c := range candles {
		c.Timestamp = Date(c.Timestamp)
		byDay[c.Timestamp] = c
	}
	out := make([]Candle, 0, len(byDay))
	for _, c := range byDay {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// InRange keeps candles with start <= timestamp < end. Zero bounds are open.
func InRange(candles []Candle, start, end time.Time) []Candle {
	var out []Candle
	for _, c := range candles {
		if !start.IsZero() && c.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && !c.Timestamp.Before(end) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Closes extracts closing prices.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
