package candle

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// SymbolPlaceholder in a CSVFeed path is replaced by the requested symbol.
const SymbolPlaceholder = "{symbol}"

// CSVFeed reads daily candles from a CSV file with a header row. Required
// columns are date and close; volume, open, high and low are optional. Column
// names are matched case-insensitively, and "adj close" is ignored.
type CSVFeed struct {
	Path string
}

// PathFor returns the file holding symbol's candles.
func (f *CSVFeed) PathFor(symbol string) string {
	return strings.ReplaceAll(f.Path, SymbolPlaceholder, symbol)
}

func NewCSVFeed(path string) *CSVFeed {
	return &CSVFeed{Path: path}
}

func (f *CSVFeed) FetchCandles(ctx context.Context, symbol string, start, end time.Time) ([]Candle, error) {
	path := f.PathFor(symbol)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("CSVFeed | open %s: %w", path, err)
	}
	defer file.Close()

	candles, err := ReadCSV(file, symbol)
	if err != nil {
		return nil, fmt.Errorf("CSVFeed | %s: %w", path, err)
	}
	return InRange(candles, start, end), nil
}

// ReadCSV parses candles from r and tags them with symbol and source "csv".
// UTF-8 and UTF-16 byte order marks, as written by spreadsheet exports, are
// honored and stripped.
func ReadCSV(r io.Reader, symbol string) ([]Candle, error) {
	reader := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptySeries
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	dateCol, ok := cols["date"]
	if !ok {
		return nil, errors.New("missing date column")
	}
	closeCol, ok := cols["close"]
	if !ok {
		return nil, errors.New("missing close column")
	}

	var candles []Candle
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ts, err := parseDate(record[dateCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		c := Candle{Timestamp: ts, Symbol: symbol, Source: "csv"}
		if c.Close, err = parseFloat(record, closeCol); err != nil {
			return nil, fmt.Errorf("line %d close: %w", line, err)
		}
		for name, dst := range map[string]*float64{"volume": &c.Volume, "open": &c.Open, "high": &c.High, "low": &c.Low} {
			if idx, ok := cols[name]; ok {
				if *dst, err = parseFloat(record, idx); err != nil {
					return nil, fmt.Errorf("line %d %s: %w", line, name, err)
				}
			}
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// parseDate accepts a calendar day or an RFC3339 timestamp.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return Date(t), nil
}

func parseFloat(record []string, idx int) (float64, error) {
	if idx >= len(record) {
		return 0, errors.New("missing field")
	}
	s := strings.TrimSpace(record[idx])
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
