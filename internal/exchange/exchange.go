// Package exchange
package exchange

import (
	"strings"

	"github.com/amirphl/eps-trader/internal/candle"
)

// Exchange is the interface for all supported market data sources.
type Exchange interface {
	Name() string
	candle.PriceFeed
}

// NormalizeSymbol upper-cases a symbol and drops separators, e.g. "btc-usdt" -> "BTCUSDT".
func NormalizeSymbol(symbol string) string {
	symbol = strings.ReplaceAll(symbol, "-", "")
	symbol = strings.ReplaceAll(symbol, "/", "")
	return strings.ToUpper(strings.TrimSpace(symbol))
}
