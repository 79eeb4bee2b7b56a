// Package backtest
package backtest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/amirphl/eps-trader/internal/candle"
	"github.com/amirphl/eps-trader/internal/series"
	"github.com/amirphl/eps-trader/internal/strategy/signal"
	"github.com/amirphl/eps-trader/internal/utils"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidBalance = errors.New("initial balance must be positive")
	ErrInvalidRange   = errors.New("invalid date range")
)

// Trade exit reasons.
const (
	ReasonSignal    = "signal"
	ReasonExit      = "exit"
	ReasonEndOfData = "end-of-data"
)

// SimConfig controls the simulator ledger.
type SimConfig struct {
	InitialBalance float64 `json:"initial_balance" yaml:"initial_balance"`
	// HonorExits makes an Exit Buy signal close a held position. When false,
	// only Buy and Sell signals move the ledger.
	HonorExits bool `json:"honor_exits" yaml:"honor_exits"`
}

// Results holds the results of a backtest
type Results struct {
	StartingBalance float64            `json:"starting_balance"`
	FinalBalance    float64            `json:"final_balance"`
	ReturnPercent   float64            `json:"return_percent"`
	Trades          int                `json:"trades"`
	Wins            int                `json:"wins"`
	Losses          int                `json:"losses"`
	WinPnls         []float64          `json:"win_pnls"`
	LossPnls        []float64          `json:"loss_pnls"`
	TradeLog        []TradeLogEntry    `json:"trade_log"`
	EquityCurve     []EquityPoint      `json:"equity_curve"`
	MaxEquity       float64            `json:"max_equity"`
	MaxDrawdown     float64            `json:"max_drawdown"`
	MaxConsecWins   int                `json:"max_consec_wins"`
	MaxConsecLosses int                `json:"max_consec_losses"`
	Metrics         map[string]float64 `json:"metrics"`
}

// TradeLogEntry represents a single round trip in the backtest
type TradeLogEntry struct {
	Entry     float64   `json:"entry"`
	Exit      float64   `json:"exit"`
	PnL       float64   `json:"pnl"`
	EntryTime time.Time `json:"entry_time"`
	ExitTime  time.Time `json:"exit_time"`
	Side      string    `json:"side"`     // always "long", the ledger never shorts
	Reason    string    `json:"reason"`   // signal, exit or end-of-data
	Quantity  float64   `json:"quantity"` // shares bought
	Cost      float64   `json:"cost"`     // cash spent at entry
}

// EquityPoint is the marked-to-close account value at the end of a day.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// ledger is either fully in cash or fully in shares.
type ledger struct {
	cash      decimal.Decimal
	shares    decimal.Decimal
	cost      decimal.Decimal
	entryIdx  int
	entryTime time.Time
}

func (l *ledger) holding() bool { return l.shares.IsPositive() }

func (l *ledger) buy(i int, ts time.Time, price decimal.Decimal) {
	l.shares = l.cash.Div(price)
	l.cost = l.cash
	l.cash = decimal.Zero
	l.entryIdx = i
	l.entryTime = ts
}

func (l *ledger) sell(price decimal.Decimal) (proceeds decimal.Decimal) {
	proceeds = l.shares.Mul(price)
	l.cash = proceeds
	l.shares = decimal.Zero
	return proceeds
}

func (l *ledger) equity(price decimal.Decimal) decimal.Decimal {
	return l.cash.Add(l.shares.Mul(price))
}

// Simulate replays signals in chronological order against a cash ledger.
// A Buy while flat invests the whole balance at that day's close and a Sell
// while holding converts every share back to cash. Exit signals are only
// consumed when cfg.HonorExits is set. A position still open after the last
// signal is liquidated at the final close.
func Simulate(t *series.Table, signals []signal.Signal, cfg SimConfig) (Results, error) {
	if cfg.InitialBalance <= 0 || math.IsNaN(cfg.InitialBalance) || math.IsInf(cfg.InitialBalance, 0) {
		return Results{}, fmt.Errorf("Simulate | %w: %v", ErrInvalidBalance, cfg.InitialBalance)
	}
	if t == nil || t.Len() == 0 {
		return Results{}, fmt.Errorf("Simulate | %w", candle.ErrEmptySeries)
	}

	ordered, err := chronological(t, signals)
	if err != nil {
		return Results{}, fmt.Errorf("Simulate | %w", err)
	}

	results := Results{
		StartingBalance: cfg.InitialBalance,
		Metrics:         make(map[string]float64),
		EquityCurve:     make([]EquityPoint, 0, t.Len()),
	}
	book := ledger{cash: decimal.NewFromFloat(cfg.InitialBalance)}

	closeTrade := func(i int, reason string) {
		price := decimal.NewFromFloat(t.Close[i])
		cost := book.cost
		shares := book.shares
		proceeds := book.sell(price)
		pnl := proceeds.Sub(cost).InexactFloat64()
		results.TradeLog = append(results.TradeLog, TradeLogEntry{
			Entry:     t.Close[book.entryIdx],
			Exit:      t.Close[i],
			PnL:       pnl,
			EntryTime: book.entryTime,
			ExitTime:  t.Dates[i],
			Side:      "long",
			Reason:    reason,
			Quantity:  shares.InexactFloat64(),
			Cost:      cost.InexactFloat64(),
		})
	}

	next := 0
	for day := 0; day < t.Len(); day++ {
		for ; next < len(ordered) && ordered[next].Index == day; next++ {
			buy, reason := action(ordered[next].Kind, book.holding(), cfg.HonorExits)
			switch {
			case buy:
				book.buy(day, t.Dates[day], decimal.NewFromFloat(t.Close[day]))
			case reason != "":
				closeTrade(day, reason)
			}
		}
		if day == t.Len()-1 && book.holding() {
			closeTrade(day, ReasonEndOfData)
		}
		eq := book.equity(decimal.NewFromFloat(t.Close[day]))
		results.EquityCurve = append(results.EquityCurve, EquityPoint{Time: t.Dates[day], Equity: eq.InexactFloat64()})
	}

	final := book.cash
	initial := decimal.NewFromFloat(cfg.InitialBalance)
	results.FinalBalance = final.InexactFloat64()
	results.ReturnPercent = final.Sub(initial).Div(initial).Mul(decimal.NewFromInt(100)).InexactFloat64()

	tallyTrades(&results)
	calculateDrawdown(&results)
	calculatePerformanceMetrics(&results)
	return results, nil
}

// action decides what a signal does to the ledger: open a position, close it
// for reason, or nothing when reason is empty and buy is false.
func action(k signal.Kind, holding, honorExits bool) (buy bool, reason string) {
	switch {
	case k == signal.Buy && !holding:
		return true, ""
	case k == signal.Sell && holding:
		return false, ReasonSignal
	case k == signal.ExitBuy && honorExits && holding:
		return false, ReasonExit
	}
	return false, ""
}

// chronological checks every signal against the table and orders them by day,
// keeping log order within a day.
func chronological(t *series.Table, signals []signal.Signal) ([]signal.Signal, error) {
	ordered := make([]signal.Signal, len(signals))
	copy(ordered, signals)
	for _, s := range ordered {
		if s.Index < 0 || s.Index >= t.Len() {
			return nil, fmt.Errorf("%s signal at index %d outside table of %d days", s.Kind, s.Index, t.Len())
		}
		if !s.Time.IsZero() && t.IndexOf(s.Time) != s.Index {
			return nil, fmt.Errorf("%s signal dated %s does not match day %d (%s)",
				s.Kind, s.Time.Format(candle.DateLayout), s.Index, t.Dates[s.Index].Format(candle.DateLayout))
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })
	return ordered, nil
}

func tallyTrades(results *Results) {
	consecWins, consecLosses := 0, 0
	for _, tr := range results.TradeLog {
		results.Trades++
		if tr.PnL > 0 {
			results.Wins++
			results.WinPnls = append(results.WinPnls, tr.PnL)
			consecWins++
			consecLosses = 0
		} else {
			results.Losses++
			results.LossPnls = append(results.LossPnls, tr.PnL)
			consecLosses++
			consecWins = 0
		}
		results.MaxConsecWins = max(results.MaxConsecWins, consecWins)
		results.MaxConsecLosses = max(results.MaxConsecLosses, consecLosses)
	}
}

func calculateDrawdown(results *Results) {
	results.MaxEquity = results.StartingBalance
	for _, p := range results.EquityCurve {
		if p.Equity > results.MaxEquity {
			results.MaxEquity = p.Equity
		}
		if dd := results.MaxEquity - p.Equity; dd > results.MaxDrawdown {
			results.MaxDrawdown = dd
		}
	}
}

// calculatePerformanceMetrics calculates performance metrics for backtest results
func calculatePerformanceMetrics(results *Results) {
	if results.Trades > 0 {
		results.Metrics["win_rate"] = float64(results.Wins) / float64(results.Trades)
	}

	avgWin, avgLoss := 0.0, 0.0
	for _, w := range results.WinPnls {
		avgWin += w
	}
	for _, l := range results.LossPnls {
		avgLoss += l
	}
	if len(results.WinPnls) > 0 {
		avgWin /= float64(len(results.WinPnls))
		results.Metrics["avg_win"] = avgWin
	}
	if len(results.LossPnls) > 0 {
		avgLoss /= float64(len(results.LossPnls))
		results.Metrics["avg_loss"] = avgLoss
	}
	if avgLoss != 0 {
		results.Metrics["profit_factor"] = -avgWin / avgLoss
	}

	allPnls := make([]float64, 0, results.Trades)
	allPnls = append(allPnls, results.WinPnls...)
	allPnls = append(allPnls, results.LossPnls...)
	if len(allPnls) > 0 {
		meanPnl := 0.0
		for _, p := range allPnls {
			meanPnl += p
		}
		meanPnl /= float64(len(allPnls))
		results.Metrics["mean_pnl"] = meanPnl

		stdPnl := 0.0
		for _, p := range allPnls {
			stdPnl += (p - meanPnl) * (p - meanPnl)
		}
		stdPnl = math.Sqrt(stdPnl / float64(len(allPnls)))
		results.Metrics["std_pnl"] = stdPnl
		if stdPnl > 0 {
			results.Metrics["sharpe"] = meanPnl / stdPnl
		}

		winRate := results.Metrics["win_rate"]
		results.Metrics["expectancy"] = winRate*avgWin + (1-winRate)*avgLoss
	}

	results.Metrics["total_return"] = results.FinalBalance - results.StartingBalance
	results.Metrics["percent_return"] = results.ReturnPercent
	results.Metrics["max_drawdown"] = results.MaxDrawdown
	if results.MaxEquity > 0 {
		results.Metrics["max_drawdown_percent"] = results.MaxDrawdown / results.MaxEquity * 100
	}
	results.Metrics["max_consecutive_wins"] = float64(results.MaxConsecWins)
	results.Metrics["max_consecutive_losses"] = float64(results.MaxConsecLosses)
}

// PrintResults logs a run summary followed by the trade log.
func PrintResults(run *Run) {
	logger := utils.GetLogger()
	res := run.Results

	logger.Info().
		Str("run_id", run.ID.String()).
		Str("symbol", run.Symbol).
		Str("strategy", run.Strategy).
		Int("signals", len(run.Signals)).
		Int("trades", res.Trades).
		Int("wins", res.Wins).
		Int("losses", res.Losses).
		Float64("win_rate", res.Metrics["win_rate"]*100).
		Float64("starting_balance", res.StartingBalance).
		Float64("final_balance", res.FinalBalance).
		Float64("return_percent", res.ReturnPercent).
		Float64("max_drawdown", res.MaxDrawdown).
		Float64("profit_factor", res.Metrics["profit_factor"]).
		Msg("Backtest | results")

	for _, s := range run.Signals {
		logger.Info().
			Str("run_id", run.ID.String()).
			Time("date", s.Time).
			Str("kind", s.Kind.String()).
			Float64("price", s.Price).
			Str("reason", s.Reason).
			Msg("Backtest | signal")
	}

	const maxTrades = 10
	for i, t := range res.TradeLog {
		if i >= maxTrades {
			logger.Info().Int("more", len(res.TradeLog)-maxTrades).Msg("Backtest | trade log truncated")
			break
		}
		logger.Info().
			Int("trade", i+1).
			Float64("entry", t.Entry).
			Str("entry_time", t.EntryTime.Format(candle.DateLayout)).
			Float64("exit", t.Exit).
			Str("exit_time", t.ExitTime.Format(candle.DateLayout)).
			Float64("pnl", t.PnL).
			Str("reason", t.Reason).
			Msg("Backtest | trade")
	}
}

// SaveResults writes signals.csv, trades.csv and equity.csv into dir.
func SaveResults(dir string, run *Run) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("SaveResults | create %s: %w", dir, err)
	}

	signalRows := [][]string{{"Date", "Signal", "Price", "Reason"}}
	for _, s := range run.Signals {
		signalRows = append(signalRows, []string{
			s.Time.Format(candle.DateLayout),
			s.Kind.String(),
			formatFloat(s.Price),
			s.Reason,
		})
	}

	tradeRows := [][]string{{"Trade#", "Entry", "EntryTime", "Exit", "ExitTime", "Quantity", "PnL", "Reason"}}
	for i, t := range run.Results.TradeLog {
		tradeRows = append(tradeRows, []string{
			strconv.Itoa(i + 1),
			formatFloat(t.Entry),
			t.EntryTime.Format(candle.DateLayout),
			formatFloat(t.Exit),
			t.ExitTime.Format(candle.DateLayout),
			formatFloat(t.Quantity),
			fmt.Sprintf("%.2f", t.PnL),
			t.Reason,
		})
	}

	equityRows := [][]string{{"Date", "Equity"}}
	for _, p := range run.Results.EquityCurve {
		equityRows = append(equityRows, []string{p.Time.Format(candle.DateLayout), fmt.Sprintf("%.2f", p.Equity)})
	}

	for name, rows := range map[string][][]string{
		"signals.csv": signalRows,
		"trades.csv":  tradeRows,
		"equity.csv":  equityRows,
	} {
		if err := saveCSV(filepath.Join(dir, name), rows); err != nil {
			return fmt.Errorf("SaveResults | %w", err)
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// saveCSV saves data to a CSV file
func saveCSV(filename string, rows [][]string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("error creating CSV file %s: %w", filename, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("error writing to CSV file %s: %w", filename, err)
	}

	utils.GetLogger().Debug().Str("file", filename).Int("rows", len(rows)-1).Msg("Backtest | saved CSV")
	return nil
}
