package backtest

import (
	"context"
	"sort"
	"sync"

	"github.com/amirphl/eps-trader/internal/utils"
	"golang.org/x/sync/errgroup"
)

// MultiSymbolResults aggregates independent runs over several symbols.
type MultiSymbolResults struct {
	Runs           map[string]*Run    `json:"runs"`
	Failures       map[string]string  `json:"failures"`
	OverallMetrics map[string]float64 `json:"overall_metrics"`
	TotalSymbols   int                `json:"total_symbols"`
	SuccessfulRuns int                `json:"successful_runs"`
	FailedRuns     int                `json:"failed_runs"`
}

// RunMany backtests every request concurrently, at most parallel at a time.
// A failing symbol is recorded and does not stop the others.
func (r *Runner) RunMany(ctx context.Context, reqs []Request, parallel int) MultiSymbolResults {
	results := MultiSymbolResults{
		Runs:           make(map[string]*Run, len(reqs)),
		Failures:       make(map[string]string),
		OverallMetrics: make(map[string]float64),
		TotalSymbols:   len(reqs),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for _, req := range reqs {
		g.Go(func() error {
			run, err := r.Run(gctx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results.Failures[req.Symbol] = err.Error()
				results.FailedRuns++
				return nil
			}
			results.Runs[run.Symbol] = run
			results.SuccessfulRuns++
			return nil
		})
	}
	_ = g.Wait()

	calculateOverallMetrics(&results)
	return results
}

// calculateOverallMetrics calculates aggregate metrics across all symbols
func calculateOverallMetrics(results *MultiSymbolResults) {
	if len(results.Runs) == 0 {
		return
	}

	var (
		totalTrades       int
		totalWins         int
		totalPnL          float64
		totalReturn       float64
		totalMaxDrawdown  float64
		profitableSymbols int
	)
	for _, run := range results.Runs {
		res := run.Results
		totalTrades += res.Trades
		totalWins += res.Wins
		totalPnL += res.FinalBalance - res.StartingBalance
		totalReturn += res.ReturnPercent
		totalMaxDrawdown += res.MaxDrawdown
		if res.FinalBalance > res.StartingBalance {
			profitableSymbols++
		}
	}

	symbolCount := float64(len(results.Runs))
	results.OverallMetrics["total_trades"] = float64(totalTrades)
	if totalTrades > 0 {
		results.OverallMetrics["overall_win_rate"] = float64(totalWins) / float64(totalTrades)
	}
	results.OverallMetrics["total_pnl"] = totalPnL
	results.OverallMetrics["avg_pnl_per_symbol"] = totalPnL / symbolCount
	results.OverallMetrics["avg_return_percent"] = totalReturn / symbolCount
	results.OverallMetrics["avg_max_drawdown"] = totalMaxDrawdown / symbolCount
	results.OverallMetrics["profitable_symbols_count"] = float64(profitableSymbols)
	results.OverallMetrics["profitable_symbols_ratio"] = float64(profitableSymbols) / symbolCount
}

// PrintMultiSymbolSummary logs the aggregate and a per-symbol ranking by return.
func PrintMultiSymbolSummary(results MultiSymbolResults) {
	logger := utils.GetLogger()
	logger.Info().
		Int("symbols", results.TotalSymbols).
		Int("successful", results.SuccessfulRuns).
		Int("failed", results.FailedRuns).
		Float64("total_trades", results.OverallMetrics["total_trades"]).
		Float64("win_rate", results.OverallMetrics["overall_win_rate"]*100).
		Float64("total_pnl", results.OverallMetrics["total_pnl"]).
		Float64("avg_return_percent", results.OverallMetrics["avg_return_percent"]).
		Float64("profitable_ratio", results.OverallMetrics["profitable_symbols_ratio"]*100).
		Msg("Backtest | multi-symbol summary")

	symbols := make([]string, 0, len(results.Runs))
	for s := range results.Runs {
		symbols = append(symbols, s)
	}
	sort.Slice(symbols, func(i, j int) bool {
		ri, rj := results.Runs[symbols[i]].Results.ReturnPercent, results.Runs[symbols[j]].Results.ReturnPercent
		if ri != rj {
			return ri > rj
		}
		return symbols[i] < symbols[j]
	})
	for rank, s := range symbols {
		logger.Info().
			Int("rank", rank+1).
			Str("symbol", s).
			Float64("return_percent", results.Runs[s].Results.ReturnPercent).
			Msg("Backtest | symbol performance")
	}
	for s, reason := range results.Failures {
		logger.Warn().Str("symbol", s).Str("error", reason).Msg("Backtest | symbol failed")
	}
}
