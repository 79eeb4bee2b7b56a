package backtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/eps-trader/internal/candle"
	"github.com/amirphl/eps-trader/internal/earnings"
	"github.com/amirphl/eps-trader/internal/indicator"
	"github.com/amirphl/eps-trader/internal/journal"
	"github.com/amirphl/eps-trader/internal/metrics"
	"github.com/amirphl/eps-trader/internal/notifier"
	"github.com/amirphl/eps-trader/internal/series"
	"github.com/amirphl/eps-trader/internal/strategy"
	"github.com/amirphl/eps-trader/internal/strategy/signal"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RunSaver persists finished runs.
type RunSaver interface {
	SaveRun(ctx context.Context, run *Run) error
}

// Run is one finished pipeline: its inputs, the signal log and the simulation.
type Run struct {
	ID         uuid.UUID           `json:"id"`
	Symbol     string              `json:"symbol"`
	Strategy   string              `json:"strategy"`
	From       time.Time           `json:"from"`
	To         time.Time           `json:"to"`
	Candles    int                 `json:"candles"`
	Config     SimConfig           `json:"config"`
	Thresholds strategy.Thresholds `json:"thresholds"`
	Signals    []signal.Signal     `json:"signals"`
	Results    Results             `json:"results"`
}

// Request selects what to backtest. Zero values fall back to the runner's defaults.
type Request struct {
	Symbol         string
	From           time.Time
	To             time.Time
	InitialBalance float64
	HonorExits     *bool
	Thresholds     *strategy.Thresholds
}

// Runner wires a price feed, an earnings calendar and the strategy into the
// simulator. Store, Notifier and Journal are optional.
type Runner struct {
	Feed       candle.PriceFeed
	Calendar   earnings.Calendar
	Options    series.Options
	Thresholds strategy.Thresholds
	Sim        SimConfig
	Strategy   string
	Store      RunSaver
	Notifier   notifier.Notifier
	Journal    journal.Journaler
	Logger     *zerolog.Logger
}

func NewRunner(feed candle.PriceFeed, calendar earnings.Calendar, logger *zerolog.Logger) *Runner {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Runner{
		Feed:       feed,
		Calendar:   calendar,
		Options:    series.DefaultOptions(),
		Thresholds: strategy.DefaultThresholds(),
		Sim:        SimConfig{InitialBalance: 10000},
		Strategy:   strategy.EPSMomentumName,
		Logger:     logger,
	}
}

// Run executes the whole pipeline for one symbol.
func (r *Runner) Run(ctx context.Context, req Request) (*Run, error) {
	started := time.Now()
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))

	run, err := r.run(ctx, symbol, req)
	if err != nil {
		metrics.ObserveRun(symbol, "error", time.Since(started))
		r.Logger.Error().Err(err).Str("symbol", symbol).Msg("Runner | backtest failed")
		return nil, err
	}
	metrics.ObserveRun(symbol, "ok", time.Since(started))
	return run, nil
}

func (r *Runner) run(ctx context.Context, symbol string, req Request) (*Run, error) {
	if symbol == "" {
		return nil, errors.New("Runner | symbol is required")
	}
	if !req.From.IsZero() && !req.To.IsZero() && !req.From.Before(req.To) {
		return nil, fmt.Errorf("Runner | %w: from %s must be before to %s", ErrInvalidRange,
			req.From.Format(candle.DateLayout), req.To.Format(candle.DateLayout))
	}

	sim := r.Sim
	if req.InitialBalance != 0 {
		sim.InitialBalance = req.InitialBalance
	}
	if req.HonorExits != nil {
		sim.HonorExits = *req.HonorExits
	}
	th := r.Thresholds
	if req.Thresholds != nil {
		th = *req.Thresholds
	}
	if sim.InitialBalance <= 0 {
		return nil, fmt.Errorf("Runner | %w: %v", ErrInvalidBalance, sim.InitialBalance)
	}
	if err := th.Validate(); err != nil {
		return nil, fmt.Errorf("Runner | %w", err)
	}

	candles, err := r.Feed.FetchCandles(ctx, symbol, req.From, req.To)
	if err != nil {
		return nil, fmt.Errorf("Runner | load candles for %s: %w", symbol, err)
	}
	r.Logger.Info().Str("symbol", symbol).Int("candles", len(candles)).Msg("Runner | loaded candles")

	table, err := series.Build(candles, r.Calendar.Reports(symbol), r.Options)
	if err != nil {
		return nil, fmt.Errorf("Runner | %s: %w", symbol, err)
	}

	strat, err := strategy.New(r.Strategy, th, r.Logger)
	if err != nil {
		return nil, fmt.Errorf("Runner | %w", err)
	}
	signals, err := strat.Signals(table)
	if err != nil {
		return nil, fmt.Errorf("Runner | %s: %w", symbol, err)
	}

	results, err := Simulate(table, signals, sim)
	if err != nil {
		return nil, fmt.Errorf("Runner | %s: %w", symbol, err)
	}

	run := &Run{
		ID:         uuid.New(),
		Symbol:     symbol,
		Strategy:   strat.Name(),
		From:       table.Dates[0],
		To:         table.Dates[table.Len()-1],
		Candles:    table.Len(),
		Config:     sim,
		Thresholds: th,
		Signals:    signals,
		Results:    results,
	}
	for _, s := range signals {
		metrics.ObserveSignal(symbol, s.Kind.String())
	}
	metrics.SetReturn(symbol, results.ReturnPercent)

	r.Logger.Info().
		Str("run_id", run.ID.String()).
		Str("symbol", symbol).
		Int("signals", len(signals)).
		Float64("final_balance", results.FinalBalance).
		Float64("return_percent", results.ReturnPercent).
		Msg("Runner | backtest finished")

	if r.Journal != nil {
		if err := record(r.Journal, run, table); err != nil {
			r.Logger.Warn().Err(err).Str("run_id", run.ID.String()).Msg("Runner | journal write failed")
		}
	}
	if r.Store != nil {
		if err := r.Store.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("Runner | save run %s: %w", run.ID, err)
		}
	}
	if r.Notifier != nil {
		if err := notifier.SendWithRetry(ctx, r.Notifier, Summary(run), 3, time.Second); err != nil {
			r.Logger.Warn().Err(err).Str("run_id", run.ID.String()).Msg("Runner | notification failed")
		}
	}
	return run, nil
}

// record journals the run's signals and trades at their market dates, then the
// run itself at its last day. Signal events carry the table row they fired on;
// entries also carry the EPS surprise.
func record(j journal.Journaler, run *Run, table *series.Table) error {
	id := run.ID.String()
	for _, s := range run.Signals {
		data := map[string]any{"run_id": id, "price": s.Price, "reason": s.Reason}
		if s.Index >= 0 && s.Index < table.Len() {
			row := table.Row(s.Index)
			data["row"] = row
			if s.Kind.IsEntry() && row.ActualEPS != nil && row.EPSEstimate != nil {
				surprise := earnings.Report{ActualEPS: *row.ActualEPS, EPSEstimate: *row.EPSEstimate}.Surprise()
				if indicator.IsDefined(surprise) {
					data["eps_surprise"] = surprise
				}
			}
		}
		err := j.LogEvent(journal.Event{
			Time:        s.Time,
			Type:        journal.TypeSignal,
			Symbol:      run.Symbol,
			Description: s.Kind.String(),
			Data:        data,
		})
		if err != nil {
			return err
		}
	}
	for _, t := range run.Results.TradeLog {
		err := j.LogEvent(journal.Event{
			Time:        t.ExitTime,
			Type:        journal.TypeTrade,
			Symbol:      run.Symbol,
			Description: t.Reason,
			Data:        map[string]any{"run_id": id, "entry": t.Entry, "exit": t.Exit, "pnl": t.PnL, "quantity": t.Quantity},
		})
		if err != nil {
			return err
		}
	}
	return j.LogEvent(journal.Event{
		Time:        run.To,
		Type:        journal.TypeRun,
		Symbol:      run.Symbol,
		Description: run.Strategy,
		Data:        map[string]any{"run_id": id, "return_percent": run.Results.ReturnPercent, "trades": run.Results.Trades},
	})
}

// Summary is a short human readable report of a run.
func Summary(run *Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s backtest %s\n", run.Symbol, run.Strategy)
	fmt.Fprintf(&b, "Period: %s to %s (%d days)\n",
		run.From.Format(candle.DateLayout), run.To.Format(candle.DateLayout), run.Candles)
	fmt.Fprintf(&b, "Signals: %d, Trades: %d (W %d / L %d)\n",
		len(run.Signals), run.Results.Trades, run.Results.Wins, run.Results.Losses)
	fmt.Fprintf(&b, "Balance: %.2f -> %.2f (%+.2f%%)",
		run.Results.StartingBalance, run.Results.FinalBalance, run.Results.ReturnPercent)
	return b.String()
}
