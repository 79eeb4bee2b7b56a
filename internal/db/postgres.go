package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/eps-trader/internal/backtest"
	"github.com/amirphl/eps-trader/internal/candle"
	"github.com/amirphl/eps-trader/internal/db/conf"
	"github.com/amirphl/eps-trader/internal/earnings"
	"github.com/amirphl/eps-trader/internal/strategy/signal"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// executeWithTransaction runs fn in a new transaction, rolling back when it fails.
func (p *Default) executeWithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction rollback failed: %w (original error: %v)", rbErr, fnErr)
		}
		return fnErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("transaction commit failed: %w", commitErr)
	}
	return nil
}

// Default is the Postgres storage.
type Default struct {
	db *sql.DB
}

func New(c conf.Config) (*Default, error) {
	if c.DB == nil {
		return nil, fmt.Errorf("db.New | nil database handle")
	}
	return &Default{db: c.DB}, nil
}

func (p *Default) Close() error {
	return p.db.Close()
}

// SaveCandles upserts daily candles, one row per symbol and day.
func (p *Default) SaveCandles(ctx context.Context, candles []candle.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid candle at index %d for %s at %s: %w",
				i, c.Symbol, c.Timestamp.Format(candle.DateLayout), err)
		}
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO candles (symbol, day, open, high, low, close, volume, source)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (symbol, day) DO UPDATE SET
				open=EXCLUDED.open, high=EXCLUDED.high, low=EXCLUDED.low,
				close=EXCLUDED.close, volume=EXCLUDED.volume, source=EXCLUDED.source`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert statement: %w", err)
		}
		defer stmt.Close()

		for i, c := range candles {
			if _, err := stmt.ExecContext(ctx,
				strings.ToUpper(c.Symbol), candle.Date(c.Timestamp), c.Open, c.High, c.Low, c.Close, c.Volume, c.Source); err != nil {
				return fmt.Errorf("failed to save candle at index %d (%s at %s): %w",
					i, c.Symbol, c.Timestamp.Format(candle.DateLayout), err)
			}
		}
		return nil
	})
}

// GetCandles retrieves candles for a symbol with start <= day < end. Zero
// bounds are open.
func (p *Default) GetCandles(ctx context.Context, symbol string, start, end time.Time) ([]candle.Candle, error) {
	query := `
		SELECT day, open, high, low, close, volume, symbol, source
		FROM candles
		WHERE symbol=$1`
	args := []any{strings.ToUpper(symbol)}
	if !start.IsZero() {
		args = append(args, candle.Date(start))
		query += fmt.Sprintf(" AND day >= $%d", len(args))
	}
	if !end.IsZero() {
		args = append(args, dayBound(end))
		query += fmt.Sprintf(" AND day < $%d", len(args))
	}
	query += " ORDER BY day ASC"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles in range: %w", err)
	}
	defer rows.Close()

	var candles []candle.Candle
	for rows.Next() {
		var c candle.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Symbol, &c.Source); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		c.Timestamp = candle.Date(c.Timestamp)
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candle rows: %w", err)
	}
	return candles, nil
}

// dayBound is the first calendar day not covered by an exclusive end instant.
func dayBound(end time.Time) time.Time {
	d := candle.Date(end)
	if !d.Equal(end) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func (p *Default) FetchCandles(ctx context.Context, symbol string, start, end time.Time) ([]candle.Candle, error) {
	return p.GetCandles(ctx, symbol, start, end)
}

// DeleteCandles removes a symbol's candles dated before the given day.
func (p *Default) DeleteCandles(ctx context.Context, symbol string, before time.Time) error {
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM candles WHERE symbol=$1 AND day < $2`,
			strings.ToUpper(symbol), candle.Date(before)); err != nil {
			return fmt.Errorf("failed to delete candles: %w", err)
		}
		return nil
	})
}

// SaveEarnings upserts reports keyed by symbol and report date.
func (p *Default) SaveEarnings(ctx context.Context, symbol string, reports []earnings.Report) error {
	if len(reports) == 0 {
		return nil
	}
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO earnings_reports (symbol, report_date, actual_eps, eps_estimate)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (symbol, report_date) DO UPDATE SET
				actual_eps=EXCLUDED.actual_eps, eps_estimate=EXCLUDED.eps_estimate`)
		if err != nil {
			return fmt.Errorf("failed to prepare earnings insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range reports {
			if _, err := stmt.ExecContext(ctx, strings.ToUpper(symbol), candle.Date(r.Date), r.ActualEPS, r.EPSEstimate); err != nil {
				return fmt.Errorf("failed to save earnings for %s at %s: %w", symbol, r.Date.Format(candle.DateLayout), err)
			}
		}
		return nil
	})
}

func (p *Default) GetEarnings(ctx context.Context, symbol string) ([]earnings.Report, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT report_date, actual_eps, eps_estimate
		FROM earnings_reports
		WHERE symbol=$1
		ORDER BY report_date ASC`, strings.ToUpper(symbol))
	if err != nil {
		return nil, fmt.Errorf("failed to query earnings: %w", err)
	}
	defer rows.Close()

	var reports []earnings.Report
	for rows.Next() {
		var r earnings.Report
		if err := rows.Scan(&r.Date, &r.ActualEPS, &r.EPSEstimate); err != nil {
			return nil, fmt.Errorf("failed to scan earnings: %w", err)
		}
		r.Date = candle.Date(r.Date)
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating earnings rows: %w", err)
	}
	return reports, nil
}

// SaveRun stores the run header, its results and its signal log in one transaction.
func (p *Default) SaveRun(ctx context.Context, run *backtest.Run) error {
	results, err := json.Marshal(run.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	simCfg, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	thresholds, err := json.Marshal(run.Thresholds)
	if err != nil {
		return fmt.Errorf("failed to marshal thresholds: %w", err)
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_runs (id, symbol, strategy, from_day, to_day, candles,
				initial_balance, final_balance, return_percent, trades, config, thresholds, results)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			run.ID, run.Symbol, run.Strategy, candle.Date(run.From), candle.Date(run.To), run.Candles,
			run.Results.StartingBalance, run.Results.FinalBalance, run.Results.ReturnPercent, run.Results.Trades,
			simCfg, thresholds, results)
		if err != nil {
			return fmt.Errorf("failed to save run %s: %w", run.ID, err)
		}

		if len(run.Signals) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO backtest_signals (run_id, seq, day, kind, day_index, price, reason)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`)
		if err != nil {
			return fmt.Errorf("failed to prepare signal insert: %w", err)
		}
		defer stmt.Close()

		for i, s := range run.Signals {
			if _, err := stmt.ExecContext(ctx, run.ID, i, candle.Date(s.Time), s.Kind.String(), s.Index, s.Price, s.Reason); err != nil {
				return fmt.Errorf("failed to save signal %d of run %s: %w", i, run.ID, err)
			}
		}
		return nil
	})
}

const runColumns = `id, symbol, strategy, from_day, to_day, candles, config, thresholds, results`

func scanRun(scan func(dest ...any) error) (*backtest.Run, error) {
	var (
		run                         backtest.Run
		simCfg, thresholds, results []byte
	)
	if err := scan(&run.ID, &run.Symbol, &run.Strategy, &run.From, &run.To, &run.Candles, &simCfg, &thresholds, &results); err != nil {
		return nil, err
	}
	run.From = candle.Date(run.From)
	run.To = candle.Date(run.To)
	if err := json.Unmarshal(simCfg, &run.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := json.Unmarshal(thresholds, &run.Thresholds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal thresholds: %w", err)
	}
	if err := json.Unmarshal(results, &run.Results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal results: %w", err)
	}
	return &run, nil
}

func (p *Default) GetRun(ctx context.Context, id uuid.UUID) (*backtest.Run, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM backtest_runs WHERE id=$1`, id)
	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT day, kind, day_index, price, reason
		FROM backtest_signals
		WHERE run_id=$1
		ORDER BY seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals of run %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			s    signal.Signal
			kind string
		)
		if err := rows.Scan(&s.Time, &kind, &s.Index, &s.Price, &s.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		if s.Kind, err = signal.ParseKind(kind); err != nil {
			return nil, fmt.Errorf("run %s: %w", id, err)
		}
		s.Time = candle.Date(s.Time)
		run.Signals = append(run.Signals, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signal rows: %w", err)
	}
	return run, nil
}

func (p *Default) ListRuns(ctx context.Context, symbol string, limit int) ([]*backtest.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM backtest_runs`
	args := []any{}
	if symbol != "" {
		args = append(args, strings.ToUpper(symbol))
		query += ` WHERE symbol=$1`
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*backtest.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return runs, nil
}

// DeleteRuns removes runs and, through the foreign key, their signals.
func (p *Default) DeleteRuns(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM backtest_runs WHERE id = ANY($1::uuid[])`, pq.Array(strs)); err != nil {
			return fmt.Errorf("failed to delete runs: %w", err)
		}
		return nil
	})
}
