package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/amirphl/eps-trader/internal/api"
	"github.com/amirphl/eps-trader/internal/backtest"
	"github.com/amirphl/eps-trader/internal/candle"
	"github.com/amirphl/eps-trader/internal/config"
	"github.com/amirphl/eps-trader/internal/db"
	"github.com/amirphl/eps-trader/internal/db/conf"
	"github.com/amirphl/eps-trader/internal/earnings"
	"github.com/amirphl/eps-trader/internal/exchange"
	"github.com/amirphl/eps-trader/internal/journal"
	"github.com/amirphl/eps-trader/internal/metrics"
	"github.com/amirphl/eps-trader/internal/notifier"
	"github.com/amirphl/eps-trader/internal/series"
	"github.com/amirphl/eps-trader/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
)

const journalLimit = 10000

func main() {
	// Load configuration
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	utils.SetupLogger(cfg.LogLevel, cfg.LogFile)
	logger := utils.GetLogger()
	logger.Info().Str("mode", cfg.Mode).Strs("symbols", cfg.Symbols).Str("source", cfg.Source).
		Msg("Starting EPS trader")

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Run migrations if enabled
	if cfg.RunMigration || cfg.Mode == config.ModeMigrate {
		if err := runMigrations(ctx, cfg.DBConnStr); err != nil {
			logger.Fatal().Err(err).Msg("Failed to run migrations")
		}
		if cfg.Mode == config.ModeMigrate {
			return
		}
	}

	store, err := openStorage(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer store.Close()

	feed := newFeed(cfg, store)
	calendar, err := loadCalendar(ctx, cfg, store)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load earnings calendar")
	}

	runner := newRunner(cfg, feed, calendar, store)

	switch cfg.Mode {
	case config.ModeBacktest:
		if err := runBacktest(ctx, cfg, runner); err != nil {
			logger.Fatal().Err(err).Msg("Backtest failed")
		}
	case config.ModeServe:
		if err := serve(ctx, cfg, runner, store); err != nil {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	default:
		logger.Fatal().Str("mode", cfg.Mode).Msg("Unsupported mode")
	}
	logger.Info().Msg("Shutdown complete")
}

// openStorage connects to Postgres when a connection string is configured and
// falls back to process memory otherwise.
func openStorage(cfg config.Config) (db.Storage, error) {
	if cfg.DBConnStr == "" {
		utils.GetLogger().Info().Msg("No DB_CONN_STR, keeping runs in memory")
		return db.NewMemory(), nil
	}
	dbConfig, err := conf.NewConfig(cfg.DBConnStr, cfg.DBMaxOpen, cfg.DBMaxIdle)
	if err != nil {
		return nil, fmt.Errorf("failed to create DB config: %w", err)
	}
	store, err := db.New(*dbConfig)
	if err != nil {
		return nil, err
	}
	utils.GetLogger().Info().Msg("Connected to Postgres")
	return store, nil
}

func newFeed(cfg config.Config, store db.Storage) candle.PriceFeed {
	switch cfg.Source {
	case config.SourceDB:
		// candles missing from the database are downloaded once and kept
		return &db.CachedFeed{Store: store, Source: exchange.NewWallexExchange(cfg.WallexAPIKey)}
	case config.SourceWallex:
		return exchange.NewWallexExchange(cfg.WallexAPIKey)
	default:
		return candle.NewCSVFeed(cfg.CSVPath)
	}
}

func newRunner(cfg config.Config, feed candle.PriceFeed, calendar earnings.Calendar, store db.Storage) *backtest.Runner {
	runner := backtest.NewRunner(feed, calendar, utils.GetLogger())
	runner.Options = series.Options{RSIPeriod: cfg.RSIPeriod, VolatilityPeriod: cfg.VolatilityPeriod}
	runner.Thresholds = cfg.Thresholds
	runner.Sim = backtest.SimConfig{InitialBalance: cfg.InitialBalance, HonorExits: cfg.HonorExits}
	if cfg.PersistRuns || cfg.Mode == config.ModeServe {
		runner.Store = store
	}
	if cfg.Mode == config.ModeServe {
		runner.Journal = journal.NewMemory(journalLimit)
	}
	if cfg.TelegramToken != "" {
		runner.Notifier = notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
	}
	return runner
}

// loadCalendar prefers an explicit YAML file, then reports stored in the
// database, then the built-in calendar.
func loadCalendar(ctx context.Context, cfg config.Config, store db.Storage) (earnings.Calendar, error) {
	if cfg.EarningsPath != "" {
		return earnings.LoadCalendar(cfg.EarningsPath)
	}
	calendar := earnings.DefaultCalendar()
	if cfg.Source != config.SourceDB {
		return calendar, nil
	}
	stored, err := db.LoadCalendar(ctx, store, cfg.Symbols)
	if err != nil {
		return nil, err
	}
	for symbol, reports := range stored {
		if len(reports) > 0 {
			calendar[symbol] = reports
		}
	}
	return calendar, nil
}

func runBacktest(ctx context.Context, cfg config.Config, runner *backtest.Runner) error {
	if cfg.MetricsAddr != "" {
		srv := metrics.Serve(cfg.MetricsAddr)
		defer srv.Close()
	}

	reqs := make([]backtest.Request, len(cfg.Symbols))
	for i, symbol := range cfg.Symbols {
		reqs[i] = backtest.Request{Symbol: symbol, From: cfg.From, To: cfg.To}
	}

	if len(reqs) == 1 {
		run, err := runner.Run(ctx, reqs[0])
		if err != nil {
			return err
		}
		backtest.PrintResults(run)
		return saveOutput(cfg.OutputDir, run)
	}

	results := runner.RunMany(ctx, reqs, cfg.Parallel)
	backtest.PrintMultiSymbolSummary(results)
	for _, run := range results.Runs {
		if err := saveOutput(cfg.OutputDir, run); err != nil {
			return err
		}
	}
	if results.SuccessfulRuns == 0 {
		return fmt.Errorf("all %d symbols failed", results.TotalSymbols)
	}
	return nil
}

func saveOutput(dir string, run *backtest.Run) error {
	if dir == "" {
		return nil
	}
	out := filepath.Join(dir, run.Symbol)
	if err := backtest.SaveResults(out, run); err != nil {
		return fmt.Errorf("save results for %s: %w", run.Symbol, err)
	}
	utils.GetLogger().Info().Str("dir", out).Msg("Backtest | results saved")
	return nil
}

func serve(ctx context.Context, cfg config.Config, runner *backtest.Runner, store db.Storage) error {
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewServer(runner, store, utils.GetLogger()).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		utils.GetLogger().Info().Str("addr", cfg.HTTPAddr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	utils.GetLogger().Info().Msg("Graceful shutdown initiated...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// runMigrations creates the database if it doesn't exist and runs the schema.sql script
func runMigrations(ctx context.Context, connStr string) error {
	logger := utils.GetLogger()
	logger.Info().Msg("Running database migrations...")

	// Parse connection string to extract database name
	u, err := url.Parse(connStr)
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %w", err)
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return fmt.Errorf("database name not found in connection string")
	}

	// Connect to the maintenance database to create ours
	base := *u
	base.Path = "/postgres"
	baseDB, err := sql.Open("postgres", base.String())
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer baseDB.Close()

	var exists bool
	err = baseDB.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if database exists: %w", err)
	}
	if !exists {
		logger.Info().Str("database", dbName).Msg("Creating database")
		if _, err := baseDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(dbName))); err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
	}

	target, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer target.Close()

	schemaPath, err := conf.FindSchema()
	if err != nil {
		return err
	}
	schemaSQL, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	for _, stmt := range conf.SplitStatements(string(schemaSQL)) {
		if _, err := target.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement %q: %w", firstLine(stmt), err)
		}
	}

	logger.Info().Msg("Database migrations completed successfully")
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
