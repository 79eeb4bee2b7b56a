// Package config
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/amirphl/eps-trader/internal/candle"
	"github.com/amirphl/eps-trader/internal/strategy"
	"gopkg.in/yaml.v3"
)

/*
YAML config example:
mode: "backtest"
symbols: ["AAPL", "MSFT"]
from: "2023-01-01"
to: "2024-01-01"
source: "csv"
csv_path: "data/{symbol}.csv"
earnings_path: "data/earnings.yaml"
initial_balance: 10000
rsi_period: 14
volatility_period: 14
honor_exits: false
thresholds:
  eps_beat: 1.05
  eps_miss: 0.95
  rsi_move: 0.10
  price_move: 0.02
  volatility_spike: 1.2
  exit_price_move: 0.02
  exit_rsi_move: 0.05
parallel: 4
output_dir: "results"
persist_runs: true
db_max_open: 10
db_max_idle: 5
http_addr: ":8080"
log_level: "info"
telegram_chat_id: "..."
*/

const (
	ModeBacktest = "backtest"
	ModeServe    = "serve"
	ModeMigrate  = "migrate"

	SourceCSV    = "csv"
	SourceDB     = "db"
	SourceWallex = "wallex"
)

type Config struct {
	Mode    string   `yaml:"mode"`
	Symbols []string `yaml:"symbols"`
	// FromDate and ToDate are the raw YYYY-MM-DD bounds; From and To are parsed from them.
	FromDate string    `yaml:"from"`
	ToDate   string    `yaml:"to"`
	From     time.Time `yaml:"-"`
	To       time.Time `yaml:"-"`

	Source       string `yaml:"source"`
	CSVPath      string `yaml:"csv_path"`
	EarningsPath string `yaml:"earnings_path"`

	InitialBalance   float64             `yaml:"initial_balance"`
	RSIPeriod        int                 `yaml:"rsi_period"`
	VolatilityPeriod int                 `yaml:"volatility_period"`
	Thresholds       strategy.Thresholds `yaml:"thresholds"`
	HonorExits       bool                `yaml:"honor_exits"`
	Parallel         int                 `yaml:"parallel"`
	OutputDir        string              `yaml:"output_dir"`
	PersistRuns      bool                `yaml:"persist_runs"`

	DBConnStr    string `yaml:"db_conn_str"`
	DBMaxOpen    int    `yaml:"db_max_open"`
	DBMaxIdle    int    `yaml:"db_max_idle"`
	RunMigration bool   `yaml:"run_migration"`

	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`

	WallexAPIKey   string `yaml:"wallex_api_key"`
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
}

// Default returns the configuration used when neither flags nor a file set a value.
func Default() Config {
	return Config{
		Mode:             ModeBacktest,
		Symbols:          []string{"AAPL"},
		Source:           SourceCSV,
		CSVPath:          "data/" + candle.SymbolPlaceholder + ".csv",
		InitialBalance:   10000,
		RSIPeriod:        14,
		VolatilityPeriod: 14,
		Thresholds:       strategy.DefaultThresholds(),
		Parallel:         4,
		DBMaxOpen:        10,
		DBMaxIdle:        5,
		HTTPAddr:         ":8080",
		LogLevel:         "info",
	}
}

// Load parses command line flags, then the optional YAML file given by -config,
// then secrets from the environment. The YAML file overrides flags key by key.
func Load(args []string) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("eps-trader", flag.ContinueOnError)
	mode := fs.String("mode", cfg.Mode, "Mode: backtest, serve or migrate")
	symbols := fs.String("symbols", strings.Join(cfg.Symbols, ","), "Comma-separated list of symbols to backtest")
	from := fs.String("from", "", "Backtest start date (YYYY-MM-DD), empty for the first candle")
	to := fs.String("to", "", "Backtest end date (YYYY-MM-DD, exclusive), empty for the last candle")
	source := fs.String("source", cfg.Source, "Price source: csv, db or wallex")
	csvPath := fs.String("csv", cfg.CSVPath, "CSV price file; "+candle.SymbolPlaceholder+" is replaced by the symbol")
	earningsPath := fs.String("earnings", "", "YAML earnings calendar, empty for the built-in one")
	balance := fs.Float64("balance", cfg.InitialBalance, "Initial balance")
	rsiPeriod := fs.Int("rsi-period", cfg.RSIPeriod, "RSI look-back in days")
	volPeriod := fs.Int("volatility-period", cfg.VolatilityPeriod, "Volatility look-back in days")
	honorExits := fs.Bool("honor-exits", cfg.HonorExits, "Close long positions on ExitBuy signals")
	parallel := fs.Int("parallel", cfg.Parallel, "Symbols backtested concurrently")
	outputDir := fs.String("out", "", "Directory for signals, trades and equity CSV files")
	persist := fs.Bool("persist", false, "Save runs to Postgres")
	runMigration := fs.Bool("migrate", false, "Apply the schema before starting")
	httpAddr := fs.String("http", cfg.HTTPAddr, "HTTP listen address in serve mode")
	metricsAddr := fs.String("metrics", "", "Prometheus listen address in backtest mode, empty to disable")
	logLevel := fs.String("log-level", cfg.LogLevel, "Log level: debug, info, warn or error")
	logFile := fs.String("log-file", "", "Append logs to this file instead of stdout")
	telegramChatID := fs.String("telegram-chat", "", "Telegram chat ID for run summaries")
	configFile := fs.String("config", "", "Path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.Mode = *mode
	cfg.Symbols = splitList(*symbols)
	cfg.FromDate = *from
	cfg.ToDate = *to
	cfg.Source = *source
	cfg.CSVPath = *csvPath
	cfg.EarningsPath = *earningsPath
	cfg.InitialBalance = *balance
	cfg.RSIPeriod = *rsiPeriod
	cfg.VolatilityPeriod = *volPeriod
	cfg.HonorExits = *honorExits
	cfg.Parallel = *parallel
	cfg.OutputDir = *outputDir
	cfg.PersistRuns = *persist
	cfg.RunMigration = *runMigration
	cfg.HTTPAddr = *httpAddr
	cfg.MetricsAddr = *metricsAddr
	cfg.LogLevel = *logLevel
	cfg.LogFile = *logFile
	cfg.TelegramChatID = *telegramChatID

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return cfg, fmt.Errorf("Failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("Failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.parseDates(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	for env, dst := range map[string]*string{
		"DB_CONN_STR":      &cfg.DBConnStr,
		"WALLEX_API_KEY":   &cfg.WallexAPIKey,
		"TELEGRAM_TOKEN":   &cfg.TelegramToken,
		"TELEGRAM_CHAT_ID": &cfg.TelegramChatID,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
}

func (c *Config) parseDates() error {
	var err error
	if c.From, err = parseDate(c.FromDate); err != nil {
		return fmt.Errorf("invalid from date: %w", err)
	}
	if c.To, err = parseDate(c.ToDate); err != nil {
		return fmt.Errorf("invalid to date: %w", err)
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	if s = strings.TrimSpace(s); s == "" {
		return time.Time{}, nil
	}
	return time.Parse(candle.DateLayout, s)
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeBacktest, ModeServe, ModeMigrate:
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", c.Mode))
	}
	switch c.Source {
	case SourceCSV:
		if c.CSVPath == "" {
			errs = append(errs, errors.New("csv source needs a csv path"))
		}
	case SourceDB:
		if c.DBConnStr == "" {
			errs = append(errs, errors.New("db source needs DB_CONN_STR"))
		}
	case SourceWallex:
		if c.From.IsZero() && c.Mode == ModeBacktest {
			errs = append(errs, errors.New("wallex source needs a from date"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source %q", c.Source))
	}
	if c.Mode == ModeBacktest && len(c.Symbols) == 0 {
		errs = append(errs, errors.New("at least one symbol is required"))
	}
	if (c.Mode == ModeMigrate || c.PersistRuns || c.RunMigration) && c.DBConnStr == "" {
		errs = append(errs, errors.New("database features need DB_CONN_STR"))
	}
	if !c.From.IsZero() && !c.To.IsZero() && !c.From.Before(c.To) {
		errs = append(errs, fmt.Errorf("from %s must be before to %s", c.FromDate, c.ToDate))
	}
	if c.InitialBalance <= 0 {
		errs = append(errs, fmt.Errorf("initial balance must be positive, got %v", c.InitialBalance))
	}
	if c.RSIPeriod < 2 || c.VolatilityPeriod < 2 {
		errs = append(errs, fmt.Errorf("indicator periods must be at least 2, got rsi=%d volatility=%d",
			c.RSIPeriod, c.VolatilityPeriod))
	}
	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Parallel < 1 {
		errs = append(errs, fmt.Errorf("parallel must be at least 1, got %d", c.Parallel))
	}
	if c.DBMaxOpen < 1 || c.DBMaxIdle < 0 {
		errs = append(errs, fmt.Errorf("invalid pool size open=%d idle=%d", c.DBMaxOpen, c.DBMaxIdle))
	}
	if (c.TelegramToken == "") != (c.TelegramChatID == "") {
		errs = append(errs, errors.New("telegram notifications need both a token and a chat id"))
	}
	return errors.Join(errs...)
}
