package db

import (
	"context"
	"testing"

	dbconf "github.com/amirphl/eps-trader/internal/db/conf"
	"github.com/amirphl/eps-trader/internal/strategy/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStorage(t *testing.T) {
	cfg, cleanup := dbconf.NewTestConfig(t)
	require.NotNil(t, cfg)
	defer cleanup()

	storage, err := New(*cfg)
	require.NoError(t, err)

	runStorageSuite(t, storage)
}

func TestPostgresSaveRunRollsBack(t *testing.T) {
	cfg, cleanup := dbconf.NewTestConfig(t)
	require.NotNil(t, cfg)
	defer cleanup()

	storage, err := New(*cfg)
	require.NoError(t, err)
	ctx := context.Background()

	run := sampleRun("AAPL")
	require.NoError(t, storage.SaveRun(ctx, run))

	dup := *run
	dup.Signals = append(dup.Signals, signal.Signal{Time: day0.AddDate(0, 0, 18), Kind: signal.ExitSell, Index: 18, Price: 105})
	assert.Error(t, storage.SaveRun(ctx, &dup), "duplicate ids are rejected")

	var count int
	require.NoError(t, cfg.DB.QueryRow(`SELECT COUNT(*) FROM backtest_signals WHERE run_id=$1`, run.ID).Scan(&count))
	assert.Equal(t, len(run.Signals), count)
}

func TestSchema(t *testing.T) {
	cfg, cleanup := dbconf.NewTestConfig(t)
	require.NotNil(t, cfg)
	defer cleanup()

	for _, table := range []string{"candles", "earnings_reports", "backtest_runs", "backtest_signals"} {
		_, err := cfg.DB.Exec("SELECT * FROM " + table + " LIMIT 1")
		assert.NoError(t, err, "table %s should exist", table)
	}

	_, err := cfg.DB.Exec(`INSERT INTO candles (symbol, day, close, volume, source) VALUES ('AAPL', '2023-05-01', 170, 1, 'test')`)
	require.NoError(t, err)
	_, err = cfg.DB.Exec(`INSERT INTO candles (symbol, day, close, volume, source) VALUES ('AAPL', '2023-05-01', 171, 1, 'test')`)
	assert.ErrorContains(t, err, "duplicate key value violates unique constraint")

	_, err = cfg.DB.Exec(`INSERT INTO candles (symbol, day, close, volume, source) VALUES ('AAPL', '2023-05-02', 0, 1, 'test')`)
	assert.Error(t, err, "non-positive close is rejected")
}

func TestNewRequiresHandle(t *testing.T) {
	_, err := New(dbconf.Config{})
	assert.Error(t, err)
}
