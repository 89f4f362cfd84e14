package container

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/bsp-scan/internal/core/scan"
	"github.com/jinford/bsp-scan/internal/platform/config"
)

type stubEngine struct{}

func (stubEngine) Analyze(ctx context.Context, code string, kline scan.KlineType, limit int) (*scan.Analysis, error) {
	return &scan.Analysis{Code: code, Points: []scan.DecisionPoint{{
		IsBuy: true,
		Tags:  []string{"2"},
		Time:  time.Now().Format(scan.PointTimeLayout),
		Value: 1,
	}}}, nil
}

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stocks.csv")
	require.NoError(t, os.WriteFile(path, []byte("code,name\nsz.300750,宁德时代\nsh.600519,贵州茅台\n"), 0o600))

	return &config.Config{
		StoreDriver: config.StoreDriverMemory,
		StockFile:   path,
		Scan: config.ScanConfig{
			MaxWorkers:       2,
			UnitTimeout:      time.Second,
			ProgressInterval: 50 * time.Millisecond,
			TaskRetention:    time.Hour,
			ReaperSchedule:   "@every 1m",
		},
	}
}

func TestNewContainer_Memory(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, memoryConfig(t),
		WithContainerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithContainerEngine(stubEngine{}),
	)
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.Database)
	assert.Nil(t, c.TxProvider)

	stocks, err := c.Catalog.ListStocks(ctx)
	require.NoError(t, err)
	assert.Len(t, stocks, 2)

	started, err := c.ScanService.Start(ctx, scan.Request{Pool: scan.PoolByBoard, Boards: []string{"cyb"}})
	require.NoError(t, err)
	assert.Equal(t, 1, started.TotalCount)

	require.Eventually(t, func() bool {
		p, err := c.ScanService.Progress(ctx, started.TaskID)
		return err == nil && p.Status == scan.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	rs, err := c.ScanService.Result(ctx, started.TaskID)
	require.NoError(t, err)
	require.Len(t, rs.Results, 1)
	assert.Equal(t, "sz.300750", rs.Results[0].Code)
}

func TestNewContainer_MissingStockFile(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.StockFile = filepath.Join(t.TempDir(), "none.csv")

	_, err := NewContainer(context.Background(), cfg)
	assert.Error(t, err)
}
