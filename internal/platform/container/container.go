package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/bsp-scan/internal/core/scan"
	"github.com/jinford/bsp-scan/internal/infra/chanengine"
	"github.com/jinford/bsp-scan/internal/infra/memory"
	"github.com/jinford/bsp-scan/internal/infra/postgres"
	"github.com/jinford/bsp-scan/internal/infra/stockcsv"
	"github.com/jinford/bsp-scan/internal/platform/config"
	"github.com/jinford/bsp-scan/internal/platform/database"
)

// ServiceContainer はスキャン機能の依存関係を保持する
type ServiceContainer struct {
	ScanService *scan.Service
	Reaper      *scan.Reaper
	Store       scan.Store
	Catalog     scan.Catalog

	// postgres ドライバのときのみ設定される
	Database   *database.Database
	TxProvider *database.TransactionProvider

	logger *slog.Logger
}

type containerOptions struct {
	logger  *slog.Logger
	engine  scan.Engine
	baseCtx context.Context
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerEngine は解析エンジンを差し替える
func WithContainerEngine(engine scan.Engine) ContainerOption {
	return func(opts *containerOptions) {
		opts.engine = engine
	}
}

// WithContainerBaseContext はバックグラウンドのスキャンに使う親コンテキストを設定する
func WithContainerBaseContext(ctx context.Context) ContainerOption {
	return func(opts *containerOptions) {
		opts.baseCtx = ctx
	}
}

// NewContainer は設定からコンテナを生成する。
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		store := memory.New()
		if cfg.StockFile != "" {
			stocks, err := stockcsv.ReadFile(cfg.StockFile)
			if err != nil {
				return nil, fmt.Errorf("銘柄ファイルの読み込みに失敗しました: %w", err)
			}
			store.PutStocks(stocks...)
		}
		return newContainer(cfg, store, store, nil, opts...), nil
	}

	db, err := database.New(ctx, database.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}

	return NewContainerWithDB(cfg, db, opts...), nil
}

// NewContainerWithDB は既存の Database を受け取りコンテナを生成する。
func NewContainerWithDB(cfg *config.Config, db *database.Database, opts ...ContainerOption) *ServiceContainer {
	store := postgres.NewStore(db.Pool)
	return newContainer(cfg, store, store, db, opts...)
}

// NewContainerWithStore は任意の Store / Catalog でコンテナを生成する。
func NewContainerWithStore(cfg *config.Config, store scan.Store, catalog scan.Catalog, opts ...ContainerOption) *ServiceContainer {
	return newContainer(cfg, store, catalog, nil, opts...)
}

func newContainer(cfg *config.Config, store scan.Store, catalog scan.Catalog, db *database.Database, opts ...ContainerOption) *ServiceContainer {
	options := containerOptions{
		logger:  slog.Default(),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	engine := options.engine
	if engine == nil {
		engine = chanengine.NewClient(chanengine.Config{
			BaseURL: cfg.Engine.URL,
			Timeout: cfg.Engine.Timeout,
		}, chanengine.WithClientLogger(options.logger))
	}

	manager := scan.NewManager(scan.WithRetention(cfg.Scan.TaskRetention))
	service := scan.NewService(engine, catalog, store,
		scan.WithServiceLogger(options.logger),
		scan.WithManager(manager),
		scan.WithSchedulerConfig(scan.SchedulerConfig{
			MaxConcurrency:    cfg.Scan.MaxWorkers,
			UnitTimeout:       cfg.Scan.UnitTimeout,
			FlushInterval:     cfg.Scan.FlushInterval,
			FinalFlushTimeout: scan.DefaultSchedulerConfig().FinalFlushTimeout,
		}),
		scan.WithProgressInterval(cfg.Scan.ProgressInterval),
		scan.WithBaseContext(options.baseCtx),
	)

	c := &ServiceContainer{
		ScanService: service,
		Reaper:      scan.NewReaper(manager, cfg.Scan.ReaperSchedule, options.logger),
		Store:       store,
		Catalog:     catalog,
		Database:    db,
		logger:      options.logger,
	}
	if db != nil {
		c.TxProvider = database.NewTransactionProvider(db.Pool)
	}
	return c
}

// Close はコンテナが保持するリソースを解放する
func (c *ServiceContainer) Close() {
	if c.Reaper != nil {
		c.Reaper.Stop()
	}
	if c.Database != nil {
		c.Database.Close()
	}
}

// Logger はコンテナのロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}
