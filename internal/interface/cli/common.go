package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jinford/bsp-scan/internal/platform/config"
	"github.com/jinford/bsp-scan/internal/platform/container"
	"github.com/jinford/bsp-scan/internal/platform/logger"
)

// stdout はコマンドの出力先
var stdout io.Writer = os.Stdout

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.ServiceContainer
	logger    *slog.Logger
}

// NewAppContext は設定ファイルを読み込み、ストアに接続して AppContext を作成する。
// opts は既定のコンテナ設定の後に適用される
func NewAppContext(ctx context.Context, envFile string, opts ...container.ContainerOption) (*AppContext, error) {
	// 設定の読み込み（platform層を使用）
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	// ロガーの初期化（platform層を使用）
	appLogger := logger.New(logger.Config{
		Level:    logger.ParseLevel(cfg.Log.Level),
		Format:   cfg.Log.Format,
		FilePath: cfg.Log.File,
	})

	// コンテナの初期化（platform層を使用）
	containerOpts := append([]container.ContainerOption{
		container.WithContainerLogger(appLogger),
		container.WithContainerBaseContext(ctx),
	}, opts...)
	cont, err := container.NewContainer(ctx, cfg, containerOpts...)
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
		logger:    appLogger,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.logger != nil {
		return ac.logger
	}
	return slog.Default()
}
