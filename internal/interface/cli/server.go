package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/bsp-scan/internal/interface/httpapi"
)

// ServerStartAction はHTTPサーバを起動するコマンドのアクション
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	cfg := appCtx.Config
	port := cfg.Server.Port
	if cmd.IsSet("port") {
		port = int(cmd.Int("port"))
	}

	svc := appCtx.Container.ScanService
	if err := appCtx.Container.Reaper.Start(); err != nil {
		return fmt.Errorf("タスク掃除ジョブの起動に失敗: %w", err)
	}

	handler := httpapi.NewRouter(httpapi.NewScanHandler(svc, appCtx.Logger()))
	server := httpapi.NewServer(port, handler, cfg.Server.ShutdownTimeout, appCtx.Logger())

	serveErr := server.Run(ctx)

	// 実行中のスキャンは親コンテキストの終了で中断され、最終書き込みまで待つ
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		appCtx.Logger().Warn("実行中のスキャンの終了を待てませんでした", "error", err)
	}

	if serveErr != nil {
		return fmt.Errorf("HTTPサーバの実行に失敗: %w", serveErr)
	}
	return nil
}
