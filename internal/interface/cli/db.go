package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/bsp-scan/internal/infra/stockcsv"
	"github.com/jinford/bsp-scan/internal/platform/database"
)

var errPostgresOnly = errors.New("postgres ドライバでのみ利用できます")

// DBMigrateAction はスキーマを適用するコマンドのアクション
func DBMigrateAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	tx := appCtx.Container.TxProvider
	if tx == nil {
		return errPostgresOnly
	}

	if err := database.Migrate(ctx, tx); err != nil {
		return fmt.Errorf("スキーマの適用に失敗しました: %w", err)
	}

	slog.Info("スキーマを適用しました")
	fmt.Fprintln(stdout, "✓ スキーマを適用しました")
	return nil
}

// StockImportAction は銘柄CSVを取り込むコマンドのアクション
func StockImportAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	path := cmd.String("file")

	stocks, err := stockcsv.ReadFile(path)
	if err != nil {
		return fmt.Errorf("銘柄ファイルの読み込みに失敗しました: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	tx := appCtx.Container.TxProvider
	if tx == nil {
		return errPostgresOnly
	}

	n, err := database.ImportStocks(ctx, tx, stocks)
	if err != nil {
		return fmt.Errorf("銘柄の取り込みに失敗しました: %w", err)
	}

	slog.Info("銘柄を取り込みました", "file", path, "count", n)
	fmt.Fprintf(stdout, "✓ %d 件の銘柄を取り込みました\n", n)
	return nil
}
