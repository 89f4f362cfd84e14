package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/bsp-scan/internal/core/scan"
)

// ResultsAllAction は複数タスクの結果を横断表示するコマンドのアクション
func ResultsAllAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	agg, err := appCtx.Container.ScanService.AllResults(ctx, scan.AggregateQuery{
		Status: cmd.String("status"),
		Limit:  int(cmd.Int("limit")),
	})
	if err != nil {
		return fmt.Errorf("結果の取得に失敗しました: %w", err)
	}

	renderAggregate(stdout, agg)
	return nil
}

func taskQuery(cmd *cli.Command) scan.TaskQuery {
	return scan.TaskQuery{
		Page:     int(cmd.Int("page")),
		PageSize: int(cmd.Int("page-size")),
		Status:   cmd.String("status"),
	}
}
