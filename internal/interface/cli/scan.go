package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/jinford/bsp-scan/internal/core/scan"
	"github.com/jinford/bsp-scan/internal/platform/container"
)

// cancelWait は中断後に終端状態を待つ上限
const cancelWait = 30 * time.Second

// ScanStartAction はスキャンを起動し、終端まで進捗を表示するコマンドのアクション
func ScanStartAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	req := scan.Request{
		Pool:           scan.PoolSelector(cmd.String("pool")),
		Boards:         cmd.StringSlice("board"),
		Codes:          cmd.StringSlice("code"),
		KlineType:      scan.KlineType(cmd.String("kline")),
		BSPTypes:       cmd.StringSlice("types"),
		TimeWindowDays: int(cmd.Int("window")),
		Limit:          int(cmd.Int("limit")),
	}

	// スキャン本体はシグナルで直接止めず、Cancel 経由で協調的に止める
	appCtx, err := NewAppContext(ctx, envFile, container.WithContainerBaseContext(context.WithoutCancel(ctx)))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	svc := appCtx.Container.ScanService
	started, err := svc.Start(ctx, req)
	if err != nil {
		return fmt.Errorf("スキャンの開始に失敗しました: %w", err)
	}
	fmt.Fprintf(stdout, "スキャンを開始しました: %s (対象 %d 銘柄)\n", started.TaskID, started.TotalCount)

	final, err := followProgress(ctx, svc, started.TaskID)
	if err != nil {
		return err
	}

	// 結果の保存が終わるまで待つ
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelWait)
	defer cancel()
	if err := svc.Shutdown(waitCtx); err != nil {
		appCtx.Logger().Warn("結果の保存完了を待てませんでした", "error", err)
	}

	rs, err := svc.Result(waitCtx, started.TaskID)
	if err != nil {
		return fmt.Errorf("結果の取得に失敗しました: %w", err)
	}
	renderResultSet(stdout, rs)

	if final.Status == scan.StatusError {
		return fmt.Errorf("スキャンがエラーで終了しました: %s", final.ErrorMessage)
	}
	return nil
}

// followProgress は終端状態まで進捗を表示する。ctx が終わればタスクを中断して終端を待つ。
func followProgress(ctx context.Context, svc *scan.Service, taskID uuid.UUID) (scan.Progress, error) {
	last, done, err := drainProgress(ctx, svc, taskID)
	if err != nil {
		return last, err
	}
	if done {
		return last, nil
	}

	fmt.Fprintln(stdout, "中断を要求しています...")
	bg := context.WithoutCancel(ctx)
	if err := svc.Cancel(bg, taskID); err != nil && !errors.Is(err, scan.ErrNotCancellable) {
		return last, fmt.Errorf("スキャンの中断に失敗しました: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(bg, cancelWait)
	defer cancel()
	last, done, err = drainProgress(waitCtx, svc, taskID)
	if err != nil {
		return last, err
	}
	if !done {
		return last, fmt.Errorf("スキャンの終了を待てませんでした: %w", waitCtx.Err())
	}
	return last, nil
}

// drainProgress は Watch の列を表示し、終端状態に達したかを返す
func drainProgress(ctx context.Context, svc *scan.Service, taskID uuid.UUID) (scan.Progress, bool, error) {
	ch, err := svc.Watch(ctx, taskID)
	if err != nil {
		return scan.Progress{}, false, fmt.Errorf("進捗の購読に失敗しました: %w", err)
	}

	var last scan.Progress
	for p := range ch {
		last = p
		renderProgress(stdout, p)
	}
	return last, last.Status.IsTerminal(), nil
}
