package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/urfave/cli/v3"
)

// TaskListAction はタスク一覧を表示するコマンドのアクション
func TaskListAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	page, err := appCtx.Container.ScanService.ListTasks(ctx, taskQuery(cmd))
	if err != nil {
		return fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}

	renderTaskPage(stdout, page)
	return nil
}

// TaskShowAction はタスク詳細と結果を表示するコマンドのアクション
func TaskShowAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	taskID, err := parseTaskIDFlag(cmd)
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	detail, err := appCtx.Container.ScanService.TaskDetail(ctx, taskID)
	if err != nil {
		return fmt.Errorf("タスク詳細の取得に失敗しました: %w", err)
	}

	renderTaskDetail(stdout, detail)
	return nil
}

// TaskDeleteAction はタスクと結果を削除するコマンドのアクション
func TaskDeleteAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	taskID, err := parseTaskIDFlag(cmd)
	if err != nil {
		return err
	}

	if !cmd.Bool("yes") {
		prompt := promptui.Prompt{
			Label:     fmt.Sprintf("タスク %s を削除しますか", taskID),
			IsConfirm: true,
		}
		if _, err := prompt.Run(); err != nil {
			if errors.Is(err, promptui.ErrAbort) {
				fmt.Fprintln(stdout, "削除を取り消しました")
				return nil
			}
			return fmt.Errorf("確認入力に失敗しました: %w", err)
		}
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.ScanService.DeleteTask(ctx, taskID); err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}

	fmt.Fprintf(stdout, "タスクを削除しました: %s\n", taskID)
	return nil
}

func parseTaskIDFlag(cmd *cli.Command) (uuid.UUID, error) {
	raw := cmd.String("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("タスクIDが不正です: %s", raw)
	}
	return id, nil
}
