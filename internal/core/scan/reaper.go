package scan

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultReaperSchedule は掃除ジョブの既定スケジュール
const DefaultReaperSchedule = "@every 10m"

// Reaper は保持期間を過ぎたタスクを定期的にメモリから取り除くジョブ
type Reaper struct {
	manager  *Manager
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
	now      func() time.Time
}

// NewReaper は新しい Reaper を作成する
func NewReaper(manager *Manager, schedule string, logger *slog.Logger) *Reaper {
	if schedule == "" {
		schedule = DefaultReaperSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Reaper{
		manager:  manager,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// Start はスケジューラーを起動する
func (r *Reaper) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, func() { r.Run() }); err != nil {
		return fmt.Errorf("cron ジョブの登録に失敗: %w", err)
	}

	r.cron.Start()
	r.logger.Info("タスク掃除ジョブを開始しました", "schedule", r.schedule)
	return nil
}

// Stop はスケジューラーを停止し、実行中のジョブの終了を待つ
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("タスク掃除ジョブを停止しました")
}

// Run は掃除を1回実行する
func (r *Reaper) Run() int {
	removed := r.manager.Reap(r.now())
	if len(removed) > 0 {
		r.logger.Info("期限切れタスクをメモリから削除しました",
			"count", len(removed),
			"remaining", r.manager.Len(),
		)
	}
	return len(removed)
}
