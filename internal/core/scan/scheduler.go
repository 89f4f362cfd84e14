package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// SchedulerConfig はスキャン実行の設定
type SchedulerConfig struct {
	// MaxConcurrency は同時に解析する銘柄数の上限
	MaxConcurrency int
	// UnitTimeout は1銘柄あたりの解析タイムアウト
	UnitTimeout time.Duration
	// FlushInterval は進捗をストアへ書き出す間隔
	FlushInterval time.Duration
	// FinalFlushTimeout は終了時の保存(再試行を含む)に使える時間
	FinalFlushTimeout time.Duration
}

// DefaultSchedulerConfig はデフォルトの設定を返す
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrency:    15,
		UnitTimeout:       30 * time.Second,
		FlushInterval:     5 * time.Second,
		FinalFlushTimeout: 30 * time.Second,
	}
}

// Scheduler は銘柄ごとの解析を上限付きの並列度で実行する
type Scheduler struct {
	engine      Engine
	store       Store
	broadcaster *Broadcaster
	config      SchedulerConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewScheduler は新しい Scheduler を作成する
func NewScheduler(engine Engine, store Store, broadcaster *Broadcaster, config SchedulerConfig, logger *slog.Logger) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.UnitTimeout <= 0 {
		config.UnitTimeout = defaults.UnitTimeout
	}
	if config.FinalFlushTimeout <= 0 {
		config.FinalFlushTimeout = defaults.FinalFlushTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		engine:      engine,
		store:       store,
		broadcaster: broadcaster,
		config:      config,
		logger:      logger,
		now:         time.Now,
	}
}

// Run はタスクのスキャンを最後まで実行し、終端状態にして保存する
func (s *Scheduler) Run(ctx context.Context, task *Task, codes []string) {
	logger := s.logger.With("task_id", task.ID())
	logger.Info("スキャンタスクを開始します", "total", len(codes))

	err := s.dispatch(ctx, task, codes)

	status := StatusCompleted
	errMsg := ""
	switch {
	case err != nil:
		status = StatusError
		errMsg = err.Error()
		logger.Error("スキャンタスクが失敗しました", "error", err)
	case task.Cancelled():
		status = StatusCancelled
	}
	task.Finish(status, errMsg)

	rec := task.Snapshot()
	logger.Info("スキャンタスクが終了しました",
		"status", rec.Status,
		"processed", rec.ProcessedCount,
		"total", rec.TotalCount,
		"found", rec.FoundCount,
		"elapsed", rec.ElapsedSeconds,
	)

	s.finalFlush(ctx, task)
	s.broadcaster.Publish(task.Progress())
}

// dispatch は銘柄を順にワーカーへ投入し、すべての完了を待つ
func (s *Scheduler) dispatch(ctx context.Context, task *Task, codes []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan dispatch panicked: %v", r)
		}
	}()

	if s.engine == nil {
		return errors.New("analysis engine is not configured")
	}

	stopFlusher := s.startFlusher(ctx, task)
	defer stopFlusher()

	var g errgroup.Group
	g.SetLimit(s.config.MaxConcurrency)

	for _, code := range codes {
		// キャンセル後は未着手の銘柄を処理済みに数えない
		if task.Cancelled() || ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			s.runUnit(ctx, task, code)
			return nil
		})
	}
	_ = g.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil && !task.Cancelled() {
		return fmt.Errorf("scan aborted: %w", ctxErr)
	}
	return nil
}

func (s *Scheduler) runUnit(ctx context.Context, task *Task, code string) {
	if task.Cancelled() {
		return
	}
	task.MarkCurrent(code)
	req := task.Request()

	analysis, err := s.analyze(ctx, code, req)
	if err != nil {
		s.logger.Warn("銘柄のスキャンに失敗しました", "task_id", task.ID(), "code", code, "error", err)
		task.RecordFailure()
		s.broadcaster.Publish(task.Progress())
		return
	}

	signals, stats := FilterBuyPoints(analysis.Points, req.BSPTypes, req.TimeWindowDays, s.now())
	s.logger.Debug("買点をフィルタしました",
		"code", code,
		"points", len(analysis.Points),
		"not_buy", stats.NotBuy,
		"type_mismatch", stats.TypeMismatch,
		"time_old", stats.TimeOld,
		"parse_error", stats.ParseError,
		"kept", stats.Kept,
	)

	items := make([]ResultItem, 0, len(signals))
	for _, sig := range signals {
		items = append(items, ResultItem{
			Code:      code,
			Name:      analysis.Name,
			BSPType:   sig.Type,
			BSPTime:   sig.Time,
			BSPValue:  sig.Value,
			IsBuy:     true,
			KlineType: req.KlineType,
		})
	}
	if len(items) > 0 {
		s.logger.Info("条件に合う買点が見つかりました", "code", code, "count", len(items))
	}

	task.RecordSuccess(items)
	s.broadcaster.Publish(task.Progress())
}

type analyzeOutcome struct {
	analysis *Analysis
	err      error
}

// analyze はタイムアウト付きでエンジンを呼び出す。
// エンジンが ctx を無視してもタイムアウトで戻る。
func (s *Scheduler) analyze(ctx context.Context, code string, req Request) (*Analysis, error) {
	uctx, cancel := context.WithTimeout(ctx, s.config.UnitTimeout)
	defer cancel()

	done := make(chan analyzeOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- analyzeOutcome{err: fmt.Errorf("engine panicked: %v", r)}
			}
		}()
		a, err := s.engine.Analyze(uctx, code, req.KlineType, req.Limit)
		done <- analyzeOutcome{analysis: a, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}
		if o.analysis == nil {
			return nil, errors.New("engine returned no analysis")
		}
		return o.analysis, nil
	case <-uctx.Done():
		return nil, fmt.Errorf("analysis of %s timed out: %w", code, uctx.Err())
	}
}

// startFlusher は一定間隔で進捗を保存するゴルーチンを起動し、停止関数を返す
func (s *Scheduler) startFlusher(ctx context.Context, task *Task) func() {
	if s.store == nil || s.config.FlushInterval <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(s.config.FlushInterval)
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.flushProgress(ctx, task); err != nil {
					s.logger.Warn("進捗の保存に失敗しました", "task_id", task.ID(), "error", err)
				}
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}

// flushProgress は進捗を保存する。行が未作成ならまず作成する
func (s *Scheduler) flushProgress(ctx context.Context, task *Task) error {
	if !task.Persisted() {
		return s.ensurePersisted(ctx, task)
	}
	return s.store.UpdateProgress(ctx, task.Snapshot())
}

// ensurePersisted はタスクの行がストアになければ作成する。
// 削除済みのタスクは作り直さず ErrTaskNotFound を返す。
func (s *Scheduler) ensurePersisted(ctx context.Context, task *Task) error {
	if task.Discarded() {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, task.ID())
	}
	if task.Persisted() {
		return nil
	}
	err := s.store.CreateTask(ctx, task.Snapshot())
	if err != nil && !errors.Is(err, ErrTaskExists) {
		return err
	}
	task.MarkPersisted()
	if task.Discarded() {
		// 作成中に削除が走った場合は作った行を消す
		if _, err := s.store.DeleteTask(ctx, task.ID()); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrTaskNotFound, task.ID())
	}
	s.logger.Info("保存できていなかったタスクを作成しました", "task_id", task.ID())
	return nil
}

// finalFlush は結果と終端状態を保存する。失敗は記録するだけでメモリ上の状態は変えない。
func (s *Scheduler) finalFlush(ctx context.Context, task *Task) {
	if s.store == nil {
		return
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.FinalFlushTimeout)
	defer cancel()

	detail := task.Detail()
	attempts := 0
	op := func() error {
		attempts++
		if err := s.ensurePersisted(fctx, task); err != nil {
			if errors.Is(err, ErrTaskNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		err := s.store.FinishTask(fctx, detail.Task, detail.Results)
		if errors.Is(err, ErrTaskNotFound) {
			// 作成済みの行が無いのは削除された場合だけ
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(backoff.NewExponentialBackOff(), fctx)); err != nil {
		s.logger.Error("スキャン結果の保存に失敗しました",
			"task_id", task.ID(),
			"attempts", attempts,
			"results", len(detail.Results),
			"error", err,
		)
		return
	}
	s.logger.Debug("スキャン結果を保存しました", "task_id", task.ID(), "results", len(detail.Results))
}
