package scan

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultProgressInterval は実行中タスクの進捗を定期配信する間隔
const DefaultProgressInterval = 500 * time.Millisecond

// Service はスキャン機能のユースケースを提供する
type Service struct {
	manager          *Manager
	resolver         *Resolver
	scheduler        *Scheduler
	broadcaster      *Broadcaster
	store            Store
	progressInterval time.Duration
	baseCtx          context.Context
	logger           *slog.Logger
	running          sync.WaitGroup
}

type serviceOptions struct {
	manager          *Manager
	broadcaster      *Broadcaster
	schedulerConfig  SchedulerConfig
	progressInterval time.Duration
	baseCtx          context.Context
	now              func() time.Time
	logger           *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithServiceLogger はロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithManager はタスク表を外部から渡す
func WithManager(m *Manager) ServiceOption {
	return func(o *serviceOptions) {
		o.manager = m
	}
}

// WithBroadcaster は配信器を外部から渡す
func WithBroadcaster(b *Broadcaster) ServiceOption {
	return func(o *serviceOptions) {
		o.broadcaster = b
	}
}

// WithSchedulerConfig は実行設定を上書きする
func WithSchedulerConfig(cfg SchedulerConfig) ServiceOption {
	return func(o *serviceOptions) {
		o.schedulerConfig = cfg
	}
}

// WithProgressInterval は進捗の定期配信間隔を設定する
func WithProgressInterval(d time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		o.progressInterval = d
	}
}

// WithBaseContext はバックグラウンド実行に使う親コンテキストを設定する
func WithBaseContext(ctx context.Context) ServiceOption {
	return func(o *serviceOptions) {
		o.baseCtx = ctx
	}
}

// WithServiceClock はフィルタの基準時刻を差し替える
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) {
		o.now = now
	}
}

// NewService は新しい Service を作成する
func NewService(engine Engine, catalog Catalog, store Store, opts ...ServiceOption) *Service {
	options := serviceOptions{
		schedulerConfig:  DefaultSchedulerConfig(),
		progressInterval: DefaultProgressInterval,
		baseCtx:          context.Background(),
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.manager == nil {
		options.manager = NewManager()
	}
	if options.broadcaster == nil {
		options.broadcaster = NewBroadcaster()
	}
	if options.progressInterval <= 0 {
		options.progressInterval = DefaultProgressInterval
	}

	scheduler := NewScheduler(engine, store, options.broadcaster, options.schedulerConfig, options.logger)
	if options.now != nil {
		scheduler.now = options.now
	}

	return &Service{
		manager:          options.manager,
		resolver:         NewResolver(catalog, options.logger),
		scheduler:        scheduler,
		broadcaster:      options.broadcaster,
		store:            store,
		progressInterval: options.progressInterval,
		baseCtx:          options.baseCtx,
		logger:           options.logger,
	}
}

// Manager はタスク表を返す
func (s *Service) Manager() *Manager {
	return s.manager
}

// Start はスキャンを開始し、タスクIDをすぐに返す。
// 実際の処理はバックグラウンドで行う。
func (s *Service) Start(ctx context.Context, req Request) (*StartResult, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	codes := s.resolver.Resolve(ctx, req.Pool, req.Boards, req.Codes)
	if len(codes) == 0 {
		return nil, ErrEmptyUniverse
	}

	task := s.manager.Create(req, len(codes))
	s.logger.Info("スキャンを受け付けました",
		"task_id", task.ID(),
		"stock_pool", req.Pool,
		"boards", req.Boards,
		"kline_type", req.KlineType,
		"bsp_types", req.BSPTypes,
		"time_window_days", req.TimeWindowDays,
		"limit", req.Limit,
		"total", len(codes),
	)

	if err := s.store.CreateTask(ctx, task.Snapshot()); err != nil {
		// 永続化に失敗してもスキャン自体は続行し、以降の保存で作成を再試行する
		s.logger.Warn("タスクの保存に失敗しました", "task_id", task.ID(), "error", err)
	} else {
		task.MarkPersisted()
	}

	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.scheduler.Run(s.baseCtx, task, codes)
	}()

	return &StartResult{TaskID: task.ID(), TotalCount: len(codes)}, nil
}

// Progress は現在の進捗を返す。メモリになければストアを参照する。
func (s *Service) Progress(ctx context.Context, id uuid.UUID) (Progress, error) {
	if task, ok := s.manager.Get(id).Get(); ok {
		return task.Progress(), nil
	}
	detail, err := s.storedDetail(ctx, id)
	if err != nil {
		return Progress{}, err
	}
	return detail.Task.Progress(), nil
}

// Watch は進捗の列を返す。現在の状態から始まり、終端状態を1回送ったところで閉じる。
func (s *Service) Watch(ctx context.Context, id uuid.UUID) (<-chan Progress, error) {
	task, ok := s.manager.Get(id).Get()
	if !ok {
		p, err := s.Progress(ctx, id)
		if err != nil {
			return nil, err
		}
		out := make(chan Progress, 1)
		out <- p
		close(out)
		return out, nil
	}

	sub := s.broadcaster.Subscribe(id)
	out := make(chan Progress)

	go func() {
		defer close(out)
		defer sub.Close()

		ticker := time.NewTicker(s.progressInterval)
		defer ticker.Stop()

		last := -1
		// emit は続行すべきなら true を返す
		emit := func(p Progress) bool {
			terminal := p.Status.IsTerminal()
			if !terminal && p.ProcessedCount < last {
				return true
			}
			select {
			case out <- p:
			case <-ctx.Done():
				return false
			}
			last = p.ProcessedCount
			return !terminal
		}

		if !emit(task.Progress()) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-sub.C():
				if !ok {
					emit(task.Progress())
					return
				}
				if !emit(p) {
					return
				}
			case <-ticker.C:
				if !emit(task.Progress()) {
					return
				}
			}
		}
	}()

	return out, nil
}

// Result は結果を返す。メモリになければストアを参照する。
func (s *Service) Result(ctx context.Context, id uuid.UUID) (*ResultSet, error) {
	if task, ok := s.manager.Get(id).Get(); ok {
		rs := task.ResultSet()
		return &rs, nil
	}
	detail, err := s.storedDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ResultSet{
		TaskID:         detail.Task.ID,
		Status:         detail.Task.Status,
		Results:        detail.Results,
		TotalScanned:   detail.Task.ProcessedCount,
		TotalFound:     detail.Task.FoundCount,
		ElapsedSeconds: detail.Task.ElapsedSeconds,
	}, nil
}

// Cancel は実行中のタスクにキャンセルを要求する
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	accepted, err := s.manager.Cancel(id)
	if err != nil {
		// メモリにないタスクは実行中ではありえない
		if _, detailErr := s.storedDetail(ctx, id); detailErr == nil {
			return ErrNotCancellable
		}
		return err
	}
	if !accepted {
		return ErrNotCancellable
	}
	s.logger.Info("スキャンのキャンセルを受け付けました", "task_id", id)
	return nil
}

// ListTasks はタスク一覧を返す
func (s *Service) ListTasks(ctx context.Context, query TaskQuery) (*TaskPage, error) {
	if query.Page == 0 {
		query.Page = 1
	}
	if query.PageSize == 0 {
		query.PageSize = DefaultPageSize
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	page, err := s.store.ListTasks(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	return page, nil
}

// TaskDetail はタスクと結果を返す。結果は時刻の新しい順。
func (s *Service) TaskDetail(ctx context.Context, id uuid.UUID) (*TaskDetail, error) {
	if task, ok := s.manager.Get(id).Get(); ok {
		detail := task.Detail()
		sortResultsByTimeDesc(detail.Results)
		return &detail, nil
	}
	return s.storedDetail(ctx, id)
}

// DeleteTask はタスクを削除する。実行中なら先にキャンセルする。
func (s *Service) DeleteTask(ctx context.Context, id uuid.UUID) error {
	if task, ok := s.manager.Get(id).Get(); ok {
		task.Discard()
		task.RequestCancel()
	}

	deleted, err := s.store.DeleteTask(ctx, id)
	if err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	removed := s.manager.Remove(id)
	if !deleted && !removed {
		return ErrTaskNotFound
	}

	s.logger.Info("タスクを削除しました", "task_id", id)
	return nil
}

// AllResults は複数タスクの結果をまとめて返す
func (s *Service) AllResults(ctx context.Context, query AggregateQuery) (*Aggregate, error) {
	if query.Status == "" {
		query.Status = string(StatusCompleted)
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	agg, err := s.store.AggregateResults(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("結果の集計に失敗しました: %w", err)
	}
	s.logger.Info("全結果を取得しました", "tasks", len(agg.Tasks), "results", len(agg.Results))
	return agg, nil
}

// Shutdown は実行中のスキャンがすべて終わるか ctx が終わるまで待つ
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) storedDetail(ctx context.Context, id uuid.UUID) (*TaskDetail, error) {
	opt, err := s.store.GetTaskDetail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	detail, ok := opt.Get()
	if !ok {
		return nil, ErrTaskNotFound
	}
	return detail, nil
}

func sortResultsByTimeDesc(items []ResultItem) {
	slices.SortStableFunc(items, func(a, b ResultItem) int {
		return cmp.Compare(b.BSPTime, a.BSPTime)
	})
}
