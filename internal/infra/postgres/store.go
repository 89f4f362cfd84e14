package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/mo"

	"github.com/jinford/bsp-scan/internal/core/scan"
)

// Store は scan.Store / scan.Catalog を PostgreSQL で実装します
type Store struct {
	pool    *pgxpool.Pool
	tasks   *TaskRepository
	results *ResultRepository
	stocks  *StockRepository
}

// コンパイル時の型チェック
var (
	_ scan.Store   = (*Store)(nil)
	_ scan.Catalog = (*Store)(nil)
)

// NewStore は新しい Store を作成します
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:    pool,
		tasks:   NewTaskRepository(pool),
		results: NewResultRepository(pool),
		stocks:  NewStockRepository(pool),
	}
}

func (s *Store) ListStocks(ctx context.Context) ([]scan.Stock, error) {
	return s.stocks.ListStocks(ctx)
}

func (s *Store) CreateTask(ctx context.Context, rec scan.TaskRecord) error {
	return s.tasks.Create(ctx, rec)
}

func (s *Store) UpdateProgress(ctx context.Context, rec scan.TaskRecord) error {
	return s.tasks.UpdateState(ctx, rec)
}

// FinishTask は終端状態と結果を1トランザクションで書き込みます
func (s *Store) FinishTask(ctx context.Context, rec scan.TaskRecord, results []scan.ResultItem) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := NewTaskRepository(tx).UpdateState(ctx, rec); err != nil {
			return err
		}
		return NewResultRepository(tx).ReplaceForTask(ctx, rec.ID, results)
	})
	if err != nil {
		return fmt.Errorf("failed to finish task: %w", err)
	}
	return nil
}

func (s *Store) ListTasks(ctx context.Context, query scan.TaskQuery) (*scan.TaskPage, error) {
	status := statusFilter(query.Status)

	total, err := s.tasks.Count(ctx, status)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.List(ctx, status, query.PageSize, query.Offset())
	if err != nil {
		return nil, err
	}

	return &scan.TaskPage{
		Tasks:    tasks,
		Total:    total,
		Page:     query.Page,
		PageSize: query.PageSize,
	}, nil
}

func (s *Store) GetTaskDetail(ctx context.Context, id uuid.UUID) (mo.Option[*scan.TaskDetail], error) {
	found, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return mo.None[*scan.TaskDetail](), err
	}
	rec, ok := found.Get()
	if !ok {
		return mo.None[*scan.TaskDetail](), nil
	}

	results, err := s.results.ListByTask(ctx, id)
	if err != nil {
		return mo.None[*scan.TaskDetail](), err
	}
	return mo.Some(&scan.TaskDetail{Task: rec, Results: results}), nil
}

func (s *Store) DeleteTask(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.tasks.Delete(ctx, id)
}

func (s *Store) AggregateResults(ctx context.Context, query scan.AggregateQuery) (*scan.Aggregate, error) {
	status := statusFilter(query.Status)

	tasks, err := s.tasks.ListAll(ctx, status)
	if err != nil {
		return nil, err
	}
	results, err := s.results.ListByTaskStatus(ctx, status, query.Limit)
	if err != nil {
		return nil, err
	}
	return &scan.Aggregate{Tasks: tasks, Results: results}, nil
}

// statusFilter は "all" を絞り込みなしとして扱います
func statusFilter(status string) string {
	if status == "all" {
		return ""
	}
	return status
}
