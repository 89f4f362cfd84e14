package scan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubEngine struct {
	AnalyzeFunc func(ctx context.Context, code string, kline KlineType, limit int) (*Analysis, error)
}

func (e *stubEngine) Analyze(ctx context.Context, code string, kline KlineType, limit int) (*Analysis, error) {
	return e.AnalyzeFunc(ctx, code, kline, limit)
}

type stubCatalog struct {
	stocks []Stock
	err    error
}

func (c *stubCatalog) ListStocks(ctx context.Context) ([]Stock, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.stocks, nil
}

func catalogOf(codes ...string) *stubCatalog {
	stocks := make([]Stock, 0, len(codes))
	for _, c := range codes {
		stocks = append(stocks, Stock{Code: c})
	}
	return &stubCatalog{stocks: stocks}
}

// fakeStore は呼び出しを記録する Store
type fakeStore struct {
	mu       sync.Mutex
	tasks    map[uuid.UUID]TaskRecord
	results  map[uuid.UUID][]ResultItem
	done     map[uuid.UUID]struct{}
	creates  int
	updates  int
	finishes int

	CreateTaskFunc func(ctx context.Context, record TaskRecord) error
	FinishTaskFunc func(ctx context.Context, record TaskRecord, results []ResultItem) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:   make(map[uuid.UUID]TaskRecord),
		results: make(map[uuid.UUID][]ResultItem),
		done:    make(map[uuid.UUID]struct{}),
	}
}

func (s *fakeStore) CreateTask(ctx context.Context, record TaskRecord) error {
	if s.CreateTaskFunc != nil {
		if err := s.CreateTaskFunc(ctx, record); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[record.ID]; ok {
		return fmt.Errorf("%w: %s", ErrTaskExists, record.ID)
	}
	s.creates++
	s.tasks[record.ID] = record
	return nil
}

func (s *fakeStore) UpdateProgress(ctx context.Context, record TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[record.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, record.ID)
	}
	s.updates++
	s.tasks[record.ID] = record
	return nil
}

func (s *fakeStore) FinishTask(ctx context.Context, record TaskRecord, results []ResultItem) error {
	if s.FinishTaskFunc != nil {
		if err := s.FinishTaskFunc(ctx, record, results); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[record.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, record.ID)
	}
	s.finishes++
	s.done[record.ID] = struct{}{}
	s.tasks[record.ID] = record
	s.results[record.ID] = results
	return nil
}

func (s *fakeStore) ListTasks(ctx context.Context, query TaskQuery) (*TaskPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := &TaskPage{Page: query.Page, PageSize: query.PageSize}
	for _, rec := range s.tasks {
		page.Tasks = append(page.Tasks, rec)
	}
	page.Total = len(page.Tasks)
	return page, nil
}

func (s *fakeStore) GetTaskDetail(ctx context.Context, id uuid.UUID) (mo.Option[*TaskDetail], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok {
		return mo.None[*TaskDetail](), nil
	}
	return mo.Some(&TaskDetail{Task: rec, Results: s.results[id]}), nil
}

func (s *fakeStore) DeleteTask(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return false, nil
	}
	delete(s.tasks, id)
	delete(s.results, id)
	delete(s.done, id)
	return true, nil
}

func (s *fakeStore) AggregateResults(ctx context.Context, query AggregateQuery) (*Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg := &Aggregate{}
	for id, rec := range s.tasks {
		if query.Status != "all" && string(rec.Status) != query.Status {
			continue
		}
		agg.Tasks = append(agg.Tasks, rec)
		for _, r := range s.results[id] {
			agg.Results = append(agg.Results, AggregateResult{TaskID: id, ResultItem: r})
		}
	}
	return agg, nil
}

func (s *fakeStore) finished(id uuid.UUID) (TaskRecord, []ResultItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.tasks[id]
	_, ok := s.done[id]
	return rec, s.results[id], ok
}

// waitTerminal はタスクが終端状態になるまで待つ
func waitTerminal(t *testing.T, task *Task, timeout time.Duration) TaskRecord {
	t.Helper()
	require.Eventually(t, func() bool {
		return task.Status().IsTerminal()
	}, timeout, 5*time.Millisecond)
	return task.Snapshot()
}

// pointAt は now から d だけ前の買点を作る
func pointAt(now time.Time, d time.Duration, tags ...string) DecisionPoint {
	return DecisionPoint{
		IsBuy: true,
		Tags:  tags,
		Time:  now.Add(-d).Format(PointTimeLayout),
		Value: 10.5,
	}
}
