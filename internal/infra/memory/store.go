package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/bsp-scan/internal/core/scan"
)

// Store はプロセス内で完結する scan.Store / scan.Catalog の実装。
// DB を用意しない開発環境とテストで使う。
type Store struct {
	mu      sync.RWMutex
	tasks   map[uuid.UUID]scan.TaskRecord
	order   []uuid.UUID // 作成順
	results map[uuid.UUID][]scan.ResultItem
	stocks  []scan.Stock
}

// コンパイル時の型チェック
var (
	_ scan.Store   = (*Store)(nil)
	_ scan.Catalog = (*Store)(nil)
)

// New は新しい Store を作成する
func New(stocks ...scan.Stock) *Store {
	s := &Store{
		tasks:   make(map[uuid.UUID]scan.TaskRecord),
		results: make(map[uuid.UUID][]scan.ResultItem),
	}
	s.PutStocks(stocks...)
	return s
}

// PutStocks は銘柄を追加または更新する
func (s *Store) PutStocks(stocks ...scan.Stock) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range stocks {
		idx := slices.IndexFunc(s.stocks, func(x scan.Stock) bool { return x.Code == st.Code })
		if idx >= 0 {
			s.stocks[idx] = st
			continue
		}
		s.stocks = append(s.stocks, st)
	}
	slices.SortFunc(s.stocks, func(a, b scan.Stock) int { return cmp.Compare(a.Code, b.Code) })
}

func (s *Store) ListStocks(ctx context.Context) ([]scan.Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.stocks), nil
}

func (s *Store) CreateTask(ctx context.Context, record scan.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[record.ID]; ok {
		return fmt.Errorf("%w: %s", scan.ErrTaskExists, record.ID)
	}
	s.tasks[record.ID] = record
	s.order = append(s.order, record.ID)
	return nil
}

func (s *Store) UpdateProgress(ctx context.Context, record scan.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[record.ID]; !ok {
		return fmt.Errorf("%w: %s", scan.ErrTaskNotFound, record.ID)
	}
	s.tasks[record.ID] = record
	return nil
}

func (s *Store) FinishTask(ctx context.Context, record scan.TaskRecord, results []scan.ResultItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[record.ID]; !ok {
		return fmt.Errorf("%w: %s", scan.ErrTaskNotFound, record.ID)
	}
	s.tasks[record.ID] = record
	s.results[record.ID] = slices.Clone(results)
	return nil
}

func (s *Store) ListTasks(ctx context.Context, query scan.TaskQuery) (*scan.TaskPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.filteredLocked(query.Status)
	page := &scan.TaskPage{
		Tasks:    []scan.TaskRecord{},
		Total:    len(matched),
		Page:     query.Page,
		PageSize: query.PageSize,
	}

	start := min(query.Offset(), len(matched))
	end := min(start+query.PageSize, len(matched))
	page.Tasks = append(page.Tasks, matched[start:end]...)
	return page, nil
}

func (s *Store) GetTaskDetail(ctx context.Context, id uuid.UUID) (mo.Option[*scan.TaskDetail], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tasks[id]
	if !ok {
		return mo.None[*scan.TaskDetail](), nil
	}
	results := slices.Clone(s.results[id])
	sortByTimeDesc(results, func(r scan.ResultItem) string { return r.BSPTime })
	if results == nil {
		results = []scan.ResultItem{}
	}
	return mo.Some(&scan.TaskDetail{Task: rec, Results: results}), nil
}

func (s *Store) DeleteTask(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return false, nil
	}
	delete(s.tasks, id)
	delete(s.results, id)
	s.order = slices.DeleteFunc(s.order, func(x uuid.UUID) bool { return x == id })
	return true, nil
}

func (s *Store) AggregateResults(ctx context.Context, query scan.AggregateQuery) (*scan.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := &scan.Aggregate{
		Tasks:   s.filteredLocked(query.Status),
		Results: []scan.AggregateResult{},
	}
	for _, rec := range agg.Tasks {
		for _, r := range s.results[rec.ID] {
			agg.Results = append(agg.Results, scan.AggregateResult{TaskID: rec.ID, ResultItem: r})
		}
	}
	sortByTimeDesc(agg.Results, func(r scan.AggregateResult) string { return r.BSPTime })
	if query.Limit > 0 && len(agg.Results) > query.Limit {
		agg.Results = agg.Results[:query.Limit]
	}
	return agg, nil
}

// filteredLocked は作成の新しい順にタスクを返す
func (s *Store) filteredLocked(status string) []scan.TaskRecord {
	out := make([]scan.TaskRecord, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		rec := s.tasks[s.order[i]]
		if status != "" && status != "all" && string(rec.Status) != status {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func sortByTimeDesc[T any](items []T, key func(T) string) {
	slices.SortStableFunc(items, func(a, b T) int {
		return cmp.Compare(key(b), key(a))
	})
}
