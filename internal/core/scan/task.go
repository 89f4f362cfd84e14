package scan

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task は実行中タスクの可変な状態を保持する。
// カウンタと結果の変更はすべて mu の下で行う。
type Task struct {
	mu sync.Mutex

	id        uuid.UUID
	request   Request
	status    Status
	total     int
	processed int
	found     int
	current   string
	cancelled bool
	persisted bool // ストアに行が作成済み
	discarded bool // 削除済み。ストアへ書き戻さない
	results   []ResultItem
	errMsg    string

	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time

	now func() time.Time
}

func newTask(id uuid.UUID, req Request, total int, now func() time.Time) *Task {
	t := now()
	return &Task{
		id:        id,
		request:   req,
		status:    StatusRunning,
		total:     total,
		results:   []ResultItem{},
		createdAt: t,
		startedAt: t,
		now:       now,
	}
}

// MarkPersisted はストアへの作成が済んだことを記録する
func (t *Task) MarkPersisted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.persisted = true
}

// Persisted はストアへの作成が済んでいるかを返す
func (t *Task) Persisted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.persisted
}

// Discard は削除されたタスクとして印を付ける。以後の保存は行われない
func (t *Task) Discard() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.discarded = true
}

// Discarded は削除済みかを返す
func (t *Task) Discarded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.discarded
}

// ID はタスクIDを返す
func (t *Task) ID() uuid.UUID {
	return t.id
}

// Request は受理したリクエストを返す
func (t *Task) Request() Request {
	return t.request
}

// StartedAt は開始時刻を返す
func (t *Task) StartedAt() time.Time {
	return t.startedAt
}

// Status は現在の状態を返す
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Cancelled はキャンセル要求の有無を返す
func (t *Task) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// RequestCancel はキャンセルを要求する。実行中の場合のみ受理する。
func (t *Task) RequestCancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusRunning || t.cancelled {
		return false
	}
	t.cancelled = true
	return true
}

// MarkCurrent は最後に開始した銘柄を記録する。参考値。
func (t *Task) MarkCurrent(code string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusRunning {
		t.current = code
	}
}

// RecordSuccess は1銘柄の処理完了を記録する
func (t *Task) RecordSuccess(items []ResultItem) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsTerminal() || t.processed >= t.total {
		return
	}
	t.processed++
	t.results = append(t.results, items...)
	t.found += len(items)
}

// RecordFailure は失敗またはタイムアウトした銘柄を処理済みとして数える
func (t *Task) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsTerminal() || t.processed >= t.total {
		return
	}
	t.processed++
}

// Finish は終端状態へ遷移させる。既に終端なら false を返す。
func (t *Task) Finish(status Status, errMsg string) bool {
	if !status.IsTerminal() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsTerminal() {
		return false
	}
	t.status = status
	t.errMsg = errMsg
	t.current = ""
	t.completedAt = t.now()
	return true
}

// Snapshot は現在の状態を TaskRecord として返す
func (t *Task) Snapshot() TaskRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recordLocked()
}

// Progress は現在の進捗を返す
func (t *Task) Progress() Progress {
	return t.Snapshot().Progress()
}

// ResultSet は結果のスナップショットを返す
func (t *Task) ResultSet() ResultSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ResultSet{
		TaskID:         t.id,
		Status:         t.status,
		Results:        slices.Clone(t.results),
		TotalScanned:   t.processed,
		TotalFound:     t.found,
		ElapsedSeconds: t.elapsedLocked(),
	}
}

// Detail はタスクと結果をまとめて返す
func (t *Task) Detail() TaskDetail {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TaskDetail{
		Task:    t.recordLocked(),
		Results: slices.Clone(t.results),
	}
}

func (t *Task) recordLocked() TaskRecord {
	started := t.startedAt
	rec := TaskRecord{
		ID:             t.id,
		Status:         t.status,
		Request:        t.request,
		TotalCount:     t.total,
		ProcessedCount: t.processed,
		FoundCount:     t.found,
		CurrentCode:    t.current,
		ErrorMessage:   t.errMsg,
		CreatedAt:      t.createdAt,
		StartedAt:      &started,
		ElapsedSeconds: t.elapsedLocked(),
	}
	if !t.completedAt.IsZero() {
		completed := t.completedAt
		rec.CompletedAt = &completed
	}
	return rec
}

func (t *Task) elapsedLocked() float64 {
	end := t.completedAt
	if end.IsZero() {
		end = t.now()
	}
	return end.Sub(t.startedAt).Seconds()
}
