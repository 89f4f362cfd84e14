package scan

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// DefaultTaskRetention はメモリ上にタスクを保持する期間
const DefaultTaskRetention = time.Hour

// Manager はメモリ上のタスク表を管理する
type Manager struct {
	mu        sync.RWMutex
	tasks     map[uuid.UUID]*Task
	retention time.Duration
	now       func() time.Time
	newID     func() uuid.UUID
}

type managerOptions struct {
	retention time.Duration
	now       func() time.Time
	newID     func() uuid.UUID
}

// ManagerOption は Manager のオプション設定
type ManagerOption func(*managerOptions)

// WithRetention はメモリ上の保持期間を設定する
func WithRetention(d time.Duration) ManagerOption {
	return func(o *managerOptions) {
		o.retention = d
	}
}

// WithClock は時刻取得関数を差し替える
func WithClock(now func() time.Time) ManagerOption {
	return func(o *managerOptions) {
		o.now = now
	}
}

// WithIDGenerator はタスクID生成関数を差し替える
func WithIDGenerator(newID func() uuid.UUID) ManagerOption {
	return func(o *managerOptions) {
		o.newID = newID
	}
}

// NewManager は新しい Manager を作成する
func NewManager(opts ...ManagerOption) *Manager {
	options := managerOptions{
		retention: DefaultTaskRetention,
		now:       time.Now,
		newID:     uuid.New,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Manager{
		tasks:     make(map[uuid.UUID]*Task),
		retention: options.retention,
		now:       options.now,
		newID:     options.newID,
	}
}

// Create は running 状態のタスクを作成して登録する
func (m *Manager) Create(req Request, total int) *Task {
	task := newTask(m.newID(), req, total, m.now)

	m.mu.Lock()
	m.tasks[task.id] = task
	m.mu.Unlock()

	return task
}

// Get はタスクを取得する
func (m *Manager) Get(id uuid.UUID) mo.Option[*Task] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if task, ok := m.tasks[id]; ok {
		return mo.Some(task)
	}
	return mo.None[*Task]()
}

// Cancel はキャンセルを要求する。実行中でなければ false を返す。
func (m *Manager) Cancel(id uuid.UUID) (bool, error) {
	task, ok := m.Get(id).Get()
	if !ok {
		return false, ErrTaskNotFound
	}
	return task.RequestCancel(), nil
}

// Remove はメモリ上のタスクを削除する
func (m *Manager) Remove(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return false
	}
	delete(m.tasks, id)
	return true
}

// Reap は保持期間を過ぎたタスクを状態に関係なくメモリから取り除く。
// 永続化されたタスクには触れない。
func (m *Manager) Reap(now time.Time) []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []uuid.UUID
	for id, task := range m.tasks {
		if now.Sub(task.StartedAt()) > m.retention {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(m.tasks, id)
	}
	return expired
}

// Len は登録中のタスク数を返す
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}
