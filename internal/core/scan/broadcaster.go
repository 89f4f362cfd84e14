package scan

import (
	"sync"

	"github.com/google/uuid"
)

// Broadcaster はタスクごとの進捗を購読者へ配信する。
// 各購読は最新値1件だけを保持し、Publish はブロックしない。
type Broadcaster struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[*Subscription]struct{}
}

// Subscription は1観測者分の購読ハンドル
type Subscription struct {
	taskID uuid.UUID
	ch     chan Progress
	closed bool
	b      *Broadcaster
}

// NewBroadcaster は新しい Broadcaster を作成する
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uuid.UUID]map[*Subscription]struct{})}
}

// Subscribe はタスクの進捗を購読する
func (b *Broadcaster) Subscribe(taskID uuid.UUID) *Subscription {
	sub := &Subscription{
		taskID: taskID,
		ch:     make(chan Progress, 1),
		b:      b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[taskID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[taskID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Publish は進捗を配信する。古い未読値は上書きする。
// 終端状態の進捗を配信した購読はその場で閉じる。
func (b *Broadcaster) Publish(p Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subs[p.TaskID]
	for sub := range set {
		sub.offer(p)
		if p.Status.IsTerminal() {
			sub.closeLocked()
		}
	}
	if p.Status.IsTerminal() {
		delete(b.subs, p.TaskID)
	}
}

// Subscribers はタスクの購読数を返す
func (b *Broadcaster) Subscribers(taskID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[taskID])
}

// C は進捗を受け取るチャネルを返す。終端状態の配信後に閉じられる。
func (s *Subscription) C() <-chan Progress {
	return s.ch
}

// Close は購読を解除する
func (s *Subscription) Close() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	if set, ok := s.b.subs[s.taskID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(s.b.subs, s.taskID)
		}
	}
	s.closeLocked()
}

// offer は b.mu を保持した状態で呼ぶ
func (s *Subscription) offer(p Progress) {
	if s.closed {
		return
	}
	select {
	case s.ch <- p:
		return
	default:
	}
	// 未読の古い値を捨てて入れ替える
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- p:
	default:
	}
}

func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
