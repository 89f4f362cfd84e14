package scan

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_LatestSlot(t *testing.T) {
	b := NewBroadcaster()
	id := uuid.New()
	sub := b.Subscribe(id)
	defer sub.Close()

	// 読まれないまま複数回配信してもブロックせず、最新値だけが残る
	for i := 1; i <= 5; i++ {
		b.Publish(Progress{TaskID: id, Status: StatusRunning, ProcessedCount: i})
	}

	p := <-sub.C()
	assert.Equal(t, 5, p.ProcessedCount)
	select {
	case extra := <-sub.C():
		t.Fatalf("unexpected progress: %+v", extra)
	default:
	}
}

func TestBroadcaster_TerminalClosesSubscription(t *testing.T) {
	b := NewBroadcaster()
	id := uuid.New()
	sub := b.Subscribe(id)

	b.Publish(Progress{TaskID: id, Status: StatusRunning, ProcessedCount: 1})
	b.Publish(Progress{TaskID: id, Status: StatusCompleted, ProcessedCount: 2})

	p, ok := <-sub.C()
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, p.Status)

	_, ok = <-sub.C()
	assert.False(t, ok)
	assert.Zero(t, b.Subscribers(id))

	// 閉じた後の配信と解除は何もしない
	b.Publish(Progress{TaskID: id, Status: StatusCompleted})
	sub.Close()
}

func TestBroadcaster_IsolatedByTask(t *testing.T) {
	b := NewBroadcaster()
	a, other := uuid.New(), uuid.New()
	subA := b.Subscribe(a)
	subB := b.Subscribe(other)
	defer subA.Close()
	defer subB.Close()

	b.Publish(Progress{TaskID: a, Status: StatusRunning, ProcessedCount: 7})

	assert.Equal(t, 7, (<-subA.C()).ProcessedCount)
	select {
	case p := <-subB.C():
		t.Fatalf("unexpected progress: %+v", p)
	default:
	}
}

func TestBroadcaster_NoSubscribers(t *testing.T) {
	b := NewBroadcaster()
	b.Publish(Progress{TaskID: uuid.New(), Status: StatusRunning})
	b.Publish(Progress{TaskID: uuid.New(), Status: StatusError})
}

func TestSubscription_Close(t *testing.T) {
	b := NewBroadcaster()
	id := uuid.New()
	sub := b.Subscribe(id)
	require.Equal(t, 1, b.Subscribers(id))

	sub.Close()
	sub.Close()

	assert.Zero(t, b.Subscribers(id))
	_, ok := <-sub.C()
	assert.False(t, ok)
}
