package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaper_Run(t *testing.T) {
	start := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	m := NewManager(WithRetention(time.Hour), WithClock(func() time.Time { return start }))
	running := m.Create(Request{}.WithDefaults(), 1)
	done := m.Create(Request{}.WithDefaults(), 1)
	done.Finish(StatusCompleted, "")

	r := NewReaper(m, "", discardLogger())

	r.now = func() time.Time { return start.Add(30 * time.Minute) }
	assert.Zero(t, r.Run())

	// 状態に関係なく削除される
	r.now = func() time.Time { return start.Add(2 * time.Hour) }
	assert.Equal(t, 2, r.Run())
	assert.True(t, m.Get(running.ID()).IsAbsent())
	assert.Zero(t, m.Len())
}

func TestReaper_StartStop(t *testing.T) {
	r := NewReaper(NewManager(), "@every 1h", discardLogger())
	require.NoError(t, r.Start())
	r.Stop()
}

func TestReaper_InvalidSchedule(t *testing.T) {
	r := NewReaper(NewManager(), "not a schedule", discardLogger())
	assert.Error(t, r.Start())
}
