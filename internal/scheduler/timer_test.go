package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"agilekit/internal/clock"
	"agilekit/internal/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fired struct {
	roomID    string
	startedAt time.Time
}

type recorder struct {
	mu    sync.Mutex
	calls []fired
}

func (r *recorder) fn(ctx context.Context, roomID string, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fired{roomID: roomID, startedAt: startedAt})
	return nil
}

func (r *recorder) all() []fired {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]fired(nil), r.calls...)
}

func newScheduler(t *testing.T) (*scheduler.TimerScheduler, *clock.FakeClock, *recorder) {
	t.Helper()
	clk := clock.Fake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s := scheduler.NewTimerScheduler(clk)
	rec := &recorder{}
	s.Bind(rec.fn)
	return s, clk, rec
}

func TestTimerScheduler_FiresAfterDelay(t *testing.T) {
	// Arrange
	s, clk, rec := newScheduler(t)
	started := clk.Now()
	require.NoError(t, s.Arm(context.Background(), "room-1", started, 3*time.Second))

	// Act
	clk.Advance(2999 * time.Millisecond)
	before := rec.all()
	clk.Advance(time.Millisecond)

	// Assert
	assert.Empty(t, before, "到期前不应触发")
	calls := rec.all()
	require.Len(t, calls, 1)
	assert.Equal(t, "room-1", calls[0].roomID)
	assert.True(t, calls[0].startedAt.Equal(started))
	assert.Equal(t, 0, s.Pending())
}

func TestTimerScheduler_ArmReplacesPreviousTimer(t *testing.T) {
	// Arrange
	s, clk, rec := newScheduler(t)
	first := clk.Now()
	require.NoError(t, s.Arm(context.Background(), "room-1", first, 3*time.Second))
	clk.Advance(time.Second)
	second := clk.Now()

	// Act
	require.NoError(t, s.Arm(context.Background(), "room-1", second, 3*time.Second))
	clk.Advance(5 * time.Second)

	// Assert
	calls := rec.all()
	require.Len(t, calls, 1, "同一房间只能有一个待执行的回调")
	assert.True(t, calls[0].startedAt.Equal(second))
}

func TestTimerScheduler_CancelMatchesStartedAt(t *testing.T) {
	// Arrange
	s, clk, rec := newScheduler(t)
	started := clk.Now()
	ctx := context.Background()
	require.NoError(t, s.Arm(ctx, "room-1", started, 3*time.Second))

	// Act: 开始时间不匹配的取消被忽略，匹配的取消生效
	require.NoError(t, s.Cancel(ctx, "room-1", started.Add(-time.Second)))
	pendingAfterMismatch := s.Pending()
	require.NoError(t, s.Cancel(ctx, "room-1", started))
	clk.Advance(10 * time.Second)

	// Assert
	assert.Equal(t, 1, pendingAfterMismatch)
	assert.Empty(t, rec.all())
	assert.Equal(t, 0, clk.PendingCount())
}

func TestTimerScheduler_RoomsAreIndependent(t *testing.T) {
	// Arrange
	s, clk, rec := newScheduler(t)
	ctx := context.Background()
	now := clk.Now()
	require.NoError(t, s.Arm(ctx, "room-a", now, 1*time.Second))
	require.NoError(t, s.Arm(ctx, "room-b", now, 2*time.Second))

	// Act
	require.NoError(t, s.Cancel(ctx, "room-a", now))
	clk.Advance(3 * time.Second)

	// Assert
	calls := rec.all()
	require.Len(t, calls, 1)
	assert.Equal(t, "room-b", calls[0].roomID)
}

func TestTimerScheduler_CloseStopsEverything(t *testing.T) {
	// Arrange
	s, clk, rec := newScheduler(t)
	ctx := context.Background()
	require.NoError(t, s.Arm(ctx, "room-1", clk.Now(), time.Second))

	// Act
	s.Close()
	require.NoError(t, s.Arm(ctx, "room-2", clk.Now(), time.Second))
	clk.Advance(time.Minute)

	// Assert
	assert.Empty(t, rec.all())
	assert.Equal(t, 0, s.Pending())
}
