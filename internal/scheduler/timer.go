// Package scheduler 提供进程内的自动翻牌调度实现。
// 多实例部署时使用 worker 包里基于 asynq 的实现。
package scheduler

import (
	"context"
	"sync"
	"time"

	"agilekit/internal/clock"

	"github.com/sirupsen/logrus"
)

// RevealFunc 是倒计时到期后执行的回调，通常是 RoomService.ExecuteAutoReveal
type RevealFunc func(ctx context.Context, roomID string, startedAt time.Time) error

type pending struct {
	startedAt time.Time
	timer     clock.Timer
}

// TimerScheduler 为每个房间维护至多一个定时器。Arm 会替换同一房间之前的定时器。
type TimerScheduler struct {
	clock clock.Clock

	mu      sync.Mutex
	fire    RevealFunc
	pending map[string]pending
	closed  bool
}

// NewTimerScheduler 创建 TimerScheduler。回调需在第一次 Arm 前通过 Bind 设置。
func NewTimerScheduler(clk clock.Clock) *TimerScheduler {
	if clk == nil {
		clk = clock.Real()
	}
	return &TimerScheduler{clock: clk, pending: make(map[string]pending)}
}

// Bind 设置到期回调。RoomService 构造时需要调度器，所以回调在之后绑定。
func (s *TimerScheduler) Bind(fn RevealFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fire = fn
}

// Arm 在 delay 之后触发 (roomID, startedAt) 的回调
func (s *TimerScheduler) Arm(ctx context.Context, roomID string, startedAt time.Time, delay time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if prev, ok := s.pending[roomID]; ok {
		prev.timer.Stop()
		delete(s.pending, roomID)
	}
	s.mu.Unlock()

	// AfterFunc 在 delay <= 0 时可能同步执行回调，因此不能持锁调用
	timer := s.clock.AfterFunc(delay, func() { s.run(roomID, startedAt) })

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		timer.Stop()
		return nil
	}
	if delay > 0 {
		if prev, ok := s.pending[roomID]; ok {
			prev.timer.Stop()
		}
		s.pending[roomID] = pending{startedAt: startedAt, timer: timer}
	}
	return nil
}

// Cancel 取消房间里开始时间为 startedAt 的定时器。开始时间不匹配时不做任何事。
func (s *TimerScheduler) Cancel(ctx context.Context, roomID string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[roomID]
	if !ok || !p.startedAt.Equal(startedAt) {
		return nil
	}
	p.timer.Stop()
	delete(s.pending, roomID)
	return nil
}

// Pending 返回当前等待中的房间数量
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close 停止所有定时器，之后的 Arm 被忽略
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for roomID, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, roomID)
	}
}

func (s *TimerScheduler) run(roomID string, startedAt time.Time) {
	s.mu.Lock()
	if p, ok := s.pending[roomID]; ok && p.startedAt.Equal(startedAt) {
		delete(s.pending, roomID)
	}
	fire := s.fire
	s.mu.Unlock()

	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "started_at": startedAt.UnixMilli()})
	if fire == nil {
		logCtx.Warn("Auto-reveal timer fired before a callback was bound")
		return
	}
	if err := fire(context.Background(), roomID, startedAt); err != nil {
		logCtx.WithError(err).Error("Auto-reveal callback failed")
	}
}
