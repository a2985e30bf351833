// Package clock 抽象时间操作，生产代码使用 Real()，测试使用 Fake()。
// 底层是 clockwork，Fake 在 clockwork.FakeClock 之上保证 Advance 返回前到期回调已经执行完。
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock 是服务层依赖的时间源
type Clock = clockwork.Clock

// Timer 是 AfterFunc 返回的句柄，Stop 在已触发或已取消时返回 false
type Timer = clockwork.Timer

// Real 返回系统时钟
func Real() Clock { return clockwork.NewRealClock() }

// FakeClock 是测试用的确定性时钟，只有调用 Advance 时时间才前进。
type FakeClock struct {
	*clockwork.FakeClock

	mu      sync.Mutex
	pending map[*fakeTimer]struct{}
}

type fakeTimer struct {
	clockwork.Timer
	clock    *FakeClock
	deadline time.Time
	done     chan struct{}
}

// Fake 返回初始时间为 initial 的 FakeClock
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{
		FakeClock: clockwork.NewFakeClockAt(initial),
		pending:   make(map[*fakeTimer]struct{}),
	}
}

// AfterFunc 注册回调，回调在 Advance 到达截止时间时执行
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{clock: c, deadline: c.Now().Add(d), done: make(chan struct{})}
	c.mu.Lock()
	c.pending[t] = struct{}{}
	c.mu.Unlock()
	t.Timer = c.FakeClock.AfterFunc(d, func() {
		defer close(t.done)
		f()
	})
	return t
}

// Advance 让时间前进 d。到期的回调按截止时间依次触发，回调里看到的 Now 是它的截止时间。
// 回调里新注册且在 d 之内到期的回调也会被触发。
func (c *FakeClock) Advance(d time.Duration) {
	target := c.Now().Add(d)
	for {
		next, ok := c.nextDeadline(target)
		if !ok {
			break
		}
		c.FakeClock.Advance(next.Sub(c.Now()))
		c.settle(next)
	}
	if rest := target.Sub(c.Now()); rest > 0 {
		c.FakeClock.Advance(rest)
	}
}

// PendingCount 返回尚未触发也未取消的回调数量
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *FakeClock) nextDeadline(target time.Time) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var (
		next  time.Time
		found bool
	)
	for t := range c.pending {
		if t.deadline.After(target) {
			continue
		}
		if !found || t.deadline.Before(next) {
			next, found = t.deadline, true
		}
	}
	return next, found
}

// settle 等待截止时间不晚于 now 的回调执行完
func (c *FakeClock) settle(now time.Time) {
	c.mu.Lock()
	var due []*fakeTimer
	for t := range c.pending {
		if !t.deadline.After(now) {
			due = append(due, t)
			delete(c.pending, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		<-t.done
	}
}

func (t *fakeTimer) Stop() bool {
	if !t.Timer.Stop() {
		return false
	}
	t.clock.mu.Lock()
	delete(t.clock.pending, t)
	t.clock.mu.Unlock()
	return true
}
