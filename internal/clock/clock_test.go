package clock_test

import (
	"testing"
	"time"

	"agilekit/internal/clock"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_AfterFuncFiresOnAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.Fake(start)
	fired := 0
	c.AfterFunc(3*time.Second, func() { fired++ })

	c.Advance(2 * time.Second)
	assert.Equal(t, 0, fired)

	c.Advance(time.Second)
	assert.Equal(t, 1, fired)
	assert.Equal(t, start.Add(3*time.Second), c.Now())

	c.Advance(time.Minute)
	assert.Equal(t, 1, fired, "一次性回调只触发一次")
}

func TestFakeClock_StopPreventsFire(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	c.Advance(2 * time.Second)

	assert.False(t, fired)
	assert.Equal(t, 0, c.PendingCount())
}

func TestFakeClock_CallbackSeesDeadlineAndCanReschedule(t *testing.T) {
	start := time.Unix(100, 0)
	c := clock.Fake(start)
	var seen []time.Time
	c.AfterFunc(time.Second, func() {
		seen = append(seen, c.Now())
		c.AfterFunc(time.Second, func() { seen = append(seen, c.Now()) })
	})

	c.Advance(5 * time.Second)

	assert.Equal(t, []time.Time{start.Add(time.Second), start.Add(2 * time.Second)}, seen)
	assert.Equal(t, start.Add(5*time.Second), c.Now())
}

func TestReal_AfterFuncFires(t *testing.T) {
	c := clock.Real()
	fired := make(chan time.Time, 1)

	c.AfterFunc(time.Millisecond, func() { fired <- c.Now() })

	select {
	case at := <-fired:
		assert.False(t, at.IsZero())
	case <-time.After(time.Second):
		t.Fatal("real clock callback did not fire")
	}
}
