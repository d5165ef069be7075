package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	start := time.Unix(1000, 0)
	f := NewFake(start)
	var order []string
	var seenAt []time.Time

	f.AfterFunc(30*time.Millisecond, func() { order = append(order, "c"); seenAt = append(seenAt, f.Now()) })
	f.AfterFunc(10*time.Millisecond, func() { order = append(order, "a"); seenAt = append(seenAt, f.Now()) })
	f.AfterFunc(10*time.Millisecond, func() { order = append(order, "b"); seenAt = append(seenAt, f.Now()) })

	f.Advance(20 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, start.Add(10*time.Millisecond), seenAt[0])
	assert.Equal(t, start.Add(20*time.Millisecond), f.Now())
	assert.Equal(t, 1, f.Pending())

	f.Advance(10 * time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Zero(t, f.Pending())
}

func TestFakeTimerScheduledFromCallback(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := 0
	f.AfterFunc(5*time.Millisecond, func() {
		fired++
		f.AfterFunc(5*time.Millisecond, func() { fired++ })
	})

	f.Advance(10 * time.Millisecond)
	assert.Equal(t, 2, fired)
}

func TestFakeStop(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := false
	tm := f.AfterFunc(time.Millisecond, func() { fired = true })

	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())
	f.Advance(time.Second)
	assert.False(t, fired)
	assert.Zero(t, f.Pending())

	done := f.AfterFunc(time.Millisecond, func() {})
	f.Advance(time.Millisecond)
	assert.False(t, done.Stop())
}

func TestRealClock(t *testing.T) {
	c := Real()
	fired := make(chan struct{})
	c.AfterFunc(time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	assert.False(t, c.Now().IsZero())
}
