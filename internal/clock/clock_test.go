package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceFiresDueTimersInOrder(t *testing.T) {
	c := NewFake(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	var fired []string
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	c.AfterFunc(time.Minute, func() { fired = append(fired, "late") })

	c.Advance(5 * time.Second)

	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 1, c.Pending())
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 5, 0, time.UTC), c.Now())
}

func TestFake_StopCancelsTimer(t *testing.T) {
	c := NewFake(time.Now())
	called := false
	tm := c.AfterFunc(time.Second, func() { called = true })

	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())
	c.Advance(time.Hour)
	assert.False(t, called)
}
