package testfixtures

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_TimersFireInOrder(t *testing.T) {
	c := NewClock(time.Time{})
	var order []string
	c.AfterFunc(2*time.Second, func() { order = append(order, "late") })
	c.AfterFunc(time.Second, func() { order = append(order, "early") })
	stopped := c.AfterFunc(time.Second, func() { order = append(order, "stopped") })

	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	c.Advance(500 * time.Millisecond)
	assert.Empty(t, order)

	c.Advance(2 * time.Second)
	assert.Equal(t, []string{"early", "late"}, order)
	assert.Zero(t, c.Pending())
	assert.Equal(t, ReferenceTime().Add(2500*time.Millisecond), c.Now())
}
