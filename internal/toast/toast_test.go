package toast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddListRemove(t *testing.T) {
	q := New(0)
	a := q.Add("saved", Success)
	b := q.Add("oops", Error)
	c := q.Add("hello", "weird")

	list := q.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{a, b, c}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, Info, list[2].Kind)

	assert.True(t, q.Remove(b))
	assert.False(t, q.Remove(b))
	list = q.List()
	require.Len(t, list, 2)
	assert.Equal(t, a, list[0].ID)
	assert.Equal(t, c, list[1].ID)
}

func TestToastsExpire(t *testing.T) {
	q := New(20 * time.Millisecond)
	q.Add("bye", Info)
	require.Len(t, q.List(), 1)
	assert.Eventually(t, func() bool { return len(q.List()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestCloseStopsTimers(t *testing.T) {
	q := New(time.Hour)
	q.Add("x", Info)
	q.Close()
	assert.Empty(t, q.List())
	q.Add("after close", Info)
	assert.Empty(t, q.List())
	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Empty(t, q.timers)
}
