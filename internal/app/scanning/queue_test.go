package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkQueue(t *testing.T) {
	q := newWorkQueue()

	assert.True(t, q.push("a"))
	assert.True(t, q.push("b"))
	assert.False(t, q.push("a"), "queued paths are not added twice")
	assert.Equal(t, 2, q.len())

	path, ok := q.pop()
	assert.True(t, ok)
	assert.Equal(t, "a", path)
	assert.False(t, q.push("a"), "a path being processed is still tracked")

	q.done("a")
	assert.True(t, q.push("a"))

	path, _ = q.pop()
	assert.Equal(t, "b", path)
	path, _ = q.pop()
	assert.Equal(t, "a", path)

	_, ok = q.pop()
	assert.False(t, ok)
}

func TestWorkQueue_Remove(t *testing.T) {
	q := newWorkQueue()
	q.push("a")
	q.push("b")
	q.push("c")

	assert.True(t, q.remove("b"))
	assert.False(t, q.remove("b"))
	assert.True(t, q.push("b"), "a removed path can be queued again")

	path, _ := q.pop()
	assert.Equal(t, "a", path)
	assert.False(t, q.remove("a"), "a popped path is left to the consumer")

	path, _ = q.pop()
	assert.Equal(t, "c", path)
	path, _ = q.pop()
	assert.Equal(t, "b", path)
}
