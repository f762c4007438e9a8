package jit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emberjit/emit"
	"emberjit/exec"
)

func newTestInterpreter(t *testing.T) *exec.Interpreter {
	t.Helper()
	img, err := emit.Assemble(nil, 0)
	require.NoError(t, err)
	return exec.New(img)
}

func TestCacheGetPut(t *testing.T) {
	c := NewCache(&Stats{})
	_, ok := c.Get(1)
	assert.False(t, ok, "expected miss on empty cache")

	interp := newTestInterpreter(t)
	c.Put(1, interp)

	got, ok := c.Get(1)
	require.True(t, ok, "expected hit after Put")
	assert.Same(t, interp, got)
}

func TestCacheEvictsLRU(t *testing.T) {
	stats := &Stats{}
	c := NewCache(stats)
	c.maxSize = 2

	c.Put(1, newTestInterpreter(t))
	c.Put(2, newTestInterpreter(t))
	c.Get(1) // touch 1 so 2 becomes the least recently used
	c.Put(3, newTestInterpreter(t))

	assert.False(t, c.Has(2), "expected key 2 to be evicted as least recently used")
	assert.True(t, c.Has(1))
	assert.True(t, c.Has(3))
	assert.Equal(t, int64(1), stats.CacheEvictions)
}

func TestCacheRemove(t *testing.T) {
	c := NewCache(&Stats{})
	c.Put(1, newTestInterpreter(t))
	c.Remove(1)
	assert.False(t, c.Has(1))
}
