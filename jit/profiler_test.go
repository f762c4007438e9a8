package jit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfilerRecordsInvocations(t *testing.T) {
	p := NewProfiler()
	assert.Equal(t, int64(0), p.InvokeCount(123))

	key := uint64(123)
	for i := 0; i < 5; i++ {
		p.RecordInvocation(key, 10*time.Millisecond)
	}
	assert.Equal(t, int64(5), p.InvokeCount(key))

	profile := p.Profile(key)
	require.NotNil(t, profile)
	assert.Equal(t, 10*time.Millisecond, profile.AverageTime)
}

func TestProfilerShouldPromote(t *testing.T) {
	p := NewProfiler()
	p.SetHotThreshold(3)
	key := uint64(1)

	assert.False(t, p.ShouldPromote(key), "unseen key should not promote")

	for i := 0; i < 2; i++ {
		p.RecordInvocation(key, time.Microsecond)
	}
	assert.False(t, p.ShouldPromote(key), "key below threshold should not promote")

	p.RecordInvocation(key, time.Microsecond)
	assert.True(t, p.ShouldPromote(key), "key at threshold should promote")
}

func TestProfilerStatsAggregates(t *testing.T) {
	p := NewProfiler()
	p.SetHotThreshold(2)
	p.RecordInvocation(1, time.Millisecond)
	p.RecordInvocation(1, time.Millisecond)
	p.RecordInvocation(2, time.Millisecond)

	stats := p.Stats()
	assert.Equal(t, 2, stats.TotalFunctions)
	assert.Equal(t, 1, stats.HotFunctions)
	assert.Equal(t, int64(3), stats.TotalInvocations)
}

func TestProfilerReset(t *testing.T) {
	p := NewProfiler()
	p.RecordInvocation(1, time.Millisecond)
	p.Reset()
	assert.Equal(t, int64(0), p.InvokeCount(1))
}
