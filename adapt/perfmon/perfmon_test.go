package perfmon

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/zmin/adapt/tier"
	"github.com/joshuapare/zmin/minify"
)

func TestRecord_FirstSampleSeeds(t *testing.T) {
	m := New()
	s := Strategy(minify.Scalar)
	m.Record(s, 1_000_000, time.Millisecond) // 1000 MB/s

	st, ok := m.Stats(s)
	require.True(t, ok)
	assert.InDelta(t, 1000.0, st.Throughput, 1e-9)
	assert.Equal(t, time.Millisecond, st.Latency)
	assert.Equal(t, uint64(1), st.Samples)
}

func TestRecord_EMA(t *testing.T) {
	m := New()
	s := Strategy(minify.HandTuned)
	m.Record(s, 1_000_000, time.Millisecond) // 1000
	m.Record(s, 2_000_000, time.Millisecond) // 2000

	st, _ := m.Stats(s)
	assert.InDelta(t, 1100.0, st.Throughput, 1e-9)
	assert.Equal(t, int64(3_000_000), st.TotalBytes)
	assert.Equal(t, 2*time.Millisecond, st.TotalTime)
	assert.InDelta(t, 1500.0, st.Mean(), 1e-9)
}

func TestRecord_IgnoresNegativeAndClampsDuration(t *testing.T) {
	m := New()
	s := Strategy(minify.Scalar)
	m.Record(s, -1, time.Second)
	_, ok := m.Stats(s)
	assert.False(t, ok)

	m.Record(s, 10, 0)
	st, ok := m.Stats(s)
	require.True(t, ok)
	assert.Equal(t, time.Nanosecond, st.TotalTime)
}

func TestOverallThroughput(t *testing.T) {
	m := New()
	assert.Zero(t, m.OverallThroughput())
	m.Record(Strategy(minify.Scalar), 1_000_000, time.Millisecond)
	m.Record(Tier(tier.Pool), 3_000_000, 3*time.Millisecond)
	assert.InDelta(t, 1000.0, m.OverallThroughput(), 1e-9)
	assert.Len(t, m.Snapshot(), 2)
}

func TestRecent_Window(t *testing.T) {
	m := New()
	s := Strategy(minify.Scalar)
	for i := range WindowSize + 10 {
		m.Record(s, i, time.Microsecond)
	}
	r := m.Recent()
	require.Len(t, r, WindowSize)
	assert.Equal(t, 10, r[0].Bytes)
	assert.Equal(t, WindowSize+9, r[len(r)-1].Bytes)
}

func TestTierLatency(t *testing.T) {
	m := New()
	m.Record(Tier(tier.HugePage), 100, 2*time.Millisecond)
	m.Record(Strategy(minify.Scalar), 100, time.Second)
	obs := m.TierLatency()
	assert.Equal(t, tier.Observations{tier.HugePage: 2 * time.Millisecond}, obs)
}

func TestAccountOutput(t *testing.T) {
	m := New()
	m.AccountOutput(minify.Fallback, 13)
	m.AccountOutput(minify.Fallback, 7)
	m.AccountOutput(minify.ID(99), 7)
	assert.Equal(t, Output{Results: 2, Bytes: 20}, m.Output(minify.Fallback))
	assert.Equal(t, Output{}, m.Output(minify.Scalar))

	m.Reset()
	assert.Equal(t, Output{}, m.Output(minify.Fallback))
	assert.Empty(t, m.Recent())
}

func TestSubject_String(t *testing.T) {
	assert.Equal(t, "strategy/hand_tuned", Strategy(minify.HandTuned).String())
	assert.Equal(t, "tier/numa_local", Tier(tier.NUMALocal).String())
}

func TestMonitor_Concurrent(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				m.Record(Strategy(minify.Scalar), 100, time.Microsecond)
				m.AccountOutput(minify.Scalar, 10)
			}
		}()
	}
	wg.Wait()
	st, _ := m.Stats(Strategy(minify.Scalar))
	assert.Equal(t, uint64(8000), st.Samples)
	assert.Equal(t, uint64(8000), m.Output(minify.Scalar).Results)
}
