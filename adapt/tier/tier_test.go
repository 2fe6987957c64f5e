package tier

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/zmin/internal/topology"
	"github.com/joshuapare/zmin/pkg/types"
)

// fakeMapper backs "mapped" regions with heap slices.
type fakeMapper struct {
	mu      sync.Mutex
	fail    bool
	maps    int
	unmaps  int
	lastLen int
	nodes   []int
}

func (m *fakeMapper) mapHuge(length int, _, _ bool) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("no huge pages")
	}
	m.maps++
	m.lastLen = length
	return make([]byte, length), nil
}

func (m *fakeMapper) mapLocal(length, node int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("mbind failed")
	}
	m.maps++
	m.lastLen = length
	m.nodes = append(m.nodes, node)
	return make([]byte, length), nil
}

func (m *fakeMapper) unmap([]byte) error {
	m.mu.Lock()
	m.unmaps++
	m.mu.Unlock()
	return nil
}

func newSelector(t *testing.T, cfg Config, info topology.Info, m *fakeMapper, node int) *Selector {
	t.Helper()
	s, err := New(cfg,
		WithTopology(info, func() int { return node }),
		withMapper(m),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSelector_PoolRoundTrip(t *testing.T) {
	s := newSelector(t, DefaultConfig(), topology.Info{}, &fakeMapper{}, 0)
	before := s.Accounting(Pool)

	h, err := s.Acquire(1000)
	require.NoError(t, err)
	assert.Equal(t, Pool, h.Tier())
	assert.Len(t, h.Bytes(), 1000)
	assert.Equal(t, 1024, cap(h.Bytes()))
	assert.Equal(t, -1, h.Node())
	assert.Equal(t, Accounting{Outstanding: 1, OutstandingBytes: 1000}, s.Accounting(Pool))

	require.NoError(t, s.Release(h))
	assert.Equal(t, before, s.Accounting(Pool))

	h2, err := s.Acquire(900)
	require.NoError(t, err)
	require.NoError(t, s.Release(h2))
	st := s.Stats()[Pool]
	assert.Equal(t, uint64(2), st.Acquires)
	assert.Equal(t, uint64(1), st.Hits, "second acquire reuses the freed buffer")
}

func TestSelector_ZeroSize(t *testing.T) {
	s := newSelector(t, DefaultConfig(), topology.Info{}, &fakeMapper{}, 0)
	h, err := s.Acquire(0)
	require.NoError(t, err)
	assert.Empty(t, h.Bytes())
	require.NoError(t, s.Release(h))

	_, err = s.Acquire(-1)
	assert.ErrorIs(t, err, types.ErrAllocationFailed)
}

func TestSelector_BadRelease(t *testing.T) {
	s := newSelector(t, DefaultConfig(), topology.Info{}, &fakeMapper{}, 0)
	other := newSelector(t, DefaultConfig(), topology.Info{}, &fakeMapper{}, 0)

	h, err := s.Acquire(10)
	require.NoError(t, err)
	require.NoError(t, s.Release(h))
	assert.ErrorIs(t, s.Release(h), types.ErrBadHandle)
	assert.ErrorIs(t, s.Release(nil), types.ErrBadHandle)

	h, err = other.Acquire(10)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Release(h), types.ErrBadHandle)
	assert.Equal(t, Accounting{}, s.Accounting(Pool))
	require.NoError(t, other.Release(h))
}

func TestSelector_GenericWhenNoSpecialTiers(t *testing.T) {
	s := newSelector(t, DefaultConfig(), topology.Info{}, &fakeMapper{}, 0)
	assert.False(t, s.Available(HugePage))
	assert.False(t, s.Available(NUMALocal))

	h, err := s.Acquire(8 << 20)
	require.NoError(t, err)
	assert.Equal(t, Generic, h.Tier())
	assert.Equal(t, int64(8<<20), s.Accounting(Generic).OutstandingBytes)
	require.NoError(t, s.Release(h))
	assert.Equal(t, Accounting{}, s.Accounting(Generic))
}

func TestSelector_GenericLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxGenericSize = 16 << 20
	s := newSelector(t, cfg, topology.Info{}, &fakeMapper{}, 0)

	_, err := s.Acquire(32 << 20)
	require.ErrorIs(t, err, types.ErrAllocationFailed)
	assert.Equal(t, types.ErrKindResource, types.KindOf(err))
}

func TestSelector_HugePageReuse(t *testing.T) {
	m := &fakeMapper{}
	s := newSelector(t, DefaultConfig(), topology.Info{TransparentHugePages: true}, m, 0)
	require.True(t, s.Available(HugePage))

	h, err := s.Acquire(3 << 20)
	require.NoError(t, err)
	assert.Equal(t, HugePage, h.Tier())
	assert.Len(t, h.Bytes(), 3<<20)
	assert.Equal(t, 4<<20, m.lastLen, "rounded to whole huge pages")
	require.NoError(t, s.Release(h))

	h, err = s.Acquire(3 << 20)
	require.NoError(t, err)
	assert.Equal(t, HugePage, h.Tier())
	assert.Equal(t, 1, m.maps, "idle region reused")
	require.NoError(t, s.Release(h))
	assert.Equal(t, Accounting{}, s.Accounting(HugePage))

	require.NoError(t, s.Close())
	assert.Equal(t, 1, m.unmaps)
}

func TestSelector_HugePageDegrades(t *testing.T) {
	m := &fakeMapper{fail: true}
	s := newSelector(t, DefaultConfig(), topology.Info{TransparentHugePages: true, NUMANodes: 2}, m, 0)

	h, err := s.Acquire(16 << 20)
	require.NoError(t, err, "degradation is silent")
	assert.Equal(t, Generic, h.Tier())
	st := s.Stats()
	assert.Equal(t, uint64(1), st[HugePage].Degraded)
	assert.Equal(t, uint64(1), st[NUMALocal].Degraded)
	require.NoError(t, s.Release(h))
}

func TestSelector_NUMALocal(t *testing.T) {
	m := &fakeMapper{}
	s := newSelector(t, DefaultConfig(), topology.Info{NUMANodes: 2}, m, 1)

	h, err := s.Acquire(16 << 20)
	require.NoError(t, err)
	assert.Equal(t, NUMALocal, h.Tier())
	assert.Equal(t, 1, h.Node())
	assert.Equal(t, []int{1}, m.nodes)
	require.NoError(t, s.Release(h))

	// below the NUMA threshold the generic heap serves
	h, err = s.Acquire(4 << 20)
	require.NoError(t, err)
	assert.Equal(t, Generic, h.Tier())
	require.NoError(t, s.Release(h))
}

func TestSelector_NUMANodeOutOfRange(t *testing.T) {
	s := newSelector(t, DefaultConfig(), topology.Info{NUMANodes: 2}, &fakeMapper{}, 5)
	h, err := s.Acquire(16 << 20)
	require.NoError(t, err)
	assert.Equal(t, Generic, h.Tier())
	require.NoError(t, s.Release(h))
}

func TestSelector_SetEnabled(t *testing.T) {
	s := newSelector(t, DefaultConfig(), topology.Info{TransparentHugePages: true}, &fakeMapper{}, 0)
	s.SetEnabled(HugePage, false)
	h, err := s.Acquire(4 << 20)
	require.NoError(t, err)
	assert.Equal(t, Generic, h.Tier())
	require.NoError(t, s.Release(h))

	s.SetEnabled(NUMALocal, true) // single node: stays off
	assert.False(t, s.Available(NUMALocal))

	s.SetEnabled(Pool, false)
	h, err = s.Acquire(100)
	require.NoError(t, err)
	assert.Equal(t, Generic, h.Tier())
	require.NoError(t, s.Release(h))
}

func TestSelector_AdaptPool(t *testing.T) {
	s := newSelector(t, DefaultConfig(), topology.Info{}, &fakeMapper{}, 0)

	// no samples: no change
	assert.False(t, s.Adapt(nil))

	for range 10 {
		h, err := s.Acquire(1000)
		require.NoError(t, err)
		require.NoError(t, s.Release(h))
	}
	require.True(t, s.Adapt(nil))
	assert.Equal(t, 2<<20, s.Thresholds().PoolMax)

	// nothing new since the last call
	assert.False(t, s.Adapt(nil))
	assert.Equal(t, 2<<20, s.Thresholds().PoolMax)

	// all misses: fewer sizes pooled
	var hs []*Handle
	for range 10 {
		h, err := s.Acquire(300 << 10)
		require.NoError(t, err)
		hs = append(hs, h)
	}
	for _, h := range hs {
		require.NoError(t, s.Release(h))
	}
	require.True(t, s.Adapt(nil))
	assert.Equal(t, 1<<20, s.Thresholds().PoolMax)
}

func TestSelector_AdaptLatencyBudget(t *testing.T) {
	s := newSelector(t, DefaultConfig(), topology.Info{}, &fakeMapper{}, 0)
	for range 10 {
		h, _ := s.Acquire(1000)
		require.NoError(t, s.Release(h))
	}
	assert.False(t, s.Adapt(Observations{Pool: time.Second}))
	assert.Equal(t, 1<<20, s.Thresholds().PoolMax)
}

func TestSelector_AdaptHugeThresholdBounded(t *testing.T) {
	m := &fakeMapper{}
	s := newSelector(t, DefaultConfig(), topology.Info{TransparentHugePages: true}, m, 0)
	for round := range 3 {
		h, err := s.Acquire(2 << 20)
		require.NoError(t, err)
		require.NoError(t, s.Release(h))
		changed := s.Adapt(nil)
		assert.Equal(t, round == 0, changed, "round %d", round)
		assert.Equal(t, 1<<20, s.Thresholds().HugeThreshold)
	}

	m.fail = true
	var hs []*Handle
	for range 4 {
		h, err := s.Acquire(2 << 20)
		require.NoError(t, err)
		hs = append(hs, h)
	}
	// the idle region serves one request; the other three degrade
	assert.Equal(t, HugePage, hs[0].Tier())
	assert.Equal(t, Generic, hs[3].Tier())
	require.True(t, s.Adapt(nil))
	assert.Equal(t, 2<<20, s.Thresholds().HugeThreshold)
	for _, h := range hs {
		require.NoError(t, s.Release(h))
	}
}

func TestSelector_SetThresholdsClamps(t *testing.T) {
	s := newSelector(t, DefaultConfig(), topology.Info{}, &fakeMapper{}, 0)
	s.SetThresholds(Thresholds{PoolMax: 1, HugeThreshold: 1 << 40, NUMAThreshold: 3 << 20})
	th := s.Thresholds()
	assert.Equal(t, 64<<10, th.PoolMax)
	assert.Equal(t, 1<<30, th.HugeThreshold)
	assert.Equal(t, 3<<20, th.NUMAThreshold)
}

func TestSelector_ConcurrentNoDoubleHandout(t *testing.T) {
	s := newSelector(t, DefaultConfig(), topology.Info{}, &fakeMapper{}, 0)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				h, err := s.Acquire(512 + i%7*300)
				if err != nil {
					errs <- err
					return
				}
				b := h.Bytes()
				for j := range b {
					b[j] = byte(w)
				}
				for j := range b {
					if b[j] != byte(w) {
						errs <- errors.New("buffer shared between goroutines")
						return
					}
				}
				if err := s.Release(h); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	for _, tr := range Tiers() {
		assert.Equal(t, Accounting{}, s.Accounting(tr), tr.String())
	}
}

func TestSelector_ReleaseAfterClose(t *testing.T) {
	m := &fakeMapper{}
	s := newSelector(t, DefaultConfig(), topology.Info{TransparentHugePages: true}, m, 0)
	h, err := s.Acquire(2 << 20)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Release(h))
	assert.Equal(t, 1, m.unmaps)
	assert.Equal(t, 0, s.huge.len())
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.PoolMax = 8 << 20
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.LowHitRate, cfg.HighHitRate = 0.9, 0.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SizeClasses.GrowthFactor = 1
	assert.Error(t, cfg.Validate())
}

func TestTier_String(t *testing.T) {
	assert.Equal(t, "huge_page", HugePage.String())
	assert.Equal(t, "tier(9)", Tier(9).String())
}

func BenchmarkPoolAcquireRelease(b *testing.B) {
	s, _ := New(DefaultConfig(), WithTopology(topology.Info{}, nil))
	defer s.Close()
	for b.Loop() {
		h, _ := s.Acquire(64 << 10)
		_ = s.Release(h)
	}
}

func TestSelector_UnalignedSizeClasses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SizeClasses = SizeClassConfig{Name: "unaligned", SmallMin: 100, SmallIncrement: 256, SmallMax: 4096, MediumMax: 4096, GrowthFactor: 1.5}
	cfg.PoolMaxFloor = 1024
	cfg.PoolMax = 4096
	require.NoError(t, cfg.Validate())

	s := newSelector(t, cfg, topology.Info{}, &fakeMapper{}, 0)
	for _, size := range []int{1, 3940, 4000, 4096} {
		h, err := s.Acquire(size)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, Pool, h.Tier(), "size %d", size)
		assert.Len(t, h.Bytes(), size)
		require.NoError(t, s.Release(h))
	}
}
