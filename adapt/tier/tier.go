// Package tier hands out scratch output buffers from the cheapest memory
// tier that fits a request.
//
// Tiers are tried in priority order:
//
//	pool       size <= PoolMax; size-classed free lists, reused across inputs
//	huge page  size >= HugeThreshold; anonymous mmap backed by huge pages
//	NUMA local size >= NUMAThreshold on multi-node hosts; mmap bound to the
//	           calling CPU's node
//	generic    plain heap allocation
//
// A tier that cannot serve a request degrades silently to the next one.
// Only the generic tier reports ErrAllocationFailed. Each Handle remembers
// the tier that produced it so Release returns memory to its owner; a
// second Release of the same handle is ErrBadHandle.
package tier

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joshuapare/zmin/internal/topology"
	"github.com/joshuapare/zmin/pkg/types"
)

// Tier identifies a memory tier.
type Tier uint8

const (
	Pool Tier = iota
	HugePage
	NUMALocal
	Generic

	NumTiers = int(Generic) + 1
)

var tierNames = [NumTiers]string{"pool", "huge_page", "numa_local", "generic"}

func (t Tier) String() string {
	if int(t) < NumTiers {
		return tierNames[t]
	}
	return fmt.Sprintf("tier(%d)", uint8(t))
}

// Tiers returns every tier in priority order.
func Tiers() []Tier { return []Tier{Pool, HugePage, NUMALocal, Generic} }

// Config tunes the selector.
type Config struct {
	SizeClasses SizeClassConfig `yaml:"size_classes"`
	// MaxRetained caps idle buffers kept per pool size class.
	MaxRetained int `yaml:"max_retained"`
	// MaxRetainedRegions caps idle mapped regions per huge/NUMA list.
	MaxRetainedRegions int `yaml:"max_retained_regions"`

	PoolMax       int `yaml:"pool_max"`
	PoolMaxFloor  int `yaml:"pool_max_floor"`
	HugeThreshold int `yaml:"huge_threshold"`
	NUMAThreshold int `yaml:"numa_threshold"`
	// ThresholdFloor and ThresholdCeiling bound the huge/NUMA thresholds.
	ThresholdFloor   int `yaml:"threshold_floor"`
	ThresholdCeiling int `yaml:"threshold_ceiling"`

	// MaxGenericSize bounds heap allocations. Zero means unbounded.
	MaxGenericSize int `yaml:"max_generic_size"`

	HighHitRate   float64       `yaml:"high_hit_rate"`
	LowHitRate    float64       `yaml:"low_hit_rate"`
	LatencyBudget time.Duration `yaml:"latency_budget"`

	HugePages bool `yaml:"huge_pages"`
	NUMA      bool `yaml:"numa"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		SizeClasses:        DefaultSizeClasses,
		MaxRetained:        16,
		MaxRetainedRegions: 4,
		PoolMax:            1 << 20,
		PoolMaxFloor:       64 << 10,
		HugeThreshold:      2 << 20,
		NUMAThreshold:      8 << 20,
		ThresholdFloor:     1 << 20,
		ThresholdCeiling:   1 << 30,
		HighHitRate:        0.8,
		LowHitRate:         0.3,
		LatencyBudget:      50 * time.Millisecond,
		HugePages:          true,
		NUMA:               true,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	sc := c.SizeClasses
	switch {
	case sc.SmallMin <= 0 || sc.SmallIncrement <= 0 || sc.SmallMax < sc.SmallMin || sc.MediumMax < sc.SmallMax:
		return errors.New("tier: size classes must be positive and ascending")
	case sc.GrowthFactor <= 1:
		return errors.New("tier: growth_factor must exceed 1")
	case c.PoolMaxFloor <= 0 || c.PoolMax < c.PoolMaxFloor || c.PoolMax > sc.MediumMax:
		return fmt.Errorf("tier: pool_max %d must lie in [pool_max_floor, medium_max %d]", c.PoolMax, sc.MediumMax)
	case c.ThresholdFloor <= 0 || c.ThresholdCeiling < c.ThresholdFloor:
		return errors.New("tier: threshold bounds out of order")
	case c.HugeThreshold < c.ThresholdFloor || c.HugeThreshold > c.ThresholdCeiling,
		c.NUMAThreshold < c.ThresholdFloor || c.NUMAThreshold > c.ThresholdCeiling:
		return errors.New("tier: huge/numa thresholds must lie within threshold bounds")
	case c.LowHitRate < 0 || c.HighHitRate > 1 || c.LowHitRate >= c.HighHitRate:
		return errors.New("tier: need 0 <= low_hit_rate < high_hit_rate <= 1")
	case c.MaxRetained < 0 || c.MaxRetainedRegions < 0 || c.MaxGenericSize < 0:
		return errors.New("tier: retention and size limits must be non-negative")
	}
	return nil
}

// Thresholds are the adaptive routing bounds.
type Thresholds struct {
	PoolMax       int `cbor:"1,keyasint" yaml:"pool_max"`
	HugeThreshold int `cbor:"2,keyasint" yaml:"huge_threshold"`
	NUMAThreshold int `cbor:"3,keyasint" yaml:"numa_threshold"`
}

// Accounting is the outstanding allocation state of one tier.
type Accounting struct {
	Outstanding      int64
	OutstandingBytes int64
}

// Stats summarizes one tier.
type Stats struct {
	Tier     Tier
	Acquires uint64
	Hits     uint64 // pool: served from a free list; mapped tiers: mapping succeeded
	Degraded uint64 // requests this tier passed down
	Accounting
}

// Handle is one acquired buffer.
type Handle struct {
	owner  *Selector
	buf    []byte
	region []byte
	tier   Tier
	class  int
	node   int

	released atomic.Bool
}

// Bytes returns the buffer: length is the requested size, capacity may be
// larger.
func (h *Handle) Bytes() []byte { return h.buf }

// Size returns the requested size.
func (h *Handle) Size() int { return len(h.buf) }

// Tier returns the tier that served the request.
func (h *Handle) Tier() Tier { return h.tier }

// Node returns the NUMA node for NUMA-local handles, -1 otherwise.
func (h *Handle) Node() int { return h.node }

type counters struct {
	outstanding      atomic.Int64
	outstandingBytes atomic.Int64
	acquires         atomic.Uint64
	hits             atomic.Uint64
	degraded         atomic.Uint64

	// since the last Adapt
	winAttempts atomic.Uint64
	winHits     atomic.Uint64
}

// Option configures a Selector.
type Option func(*Selector)

// WithTopology overrides the probed topology and node lookup.
func WithTopology(info topology.Info, currentNode func() int) Option {
	return func(s *Selector) {
		s.topo = info
		if currentNode != nil {
			s.currentNode = currentNode
		}
	}
}

// WithLogger sets the logger for degradation and adaptation events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Selector) {
		if l != nil {
			s.log = l
		}
	}
}

// withMapper swaps the mmap backend; tests only.
func withMapper(m mapper) Option {
	return func(s *Selector) { s.mapper = m }
}

// Selector is safe for concurrent use.
type Selector struct {
	cfg         Config
	topo        topology.Info
	currentNode func() int
	log         *slog.Logger
	mapper      mapper
	pageSize    int

	classes *sizeClassTable
	pool    []freeList
	huge    regionList
	numa    []regionList

	poolMax       atomic.Int64
	hugeThreshold atomic.Int64
	numaThreshold atomic.Int64

	enabled [NumTiers]atomic.Bool
	stats   [NumTiers]counters
	closed  atomic.Bool
}

// New builds a selector. Topology is probed unless WithTopology is given.
func New(cfg Config, opts ...Option) (*Selector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Selector{
		cfg:         cfg,
		currentNode: topology.CurrentNode,
		log:         slog.New(slog.DiscardHandler),
		mapper:      osMapper{},
		pageSize:    os.Getpagesize(),
		classes:     newSizeClassTable(cfg.SizeClasses),
	}
	s.topo = topology.Probe()
	for _, opt := range opts {
		opt(s)
	}

	s.pool = make([]freeList, s.classes.numClasses())
	s.numa = make([]regionList, max(s.topo.NUMANodes, 1))
	s.poolMax.Store(int64(cfg.PoolMax))
	s.hugeThreshold.Store(int64(cfg.HugeThreshold))
	s.numaThreshold.Store(int64(cfg.NUMAThreshold))

	s.enabled[Pool].Store(true)
	s.enabled[HugePage].Store(cfg.HugePages && s.topo.HugePages())
	s.enabled[NUMALocal].Store(cfg.NUMA && s.topo.MultiNode())
	s.enabled[Generic].Store(true)
	return s, nil
}

// Available reports whether t is currently eligible for requests.
func (s *Selector) Available(t Tier) bool {
	return int(t) < NumTiers && s.enabled[t].Load()
}

// SetEnabled turns the pool, huge page or NUMA tier on or off at runtime.
// Huge page and NUMA tiers stay off on hosts that cannot support them. The
// generic tier is always on.
func (s *Selector) SetEnabled(t Tier, on bool) {
	switch t {
	case Pool:
		s.enabled[Pool].Store(on)
	case HugePage:
		s.enabled[HugePage].Store(on && s.topo.HugePages())
	case NUMALocal:
		s.enabled[NUMALocal].Store(on && s.topo.MultiNode())
	}
}

// Acquire returns a buffer of at least size bytes.
func (s *Selector) Acquire(size int) (*Handle, error) {
	if size < 0 {
		return nil, fmt.Errorf("tier: negative size %d: %w", size, types.ErrAllocationFailed)
	}

	if s.enabled[Pool].Load() && int64(size) <= s.poolMax.Load() {
		if h := s.acquirePool(size); h != nil {
			return h, nil
		}
	}
	if s.enabled[HugePage].Load() && int64(size) >= s.hugeThreshold.Load() {
		h, err := s.acquireHuge(size)
		if err == nil {
			return h, nil
		}
		s.degrade(HugePage, size, err)
	}
	if s.enabled[NUMALocal].Load() && int64(size) >= s.numaThreshold.Load() {
		h, err := s.acquireNUMA(size)
		if err == nil {
			return h, nil
		}
		s.degrade(NUMALocal, size, err)
	}
	return s.acquireGeneric(size)
}

func (s *Selector) degrade(t Tier, size int, err error) {
	s.stats[t].degraded.Add(1)
	s.stats[t].winAttempts.Add(1)
	s.log.Debug("tier degraded", "tier", t, "size", size, "err", err)
}

func (s *Selector) hand(h *Handle, hit bool) *Handle {
	c := &s.stats[h.tier]
	c.acquires.Add(1)
	c.winAttempts.Add(1)
	if hit {
		c.hits.Add(1)
		c.winHits.Add(1)
	}
	c.outstanding.Add(1)
	c.outstandingBytes.Add(int64(len(h.buf)))
	return h
}

func (s *Selector) acquireGeneric(size int) (*Handle, error) {
	if s.cfg.MaxGenericSize > 0 && size > s.cfg.MaxGenericSize {
		s.stats[Generic].winAttempts.Add(1)
		return nil, fmt.Errorf("tier: %d bytes exceeds generic limit %d: %w",
			size, s.cfg.MaxGenericSize, types.ErrAllocationFailed)
	}
	return s.hand(&Handle{owner: s, buf: make([]byte, size), tier: Generic, class: -1, node: -1}, true), nil
}

// Release returns h to the tier that produced it.
func (s *Selector) Release(h *Handle) error {
	if h == nil || h.owner != s {
		return fmt.Errorf("tier: foreign handle: %w", types.ErrBadHandle)
	}
	if !h.released.CompareAndSwap(false, true) {
		return fmt.Errorf("tier: %s handle released twice: %w", h.tier, types.ErrBadHandle)
	}

	c := &s.stats[h.tier]
	c.outstanding.Add(-1)
	c.outstandingBytes.Add(-int64(len(h.buf)))

	var err error
	switch h.tier {
	case Pool:
		s.pool[h.class].put(h.buf[:cap(h.buf)], s.retainCap())
	case HugePage:
		err = s.huge.put(h.region, s.regionCap(), s.mapper)
	case NUMALocal:
		err = s.numa[h.node].put(h.region, s.regionCap(), s.mapper)
	}
	h.buf, h.region = nil, nil
	return err
}

func (s *Selector) retainCap() int {
	if s.closed.Load() {
		return 0
	}
	return s.cfg.MaxRetained
}

func (s *Selector) regionCap() int {
	if s.closed.Load() {
		return 0
	}
	return s.cfg.MaxRetainedRegions
}

// Accounting returns the outstanding state of t.
func (s *Selector) Accounting(t Tier) Accounting {
	if int(t) >= NumTiers {
		return Accounting{}
	}
	c := &s.stats[t]
	return Accounting{Outstanding: c.outstanding.Load(), OutstandingBytes: c.outstandingBytes.Load()}
}

// Stats returns per-tier counters in priority order.
func (s *Selector) Stats() []Stats {
	out := make([]Stats, 0, NumTiers)
	for _, t := range Tiers() {
		c := &s.stats[t]
		out = append(out, Stats{
			Tier:       t,
			Acquires:   c.acquires.Load(),
			Hits:       c.hits.Load(),
			Degraded:   c.degraded.Load(),
			Accounting: s.Accounting(t),
		})
	}
	return out
}

// Thresholds returns the current routing bounds.
func (s *Selector) Thresholds() Thresholds {
	return Thresholds{
		PoolMax:       int(s.poolMax.Load()),
		HugeThreshold: int(s.hugeThreshold.Load()),
		NUMAThreshold: int(s.numaThreshold.Load()),
	}
}

// SetThresholds installs th, clamped to the configured bounds.
func (s *Selector) SetThresholds(th Thresholds) {
	s.poolMax.Store(int64(clampInt(th.PoolMax, s.cfg.PoolMaxFloor, s.cfg.SizeClasses.MediumMax)))
	s.hugeThreshold.Store(int64(clampInt(th.HugeThreshold, s.cfg.ThresholdFloor, s.cfg.ThresholdCeiling)))
	s.numaThreshold.Store(int64(clampInt(th.NUMAThreshold, s.cfg.ThresholdFloor, s.cfg.ThresholdCeiling)))
}

// Close drops every retained buffer and unmaps idle regions. Outstanding
// handles stay valid; their Release unmaps instead of retaining.
func (s *Selector) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	for i := range s.pool {
		s.pool[i].drain()
	}
	errs := []error{s.huge.drain(s.mapper)}
	for i := range s.numa {
		errs = append(errs, s.numa[i].drain(s.mapper))
	}
	return errors.Join(errs...)
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

// freeList is one pool size class.
type freeList struct {
	mu   sync.Mutex
	free [][]byte
}

func (f *freeList) get() ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.free)
	if n == 0 {
		return nil, false
	}
	b := f.free[n-1]
	f.free[n-1] = nil
	f.free = f.free[:n-1]
	return b, true
}

func (f *freeList) put(b []byte, limit int) {
	f.mu.Lock()
	if len(f.free) < limit {
		f.free = append(f.free, b)
	}
	f.mu.Unlock()
}

func (f *freeList) drain() {
	f.mu.Lock()
	f.free = nil
	f.mu.Unlock()
}

func (s *Selector) acquirePool(size int) *Handle {
	class := s.classes.classOf(size)
	if class >= s.classes.numClasses() {
		return nil
	}
	b, hit := s.pool[class].get()
	if !hit {
		b = make([]byte, s.classes.capacity(class))
	}
	return s.hand(&Handle{owner: s, buf: b[:size], tier: Pool, class: class, node: -1}, hit)
}
