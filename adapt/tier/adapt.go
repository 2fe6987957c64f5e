package tier

import (
	"sync/atomic"
	"time"
)

// Observations carries per-tier average latency measured outside the
// selector (the engine reads it from the performance monitor). A missing
// or zero entry counts as within budget.
type Observations map[Tier]time.Duration

// Adapt re-tunes thresholds from the hit rates seen since the previous call.
//
// A tier with a high hit rate and latency within budget gets more traffic
// (pool max doubles, huge/NUMA thresholds halve). A tier with a low hit
// rate gets less. A tier with no requests in the window is left alone, so
// calling Adapt twice with nothing in between changes nothing. It reports
// whether any threshold moved.
func (s *Selector) Adapt(obs Observations) bool {
	changed := false
	for _, t := range []Tier{Pool, HugePage, NUMALocal} {
		c := &s.stats[t]
		attempts := c.winAttempts.Swap(0)
		hits := c.winHits.Swap(0)
		if attempts == 0 {
			continue
		}
		rate := float64(min(hits, attempts)) / float64(attempts)
		lat := obs[t]
		inBudget := lat <= 0 || s.cfg.LatencyBudget <= 0 || lat <= s.cfg.LatencyBudget

		var more bool
		switch {
		case rate >= s.cfg.HighHitRate && inBudget:
			more = true
		case rate <= s.cfg.LowHitRate:
			more = false
		default:
			continue
		}
		if s.shift(t, more) {
			changed = true
			s.log.Debug("tier adapt", "tier", t, "hit_rate", rate, "latency", lat, "more_traffic", more,
				"thresholds", s.Thresholds())
		}
	}
	return changed
}

// shift moves t's threshold one step toward more or less traffic.
func (s *Selector) shift(t Tier, more bool) bool {
	switch t {
	case Pool:
		cur := int(s.poolMax.Load())
		next := cur / 2
		if more {
			next = cur * 2
		}
		next = clampInt(next, s.cfg.PoolMaxFloor, s.cfg.SizeClasses.MediumMax)
		s.poolMax.Store(int64(next))
		return next != cur
	case HugePage:
		return s.shiftThreshold(&s.hugeThreshold, more)
	case NUMALocal:
		return s.shiftThreshold(&s.numaThreshold, more)
	}
	return false
}

// shiftThreshold halves v for more traffic and doubles it for less.
func (s *Selector) shiftThreshold(v *atomic.Int64, more bool) bool {
	cur := int(v.Load())
	next := cur * 2
	if more {
		next = cur / 2
	}
	next = clampInt(next, s.cfg.ThresholdFloor, s.cfg.ThresholdCeiling)
	v.Store(int64(next))
	return next != cur
}
