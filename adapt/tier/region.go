package tier

import (
	"errors"
	"sync"
)

var errUnavailable = errors.New("tier: not supported on this platform")

// mapper is the anonymous-mapping backend.
type mapper interface {
	// mapHuge maps length bytes backed by huge pages. explicit tries
	// MAP_HUGETLB first; thp falls back to madvise(MADV_HUGEPAGE).
	mapHuge(length int, explicit, thp bool) ([]byte, error)
	// mapLocal maps length bytes with a preferred-node policy for node.
	mapLocal(length, node int) ([]byte, error)
	unmap(b []byte) error
}

// regionList keeps idle mapped regions for reuse.
type regionList struct {
	mu      sync.Mutex
	regions [][]byte
}

// take removes the smallest idle region of at least n bytes.
func (l *regionList) take(n int) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	best := -1
	for i, r := range l.regions {
		if len(r) >= n && (best < 0 || len(r) < len(l.regions[best])) {
			best = i
		}
	}
	if best < 0 {
		return nil, false
	}
	r := l.regions[best]
	last := len(l.regions) - 1
	l.regions[best] = l.regions[last]
	l.regions[last] = nil
	l.regions = l.regions[:last]
	return r, true
}

// put retains r, or unmaps it when limit idle regions are already held.
func (l *regionList) put(r []byte, limit int, m mapper) error {
	l.mu.Lock()
	if len(l.regions) < limit {
		l.regions = append(l.regions, r)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	return m.unmap(r)
}

func (l *regionList) drain(m mapper) error {
	l.mu.Lock()
	regions := l.regions
	l.regions = nil
	l.mu.Unlock()

	var errs []error
	for _, r := range regions {
		errs = append(errs, m.unmap(r))
	}
	return errors.Join(errs...)
}

func (l *regionList) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.regions)
}

func (s *Selector) acquireHuge(size int) (*Handle, error) {
	length := s.topo.RoundSize(max(size, 1))
	region, hit := s.huge.take(length)
	if !hit {
		var err error
		region, err = s.mapper.mapHuge(length, s.topo.HugePagesFree > 0, s.topo.TransparentHugePages)
		if err != nil {
			return nil, err
		}
	}
	return s.hand(&Handle{owner: s, buf: region[:size], region: region, tier: HugePage, class: -1, node: -1}, true), nil
}

func (s *Selector) acquireNUMA(size int) (*Handle, error) {
	node := s.currentNode()
	if node < 0 || node >= len(s.numa) {
		return nil, errors.New("tier: current node out of range")
	}
	length := (max(size, 1) + s.pageSize - 1) / s.pageSize * s.pageSize
	region, hit := s.numa[node].take(length)
	if !hit {
		var err error
		region, err = s.mapper.mapLocal(length, node)
		if err != nil {
			return nil, err
		}
	}
	return s.hand(&Handle{owner: s, buf: region[:size], region: region, tier: NUMALocal, class: -1, node: node}, true), nil
}
