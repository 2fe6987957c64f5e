// Package perfmon aggregates throughput and latency per strategy and per
// memory tier. The monitor never reads a clock; callers measure and report
// durations.
package perfmon

import (
	"fmt"
	"sync"
	"time"

	"github.com/joshuapare/zmin/adapt/tier"
	"github.com/joshuapare/zmin/minify"
)

const (
	// Alpha is the EMA weight of a new sample.
	Alpha = 0.1
	// WindowSize is the number of recent samples kept.
	WindowSize = 256
)

// SubjectKind distinguishes strategies from tiers.
type SubjectKind uint8

const (
	KindStrategy SubjectKind = iota
	KindTier
)

// Subject is what a sample is about.
type Subject struct {
	Kind SubjectKind
	ID   uint8
}

// Strategy returns the subject for a strategy id.
func Strategy(id minify.ID) Subject { return Subject{Kind: KindStrategy, ID: uint8(id)} }

// Tier returns the subject for a memory tier.
func Tier(t tier.Tier) Subject { return Subject{Kind: KindTier, ID: uint8(t)} }

func (s Subject) String() string {
	switch s.Kind {
	case KindStrategy:
		return "strategy/" + minify.ID(s.ID).String()
	case KindTier:
		return "tier/" + tier.Tier(s.ID).String()
	}
	return fmt.Sprintf("subject(%d/%d)", s.Kind, s.ID)
}

// Sample is one report.
type Sample struct {
	Subject  Subject
	Bytes    int
	Duration time.Duration
}

// Throughput returns MB/s for the sample.
func (s Sample) Throughput() float64 { return throughput(int64(s.Bytes), s.Duration) }

// Stats is the aggregate for one subject.
type Stats struct {
	Samples    uint64
	TotalBytes int64
	TotalTime  time.Duration
	// Throughput is the EMA in MB/s.
	Throughput float64
	// Latency is the EMA of per-sample duration.
	Latency time.Duration
}

// Mean returns TotalBytes / TotalTime in MB/s.
func (s Stats) Mean() float64 { return throughput(s.TotalBytes, s.TotalTime) }

// Output is the exactly-once accounting of completed results per strategy.
type Output struct {
	Results uint64
	Bytes   int64
}

type aggregate struct {
	Stats
	latency float64 // ns, EMA
}

// Monitor is safe for concurrent use.
type Monitor struct {
	mu     sync.Mutex
	stats  map[Subject]*aggregate
	output [minify.NumIDs]Output

	ring  [WindowSize]Sample
	head  int
	count int

	totalBytes int64
	totalTime  time.Duration
}

// New returns an empty monitor.
func New() *Monitor {
	return &Monitor{stats: make(map[Subject]*aggregate)}
}

// Record folds one sample in. Negative byte counts are ignored.
func (m *Monitor) Record(s Subject, bytes int, d time.Duration) {
	if bytes < 0 {
		return
	}
	d = max(d, time.Nanosecond)
	tp := throughput(int64(bytes), d)

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.stats[s]
	if !ok {
		a = &aggregate{}
		m.stats[s] = a
	}
	if a.Samples == 0 {
		a.Throughput = tp
		a.latency = float64(d)
	} else {
		a.Throughput += Alpha * (tp - a.Throughput)
		a.latency += Alpha * (float64(d) - a.latency)
	}
	a.Latency = time.Duration(a.latency)
	a.Samples++
	a.TotalBytes += int64(bytes)
	a.TotalTime += d

	m.totalBytes += int64(bytes)
	m.totalTime += d

	m.ring[m.head] = Sample{Subject: s, Bytes: bytes, Duration: d}
	m.head = (m.head + 1) % WindowSize
	m.count = min(m.count+1, WindowSize)
}

// Stats returns the aggregate for s.
func (m *Monitor) Stats(s Subject) (Stats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.stats[s]
	if !ok {
		return Stats{}, false
	}
	return a.Stats, true
}

// Snapshot copies every aggregate.
func (m *Monitor) Snapshot() map[Subject]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Subject]Stats, len(m.stats))
	for s, a := range m.stats {
		out[s] = a.Stats
	}
	return out
}

// OverallThroughput returns total bytes over total time in MB/s.
func (m *Monitor) OverallThroughput() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return throughput(m.totalBytes, m.totalTime)
}

// Recent returns the window, oldest first.
func (m *Monitor) Recent() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sample, 0, m.count)
	start := (m.head - m.count + WindowSize) % WindowSize
	for i := range m.count {
		out = append(out, m.ring[(start+i)%WindowSize])
	}
	return out
}

// TierLatency returns the latency EMA per tier for tier adaptation.
func (m *Monitor) TierLatency() tier.Observations {
	m.mu.Lock()
	defer m.mu.Unlock()
	obs := make(tier.Observations)
	for s, a := range m.stats {
		if s.Kind == KindTier && a.Samples > 0 {
			obs[tier.Tier(s.ID)] = a.Latency
		}
	}
	return obs
}

// AccountOutput records one completed result of n bytes for id.
func (m *Monitor) AccountOutput(id minify.ID, n int) {
	if !id.Valid() {
		return
	}
	m.mu.Lock()
	m.output[id].Results++
	m.output[id].Bytes += int64(n)
	m.mu.Unlock()
}

// Output returns the accounted results for id.
func (m *Monitor) Output(id minify.ID) Output {
	if !id.Valid() {
		return Output{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.output[id]
}

// Reset clears everything.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.stats)
	m.output = [minify.NumIDs]Output{}
	m.head, m.count = 0, 0
	m.totalBytes, m.totalTime = 0, 0
}

func throughput(bytes int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(bytes) / 1e6 / d.Seconds()
}
