package router

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/joshuapare/zmin/minify"
)

// InitialScore is the learned score every strategy starts from.
const InitialScore = 0.5

// Table is the learned score per strategy. Reads are lock-free; updates are
// serialized so each EMA step sees the previous one.
type Table struct {
	mu     sync.Mutex
	scores [minify.NumIDs]atomic.Uint64 // float64 bits
}

// NewTable returns a table with every score at InitialScore.
func NewTable() *Table {
	t := &Table{}
	for i := range t.scores {
		t.scores[i].Store(math.Float64bits(InitialScore))
	}
	return t
}

// Score returns the learned score for id, or 0 for an invalid id.
func (t *Table) Score(id minify.ID) float64 {
	if !id.Valid() {
		return 0
	}
	return math.Float64frombits(t.scores[id].Load())
}

// update moves the score toward reward (already clamped to [0, 1]).
func (t *Table) update(id minify.ID, reward, rate float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := math.Float64frombits(t.scores[id].Load())
	next := clamp(cur+rate*(reward-cur), 0, 1)
	t.scores[id].Store(math.Float64bits(next))
	return next
}

// Snapshot copies every score keyed by strategy.
func (t *Table) Snapshot() map[minify.ID]float64 {
	out := make(map[minify.ID]float64, minify.NumIDs)
	for _, id := range minify.IDs() {
		out[id] = t.Score(id)
	}
	return out
}

// Load replaces scores for the given strategies. Out-of-range and non-finite
// values are clamped or ignored.
func (t *Table) Load(scores map[minify.ID]float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, s := range scores {
		if !id.Valid() || math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		t.scores[id].Store(math.Float64bits(clamp(s, 0, 1)))
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
