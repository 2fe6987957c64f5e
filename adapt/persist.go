package adapt

import (
	"fmt"

	"github.com/joshuapare/zmin/adapt/patterncache"
	"github.com/joshuapare/zmin/adapt/snapshot"
	"github.com/joshuapare/zmin/minify"
)

// Snapshot captures the learned state: predictor weights, router scores,
// cached decisions, tier thresholds, and speculation tuning.
func (e *Engine) Snapshot() snapshot.State {
	st := snapshot.New(e.id)
	st.Mode = e.Mode().String()
	st.Weights = e.predictor.Weights()
	st.Scores = make(map[uint8]float64, minify.NumIDs)
	for id, v := range e.router.Scores() {
		st.Scores[uint8(id)] = v
	}
	st.Cache = e.cache.Entries()
	st.Thresholds = e.tiers.Thresholds()
	st.Tuning = e.spec.Tuning()
	return st
}

// Restore installs a previously captured state. Values are clamped by each
// component. The cache is replaced by the snapshot's decisions, minus those
// the current registry cannot serve. The engine keeps its configured mode.
func (e *Engine) Restore(st snapshot.State) error {
	if st.Version != snapshot.FormatVersion {
		return fmt.Errorf("adapt: restore version %d: %w", st.Version, snapshot.ErrVersion)
	}
	e.predictor.SetWeights(st.Weights)
	scores := make(map[minify.ID]float64, len(st.Scores))
	for id, v := range st.Scores {
		scores[minify.ID(id)] = v
	}
	e.router.Load(scores)
	entries := make(map[uint64]patterncache.Entry, len(st.Cache))
	for fp, entry := range st.Cache {
		if e.reg.Has(entry.Strategy) {
			entries[fp] = entry
		}
	}
	e.cache.Purge()
	n := e.cache.Load(entries)
	e.tiers.SetThresholds(st.Thresholds)
	e.spec.SetTuning(st.Tuning)
	e.log.Info("engine state restored", "snapshot", st.ID, "from_engine", st.Engine,
		"created", st.CreatedAt, "cache_entries", n)
	return nil
}

// SaveSnapshot writes the learned state to path.
func (e *Engine) SaveSnapshot(path string) error {
	return snapshot.Save(path, e.Snapshot())
}

// LoadSnapshot restores the learned state from path.
func (e *Engine) LoadSnapshot(path string) error {
	st, err := snapshot.Load(path)
	if err != nil {
		return err
	}
	return e.Restore(st)
}
