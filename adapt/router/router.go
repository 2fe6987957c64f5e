// Package router picks one strategy per input from the runtime candidates.
//
// For every candidate:
//
//	score = learned[id] + sizeBonus(id, size) + noise
//
// The learned score is an EMA of normalized throughput rewards. The size
// bonus is a fixed per-strategy preference keyed to configurable size
// bands. With probability ExplorationRate the noise term is drawn uniformly
// from [0, ExplorationScale) so no candidate is starved forever. The
// highest total wins; ties go to the earlier candidate.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/joshuapare/zmin/adapt/analyzer"
	"github.com/joshuapare/zmin/minify"
	"github.com/joshuapare/zmin/pkg/types"
)

// Config tunes routing.
type Config struct {
	LearningRate     float64 `yaml:"learning_rate"`
	ExplorationRate  float64 `yaml:"exploration_rate"`
	ExplorationScale float64 `yaml:"exploration_scale"`
	// Seed for the exploration source. Zero picks a random seed.
	Seed uint64 `yaml:"seed"`
	// TargetThroughput (MB/s) normalizes rewards.
	TargetThroughput float64 `yaml:"target_throughput"`

	TinyMax  uint64 `yaml:"tiny_max"`
	MidMin   uint64 `yaml:"mid_min"`
	MidMax   uint64 `yaml:"mid_max"`
	LargeMin uint64 `yaml:"large_min"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		LearningRate:     0.1,
		ExplorationRate:  0.05,
		ExplorationScale: 0.3,
		TargetThroughput: 2000,
		TinyMax:          1 << 10,
		MidMin:           4 << 10,
		MidMax:           1 << 20,
		LargeMin:         16 << 20,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	switch {
	case c.LearningRate <= 0 || c.LearningRate > 1:
		return errors.New("router: learning_rate must be in (0, 1]")
	case c.ExplorationRate < 0 || c.ExplorationRate > 1:
		return errors.New("router: exploration_rate must be in [0, 1]")
	case c.ExplorationScale < 0:
		return errors.New("router: exploration_scale must be non-negative")
	case c.TargetThroughput <= 0:
		return errors.New("router: target_throughput must be positive")
	case c.TinyMax > c.MidMin || c.MidMin > c.MidMax || c.MidMax > c.LargeMin:
		return fmt.Errorf("router: size bands out of order (tiny_max %d, mid %d-%d, large_min %d)",
			c.TinyMax, c.MidMin, c.MidMax, c.LargeMin)
	}
	return nil
}

// Router is safe for concurrent use.
type Router struct {
	cfg   Config
	table *Table
	log   *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New returns a router with a fresh score table.
func New(cfg Config, log *slog.Logger) *Router {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Router{
		cfg:   cfg,
		table: NewTable(),
		log:   log,
		rng:   rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb)),
	}
}

// Table exposes the score table.
func (r *Router) Table() *Table { return r.table }

// Select returns the arg-max candidate for chars. An empty candidate list is
// ErrUnsupportedStrategy.
func (r *Router) Select(chars analyzer.Characteristics, candidates []minify.ID) (minify.ID, error) {
	if len(candidates) == 0 {
		return 0, fmt.Errorf("router: no candidate strategies: %w", types.ErrUnsupportedStrategy)
	}

	best := candidates[0]
	bestScore := r.score(best, chars.Size)
	for _, id := range candidates[1:] {
		if s := r.score(id, chars.Size); s > bestScore {
			best, bestScore = id, s
		}
	}
	return best, nil
}

func (r *Router) score(id minify.ID, size uint64) float64 {
	return r.table.Score(id) + r.sizeBonus(id, size) + r.noise()
}

func (r *Router) noise() float64 {
	if r.cfg.ExplorationRate == 0 || r.cfg.ExplorationScale == 0 {
		return 0
	}
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	if r.rng.Float64() >= r.cfg.ExplorationRate {
		return 0
	}
	return r.rng.Float64() * r.cfg.ExplorationScale
}

// sizeBonus is the fixed per-strategy preference for an input size.
func (r *Router) sizeBonus(id minify.ID, size uint64) float64 {
	tiny := size <= r.cfg.TinyMax
	mid := size >= r.cfg.MidMin && size <= r.cfg.MidMax
	large := size >= r.cfg.LargeMin

	switch id {
	case minify.Scalar:
		if tiny {
			return 0.2
		}
	case minify.VectorStreaming, minify.VectorStructural:
		if !tiny {
			return 0.1
		}
		return -0.1
	case minify.HandTuned:
		if mid {
			return 0.15
		}
	case minify.CustomParser:
		return -0.05
	case minify.Accelerator:
		if large {
			return 0.3
		}
		return -0.3
	case minify.Hybrid:
		if size > r.cfg.MidMax {
			return 0.05
		}
	case minify.Fallback:
		return -0.2
	}
	return 0
}

// Reward normalizes throughput (MB/s) against target into [0, 1].
func Reward(throughput, target float64) float64 {
	if target <= 0 || throughput <= 0 {
		return 0
	}
	return clamp(throughput/target, 0, 1)
}

// Update folds reward into the learned score for id. The reward is clamped
// to [0, 1] so scores never leave that range.
func (r *Router) Update(id minify.ID, reward float64) {
	if !id.Valid() {
		return
	}
	next := r.table.update(id, clamp(reward, 0, 1), r.cfg.LearningRate)
	r.log.Debug("router update", "strategy", id, "reward", reward, "score", next)
}

// Observe is Update with a throughput sample normalized by TargetThroughput.
func (r *Router) Observe(id minify.ID, throughput float64) {
	r.Update(id, Reward(throughput, r.cfg.TargetThroughput))
}

// Scores copies the learned table.
func (r *Router) Scores() map[minify.ID]float64 { return r.table.Snapshot() }

// Load replaces learned scores for warm start.
func (r *Router) Load(scores map[minify.ID]float64) { r.table.Load(scores) }
