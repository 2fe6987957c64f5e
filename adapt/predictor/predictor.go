// Package predictor classifies inputs into structural categories with a
// small linear scoring model over the analyzer's feature vector.
//
// Every category shares one weight per feature. Each category also has a
// constant bias gated by the feature it is most associated with, so the
// arg-max moves with the input's shape:
//
//	score[c] = dot(features, weights) + bias[c] * features[affinity[c]]
//
// Confidence is tanh of the winning score clamped to [0, 1]. Update takes a
// gradient step only on mispredictions and clamps each weight, so weights
// stay finite and accuracy is not a goal.
package predictor

import (
	"errors"
	"math"
	"sync"

	"github.com/joshuapare/zmin/adapt/analyzer"
)

// Features is the analyzer feature vector.
type Features = [analyzer.NumFeatures]float64

// Config tunes the predictor.
type Config struct {
	LearningRate float64 `yaml:"learning_rate"`
	WeightLimit  float64 `yaml:"weight_limit"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{LearningRate: 0.01, WeightLimit: 4}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return errors.New("predictor: learning_rate must be in (0, 1]")
	}
	if c.WeightLimit <= 0 || math.IsInf(c.WeightLimit, 0) {
		return errors.New("predictor: weight_limit must be positive and finite")
	}
	return nil
}

// initialWeights favor structure: structural density and depth raise
// confidence, whitespace lowers it slightly.
var initialWeights = Features{
	analyzer.FeatureLogSize:    0.4,
	analyzer.FeatureWhitespace: -0.2,
	analyzer.FeatureStructural: 1.2,
	analyzer.FeatureString:     0.6,
	analyzer.FeatureDigit:      0.4,
	analyzer.FeatureLetter:     0.2,
	analyzer.FeatureDepth:      0.8,
	analyzer.FeatureComplexity: 0.3,
}

// bias and affinity per category. The bias is constant; its contribution is
// scaled by the category's affinity feature.
var (
	bias = [NumCategories]float64{
		FlatObject:   1.0,
		NestedObject: 1.2,
		ArrayHeavy:   1.4,
		MixedArray:   0.9,
		StringHeavy:  2.2,
		NumberHeavy:  2.5,
		DeepNesting:  6.0,
		SparseObject: 1.6,
		UniformArray: 1.1,
		ConfigLike:   1.3,
	}
	affinity = [NumCategories]int{
		FlatObject:   analyzer.FeatureStructural,
		NestedObject: analyzer.FeatureComplexity,
		ArrayHeavy:   analyzer.FeatureStructural,
		MixedArray:   analyzer.FeatureLetter,
		StringHeavy:  analyzer.FeatureString,
		NumberHeavy:  analyzer.FeatureDigit,
		DeepNesting:  analyzer.FeatureDepth,
		SparseObject: analyzer.FeatureWhitespace,
		UniformArray: analyzer.FeatureDigit,
		ConfigLike:   analyzer.FeatureLetter,
	}
)

// Predictor is safe for concurrent use.
type Predictor struct {
	cfg Config

	mu      sync.RWMutex
	weights Features
	updates uint64
	misses  uint64
}

// New returns a predictor with the initial weights.
func New(cfg Config) *Predictor {
	return &Predictor{cfg: cfg, weights: initialWeights}
}

// Predict returns the arg-max category and its confidence in [0, 1].
func (p *Predictor) Predict(f Features) (Category, float64) {
	p.mu.RLock()
	w := p.weights
	p.mu.RUnlock()

	var shared float64
	for i := range f {
		shared += f[i] * w[i]
	}

	best, bestScore := FlatObject, math.Inf(-1)
	for c := range NumCategories {
		score := shared + bias[c]*f[affinity[c]]
		if score > bestScore {
			best, bestScore = Category(c), score
		}
	}
	return best, clamp01(math.Tanh(bestScore))
}

// Update applies one online gradient step when predicted != observed.
// Weights move against the features that produced the wrong answer, which
// lowers future confidence for similar inputs.
func (p *Predictor) Update(f Features, predicted, observed Category) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.updates++
	if predicted == observed {
		return
	}
	p.misses++
	const errSignal = 1.0
	for i := range p.weights {
		w := p.weights[i] - p.cfg.LearningRate*errSignal*f[i]
		p.weights[i] = math.Max(-p.cfg.WeightLimit, math.Min(p.cfg.WeightLimit, w))
	}
}

// Accuracy returns the fraction of updates whose prediction was correct,
// and the number of updates observed.
func (p *Predictor) Accuracy() (float64, uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.updates == 0 {
		return 0, 0
	}
	return float64(p.updates-p.misses) / float64(p.updates), p.updates
}

// Weights returns a copy of the current weights.
func (p *Predictor) Weights() Features {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.weights
}

// SetWeights replaces the weights, clamping each to the configured limit.
// Non-finite values are reset to their initial weight.
func (p *Predictor) SetWeights(w Features) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = initialWeights[i]
		}
		p.weights[i] = math.Max(-p.cfg.WeightLimit, math.Min(p.cfg.WeightLimit, v))
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
