// Package adapt is the adaptive execution core. An Engine classifies each
// input, routes it to a strategy, executes it (speculatively when the
// prediction is confident) in a buffer from the cheapest memory tier, and
// re-tunes itself from the measurements callers report.
//
// The engine never reads a clock. Callers time Execute and hand the
// duration back through Report, ReportDecision or ReportOutcome.
package adapt

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/joshuapare/zmin/adapt/analyzer"
	"github.com/joshuapare/zmin/adapt/patterncache"
	"github.com/joshuapare/zmin/adapt/perfmon"
	"github.com/joshuapare/zmin/adapt/predictor"
	"github.com/joshuapare/zmin/adapt/router"
	"github.com/joshuapare/zmin/adapt/speculative"
	"github.com/joshuapare/zmin/adapt/tier"
	"github.com/joshuapare/zmin/internal/topology"
	"github.com/joshuapare/zmin/minify"
	"github.com/joshuapare/zmin/pkg/types"
)

// Decision is the routing outcome for one input.
type Decision struct {
	Strategy    minify.ID
	Category    predictor.Category
	Confidence  float64
	Fingerprint uint64
	// Cached is set when the pattern cache supplied the decision. Cached
	// decisions carry no Characteristics.
	Cached          bool
	Characteristics analyzer.Characteristics
}

// Outcome describes one execution.
type Outcome struct {
	Output []byte
	// Strategy produced Output; it differs from the decision after a
	// rollback.
	Strategy    minify.ID
	Tier        tier.Tier
	Speculative bool
	RolledBack  bool
}

// Option configures New.
type Option func(*options)

type options struct {
	log      *slog.Logger
	registry *minify.Registry
	topo     *topology.Info
	node     func() int
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.log = l } }

// WithRegistry supplies a prebuilt strategy registry instead of one built
// from detected capabilities.
func WithRegistry(r *minify.Registry) Option { return func(o *options) { o.registry = r } }

// WithTopology overrides the probed memory topology and current-node lookup.
func WithTopology(info topology.Info, node func() int) Option {
	return func(o *options) { o.topo, o.node = &info, node }
}

// Engine is safe for concurrent use.
type Engine struct {
	id  uuid.UUID
	cfg Config
	log *slog.Logger
	reg *minify.Registry

	mode atomic.Uint32

	predictor *predictor.Predictor
	cache     *patterncache.Cache
	router    *router.Router
	spec      *speculative.Manager
	tiers     *tier.Selector
	perf      *perfmon.Monitor

	executed atomic.Uint64
	adaptMu  sync.Mutex
	adapts   atomic.Uint64
}

// New builds an engine from cfg.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.New(slog.DiscardHandler)
	}

	reg := o.registry
	if reg == nil {
		var err error
		reg, err = minify.NewRegistry(minify.DetectCapabilities(),
			minify.WithForceVector(cfg.Strategies.ForceVector),
			minify.WithMaxNestingDepth(cfg.Strategies.MaxNestingDepth),
			minify.WithHybridCutover(cfg.Strategies.HybridCutover),
		)
		if err != nil {
			return nil, err
		}
	}

	cache, err := patterncache.New(cfg.Cache)
	if err != nil {
		return nil, err
	}
	tierOpts := []tier.Option{tier.WithLogger(o.log.With("component", "tier"))}
	if o.topo != nil {
		tierOpts = append(tierOpts, tier.WithTopology(*o.topo, o.node))
	}
	tiers, err := tier.New(cfg.Tier, tierOpts...)
	if err != nil {
		return nil, err
	}

	perf := perfmon.New()
	e := &Engine{
		id:        uuid.New(),
		cfg:       cfg,
		log:       o.log,
		reg:       reg,
		predictor: predictor.New(cfg.Predictor),
		cache:     cache,
		router:    router.New(cfg.Router, o.log.With("component", "router")),
		spec:      speculative.New(cfg.Speculation, reg.Fallback(), perf, o.log.With("component", "speculative")),
		tiers:     tiers,
		perf:      perf,
	}
	e.SetMode(cfg.Mode)
	e.log.Debug("engine ready", "id", e.id, "mode", cfg.Mode, "strategies", e.Available(),
		"vector_width", reg.Capabilities().VectorWidth())
	return e, nil
}

// ID identifies this engine instance in snapshots and logs.
func (e *Engine) ID() uuid.UUID { return e.id }

// Mode returns the current mode.
func (e *Engine) Mode() Mode { return Mode(e.mode.Load()) }

// SetMode switches mode. Speculation and the huge page / NUMA tiers follow
// the mode, bounded by what the configuration enables.
func (e *Engine) SetMode(m Mode) {
	e.mode.Store(uint32(m))
	e.spec.SetEnabled(e.cfg.Speculation.Enabled && m != Eco)
	e.tiers.SetEnabled(tier.HugePage, e.cfg.Tier.HugePages && m != Eco)
	e.tiers.SetEnabled(tier.NUMALocal, e.cfg.Tier.NUMA && m != Eco)
}

// Registry returns the strategy registry.
func (e *Engine) Registry() *minify.Registry { return e.reg }

// Available returns the strategies usable in the current mode, in
// declaration order.
func (e *Engine) Available() []minify.ID {
	mode := e.Mode()
	ids := e.reg.Available()
	return slices.DeleteFunc(ids, func(id minify.ID) bool { return !mode.Allows(id) })
}

// strategy resolves id for execution.
func (e *Engine) strategy(id minify.ID) (minify.Strategy, error) {
	if !e.Mode().Allows(id) {
		return nil, fmt.Errorf("%s: not allowed in %s mode: %w", id, e.Mode(), types.ErrUnsupportedStrategy)
	}
	return e.reg.Get(id)
}

// candidates intersects available with what the runtime and mode support.
// A nil available means every usable strategy.
func (e *Engine) candidates(available []minify.ID) []minify.ID {
	usable := e.Available()
	if available == nil {
		return usable
	}
	return slices.DeleteFunc(slices.Clone(available), func(id minify.ID) bool {
		return !slices.Contains(usable, id)
	})
}

// Route classifies input and picks a strategy from available.
func (e *Engine) Route(input []byte, available []minify.ID) (Decision, error) {
	cands := e.candidates(available)
	if len(cands) == 0 {
		return Decision{}, fmt.Errorf("adapt: none of %v usable: %w", available, types.ErrUnsupportedStrategy)
	}

	fp := patterncache.Fingerprint(input)
	if entry, ok := e.cache.Lookup(fp); ok && slices.Contains(cands, entry.Strategy) {
		return Decision{
			Strategy:    entry.Strategy,
			Category:    entry.Category,
			Confidence:  entry.Confidence,
			Fingerprint: fp,
			Cached:      true,
		}, nil
	}

	chars := analyzer.AnalyzePrefix(input, e.cfg.SamplePrefix)
	cat, conf := e.predictor.Predict(chars.Features())
	id, err := e.router.Select(chars, cands)
	if err != nil {
		return Decision{}, err
	}
	e.cache.Upsert(fp, patterncache.Entry{Category: cat, Confidence: conf, Strategy: id})
	return Decision{
		Strategy:        id,
		Category:        cat,
		Confidence:      conf,
		Fingerprint:     fp,
		Characteristics: chars,
	}, nil
}

// ClassifyAndRoute returns only the chosen strategy.
func (e *Engine) ClassifyAndRoute(input []byte, available []minify.ID) (minify.ID, error) {
	d, err := e.Route(input, available)
	return d.Strategy, err
}

// DecisionFor builds the decision for running input with a forced id.
// Category and confidence come from the pattern cache when it has routed
// this input to id before, otherwise the run is direct.
func (e *Engine) DecisionFor(input []byte, id minify.ID) Decision {
	d := Decision{Strategy: id, Fingerprint: patterncache.Fingerprint(input)}
	if entry, ok := e.cache.Peek(d.Fingerprint); ok && entry.Strategy == id {
		d.Category, d.Confidence = entry.Category, entry.Confidence
	}
	return d
}

// Execute minifies input with id, following DecisionFor.
func (e *Engine) Execute(input []byte, id minify.ID) ([]byte, error) {
	o, err := e.ExecuteDecision(input, e.DecisionFor(input, id))
	return o.Output, err
}

// ExecuteDecision minifies input following d. The returned output is a
// fresh slice owned by the caller.
func (e *Engine) ExecuteDecision(input []byte, d Decision) (Outcome, error) {
	s, err := e.strategy(d.Strategy)
	if err != nil {
		return Outcome{}, err
	}
	// the output never outgrows the input; one byte keeps empty inputs legal
	h, err := e.tiers.Acquire(max(len(input), 1))
	if err != nil {
		return Outcome{}, err
	}
	defer e.release(h)

	res, err := e.spec.Execute(speculative.Request{
		Input:      input,
		Strategy:   s,
		Category:   d.Category,
		Confidence: d.Confidence,
		Dst:        h.Bytes()[:0],
	})
	if err != nil {
		return Outcome{}, err
	}
	out := make([]byte, len(res.Output))
	copy(out, res.Output)
	e.tick()
	return Outcome{
		Output:      out,
		Strategy:    res.Strategy,
		Tier:        h.Tier(),
		Speculative: res.Speculative,
		RolledBack:  res.RolledBack,
	}, nil
}

func (e *Engine) release(h *tier.Handle) {
	if err := e.tiers.Release(h); err != nil {
		e.log.Warn("release scratch buffer", "tier", h.Tier(), "err", err)
	}
}

// AcquireBuffer hands out scratch memory from the tier selector.
func (e *Engine) AcquireBuffer(size int) (*tier.Handle, error) { return e.tiers.Acquire(size) }

// ReleaseBuffer returns a handle from AcquireBuffer.
func (e *Engine) ReleaseBuffer(h *tier.Handle) error { return e.tiers.Release(h) }

// Report records a measurement for any subject.
func (e *Engine) Report(s perfmon.Subject, bytes int, d time.Duration) {
	e.perf.Record(s, bytes, d)
	if s.Kind == perfmon.KindStrategy {
		e.router.Observe(minify.ID(s.ID), perfmon.Sample{Bytes: bytes, Duration: d}.Throughput())
	}
}

// ReportDecision records a measurement of executing d. It feeds the
// performance monitor, the router reward, the cached entry's throughput and,
// for freshly classified inputs, the predictor.
func (e *Engine) ReportDecision(d Decision, bytes int, dur time.Duration) {
	e.reportDecision(d, d.Strategy, bytes, dur)
}

// ReportOutcome records a measurement of an ExecuteDecision call. The
// strategy that produced o.Output is credited, which is the fallback after a
// rollback. The cached entry keeps its throughput only when its own strategy
// ran. The tier that served the scratch buffer is recorded too.
func (e *Engine) ReportOutcome(d Decision, o Outcome, bytes int, dur time.Duration) {
	e.reportDecision(d, o.Strategy, bytes, dur)
	e.perf.Record(perfmon.Tier(o.Tier), bytes, dur)
}

func (e *Engine) reportDecision(d Decision, ran minify.ID, bytes int, dur time.Duration) {
	e.Report(perfmon.Strategy(ran), bytes, dur)
	if ran == d.Strategy {
		e.cache.Observe(d.Fingerprint, perfmon.Sample{Bytes: bytes, Duration: dur}.Throughput())
	}
	if !d.Cached && d.Characteristics.Size > 0 {
		e.predictor.Update(d.Characteristics.Features(), d.Category, predictor.Label(d.Characteristics))
	}
}

func (e *Engine) tick() {
	n := e.executed.Add(1)
	if e.cfg.AdaptEvery == 0 || n%uint64(e.cfg.AdaptEvery) != 0 {
		return
	}
	// one coordinator at a time; skip if another is already adapting
	if !e.adaptMu.TryLock() {
		return
	}
	defer e.adaptMu.Unlock()
	e.adapt()
}

// Adapt re-tunes speculation and memory tiers from what happened since the
// previous call. Calling it again with nothing new in between changes
// nothing.
func (e *Engine) Adapt() {
	e.adaptMu.Lock()
	defer e.adaptMu.Unlock()
	e.adapt()
}

func (e *Engine) adapt() {
	specChanged := e.spec.Adapt()
	tierChanged := e.tiers.Adapt(e.perf.TierLatency())
	e.adapts.Add(1)
	if specChanged || tierChanged {
		e.log.Debug("engine adapt",
			"speculation", e.spec.Tuning(), "tiers", e.tiers.Thresholds(),
			"cache_hit_rate", e.cache.HitRate())
	}
}

// Stats is a point-in-time view of every component.
type Stats struct {
	Executed          uint64
	Adaptations       uint64
	OverallThroughput float64
	Cache             patterncache.Stats
	CacheHitRate      float64
	Speculation       speculative.Stats
	Tiers             []tier.Stats
	Scores            map[minify.ID]float64
	Perf              map[perfmon.Subject]perfmon.Stats
}

// Stats collects component statistics.
func (e *Engine) Stats() Stats {
	return Stats{
		Executed:          e.executed.Load(),
		Adaptations:       e.adapts.Load(),
		OverallThroughput: e.perf.OverallThroughput(),
		Cache:             e.cache.Stats(),
		CacheHitRate:      e.cache.HitRate(),
		Speculation:       e.spec.Stats(),
		Tiers:             e.tiers.Stats(),
		Scores:            e.router.Scores(),
		Perf:              e.perf.Snapshot(),
	}
}

// Monitor exposes the performance monitor.
func (e *Engine) Monitor() *perfmon.Monitor { return e.perf }

// Cache exposes the pattern cache.
func (e *Engine) Cache() *patterncache.Cache { return e.cache }

// Speculation exposes the speculative manager, e.g. to install a rollback
// hook.
func (e *Engine) Speculation() *speculative.Manager { return e.spec }

// Tiers exposes the tier selector.
func (e *Engine) Tiers() *tier.Selector { return e.tiers }

// Predictor exposes the category predictor.
func (e *Engine) Predictor() *predictor.Predictor { return e.predictor }

// Router exposes the strategy router.
func (e *Engine) Router() *router.Router { return e.router }

// Close releases retained memory. The engine must not be used afterwards.
func (e *Engine) Close() error {
	if err := e.tiers.Close(); err != nil {
		return errors.Join(errors.New("adapt: close tiers"), err)
	}
	return nil
}
