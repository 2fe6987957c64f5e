// Package speculative runs confident routing decisions against a
// checkpointed buffer and recovers from strategy faults by rolling back to
// the checkpoint and finishing with the fallback strategy.
//
// Confidence at or above the adaptive threshold, with a free in-flight slot,
// takes the speculative path. Everything else runs directly, and errors on
// the direct path propagate unchanged.
//
// On the speculative path a resumable strategy advances the checkpoint as it
// goes; on a recoverable failure output is truncated to the checkpoint and
// the fallback resumes from there. A non-resumable strategy keeps the zero
// checkpoint, so recovery discards all output and the fallback reprocesses
// the whole input. NestingTooDeep, InvalidInput and AllocationFailed are not
// retried.
package speculative

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/joshuapare/zmin/adapt/predictor"
	"github.com/joshuapare/zmin/minify"
	"github.com/joshuapare/zmin/pkg/types"
)

// Accountant receives every successful result exactly once.
type Accountant interface {
	AccountOutput(id minify.ID, n int)
}

// Config tunes speculation. Threshold and MaxBuffers are starting points;
// Adapt moves them within the Min/Max bounds.
type Config struct {
	Enabled    bool    `yaml:"enabled"`
	Threshold  float64 `yaml:"threshold"`
	MaxBuffers int     `yaml:"max_buffers"`

	MinThreshold float64 `yaml:"min_threshold"`
	MaxThreshold float64 `yaml:"max_threshold"`
	MinBuffers   int     `yaml:"min_buffers"`
	// BufferLimit is the ceiling for MaxBuffers.
	BufferLimit int `yaml:"buffer_limit"`

	// HighWater and LowWater are success-rate marks for Adapt.
	HighWater float64 `yaml:"high_water"`
	LowWater  float64 `yaml:"low_water"`
	Factor    float64 `yaml:"factor"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		Threshold:    0.7,
		MaxBuffers:   4,
		MinThreshold: 0.5,
		MaxThreshold: 0.9,
		MinBuffers:   2,
		BufferLimit:  8,
		HighWater:    0.95,
		LowWater:     0.8,
		Factor:       1.1,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	switch {
	case c.MinThreshold < 0 || c.MaxThreshold > 1 || c.MinThreshold > c.MaxThreshold:
		return errors.New("speculative: threshold bounds must satisfy 0 <= min <= max <= 1")
	case c.Threshold < c.MinThreshold || c.Threshold > c.MaxThreshold:
		return fmt.Errorf("speculative: threshold %.2f outside [%.2f, %.2f]", c.Threshold, c.MinThreshold, c.MaxThreshold)
	case c.MinBuffers < 1 || c.BufferLimit < c.MinBuffers:
		return errors.New("speculative: buffer bounds must satisfy 1 <= min_buffers <= buffer_limit")
	case c.MaxBuffers < c.MinBuffers || c.MaxBuffers > c.BufferLimit:
		return fmt.Errorf("speculative: max_buffers %d outside [%d, %d]", c.MaxBuffers, c.MinBuffers, c.BufferLimit)
	case c.LowWater < 0 || c.HighWater > 1 || c.LowWater >= c.HighWater:
		return errors.New("speculative: need 0 <= low_water < high_water <= 1")
	case c.Factor <= 1:
		return errors.New("speculative: factor must exceed 1")
	}
	return nil
}

// Request is one input to execute.
type Request struct {
	Input      []byte
	Strategy   minify.Strategy
	Category   predictor.Category
	Confidence float64
	// Dst is the output region. Its capacity bounds the primary run.
	Dst []byte
}

// Result describes a successful execution.
type Result struct {
	Output []byte
	// Strategy produced the final output: the requested one, or the
	// fallback after a rollback.
	Strategy    minify.ID
	Speculative bool
	RolledBack  bool
	// Resumed is where the fallback picked up after a rollback.
	Resumed minify.Checkpoint
}

// Tuning is the adaptive state, exposed for warm start.
type Tuning struct {
	Threshold  float64 `cbor:"1,keyasint"`
	MaxBuffers int     `cbor:"2,keyasint"`
}

// Stats is a counter snapshot.
type Stats struct {
	Attempts         uint64 // speculative runs started
	Rollbacks        uint64
	Direct           uint64
	Completed        uint64 // successes on either path
	FallbackFailures uint64
	InFlight         int
	Tuning
}

// SuccessRate is the lifetime fraction of speculative runs without rollback.
func (s Stats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 1
	}
	return 1 - float64(s.Rollbacks)/float64(s.Attempts)
}

// Manager is safe for concurrent use.
type Manager struct {
	cfg      Config
	fallback minify.Resumable
	acct     Accountant
	log      *slog.Logger

	// OnRollback, if set, runs after truncation and before the fallback.
	OnRollback func(*Buffer)

	enabled    atomic.Bool
	threshold  atomic.Uint64 // float64 bits
	maxBuffers atomic.Int64
	inFlight   atomic.Int64
	nextID     atomic.Uint64

	attempts         atomic.Uint64
	rollbacks        atomic.Uint64
	direct           atomic.Uint64
	completed        atomic.Uint64
	fallbackFailures atomic.Uint64

	adaptMu       sync.Mutex
	lastAttempts  uint64
	lastRollbacks uint64
}

// New returns a manager recovering through fallback. acct may be nil.
func New(cfg Config, fallback minify.Resumable, acct Accountant, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	m := &Manager{cfg: cfg, fallback: fallback, acct: acct, log: log}
	m.enabled.Store(cfg.Enabled)
	m.threshold.Store(math.Float64bits(cfg.Threshold))
	m.maxBuffers.Store(int64(cfg.MaxBuffers))
	return m
}

// SetEnabled turns the speculative path on or off.
func (m *Manager) SetEnabled(on bool) { m.enabled.Store(on) }

// Threshold returns the current confidence threshold.
func (m *Manager) Threshold() float64 { return math.Float64frombits(m.threshold.Load()) }

// Execute runs req on the speculative or direct path.
func (m *Manager) Execute(req Request) (Result, error) {
	if req.Strategy == nil {
		return Result{}, fmt.Errorf("speculative: nil strategy: %w", types.ErrUnsupportedStrategy)
	}
	if m.enabled.Load() && req.Confidence >= m.Threshold() && m.reserve() {
		defer m.inFlight.Add(-1)
		return m.speculate(req)
	}
	return m.runDirect(req)
}

// reserve claims an in-flight slot.
func (m *Manager) reserve() bool {
	for {
		cur := m.inFlight.Load()
		if cur >= m.maxBuffers.Load() {
			return false
		}
		if m.inFlight.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (m *Manager) runDirect(req Request) (Result, error) {
	m.direct.Add(1)
	out, _, err := req.Strategy.Minify(req.Dst, req.Input)
	if err != nil {
		return Result{}, err
	}
	m.account(req.Strategy.ID(), out)
	return Result{Output: out, Strategy: req.Strategy.ID()}, nil
}

func (m *Manager) speculate(req Request) (Result, error) {
	b := &Buffer{
		ID:         m.nextID.Add(1),
		Input:      req.Input,
		Output:     req.Dst[:0],
		Category:   req.Category,
		Strategy:   req.Strategy.ID(),
		Confidence: req.Confidence,
	}
	if err := b.Transition(Processing); err != nil {
		return Result{}, err
	}
	m.attempts.Add(1)

	var err error
	if r, ok := req.Strategy.(minify.Resumable); ok {
		var last minify.Checkpoint
		b.Output, last, err = r.MinifyFrom(req.Dst, req.Input, b.Checkpoint)
		if err != nil && consistent(last, b.Output, req.Input) {
			b.Checkpoint = last
		}
	} else {
		b.Output, _, err = req.Strategy.Minify(req.Dst, req.Input)
	}

	if err == nil {
		if terr := b.Transition(Completed); terr != nil {
			return Result{}, terr
		}
		m.account(b.Strategy, b.Output)
		return Result{Output: b.Output, Strategy: b.Strategy, Speculative: true}, nil
	}

	if terr := b.Transition(Failed); terr != nil {
		return Result{}, terr
	}
	if !types.Recoverable(err) {
		return Result{}, err
	}
	return m.recover(b, err)
}

// consistent reports whether cp can seed a rollback of out over src.
func consistent(cp minify.Checkpoint, out, src []byte) bool {
	return cp.Position >= 0 && cp.Position <= len(src) &&
		cp.OutputLength >= 0 && cp.OutputLength <= len(out) && cp.OutputLength <= cp.Position
}

func (m *Manager) recover(b *Buffer, cause error) (Result, error) {
	m.rollbacks.Add(1)
	b.rollback()
	m.log.Debug("speculative rollback",
		"buffer", b.ID, "strategy", b.Strategy, "checkpoint", b.Checkpoint.Position,
		"kept", b.Checkpoint.OutputLength, "err", cause)
	if m.OnRollback != nil {
		m.OnRollback(b)
	}

	// minified output never exceeds the input
	dst := b.Output
	if cap(dst) < len(b.Input) {
		dst = make([]byte, len(b.Output), len(b.Input))
		copy(dst, b.Output)
	}
	out, _, err := m.fallback.MinifyFrom(dst, b.Input, b.Checkpoint)
	if err != nil {
		m.fallbackFailures.Add(1)
		return Result{}, fmt.Errorf("speculative: fallback after %v: %w", cause, err)
	}
	b.Output = out
	if terr := b.Transition(RolledBack); terr != nil {
		return Result{}, terr
	}
	id := m.fallback.ID()
	m.account(id, out)
	return Result{Output: out, Strategy: id, Speculative: true, RolledBack: true, Resumed: b.Checkpoint}, nil
}

func (m *Manager) account(id minify.ID, out []byte) {
	m.completed.Add(1)
	if m.acct != nil {
		m.acct.AccountOutput(id, len(out))
	}
}

// Adapt re-tunes from the attempts and rollbacks since the previous call.
// A high success rate lowers the threshold and admits one more in-flight
// buffer; a low one does the opposite. Without new attempts nothing
// changes. It reports whether the tuning moved.
func (m *Manager) Adapt() bool {
	m.adaptMu.Lock()
	defer m.adaptMu.Unlock()

	attempts, rollbacks := m.attempts.Load(), m.rollbacks.Load()
	da, dr := attempts-m.lastAttempts, rollbacks-m.lastRollbacks
	m.lastAttempts, m.lastRollbacks = attempts, rollbacks
	if da == 0 {
		return false
	}
	success := 1 - float64(min(dr, da))/float64(da)

	cur := m.Tuning()
	next := cur
	switch {
	case success >= m.cfg.HighWater:
		next.Threshold /= m.cfg.Factor
		next.MaxBuffers++
	case success <= m.cfg.LowWater:
		next.Threshold *= m.cfg.Factor
		next.MaxBuffers--
	default:
		return false
	}
	m.SetTuning(next)
	next = m.Tuning()
	if next == cur {
		return false
	}
	m.log.Debug("speculative adapt", "success_rate", success,
		"threshold", next.Threshold, "max_buffers", next.MaxBuffers)
	return true
}

// Tuning returns the current adaptive state.
func (m *Manager) Tuning() Tuning {
	return Tuning{Threshold: m.Threshold(), MaxBuffers: int(m.maxBuffers.Load())}
}

// SetTuning installs t clamped to the configured bounds.
func (m *Manager) SetTuning(t Tuning) {
	th := t.Threshold
	if math.IsNaN(th) {
		th = m.cfg.Threshold
	}
	th = math.Max(m.cfg.MinThreshold, math.Min(m.cfg.MaxThreshold, th))
	m.threshold.Store(math.Float64bits(th))
	m.maxBuffers.Store(int64(max(m.cfg.MinBuffers, min(m.cfg.BufferLimit, t.MaxBuffers))))
}

// Stats returns the counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Attempts:         m.attempts.Load(),
		Rollbacks:        m.rollbacks.Load(),
		Direct:           m.direct.Load(),
		Completed:        m.completed.Load(),
		FallbackFailures: m.fallbackFailures.Load(),
		InFlight:         int(m.inFlight.Load()),
		Tuning:           m.Tuning(),
	}
}
