// Package zmin is the public entry point: a Minifier that routes every
// input through the adaptive engine, times each execution, and feeds the
// measurement back so later routing improves.
//
//	m, err := zmin.New(zmin.WithMode(adapt.Turbo))
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//	out, err := m.Minify(doc)
package zmin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/zmin/adapt"
	"github.com/joshuapare/zmin/internal/clock"
	"github.com/joshuapare/zmin/internal/config"
	"github.com/joshuapare/zmin/internal/mmfile"
	"github.com/joshuapare/zmin/minify"
	"github.com/joshuapare/zmin/pkg/types"
)

// Version is the library version reported by the CLI.
const Version = "0.1.0"

// Option configures New.
type Option func(*settings)

type settings struct {
	cfg    config.Config
	clock  clock.Clock
	log    *slog.Logger
	engine []adapt.Option
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg config.Config) Option { return func(s *settings) { s.cfg = cfg } }

// WithMode sets the starting mode.
func WithMode(m adapt.Mode) Option { return func(s *settings) { s.cfg.Mode = m } }

// WithLogger sets the logger for the minifier and its engine.
func WithLogger(l *slog.Logger) Option { return func(s *settings) { s.log = l } }

// WithSnapshot enables warm start from path and saving back on Close.
func WithSnapshot(path string) Option {
	return func(s *settings) { s.cfg.Snapshot.Path, s.cfg.Snapshot.SaveOnClose = path, true }
}

// WithEngineOptions passes options through to adapt.New.
func WithEngineOptions(opts ...adapt.Option) Option {
	return func(s *settings) { s.engine = append(s.engine, opts...) }
}

func withClock(c clock.Clock) Option { return func(s *settings) { s.clock = c } }

// Minifier is safe for concurrent use.
type Minifier struct {
	eng   *adapt.Engine
	clock clock.Clock
	log   *slog.Logger
	snap  config.Snapshot
}

// New builds a Minifier. With a snapshot path configured, learned state is
// restored from it when the file exists.
func New(opts ...Option) (*Minifier, error) {
	s := settings{cfg: config.Default(), clock: clock.Real()}
	for _, opt := range opts {
		opt(&s)
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	eng, err := adapt.New(s.cfg.Config, append([]adapt.Option{adapt.WithLogger(s.log)}, s.engine...)...)
	if err != nil {
		return nil, err
	}
	m := &Minifier{eng: eng, clock: s.clock, log: s.log, snap: s.cfg.Snapshot}

	if m.snap.Path != "" {
		err := eng.LoadSnapshot(m.snap.Path)
		switch {
		case err == nil:
		case errors.Is(err, os.ErrNotExist):
			m.log.Debug("no snapshot to restore", "path", m.snap.Path)
		default:
			// a stale or corrupt snapshot only costs the warm start
			m.log.Warn("snapshot ignored", "path", m.snap.Path, "err", err)
		}
	}
	return m, nil
}

// Engine exposes the underlying engine.
func (m *Minifier) Engine() *adapt.Engine { return m.eng }

// Mode returns the current mode.
func (m *Minifier) Mode() adapt.Mode { return m.eng.Mode() }

// SetMode switches mode for subsequent inputs.
func (m *Minifier) SetMode(mode adapt.Mode) { m.eng.SetMode(mode) }

// Stats returns the engine statistics.
func (m *Minifier) Stats() adapt.Stats { return m.eng.Stats() }

// Minify returns the minified form of input in a new slice.
func (m *Minifier) Minify(input []byte) ([]byte, error) {
	o, err := m.run(input)
	return o.Output, err
}

// MinifyString is Minify for strings.
func (m *Minifier) MinifyString(input string) (string, error) {
	out, err := m.Minify([]byte(input))
	return string(out), err
}

// MinifyWith forces strategy id, bypassing routing. The execution is still
// timed and reported.
func (m *Minifier) MinifyWith(input []byte, id minify.ID) ([]byte, error) {
	d := m.eng.DecisionFor(input, id)
	start := m.clock.Now()
	o, err := m.eng.ExecuteDecision(input, d)
	if err != nil {
		return nil, err
	}
	m.eng.ReportOutcome(d, o, len(input), m.clock.Since(start))
	return o.Output, nil
}

// MinifyReader minifies all of r into w and returns the bytes written.
func (m *Minifier) MinifyReader(r io.Reader, w io.Writer) (int64, error) {
	input, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("zmin: read input: %w", err)
	}
	return m.write(input, w)
}

// MinifyFile maps path and writes its minified form to w.
func (m *Minifier) MinifyFile(path string, w io.Writer) (int64, error) {
	f, err := mmfile.Open(path)
	if err != nil {
		return 0, fmt.Errorf("zmin: %w", err)
	}
	defer f.Close()
	return m.write(f.Bytes(), w)
}

func (m *Minifier) write(input []byte, w io.Writer) (int64, error) {
	out, err := m.Minify(input)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(out)
	return int64(n), err
}

// MinifyBatch minifies inputs on up to workers goroutines. Results keep
// input order. The first failure cancels the remaining work.
func (m *Minifier) MinifyBatch(ctx context.Context, inputs [][]byte, workers int) ([][]byte, error) {
	out := make([][]byte, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := m.Minify(in)
			if err != nil {
				return fmt.Errorf("zmin: input %d: %w", i, err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// run routes, executes and reports one input. A strategy that turns out to
// be unusable at execution time is dropped from the candidates and routing
// is retried.
func (m *Minifier) run(input []byte) (adapt.Outcome, error) {
	var candidates []minify.ID
	for {
		d, err := m.eng.Route(input, candidates)
		if err != nil {
			return adapt.Outcome{}, err
		}
		start := m.clock.Now()
		o, err := m.eng.ExecuteDecision(input, d)
		if types.KindOf(err) == types.ErrKindUnsupported {
			if candidates == nil {
				candidates = m.eng.Available()
			}
			candidates = slices.DeleteFunc(candidates, func(id minify.ID) bool { return id == d.Strategy })
			m.log.Debug("strategy unusable, rerouting", "strategy", d.Strategy, "err", err)
			continue
		}
		if err != nil {
			return adapt.Outcome{}, err
		}
		m.eng.ReportOutcome(d, o, len(input), m.clock.Since(start))
		return o, nil
	}
}

// Close saves the learned state when configured and releases the engine.
func (m *Minifier) Close() error {
	var errs []error
	if m.snap.Path != "" && m.snap.SaveOnClose {
		if err := m.eng.SaveSnapshot(m.snap.Path); err != nil {
			errs = append(errs, fmt.Errorf("zmin: save snapshot: %w", err))
		}
	}
	errs = append(errs, m.eng.Close())
	return errors.Join(errs...)
}
