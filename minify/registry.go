package minify

import (
	"fmt"

	"github.com/joshuapare/zmin/pkg/types"
)

// Registry maps strategy identifiers to implementations. It is built once
// from detected capabilities and is read-only afterwards, so it is safe for
// concurrent use.
type Registry struct {
	byID [NumIDs]Strategy
	caps Capabilities
}

type registryOptions struct {
	forceVector bool
	maxDepth    int
	cutover     int
	overrides   []Strategy
}

// RegistryOption configures NewRegistry.
type RegistryOption func(*registryOptions)

// WithForceVector registers the vector kernels even when no SIMD extension
// was detected. The SWAR kernels are portable; this only changes routing.
func WithForceVector(force bool) RegistryOption {
	return func(o *registryOptions) { o.forceVector = force }
}

// WithMaxNestingDepth sets the custom parser stack capacity.
func WithMaxNestingDepth(depth int) RegistryOption {
	return func(o *registryOptions) { o.maxDepth = depth }
}

// WithHybridCutover sets the hybrid strategy's size cut-over.
func WithHybridCutover(n int) RegistryOption {
	return func(o *registryOptions) { o.cutover = n }
}

// WithStrategy installs s under s.ID(), replacing the built-in kernel.
// Overriding Fallback is refused by NewRegistry unless s is Resumable.
func WithStrategy(s Strategy) RegistryOption {
	return func(o *registryOptions) { o.overrides = append(o.overrides, s) }
}

// NewRegistry resolves the id -> implementation table from caps.
func NewRegistry(caps Capabilities, opts ...RegistryOption) (*Registry, error) {
	o := registryOptions{maxDepth: DefaultMaxNestingDepth, cutover: DefaultHybridCutover}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Registry{caps: caps}
	scalar := NewScalar()
	r.byID[Scalar] = scalar
	r.byID[Fallback] = NewFallback()
	r.byID[HandTuned] = NewHandTuned()
	r.byID[CustomParser] = NewParser(o.maxDepth)

	large := r.byID[HandTuned]
	if caps.HasVector() || o.forceVector {
		r.byID[VectorStreaming] = NewStreaming()
		r.byID[VectorStructural] = NewStructural()
		large = r.byID[VectorStreaming]
	}
	r.byID[Hybrid] = NewHybrid(scalar, large, o.cutover)
	if caps.Device != nil {
		r.byID[Accelerator] = NewAccelerator(caps.Device)
	}

	for _, s := range o.overrides {
		if s == nil || !s.ID().Valid() {
			return nil, fmt.Errorf("minify: override with invalid strategy id")
		}
		if s.ID() == Fallback {
			if _, ok := s.(Resumable); !ok {
				return nil, fmt.Errorf("minify: fallback override must be resumable")
			}
		}
		r.byID[s.ID()] = s
	}
	return r, nil
}

// Get returns the implementation for id.
func (r *Registry) Get(id ID) (Strategy, error) {
	if !id.Valid() || r.byID[id] == nil {
		return nil, fmt.Errorf("%s: %w", id, types.ErrUnsupportedStrategy)
	}
	if id == Accelerator && r.caps.Device != nil && !r.caps.Device.Ready() {
		return nil, fmt.Errorf("%s: device not ready: %w", id, types.ErrUnsupportedStrategy)
	}
	return r.byID[id], nil
}

// Has reports whether id is registered and currently usable.
func (r *Registry) Has(id ID) bool {
	_, err := r.Get(id)
	return err == nil
}

// Available returns the usable strategies in declaration order.
func (r *Registry) Available() []ID {
	ids := make([]ID, 0, NumIDs)
	for i := range r.byID {
		if r.Has(ID(i)) {
			ids = append(ids, ID(i))
		}
	}
	return ids
}

// Fallback returns the always-available resumable fallback strategy.
func (r *Registry) Fallback() Resumable {
	return r.byID[Fallback].(Resumable)
}

// Capabilities returns the capabilities the registry was built from.
func (r *Registry) Capabilities() Capabilities { return r.caps }
