// Package minify defines the execution-strategy contract used by the adaptive
// core and ships the built-in kernels that implement it.
//
// # Contract
//
// Every strategy strips insignificant whitespace (space, tab, CR, LF) outside
// JSON string literals and copies everything else verbatim:
//
//	out, n, err := s.Minify(dst, src)
//
// The kernel writes into dst[:0] and never grows past cap(dst); running out of
// room is types.ErrBufferTooSmall. Output never exceeds the input, so a dst
// with cap(dst) >= len(src) always suffices. Kernels are stateless,
// re-entrant, and deterministic, and all of them produce identical bytes.
//
// # Resumable strategies
//
// Strategies that track full parse state also implement Resumable. They
// report the last consistent Checkpoint they reached so a failed run can be
// truncated and continued by another resumable strategy:
//
//	out, last, err := r.MinifyFrom(dst, src, cp)
//
// Checkpoint and ParseState are plain values; they are copied, never shared.
//
// # Kernels
//
//	Scalar            byte-at-a-time state machine (resumable)
//	VectorStreaming   SWAR, eight bytes per step
//	VectorStructural  jumps between string boundaries
//	HandTuned         256-entry byte class table
//	CustomParser      scalar plus bounded structural stack (resumable)
//	Accelerator       offload to a Device when one is ready
//	Hybrid            size cut-over between two kernels
//	Fallback          the scalar kernel, always available (resumable)
//
// # Registry
//
// NewRegistry resolves the id -> implementation table once at startup from
// detected Capabilities. Vector kernels are registered only when the CPU
// reports SIMD support and the accelerator only when a ready Device is
// supplied, so callers pass Registry.Available() as the candidate set.
package minify
