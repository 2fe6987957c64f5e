package types

import "errors"

// ErrKind classifies errors so callers can branch on intent rather than text.
type ErrKind int

const (
	ErrKindUnknown     ErrKind = iota // not produced by zmin
	ErrKindUnsupported                // strategy unavailable on this runtime
	ErrKindOverflow                   // output overran its allocated region
	ErrKindResource                   // every allocation tier failed
	ErrKindNesting                    // structural-context stack exceeded its capacity
	ErrKindInput                      // malformed input detected by a strategy
	ErrKindState                      // invalid operation for current state (e.g., double release)
	ErrKindTransition                 // lifecycle transition outside the allowed graph
)

// String returns the short name of the kind.
func (k ErrKind) String() string {
	switch k {
	case ErrKindUnsupported:
		return "unsupported"
	case ErrKindOverflow:
		return "overflow"
	case ErrKindResource:
		return "resource"
	case ErrKindNesting:
		return "nesting"
	case ErrKindInput:
		return "input"
	case ErrKindState:
		return "state"
	case ErrKindTransition:
		return "transition"
	default:
		return "unknown"
	}
}

// Error is a typed error with an optional underlying cause.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error // optional underlying cause
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t == nil || e == nil {
		return false
	}
	return e.Kind == t.Kind
}

// New returns an *Error of the given kind wrapping cause.
func New(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or
// ErrKindUnknown when there is none.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return ErrKindUnknown
}

// Recoverable reports whether a strategy failure may be retried through
// rollback and the fallback strategy. Nesting and input errors are not.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case ErrKindNesting, ErrKindInput, ErrKindResource:
		return false
	default:
		return err != nil
	}
}

// Sentinels commonly returned by implementations.
var (
	// ErrUnsupportedStrategy indicates the requested strategy is not available on this runtime.
	ErrUnsupportedStrategy = &Error{Kind: ErrKindUnsupported, Msg: "strategy unavailable on this runtime"}
	// ErrBufferTooSmall indicates execution overran its output allocation.
	ErrBufferTooSmall = &Error{Kind: ErrKindOverflow, Msg: "output buffer too small"}
	// ErrAllocationFailed indicates every tier, including the generic heap, failed.
	ErrAllocationFailed = &Error{Kind: ErrKindResource, Msg: "allocation failed"}
	// ErrNestingTooDeep indicates a structural-context stack exceeded its fixed capacity.
	ErrNestingTooDeep = &Error{Kind: ErrKindNesting, Msg: "nesting too deep"}
	// ErrInvalidInput indicates a strategy detected malformed input.
	ErrInvalidInput = &Error{Kind: ErrKindInput, Msg: "invalid JSON input"}
	// ErrBadHandle indicates a buffer handle that is unknown or already released.
	ErrBadHandle = &Error{Kind: ErrKindState, Msg: "bad or released buffer handle"}
	// ErrIllegalTransition indicates a speculative buffer was moved outside its lifecycle.
	ErrIllegalTransition = &Error{Kind: ErrKindTransition, Msg: "illegal speculative state transition"}
)
