// Package types defines the error taxonomy shared by every zmin component.
//
// Errors carry a stable Kind so callers can branch on intent rather than
// message text:
//
//	out, err := eng.Execute(input, minify.HandTuned)
//	switch types.KindOf(err) {
//	case types.ErrKindUnsupported:
//	    // exclude the strategy from the available set and retry
//	case types.ErrKindResource:
//	    // true allocation exhaustion, fatal for this caller
//	}
//
// Sentinels match by kind, so a wrapped, context-carrying error still
// satisfies errors.Is(err, types.ErrBufferTooSmall).
//
// This package has no dependencies beyond the standard library.
package types
