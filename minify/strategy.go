package minify

import (
	"fmt"

	"github.com/joshuapare/zmin/pkg/types"
)

// Strategy is a concrete, swappable minification kernel.
type Strategy interface {
	// ID returns the identifier this implementation is registered under.
	ID() ID

	// Minify writes the minified form of src into dst[:0] without growing
	// past cap(dst). It returns the output slice and its length.
	Minify(dst, src []byte) (out []byte, n int, err error)
}

// Resumable is implemented by strategies that expose enough parse state to
// continue from a checkpoint.
type Resumable interface {
	Strategy

	// MinifyFrom continues from cp.Position with cp.State, appending to
	// dst[:cp.OutputLength]. On failure last is the most recent consistent
	// checkpoint the run reached (never before cp); on success it describes
	// the end of input.
	MinifyFrom(dst, src []byte, cp Checkpoint) (out []byte, last Checkpoint, err error)
}

// ParseState is the lexical state needed to resume minification mid-input.
type ParseState struct {
	InString      bool
	EscapePending bool
	BraceDepth    uint32
	BracketDepth  uint32
}

// Checkpoint is a resumption point: input consumed, output produced, and the
// parse state at that point. The zero value is the start of input.
type Checkpoint struct {
	Position     int
	OutputLength int
	State        ParseState
}

// checkpointStride is how often (in input bytes) resumable kernels record a
// checkpoint.
const checkpointStride = 4096

// isSpace reports JSON insignificant whitespace.
func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func overflow(id ID, capacity int) error {
	return types.New(types.ErrKindOverflow, fmt.Sprintf("%s: output exceeds %d byte region", id, capacity), nil)
}

func invalidCheckpoint(id ID, cp Checkpoint, srcLen, dstCap int) error {
	return fmt.Errorf("%s: checkpoint pos=%d out=%d outside input %d / region %d: %w",
		id, cp.Position, cp.OutputLength, srcLen, dstCap, types.ErrInvalidInput)
}

// validateCheckpoint checks cp against src and dst before a resumed run.
func validateCheckpoint(id ID, dst, src []byte, cp Checkpoint) error {
	if cp.Position < 0 || cp.Position > len(src) || cp.OutputLength < 0 ||
		cp.OutputLength > cap(dst) || cp.OutputLength > cp.Position {
		return invalidCheckpoint(id, cp, len(src), cap(dst))
	}
	return nil
}
