package speculative

import (
	"fmt"

	"github.com/joshuapare/zmin/adapt/predictor"
	"github.com/joshuapare/zmin/minify"
	"github.com/joshuapare/zmin/pkg/types"
)

// Status is a speculative buffer's lifecycle state.
type Status uint8

const (
	Pending Status = iota
	Processing
	Completed
	Failed
	RolledBack
)

var statusNames = [...]string{"pending", "processing", "completed", "failed", "rolled_back"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Terminal reports whether no further transition is legal.
func (s Status) Terminal() bool { return s == Completed || s == RolledBack }

// ErrIllegalTransition is returned for transitions outside the lifecycle.
var ErrIllegalTransition = types.ErrIllegalTransition

// legal[from] is the set of states reachable from from.
var legal = [...][]Status{
	Pending:    {Processing},
	Processing: {Completed, Failed},
	Failed:     {RolledBack},
	Completed:  nil,
	RolledBack: nil,
}

// Buffer tracks one speculative execution. It is owned by the goroutine
// that created it until it reaches a terminal state.
type Buffer struct {
	ID         uint64
	Input      []byte // borrowed
	Output     []byte
	Category   predictor.Category
	Strategy   minify.ID
	Confidence float64
	Status     Status
	Checkpoint minify.Checkpoint
}

// Transition moves b to next, rejecting anything the lifecycle forbids.
func (b *Buffer) Transition(next Status) error {
	if int(b.Status) < len(legal) {
		for _, s := range legal[b.Status] {
			if s == next {
				b.Status = next
				return nil
			}
		}
	}
	return fmt.Errorf("buffer %d: %s -> %s: %w", b.ID, b.Status, next, ErrIllegalTransition)
}

// rollback truncates Output to the checkpoint.
func (b *Buffer) rollback() {
	b.Output = b.Output[:b.Checkpoint.OutputLength]
}
