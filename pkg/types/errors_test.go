package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := New(ErrKindOverflow, "scalar: wrote past 4096", nil)
	require.ErrorIs(t, err, ErrBufferTooSmall)
	assert.NotErrorIs(t, err, ErrNestingTooDeep)

	wrapped := fmt.Errorf("execute: %w", err)
	require.ErrorIs(t, wrapped, ErrBufferTooSmall)
	assert.Equal(t, ErrKindOverflow, KindOf(wrapped))
}

func TestError_TransitionIsNotBadHandle(t *testing.T) {
	err := fmt.Errorf("buffer 3: completed -> processing: %w", ErrIllegalTransition)
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.NotErrorIs(t, err, ErrBadHandle)
	assert.NotErrorIs(t, fmt.Errorf("release: %w", ErrBadHandle), ErrIllegalTransition)
	assert.Equal(t, "transition", KindOf(err).String())
}

func TestError_Message(t *testing.T) {
	cause := errors.New("mmap: ENOMEM")
	err := New(ErrKindResource, "generic tier", cause)
	assert.Equal(t, "generic tier: mmap: ENOMEM", err.Error())
	assert.ErrorIs(t, err, cause)

	var nilErr *Error
	assert.Equal(t, "<nil>", nilErr.Error())
}

func TestKindOf_Foreign(t *testing.T) {
	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, ErrKindUnknown, KindOf(nil))
}

func TestRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"overflow", ErrBufferTooSmall, true},
		{"unsupported", fmt.Errorf("accel: %w", ErrUnsupportedStrategy), true},
		{"foreign fault", errors.New("kernel fault"), true},
		{"nesting", ErrNestingTooDeep, false},
		{"input", ErrInvalidInput, false},
		{"resource", ErrAllocationFailed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Recoverable(tt.err))
		})
	}
}
