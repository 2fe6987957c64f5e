package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledDiscards(t *testing.T) {
	prev := L
	t.Cleanup(func() { L = prev })

	var buf bytes.Buffer
	Init(Options{Enabled: false, Writer: &buf})
	Error("dropped")
	assert.Zero(t, buf.Len())
}

func TestInit_JSONLevel(t *testing.T) {
	prev := L
	t.Cleanup(func() { L = prev })

	var buf bytes.Buffer
	Init(Options{Enabled: true, Level: slog.LevelWarn, Writer: &buf, JSON: true})
	Info("below level")
	Warn("kept", "strategy", "scalar")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "scalar", rec["strategy"])
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
