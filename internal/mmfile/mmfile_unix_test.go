//go:build unix

package mmfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapReadOnlyUnix(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping mmap test in short mode")
	}
	path := filepath.Join(t.TempDir(), "doc.json")
	want := []byte("{ \"a\" : [ 1, 2 ] }\n")
	require.NoError(t, os.WriteFile(path, want, 0o644))

	data, cleanup, err := Map(path)
	require.NoError(t, err)
	assert.Equal(t, want, data)
	require.NoError(t, cleanup())
	// second unmap is tolerated
	require.NoError(t, cleanup())
}

func TestMapReadOnlyUnixZeroLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	data, cleanup, err := Map(path)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.NoError(t, cleanup())
}
