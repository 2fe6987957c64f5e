//go:build linux

package topology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeRoot(t *testing.T) {
	sysRoot := t.TempDir()
	procRoot := t.TempDir()

	info := probeRoot(sysRoot, procRoot)
	assert.Equal(t, Info{}, info)

	nodeBase := filepath.Join(sysRoot, "devices/system/node")
	for _, name := range []string{"node0", "node1", "nodestats", "node"} {
		require.NoError(t, os.MkdirAll(filepath.Join(nodeBase, name), 0o755))
	}
	thp := filepath.Join(sysRoot, "kernel/mm/transparent_hugepage")
	require.NoError(t, os.MkdirAll(thp, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(thp, "enabled"), []byte("always [madvise] never\n"), 0o644))
	meminfo := "MemTotal:       16318412 kB\nHugePages_Total:      8\nHugePages_Free:       6\nHugepagesize:       2048 kB\n"
	require.NoError(t, os.WriteFile(filepath.Join(procRoot, "meminfo"), []byte(meminfo), 0o644))

	info = probeRoot(sysRoot, procRoot)
	assert.Equal(t, 2, info.NUMANodes)
	assert.Equal(t, 2<<20, info.HugePageSize)
	assert.Equal(t, 6, info.HugePagesFree)
	assert.True(t, info.TransparentHugePages)
}

func TestThpDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enabled")
	require.NoError(t, os.WriteFile(path, []byte("always madvise [never]\n"), 0o644))
	assert.False(t, thpEnabled(path))
}
