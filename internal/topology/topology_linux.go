//go:build linux

package topology

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Probe reads the running system's topology from /sys and /proc.
func Probe() Info {
	return probeRoot("/sys", "/proc")
}

func probeRoot(sysRoot, procRoot string) Info {
	info := Info{NUMANodes: countNUMANodes(sysRoot)}
	info.HugePageSize, info.HugePagesFree = readHugePages(filepath.Join(procRoot, "meminfo"))
	info.TransparentHugePages = thpEnabled(filepath.Join(sysRoot, "kernel/mm/transparent_hugepage/enabled"))
	return info
}

// countNUMANodes counts /sys/devices/system/node/node* directories.
func countNUMANodes(sysRoot string) int {
	entries, err := os.ReadDir(filepath.Join(sysRoot, "devices/system/node"))
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() && strings.HasPrefix(name, "node") && len(name) > 4 && name[4] >= '0' && name[4] <= '9' {
			count++
		}
	}
	return count
}

// readHugePages parses Hugepagesize and HugePages_Free from meminfo.
func readHugePages(path string) (size, free int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, rest, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		v, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		switch key {
		case "Hugepagesize":
			size = v << 10 // kB
		case "HugePages_Free":
			free = v
		}
	}
	return size, free
}

// thpEnabled reports whether the selected THP mode honors madvise.
func thpEnabled(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return bytes.Contains(data, []byte("[always]")) || bytes.Contains(data, []byte("[madvise]"))
}

// CurrentNode returns the NUMA node of the CPU the caller is running on, or
// 0 when getcpu fails. The answer can be stale as soon as it returns.
func CurrentNode() int {
	var cpu, node uint32
	_, _, errno := unix.Syscall(unix.SYS_GETCPU,
		uintptr(unsafe.Pointer(&cpu)), uintptr(unsafe.Pointer(&node)), 0)
	if errno != 0 {
		return 0
	}
	return int(node)
}
