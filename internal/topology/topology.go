// Package topology probes the memory layout the tier selector cares about:
// NUMA node count, huge page support, and the node of the calling CPU.
package topology

// Info is a probe result. The zero value describes a single-node machine
// without huge pages.
type Info struct {
	// NUMANodes is the number of memory nodes. 0 or 1 means NUMA placement
	// is pointless.
	NUMANodes int
	// HugePageSize is the default explicit huge page size in bytes, or 0.
	HugePageSize int
	// HugePagesFree is the number of free explicit huge pages.
	HugePagesFree int
	// TransparentHugePages reports whether madvise(MADV_HUGEPAGE) can take
	// effect.
	TransparentHugePages bool
}

// HugePages reports whether either huge page mechanism is usable.
func (i Info) HugePages() bool {
	return (i.HugePageSize > 0 && i.HugePagesFree > 0) || i.TransparentHugePages
}

// MultiNode reports whether NUMA-local placement can help.
func (i Info) MultiNode() bool { return i.NUMANodes > 1 }

// DefaultHugePageSize is used to round huge regions when the probe found
// no explicit size.
const DefaultHugePageSize = 2 << 20

// RoundSize returns the region length used for a huge page request of n.
func (i Info) RoundSize(n int) int {
	page := i.HugePageSize
	if page <= 0 {
		page = DefaultHugePageSize
	}
	return (n + page - 1) / page * page
}
