//go:build !linux

package topology

// Probe reports a single node without huge pages.
func Probe() Info { return Info{NUMANodes: 1} }

// CurrentNode always returns 0.
func CurrentNode() int { return 0 }
