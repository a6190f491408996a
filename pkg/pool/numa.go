package pool

// Node describes one NUMA node's CPU set and distance to every other
// node, per spec.md §4.12.
type Node struct {
	ID       int
	CPUs     []int
	Distance map[int]int // node ID -> relative distance; same-node is 10
}

// Topology is the detected (or synthetic fallback) NUMA layout.
type Topology struct {
	Nodes []Node
}

// DetectTopology returns the platform's NUMA layout: detectTopology is
// implemented per-OS in numa_linux.go / numa_fallback.go via build
// tags.
func DetectTopology() *Topology {
	return detectTopology()
}
