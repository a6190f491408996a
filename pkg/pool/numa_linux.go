//go:build linux

package pool

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const sysNodePath = "/sys/devices/system/node"

// detectTopology parses /sys/devices/system/node/node*/cpulist and
// .../distance, following the same direct-/sys-read idiom the original
// kcenon/thread_system platform-detection code uses (this pack's
// example repos have no NUMA-detection library to reach for instead;
// see DESIGN.md). It falls back to a single synthetic node when the
// node directory cannot be read or holds no node entries; a node whose
// cpulist or distance file cannot be read is still reported, with
// those fields left empty.
func detectTopology() *Topology {
	entries, err := os.ReadDir(sysNodePath)
	if err != nil {
		return singleNodeFallback()
	}

	var nodeIDs []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "node") {
			continue
		}
		if id, err := strconv.Atoi(strings.TrimPrefix(name, "node")); err == nil {
			nodeIDs = append(nodeIDs, id)
		}
	}
	if len(nodeIDs) == 0 {
		return singleNodeFallback()
	}
	sort.Ints(nodeIDs)

	nodes := make([]Node, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		dir := filepath.Join(sysNodePath, "node"+strconv.Itoa(id))
		nodes = append(nodes, Node{
			ID:       id,
			CPUs:     readCPUList(filepath.Join(dir, "cpulist")),
			Distance: readDistances(filepath.Join(dir, "distance"), nodeIDs),
		})
	}
	return &Topology{Nodes: nodes}
}

func singleNodeFallback() *Topology {
	return &Topology{Nodes: []Node{{ID: 0, CPUs: nil, Distance: map[int]int{0: 10}}}}
}

// readCPUList parses a Linux list-format range string like
// "0-3,8,10-11" into individual CPU indices.
func readCPUList(path string) []int {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cpus []int
	for _, part := range strings.Split(strings.TrimSpace(string(data)), ",") {
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			l, errL := strconv.Atoi(lo)
			h, errH := strconv.Atoi(hi)
			if errL != nil || errH != nil {
				continue
			}
			for c := l; c <= h; c++ {
				cpus = append(cpus, c)
			}
		} else if c, err := strconv.Atoi(part); err == nil {
			cpus = append(cpus, c)
		}
	}
	return cpus
}

// readDistances parses the single-line, space-separated distance
// vector in .../nodeN/distance, mapping position i to nodeIDs[i].
func readDistances(path string, nodeIDs []int) map[int]int {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil
	}
	fields := strings.Fields(scanner.Text())
	dist := make(map[int]int, len(fields))
	for i, f := range fields {
		if i >= len(nodeIDs) {
			break
		}
		if v, err := strconv.Atoi(f); err == nil {
			dist[nodeIDs[i]] = v
		}
	}
	return dist
}
