//go:build linux

package pool

import (
	"context"
	"os"
	"testing"

	"github.com/taskforge/taskforge/pkg/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectTopologyAlwaysReportsAtLeastOneNode(t *testing.T) {
	topo := DetectTopology()
	require.NotNil(t, topo)
	assert.GreaterOrEqual(t, len(topo.Nodes), 1)
}

func TestReadCPUListExpandsRanges(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2, 3, 8, 10, 11}, readCPUList(writeTempFile(t, "0-3,8,10-11\n")))
}

func TestReadCPUListMissingFileReturnsNil(t *testing.T) {
	assert.Nil(t, readCPUList("/nonexistent/path/for/test"))
}

func TestReadDistancesMapsPositionToNodeID(t *testing.T) {
	dist := readDistances(writeTempFile(t, "10 20\n"), []int{0, 1})
	assert.Equal(t, map[int]int{0: 10, 1: 20}, dist)
}

func TestSingleNodeFallbackHasSelfDistanceTen(t *testing.T) {
	topo := singleNodeFallback()
	require.Len(t, topo.Nodes, 1)
	assert.Equal(t, 10, topo.Nodes[0].Distance[0])
}

func TestSpawnLockedAssignsRoundRobinNumaNodes(t *testing.T) {
	p, err := NewBuilder("numa").Workers(4).WithNuma(true).Build()
	require.NoError(t, err)
	p.numa = &Topology{Nodes: []Node{{ID: 0}, {ID: 1}}}

	require.NoError(t, p.Start(4))
	defer p.Stop(true)

	nodes := make([]int, len(p.workers))
	for i, w := range p.workers {
		nodes[i] = w.nodeID
	}
	assert.Equal(t, []int{0, 1, 0, 1}, nodes)
}

func TestStealFromPrefersSameNodeVictimFirst(t *testing.T) {
	p, err := NewBuilder("numa-steal").
		Workers(2).
		WithWorkStealing(StealConfig{Enabled: true}).
		WithNuma(true).
		Build()
	require.NoError(t, err)
	p.numa = &Topology{Nodes: []Node{{ID: 0}, {ID: 1}}}
	require.NoError(t, p.Start(2))
	defer p.Stop(true)

	p.workers[0].nodeID = 0
	p.workers[1].nodeID = 0

	j := job.NewBuilder().Name("stealable").Work(func(ctx context.Context) error { return nil }).Build()
	p.workers[1].local.PushBottom(j)

	got, ok := p.stealFrom(p.workers[0])
	require.True(t, ok)
	assert.Equal(t, j.ID(), got.ID())
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := t.TempDir() + "/data"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
