package refactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ronnygunawan/opencopilot/pkg/changetracker"
)

func modChanges(paths ...string) []changetracker.FileChange {
	changes := make([]changetracker.FileChange, 0, len(paths))
	for _, p := range paths {
		changes = append(changes, changetracker.FileChange{Kind: changetracker.ChangeModified, Path: p})
	}
	return changes
}

func orderedPaths(changes []changetracker.FileChange) []string {
	paths := make([]string, 0, len(changes))
	for _, c := range changes {
		paths = append(paths, c.Path)
	}
	return paths
}

func indexOf(paths []string, p string) int {
	for i, candidate := range paths {
		if candidate == p {
			return i
		}
	}
	return -1
}

func TestPlanChangeOrder_DependenciesFirst(t *testing.T) {
	// api depends on db, db depends on log.
	g := NewDependencyGraph([]string{"api.ts", "db.ts", "log.ts"})
	g.AddEdge("api.ts", "db.ts")
	g.AddEdge("db.ts", "log.ts")
	g.DetectCycles()

	ordered := PlanChangeOrder(modChanges("api.ts", "db.ts", "log.ts"), g)
	paths := orderedPaths(ordered)

	assert.Equal(t, []string{"log.ts", "db.ts", "api.ts"}, paths)
}

func TestPlanChangeOrder_IndependentFilesKeepDeclarationOrder(t *testing.T) {
	g := NewDependencyGraph([]string{"c.ts", "a.ts", "b.ts"})
	g.DetectCycles()

	ordered := PlanChangeOrder(modChanges("c.ts", "a.ts", "b.ts"), g)
	assert.Equal(t, []string{"c.ts", "a.ts", "b.ts"}, orderedPaths(ordered))
}

func TestPlanChangeOrder_CycleFallsBackToDeclarationOrder(t *testing.T) {
	g := NewDependencyGraph([]string{"a.ts", "b.ts", "c.ts"})
	g.AddEdge("a.ts", "b.ts")
	g.AddEdge("b.ts", "a.ts")
	g.AddEdge("a.ts", "c.ts")
	g.DetectCycles()

	ordered := PlanChangeOrder(modChanges("a.ts", "b.ts", "c.ts"), g)
	paths := orderedPaths(ordered)

	require.Len(t, paths, 3)
	// The cycle edges between a and b are discounted, but a's real edge to
	// c still holds, so a is placed after c.
	assert.Less(t, indexOf(paths, "c.ts"), indexOf(paths, "a.ts"))
}

func TestPlanChangeOrder_EveryChangeAppearsOnce(t *testing.T) {
	g := NewDependencyGraph([]string{"a", "b", "c", "d"})
	g.AddEdge("a", "b")
	g.AddEdge("c", "d")
	g.AddEdge("d", "c")
	g.DetectCycles()

	ordered := PlanChangeOrder(modChanges("a", "b", "c", "d"), g)
	require.Len(t, ordered, 4)

	seen := map[string]int{}
	for _, c := range ordered {
		seen[c.Path]++
	}
	for _, p := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, 1, seen[p], "path %s", p)
	}
	paths := orderedPaths(ordered)
	assert.Less(t, indexOf(paths, "b"), indexOf(paths, "a"))
}

func TestPlanChangeOrder_SingleChange(t *testing.T) {
	g := NewDependencyGraph([]string{"only.ts"})
	g.DetectCycles()
	changes := modChanges("only.ts")
	assert.Equal(t, changes, PlanChangeOrder(changes, g))
}

func TestPlanChangeOrder_PathOutsideGraphKeepsPosition(t *testing.T) {
	g := NewDependencyGraph([]string{"a.ts"})
	g.DetectCycles()

	ordered := PlanChangeOrder(modChanges("stray.md", "a.ts"), g)
	assert.Equal(t, []string{"stray.md", "a.ts"}, orderedPaths(ordered))
}
