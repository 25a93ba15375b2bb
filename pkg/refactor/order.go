package refactor

import (
	"path/filepath"
	"sort"

	"github.com/ronnygunawan/opencopilot/pkg/changetracker"
)

// PlanChangeOrder orders changes so every file comes after the files it
// depends on. Within a cyclic set no consistent order exists, so declaration
// order (the input order) is kept there; the cycle itself is already recorded
// on the graph. Every input change appears in the output exactly once.
func PlanChangeOrder(changes []changetracker.FileChange, graph *DependencyGraph) []changetracker.FileChange {
	if len(changes) <= 1 {
		return changes
	}

	// Declaration order of each path, for tie-breaking and cycle fallback.
	declOrder := make(map[string]int, len(changes))
	for i, c := range changes {
		p := cleanPath(c.Path)
		if _, seen := declOrder[p]; !seen {
			declOrder[p] = i
		}
	}

	// Kahn's algorithm over the "depends on" relation: a file becomes ready
	// once all its dependencies are placed. Cyclic nodes never reach zero
	// in-degree and are appended afterwards in declaration order.
	remaining := make(map[string]int, len(graph.Nodes))
	for p, node := range graph.Nodes {
		count := 0
		for _, dep := range node.DependsOn {
			// Edges inside a cyclic set cannot be honored and are ignored
			// for ordering purposes.
			if !sameCycle(graph, p, dep) {
				count++
			}
		}
		remaining[p] = count
	}

	var ready []string
	for p, n := range remaining {
		if n == 0 {
			ready = append(ready, p)
		}
	}
	sortByDecl(ready, declOrder)

	placed := make([]string, 0, len(graph.Nodes))
	placedSet := make(map[string]bool, len(graph.Nodes))
	for len(ready) > 0 {
		p := ready[0]
		ready = ready[1:]
		placed = append(placed, p)
		placedSet[p] = true
		var unlocked []string
		for _, dependent := range graph.Nodes[p].DependedOnBy {
			if placedSet[dependent] || sameCycle(graph, dependent, p) {
				continue
			}
			remaining[dependent]--
			if remaining[dependent] == 0 {
				unlocked = append(unlocked, dependent)
			}
		}
		sortByDecl(unlocked, declOrder)
		ready = append(ready, unlocked...)
	}

	// Anything not placed sits in a cycle whose internal edges were not all
	// discounted; fall back to declaration order for the leftovers.
	if len(placed) < len(graph.Nodes) {
		var leftovers []string
		for p := range graph.Nodes {
			if !placedSet[p] {
				leftovers = append(leftovers, p)
			}
		}
		sortByDecl(leftovers, declOrder)
		placed = append(placed, leftovers...)
	}

	position := make(map[string]int, len(placed))
	for i, p := range placed {
		position[p] = i
	}

	// Stable ordering of the changes by their path's placement; changes whose
	// path is not in the graph keep declaration order at the front of ties.
	ordered := make([]changetracker.FileChange, len(changes))
	copy(ordered, changes)
	pos := func(c changetracker.FileChange) int {
		if p, ok := position[cleanPath(c.Path)]; ok {
			return p
		}
		return -1
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return pos(ordered[i]) < pos(ordered[j])
	})
	return ordered
}

// sameCycle reports whether a and b appear together in a detected cycle.
func sameCycle(graph *DependencyGraph, a, b string) bool {
	for _, cycle := range graph.CircularDependencies {
		foundA, foundB := false, false
		for _, p := range cycle {
			if p == a {
				foundA = true
			}
			if p == b {
				foundB = true
			}
		}
		if foundA && foundB {
			return true
		}
	}
	return false
}

func cleanPath(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}

func sortByDecl(paths []string, declOrder map[string]int) {
	sort.SliceStable(paths, func(i, j int) bool {
		return rank(paths[i], declOrder) < rank(paths[j], declOrder)
	})
}

func rank(p string, declOrder map[string]int) int {
	if r, ok := declOrder[p]; ok {
		return r
	}
	return int(^uint(0) >> 1)
}
