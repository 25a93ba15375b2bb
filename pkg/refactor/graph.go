package refactor

import "sort"

// Node holds the dependency edges of one file, keyed by cleaned
// repository-relative path. Adjacency stays in the graph's map rather than in
// interlinked node pointers.
type Node struct {
	Path string
	// DependsOn lists files this file references.
	DependsOn []string
	// DependedOnBy lists files that reference this file.
	DependedOnBy []string
}

// DependencyGraph maps file paths to their dependency edges. A graph is built
// fresh per refactoring operation and never mutated incrementally; any change
// to the file set triggers a full rebuild. Every edge endpoint is a key of
// Nodes.
type DependencyGraph struct {
	Nodes map[string]*Node
	// CircularDependencies records each detected cycle as the list of paths
	// forming it. Cycles are reported, never treated as an error.
	CircularDependencies [][]string
}

// NewDependencyGraph creates an empty graph over the given paths.
func NewDependencyGraph(paths []string) *DependencyGraph {
	g := &DependencyGraph{Nodes: make(map[string]*Node, len(paths))}
	for _, p := range paths {
		g.Nodes[p] = &Node{Path: p}
	}
	return g
}

// AddEdge records that from depends on to. Edges to paths outside the node
// set are ignored so the graph never references an absent node.
func (g *DependencyGraph) AddEdge(from, to string) {
	if from == to {
		return
	}
	src, ok := g.Nodes[from]
	if !ok {
		return
	}
	dst, ok := g.Nodes[to]
	if !ok {
		return
	}
	for _, existing := range src.DependsOn {
		if existing == to {
			return
		}
	}
	src.DependsOn = append(src.DependsOn, to)
	dst.DependedOnBy = append(dst.DependedOnBy, from)
}

// DetectCycles walks the graph depth-first, tracking an in-progress set, and
// stores every cycle found in CircularDependencies.
func (g *DependencyGraph) DetectCycles() {
	g.CircularDependencies = nil

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(g.Nodes))
	var stack []string

	var visit func(path string)
	visit = func(path string) {
		state[path] = inStack
		stack = append(stack, path)
		for _, dep := range g.Nodes[path].DependsOn {
			switch state[dep] {
			case unvisited:
				visit(dep)
			case inStack:
				// Slice the current stack from the first occurrence of dep.
				for i, p := range stack {
					if p == dep {
						cycle := make([]string, len(stack)-i)
						copy(cycle, stack[i:])
						g.CircularDependencies = append(g.CircularDependencies, cycle)
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[path] = done
	}

	for _, path := range g.sortedPaths() {
		if state[path] == unvisited {
			visit(path)
		}
	}
}

// InCycle reports whether path participates in any detected cycle.
func (g *DependencyGraph) InCycle(path string) bool {
	for _, cycle := range g.CircularDependencies {
		for _, p := range cycle {
			if p == path {
				return true
			}
		}
	}
	return false
}

func (g *DependencyGraph) sortedPaths() []string {
	paths := make([]string, 0, len(g.Nodes))
	for p := range g.Nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
