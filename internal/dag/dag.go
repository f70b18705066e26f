// Package dag provides directed acyclic graph operations for pipeline stages.
// It supports cycle detection, topological sorting and execution levels.
package dag

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// CycleError reports a dependency cycle.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "cycle detected: " + strings.Join(e.Path, " -> ")
}

// Node is a vertex carrying typed data.
type Node[T any] struct {
	ID   string
	Data T
}

// Graph is a directed graph; an edge runs from a dependency to its dependent.
type Graph[T any] struct {
	nodes   map[string]*Node[T]
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

// New creates an empty graph.
func New[T any]() *Graph[T] {
	return &Graph[T]{
		nodes:   make(map[string]*Node[T]),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// FromDependencies builds a graph from a "node: [dependencies]" map.
// Dependencies that are not keys are added as nodes too; External reports them.
func FromDependencies(deps map[string][]string) (*Graph[struct{}], error) {
	g := New[struct{}]()
	for id, parents := range deps {
		g.AddNode(id, struct{}{})
		for _, p := range parents {
			g.AddNode(p, struct{}{})
		}
	}
	for _, id := range sortedKeys(deps) {
		for _, p := range deps[id] {
			if err := g.AddEdge(p, id); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// External returns the dependencies in deps that no entry defines.
func External(deps map[string][]string) []string {
	var out []string
	for _, parents := range deps {
		for _, p := range parents {
			if _, ok := deps[p]; !ok && !slices.Contains(out, p) {
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

// AddNode adds a node, replacing the data of an existing one.
func (g *Graph[T]) AddNode(id string, data T) {
	if n, ok := g.nodes[id]; ok {
		n.Data = data
		return
	}
	g.nodes[id] = &Node[T]{ID: id, Data: data}
	g.edges[id] = nil
	g.parents[id] = nil
}

// AddEdge records that child depends on parent.
func (g *Graph[T]) AddEdge(parentID, childID string) error {
	if _, ok := g.nodes[parentID]; !ok {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, ok := g.nodes[childID]; !ok {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}
	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// Node returns a node by ID.
func (g *Graph[T]) Node(id string) (*Node[T], bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Parents returns the direct dependencies of a node.
func (g *Graph[T]) Parents(id string) []string {
	return g.parents[id]
}

// Children returns the direct dependents of a node.
func (g *Graph[T]) Children(id string) []string {
	return g.edges[id]
}

// Nodes returns all nodes sorted by ID.
func (g *Graph[T]) Nodes() []*Node[T] {
	nodes := make([]*Node[T], 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// Len returns the number of nodes.
func (g *Graph[T]) Len() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph[T]) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// Cycle returns the nodes of one cycle, or nil when the graph is acyclic.
func (g *Graph[T]) Cycle() []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	from := make(map[string]string)
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		for _, child := range g.edges[id] {
			if !visited[child] {
				from[child] = id
				if dfs(child) {
					return true
				}
			} else if onStack[child] {
				cycle = []string{child}
				for cur := id; cur != child; cur = from[cur] {
					cycle = append([]string{cur}, cycle...)
				}
				cycle = append([]string{child}, cycle...)
				return true
			}
		}
		onStack[id] = false
		return false
	}

	for _, id := range g.ids() {
		if !visited[id] && dfs(id) {
			return cycle
		}
	}
	return nil
}

// TopologicalSort returns node IDs with dependencies before dependents.
func (g *Graph[T]) TopologicalSort() ([]string, error) {
	if cycle := g.Cycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}
	visited := make(map[string]bool)
	out := make([]string, 0, len(g.nodes))
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, p := range g.parents[id] {
			visit(p)
		}
		out = append(out, id)
	}
	for _, id := range g.ids() {
		visit(id)
	}
	return out, nil
}

// Levels groups nodes by execution level. Every node of level N depends
// only on nodes of earlier levels, so a level can run in parallel.
func (g *Graph[T]) Levels() ([][]string, error) {
	if cycle := g.Cycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}
	assigned := make(map[string]int, len(g.nodes))
	var level func(id string) int
	level = func(id string) int {
		if l, ok := assigned[id]; ok {
			return l
		}
		l := 0
		for _, p := range g.parents[id] {
			if pl := level(p) + 1; pl > l {
				l = pl
			}
		}
		assigned[id] = l
		return l
	}

	maxLevel := -1
	for id := range g.nodes {
		if l := level(id); l > maxLevel {
			maxLevel = l
		}
	}
	levels := make([][]string, maxLevel+1)
	for id, l := range assigned {
		levels[l] = append(levels[l], id)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// Upstream returns every transitive dependency of id.
func (g *Graph[T]) Upstream(id string) []string {
	return g.walk([]string{id}, g.parents, false)
}

// Downstream returns the given nodes and every transitive dependent.
func (g *Graph[T]) Downstream(ids ...string) []string {
	return g.walk(ids, g.edges, true)
}

func (g *Graph[T]) walk(start []string, next map[string][]string, includeStart bool) []string {
	seen := make(map[string]bool)
	var visit func(id string)
	visit = func(id string) {
		for _, n := range next[id] {
			if !seen[n] {
				seen[n] = true
				visit(n)
			}
		}
	}
	for _, id := range start {
		if _, ok := g.nodes[id]; !ok {
			continue
		}
		if includeStart {
			seen[id] = true
		}
		visit(id)
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Roots returns nodes without dependencies.
func (g *Graph[T]) Roots() []string {
	var roots []string
	for _, id := range g.ids() {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Leaves returns nodes without dependents.
func (g *Graph[T]) Leaves() []string {
	var leaves []string
	for _, id := range g.ids() {
		if len(g.edges[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	return leaves
}

func (g *Graph[T]) ids() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
