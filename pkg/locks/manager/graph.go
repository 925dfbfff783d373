package manager

import (
	"sort"

	"simple-kv/pkg/locks"
)

// Graph is a waits-for graph. An edge a -> b means b cannot proceed until a
// releases a lock.
type Graph struct {
	nexts map[uint64]map[uint64]struct{}
}

func NewGraph() *Graph {
	return &Graph{nexts: map[uint64]map[uint64]struct{}{}}
}

// BuildGraph derives the waits-for graph from a lock table snapshot. Every
// holder of a key, exclusive or shared, gets an edge to every txn queued on
// that key. A txn queued behind its own shared lock does not wait for itself.
func BuildGraph(states []locks.EntryState) *Graph {
	g := NewGraph()
	for _, state := range states {
		if len(state.Queue) == 0 {
			continue
		}

		holders := state.SharedHolders
		if state.HasExclusive {
			holders = append([]uint64{state.Exclusive}, holders...)
		}
		for _, holder := range holders {
			for _, req := range state.Queue {
				g.AddEdge(holder, req.XID)
			}
		}
	}
	return g
}

func (g *Graph) AddEdge(from uint64, to uint64) {
	if from == to {
		return
	}
	if _, ok := g.nexts[from]; !ok {
		g.nexts[from] = map[uint64]struct{}{}
	}
	if _, ok := g.nexts[to]; !ok {
		g.nexts[to] = map[uint64]struct{}{}
	}
	g.nexts[from][to] = struct{}{}
}

func (g *Graph) HasEdge(from uint64, to uint64) bool {
	_, ok := g.nexts[from][to]
	return ok
}

// Nodes returns every txn in the graph in ascending order.
func (g *Graph) Nodes() []uint64 {
	res := make([]uint64, 0, len(g.nexts))
	for node := range g.nexts {
		res = append(res, node)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// Nexts returns the successors of node in ascending order.
func (g *Graph) Nexts(node uint64) []uint64 {
	res := make([]uint64, 0, len(g.nexts[node]))
	for next := range g.nexts[node] {
		res = append(res, next)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// FindCycle runs a depth first search from the smallest node, then from the
// next smallest node not yet visited, and so on. The first node reached again
// while still on the search path is returned; it lies on a cycle. Nodes and
// successors are visited in ascending order, so the same graph always yields
// the same node.
func (g *Graph) FindCycle() (uint64, bool) {
	visited := map[uint64]struct{}{}
	onPath := map[uint64]struct{}{}

	var visit func(node uint64) (uint64, bool)
	visit = func(node uint64) (uint64, bool) {
		visited[node] = struct{}{}
		onPath[node] = struct{}{}
		for _, next := range g.Nexts(node) {
			if _, ok := onPath[next]; ok {
				return next, true
			}
			if _, ok := visited[next]; ok {
				continue
			}
			if victim, ok := visit(next); ok {
				return victim, true
			}
		}
		delete(onPath, node)
		return 0, false
	}

	for _, node := range g.Nodes() {
		if _, ok := visited[node]; ok {
			continue
		}
		if victim, ok := visit(node); ok {
			return victim, true
		}
	}
	return 0, false
}
