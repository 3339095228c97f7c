package dag

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Graph is a set of resource addresses and the dependencies between them.
// It is safe for concurrent use.
type Graph struct {
	mutex sync.RWMutex
	nodes map[string]*node
}

// node is one resource address. Edges are stored in both directions.
type node struct {
	id         string
	deps       map[string]*node // resources this one waits for
	dependents map[string]*node // resources waiting for this one
}

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
	}
}

// AddNode adds a new node with the given ID to the graph. If a node with
// the same ID already exists, the function does nothing.
func (g *Graph) AddNode(id string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}

	g.nodes[id] = &node{
		id:         id,
		deps:       make(map[string]*node),
		dependents: make(map[string]*node),
	}
}

// Has reports whether a node with the given ID exists.
func (g *Graph) Has(id string) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. An error is returned
// if either node does not exist or if the edge would create a self-reference.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}

	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode

	return nil
}

// Dependencies returns the sorted IDs of the nodes the given node depends on.
func (g *Graph) Dependencies(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedKeys(n.deps), nil
}

// Dependents returns the sorted IDs of the nodes that depend on the given node.
func (g *Graph) Dependents(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedKeys(n.dependents), nil
}

// Leaves returns the sorted IDs of nodes without dependencies. They can be
// provisioned first.
func (g *Graph) Leaves() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var ids []string
	for id, n := range g.nodes {
		if len(n.deps) == 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Roots returns the sorted IDs of nodes nothing depends on.
func (g *Graph) Roots() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var ids []string
	for id, n := range g.nodes {
		if len(n.dependents) == 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// DetectCycles checks the graph for any cycles. It returns a non-nil error
// if a cycle is found, indicating the first node involved in the detected cycle.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.detectCycles()
}

func (g *Graph) detectCycles() error {
	// Classic depth-first search with three sets of nodes:
	// permanent: nodes that have been fully visited and are not part of a cycle.
	// temporary: nodes currently in the recursion stack for the current traversal.
	// unvisited: all other nodes.
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *node) error
	visit = func(n *node) error {
		if permanent[n.id] {
			return nil
		}
		if temporary[n.id] {
			return fmt.Errorf("cycle detected involving node '%s'", n.id)
		}

		temporary[n.id] = true

		for _, depID := range sortedKeys(n.dependents) {
			if err := visit(n.dependents[depID]); err != nil {
				return err
			}
		}

		delete(temporary, n.id)
		permanent[n.id] = true

		return nil
	}

	// Visit in sorted order so the reported node is stable between runs.
	for _, id := range sortedKeys(g.nodes) {
		if err := visit(g.nodes[id]); err != nil {
			return err
		}
	}

	return nil
}

// Levels groups nodes into provisioning waves. Every node in wave N depends
// only on nodes in waves before N, so the members of a wave are independent
// of each other. IDs within a wave are sorted.
func (g *Graph) Levels() ([][]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	if err := g.detectCycles(); err != nil {
		return nil, err
	}

	remaining := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		remaining[id] = len(n.deps)
	}

	var levels [][]string
	for len(remaining) > 0 {
		var wave []string
		for id, count := range remaining {
			if count == 0 {
				wave = append(wave, id)
			}
		}
		sort.Strings(wave)
		for _, id := range wave {
			delete(remaining, id)
			for depID := range g.nodes[id].dependents {
				remaining[depID]--
			}
		}
		levels = append(levels, wave)
	}
	return levels, nil
}

// TopologicalOrder returns every node ID such that each node appears after
// all of its dependencies. Ties are broken lexically, so the order is
// deterministic for a given graph.
func (g *Graph) TopologicalOrder() ([]string, error) {
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	order := make([]string, 0, g.Len())
	for _, wave := range levels {
		order = append(order, wave...)
	}
	return order, nil
}

// WriteDOT renders the graph in Graphviz dot syntax. Edges point from a
// dependency to its dependent.
func (g *Graph) WriteDOT(w io.Writer, name string) error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph %q {\n", name)
	sb.WriteString("  rankdir=LR;\n")
	for _, id := range sortedKeys(g.nodes) {
		fmt.Fprintf(&sb, "  %q;\n", id)
	}
	for _, id := range sortedKeys(g.nodes) {
		for _, depID := range sortedKeys(g.nodes[id].dependents) {
			fmt.Fprintf(&sb, "  %q -> %q;\n", id, depID)
		}
	}
	sb.WriteString("}\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func sortedKeys(m map[string]*node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
