// Package network models a pedestrian street network as an undirected graph
// with planar node coordinates and metric edge lengths.
package network

import (
	"maps"
	"math"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tourism-cli/internal/geo"
)

// ErrEmptyNetwork is returned by lookups on a graph without nodes.
var ErrEmptyNetwork = eris.New("network: graph has no nodes")

// Node is a street network vertex.
type Node struct {
	ID int64   `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Edge is an undirected street segment. Weights carries optional extra
// traversal costs (e.g. "travel_time") from the source data.
type Edge struct {
	From    int64              `json:"from"`
	To      int64              `json:"to"`
	Length  float64            `json:"length"`
	Weights map[string]float64 `json:"weights,omitempty"`
}

// Arc is one direction of an edge, addressed by node position. Edge is the
// position of the edge in insertion order.
type Arc struct {
	To     int
	Length float64
	Edge   int
}

// Graph is an immutable network snapshot. Create one with a Builder. All
// methods are safe for concurrent use.
type Graph struct {
	nodes []Node
	pos   map[int64]int
	arcs    [][]Arc
	edges   int
	weights []map[string]float64
	index   *geo.Index
}

// NumNodes returns the number of nodes.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NumEdges returns the number of undirected edges.
func (g *Graph) NumEdges() int { return g.edges }

// NodeAt returns the node at position i (0 <= i < NumNodes).
func (g *Graph) NodeAt(i int) Node { return g.nodes[i] }

// Position returns the position of the node with the given id.
func (g *Graph) Position(id int64) (int, bool) {
	i, ok := g.pos[id]
	return i, ok
}

// Arcs returns the outgoing arcs of the node at position i. The slice must
// not be modified.
func (g *Graph) Arcs(i int) []Arc { return g.arcs[i] }

// EdgeWeight returns the named extra cost of the edge at position edge.
func (g *Graph) EdgeWeight(edge int, name string) (float64, bool) {
	if edge < 0 || edge >= len(g.weights) {
		return 0, false
	}
	w, ok := g.weights[edge][name]
	return w, ok
}

// WeightNames returns the sorted names of the extra costs carried by any edge.
func (g *Graph) WeightNames() []string {
	seen := make(map[string]struct{})
	for _, ws := range g.weights {
		for k := range ws {
			seen[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Nearest returns the position of the node closest to (x, y) and the planar
// distance to it.
func (g *Graph) Nearest(x, y float64) (int, float64, error) {
	if len(g.nodes) == 0 {
		return -1, math.Inf(1), ErrEmptyNetwork
	}
	i, d, ok := g.index.Nearest(x, y)
	if !ok {
		return -1, math.Inf(1), ErrEmptyNetwork
	}
	return i, d, nil
}

// Builder accumulates nodes and edges and validates them.
type Builder struct {
	nodes []Node
	pos   map[int64]int
	edges []Edge
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{pos: make(map[int64]int)}
}

// AddNode registers a node. Node ids must be unique.
func (b *Builder) AddNode(id int64, x, y float64) error {
	if _, dup := b.pos[id]; dup {
		return eris.Errorf("network: duplicate node %d", id)
	}
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return eris.Errorf("network: node %d has invalid coordinate", id)
	}
	b.pos[id] = len(b.nodes)
	b.nodes = append(b.nodes, Node{ID: id, X: x, Y: y})
	return nil
}

// HasNode reports whether a node with the given id was added.
func (b *Builder) HasNode(id int64) bool {
	_, ok := b.pos[id]
	return ok
}

// AddEdge registers an undirected edge between two known nodes.
func (b *Builder) AddEdge(e Edge) error {
	if _, ok := b.pos[e.From]; !ok {
		return eris.Errorf("network: edge references unknown node %d", e.From)
	}
	if _, ok := b.pos[e.To]; !ok {
		return eris.Errorf("network: edge references unknown node %d", e.To)
	}
	if math.IsNaN(e.Length) || e.Length < 0 {
		return eris.Errorf("network: edge %d-%d has invalid length %v", e.From, e.To, e.Length)
	}
	b.edges = append(b.edges, e)
	return nil
}

// Build freezes the accumulated nodes and edges into a Graph.
func (b *Builder) Build() *Graph {
	g := &Graph{
		nodes: append([]Node(nil), b.nodes...),
		pos:   make(map[int64]int, len(b.pos)),
		arcs:  make([][]Arc, len(b.nodes)),
		edges: len(b.edges),
	}
	for id, i := range b.pos {
		g.pos[id] = i
	}
	for k, e := range b.edges {
		u, v := g.pos[e.From], g.pos[e.To]
		g.arcs[u] = append(g.arcs[u], Arc{To: v, Length: e.Length, Edge: k})
		if u != v {
			g.arcs[v] = append(g.arcs[v], Arc{To: u, Length: e.Length, Edge: k})
		}
		if len(e.Weights) > 0 {
			if g.weights == nil {
				g.weights = make([]map[string]float64, len(b.edges))
			}
			g.weights[k] = maps.Clone(e.Weights)
		}
	}

	pts := make([][2]float64, len(g.nodes))
	for i, n := range g.nodes {
		pts[i] = [2]float64{n.X, n.Y}
	}
	g.index = geo.NewIndex(pts)
	return g
}
