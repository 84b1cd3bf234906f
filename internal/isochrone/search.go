package isochrone

import (
	"container/heap"

	"github.com/sells-group/tourism-cli/internal/network"
)

type entry struct {
	node int
	dist float64
}

type frontier []entry

func (f frontier) Len() int            { return len(f) }
func (f frontier) Less(i, j int) bool  { return f[i].dist < f[j].dist }
func (f frontier) Swap(i, j int)       { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x interface{}) { *f = append(*f, x.(entry)) }
func (f *frontier) Pop() interface{} {
	old := *f
	e := old[len(old)-1]
	*f = old[:len(old)-1]
	return e
}

// Reachable runs a single-source shortest path search from the node at
// position source and returns the distance to every node within maxDist.
// Branches are not expanded past maxDist.
func Reachable(g *network.Graph, source int, maxDist float64) map[int]float64 {
	dist := map[int]float64{source: 0}
	done := make(map[int]bool)
	pq := &frontier{{node: source}}

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(entry)
		if done[cur.node] {
			continue
		}
		done[cur.node] = true

		for _, a := range g.Arcs(cur.node) {
			nd := cur.dist + a.Length
			if nd > maxDist {
				continue
			}
			if old, seen := dist[a.To]; seen && old <= nd {
				continue
			}
			dist[a.To] = nd
			heap.Push(pq, entry{node: a.To, dist: nd})
		}
	}
	return dist
}
