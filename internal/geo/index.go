package geo

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// site is a kd-tree entry that remembers its position in the input slice.
type site struct {
	x, y float64
	idx  int
}

func (s site) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(site)
	if d == 0 {
		return s.x - q.x
	}
	return s.y - q.y
}

func (s site) Dims() int { return 2 }

func (s site) Distance(c kdtree.Comparable) float64 {
	q := c.(site)
	dx, dy := s.x-q.x, s.y-q.y
	return dx*dx + dy*dy
}

type sites []site

func (s sites) Index(i int) kdtree.Comparable         { return s[i] }
func (s sites) Len() int                              { return len(s) }
func (s sites) Slice(start, end int) kdtree.Interface { return s[start:end] }

func (s sites) Pivot(d kdtree.Dim) int {
	sort.Slice(s, func(i, j int) bool {
		if d == 0 {
			return s[i].x < s[j].x
		}
		return s[i].y < s[j].y
	})
	return len(s) / 2
}

// Index answers nearest-neighbour and fixed-radius queries over a static
// point set. It is safe for concurrent readers.
type Index struct {
	tree *kdtree.Tree
	n    int
}

// NewIndex builds an index over points. Query results refer to positions in
// this slice.
func NewIndex(points [][2]float64) *Index {
	s := make(sites, len(points))
	for i, p := range points {
		s[i] = site{x: p[0], y: p[1], idx: i}
	}
	return &Index{tree: kdtree.New(s, false), n: len(points)}
}

// Len returns the number of indexed points.
func (ix *Index) Len() int { return ix.n }

// Nearest returns the position of the point closest to (x, y) and its
// Euclidean distance. ok is false for an empty index.
func (ix *Index) Nearest(x, y float64) (idx int, dist float64, ok bool) {
	if ix.n == 0 {
		return -1, math.Inf(1), false
	}
	c, d2 := ix.tree.Nearest(site{x: x, y: y})
	if c == nil {
		return -1, math.Inf(1), false
	}
	return c.(site).idx, math.Sqrt(d2), true
}

// Within returns the positions of all points at distance <= radius from
// (x, y), in ascending order.
func (ix *Index) Within(x, y, radius float64) []int {
	if ix.n == 0 || radius < 0 {
		return nil
	}
	keep := kdtree.NewDistKeeper(radius * radius)
	ix.tree.NearestSet(keep, site{x: x, y: y})

	out := make([]int, 0, keep.Len())
	for _, c := range keep.Heap {
		if c.Comparable == nil {
			continue
		}
		out = append(out, c.Comparable.(site).idx)
	}
	sort.Ints(out)
	return out
}
