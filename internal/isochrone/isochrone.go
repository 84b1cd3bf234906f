// Package isochrone derives walkable reachability polygons from a street
// network: a bounded shortest-path search from the node nearest to a source
// point, followed by the convex hull of every reachable node.
package isochrone

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/tourism-cli/internal/geo"
	"github.com/sells-group/tourism-cli/internal/network"
)

// DefaultSpeedKMPH is the canonical pedestrian speed.
const DefaultSpeedKMPH = 4.5

// MinReachableNodes is the fewest reachable nodes a polygon is built from.
const MinReachableNodes = 3

// DefaultBudgets are the travel-time budgets in minutes.
var DefaultBudgets = []float64{5, 10, 15}

var (
	// ErrNoNearbyNode means the source point could not be mapped onto the network.
	ErrNoNearbyNode = eris.New("isochrone: no nearby network node")
	// ErrInsufficientCoverage means too few nodes were reachable to form a polygon.
	ErrInsufficientCoverage = eris.New("isochrone: insufficient coverage")
	// ErrInvalidBudget means a travel-time budget or speed was not positive.
	ErrInvalidBudget = eris.New("isochrone: invalid budget")
)

// MaxDistance converts a time budget to the distance walkable at speedKMPH.
func MaxDistance(budgetMinutes, speedKMPH float64) float64 {
	return budgetMinutes * geo.SpeedToMetersPerMinute(speedKMPH)
}

// Option configures an Engine.
type Option func(*Engine)

// WithSpeed sets the walking speed in km/h.
func WithSpeed(kmph float64) Option {
	return func(e *Engine) {
		e.speedKMPH = kmph
	}
}

// WithMaxSnapDistance rejects sources whose nearest node is farther than d.
// Zero disables the check.
func WithMaxSnapDistance(d float64) Option {
	return func(e *Engine) {
		e.maxSnap = d
	}
}

// Engine computes isochrones over one network. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	graph     *network.Graph
	speedKMPH float64
	maxSnap   float64
}

// NewEngine creates an Engine for g.
func NewEngine(g *network.Graph, opts ...Option) *Engine {
	e := &Engine{graph: g, speedKMPH: DefaultSpeedKMPH}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the isochrone for one budget of a batch. Err is set, and
// Polygon nil, when that budget could not produce a polygon.
type Result struct {
	BudgetMinutes  float64
	MaxDistance    float64
	ReachableNodes int
	Polygon        *geom.Polygon
	Err            error
}

// Compute returns the isochrone polygon around (x, y) for one budget.
func Compute(g *network.Graph, x, y, budgetMinutes, speedKMPH float64) (*geom.Polygon, error) {
	results, err := NewEngine(g, WithSpeed(speedKMPH)).ComputeBatch(x, y, []float64{budgetMinutes})
	if err != nil {
		return nil, err
	}
	return results[0].Polygon, results[0].Err
}

// Snap resolves (x, y) to the position of the nearest network node.
func (e *Engine) Snap(x, y float64) (int, error) {
	i, d, err := e.graph.Nearest(x, y)
	if err != nil {
		return -1, eris.Wrap(ErrNoNearbyNode, err.Error())
	}
	if e.maxSnap > 0 && d > e.maxSnap {
		return -1, eris.Wrapf(ErrNoNearbyNode, "nearest node is %.1f away (limit %.1f)", d, e.maxSnap)
	}
	return i, nil
}

// ComputeBatch computes one isochrone per budget around (x, y) with a single
// search bounded by the largest budget. Results are sorted by ascending
// budget. A returned error means no budget could be attempted; per-budget
// failures are reported in Result.Err.
func (e *Engine) ComputeBatch(x, y float64, budgets []float64) ([]Result, error) {
	if e.speedKMPH <= 0 {
		return nil, eris.Wrapf(ErrInvalidBudget, "walking speed %v", e.speedKMPH)
	}
	if len(budgets) == 0 {
		return nil, eris.Wrap(ErrInvalidBudget, "no budgets")
	}
	sorted := append([]float64(nil), budgets...)
	sort.Float64s(sorted)
	if sorted[0] <= 0 {
		return nil, eris.Wrapf(ErrInvalidBudget, "budget %v minutes", sorted[0])
	}

	source, err := e.Snap(x, y)
	if err != nil {
		return nil, err
	}

	maxDist := MaxDistance(sorted[len(sorted)-1], e.speedKMPH)
	dist := Reachable(e.graph, source, maxDist)

	results := make([]Result, 0, len(sorted))
	for _, b := range sorted {
		results = append(results, e.hull(dist, b))
	}
	return results, nil
}

// hull builds the result for one budget from the distances of the widest search.
func (e *Engine) hull(dist map[int]float64, budget float64) Result {
	r := Result{BudgetMinutes: budget, MaxDistance: MaxDistance(budget, e.speedKMPH)}

	nodes := make([]int, 0, len(dist))
	for n, d := range dist {
		if d <= r.MaxDistance {
			nodes = append(nodes, n)
		}
	}
	sort.Ints(nodes)
	r.ReachableNodes = len(nodes)

	if len(nodes) < MinReachableNodes {
		r.Err = eris.Wrapf(ErrInsufficientCoverage, "%d reachable nodes at %v minutes", len(nodes), budget)
		return r
	}

	coords := make([]geom.Coord, len(nodes))
	for i, n := range nodes {
		node := e.graph.NodeAt(n)
		coords[i] = geom.Coord{node.X, node.Y}
	}
	poly, ok := geo.ConvexHull(coords)
	if !ok {
		r.Err = eris.Wrapf(ErrInsufficientCoverage, "%d reachable nodes at %v minutes are collinear", len(nodes), budget)
		return r
	}
	r.Polygon = poly
	return r
}
