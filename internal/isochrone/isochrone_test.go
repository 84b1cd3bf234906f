package isochrone

import (
	"math"
	"math/rand"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/tourism-cli/internal/network"
)

// covers reports whether (x, y) lies inside or on the shell of p.
func covers(p *geom.Polygon, x, y float64) bool {
	return p != nil && xy.IsPointInRing(p.Layout(), geom.Coord{x, y}, p.LinearRing(0).FlatCoords())
}

// squareCycle is four nodes on a 100 m square joined in a cycle by 50 m edges.
func squareCycle(t *testing.T) *network.Graph {
	t.Helper()
	b := network.NewBuilder()
	require.NoError(t, b.AddNode(1, 0, 0))
	require.NoError(t, b.AddNode(2, 100, 0))
	require.NoError(t, b.AddNode(3, 100, 100))
	require.NoError(t, b.AddNode(4, 0, 100))
	for _, e := range [][2]int64{{1, 2}, {2, 3}, {3, 4}, {4, 1}} {
		require.NoError(t, b.AddEdge(network.Edge{From: e[0], To: e[1], Length: 50}))
	}
	return b.Build()
}

// lineGraph is n nodes spaced step meters apart on the x axis.
func lineGraph(t *testing.T, n int, step float64) *network.Graph {
	t.Helper()
	b := network.NewBuilder()
	for i := 0; i < n; i++ {
		require.NoError(t, b.AddNode(int64(i), float64(i)*step, 0))
		if i > 0 {
			require.NoError(t, b.AddEdge(network.Edge{From: int64(i - 1), To: int64(i), Length: step}))
		}
	}
	return b.Build()
}

// randomGrid is a jittered lattice with random edge lengths and a few
// disconnected islands.
func randomGrid(t *testing.T, seed int64) *network.Graph {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	const side = 12
	b := network.NewBuilder()
	id := func(i, j int) int64 { return int64(i*side + j) }
	for i := 0; i < side; i++ {
		for j := 0; j < side; j++ {
			require.NoError(t, b.AddNode(id(i, j), float64(i)*80+rng.Float64()*20, float64(j)*80+rng.Float64()*20))
		}
	}
	for i := 0; i < side; i++ {
		for j := 0; j < side; j++ {
			if i+1 < side && rng.Float64() > 0.15 {
				require.NoError(t, b.AddEdge(network.Edge{From: id(i, j), To: id(i+1, j), Length: 60 + rng.Float64()*60}))
			}
			if j+1 < side && rng.Float64() > 0.15 {
				require.NoError(t, b.AddEdge(network.Edge{From: id(i, j), To: id(i, j+1), Length: 60 + rng.Float64()*60}))
			}
		}
	}
	return b.Build()
}

func TestMaxDistance(t *testing.T) {
	assert.InDelta(t, 375.0, MaxDistance(5, 4.5), 1e-9)
	assert.InDelta(t, 1125.0, MaxDistance(15, 4.5), 1e-9)
	assert.InDelta(t, 420.0, MaxDistance(5, 5.04), 1e-9)
}

func TestCompute_SquareCycle(t *testing.T) {
	g := squareCycle(t)

	poly, err := Compute(g, 0, 0, 5, 4.5)
	require.NoError(t, err)
	require.NotNil(t, poly)
	assert.InDelta(t, 10000.0, math.Abs(poly.Area()), 1e-9)

	for i := 0; i < g.NumNodes(); i++ {
		n := g.NodeAt(i)
		assert.True(t, covers(poly, n.X, n.Y), "node %d should be on or inside the hull", n.ID)
	}
}

func TestReachable_SquareCycleDistances(t *testing.T) {
	g := squareCycle(t)
	src, _ := g.Position(1)

	dist := Reachable(g, src, 375)
	require.Len(t, dist, 4)
	opposite, _ := g.Position(3)
	assert.InDelta(t, 100.0, dist[opposite], 1e-9)

	dist = Reachable(g, src, 60)
	assert.Len(t, dist, 3, "opposite corner is 100 m away")
}

func TestReachable_StopsAtBudget(t *testing.T) {
	g := lineGraph(t, 20, 100)
	src, _ := g.Position(0)

	dist := Reachable(g, src, 350)
	assert.Len(t, dist, 4)
	for _, d := range dist {
		assert.LessOrEqual(t, d, 350.0)
	}
}

func TestReachable_MonotonicInBudget(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		g := randomGrid(t, seed)
		src := int(seed*7) % g.NumNodes()

		prev := map[int]float64{}
		for _, budget := range []float64{1, 3, 5, 10, 15} {
			cur := Reachable(g, src, MaxDistance(budget, DefaultSpeedKMPH))
			for n := range prev {
				_, ok := cur[n]
				assert.True(t, ok, "seed %d: node %d reachable at a smaller budget but not at %v", seed, n, budget)
			}
			prev = cur
		}
	}
}

func TestComputeBatch_MatchesIndividualSearches(t *testing.T) {
	g := randomGrid(t, 42)
	e := NewEngine(g)
	x, y := 450.0, 450.0

	results, err := e.ComputeBatch(x, y, []float64{15, 5, 10})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []float64{5, 10, 15}, []float64{results[0].BudgetMinutes, results[1].BudgetMinutes, results[2].BudgetMinutes})

	src, err := e.Snap(x, y)
	require.NoError(t, err)
	for _, r := range results {
		want := Reachable(g, src, MaxDistance(r.BudgetMinutes, DefaultSpeedKMPH))
		assert.Equal(t, len(want), r.ReachableNodes, "budget %v", r.BudgetMinutes)
	}
	assert.LessOrEqual(t, results[0].ReachableNodes, results[1].ReachableNodes)
	assert.LessOrEqual(t, results[1].ReachableNodes, results[2].ReachableNodes)
}

func TestComputeBatch_HullContainsReachableNodes(t *testing.T) {
	g := randomGrid(t, 3)
	e := NewEngine(g)

	results, err := e.ComputeBatch(300, 500, DefaultBudgets)
	require.NoError(t, err)
	src, _ := e.Snap(300, 500)

	for _, r := range results {
		require.NoError(t, r.Err)
		for n := range Reachable(g, src, r.MaxDistance) {
			node := g.NodeAt(n)
			assert.True(t, covers(r.Polygon, node.X, node.Y))
		}
	}
}

func TestCompute_Errors(t *testing.T) {
	t.Run("empty network", func(t *testing.T) {
		_, err := Compute(network.NewBuilder().Build(), 0, 0, 5, 4.5)
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrNoNearbyNode))
	})

	t.Run("non-positive budget", func(t *testing.T) {
		_, err := Compute(squareCycle(t), 0, 0, 0, 4.5)
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrInvalidBudget))
	})

	t.Run("non-positive speed", func(t *testing.T) {
		_, err := Compute(squareCycle(t), 0, 0, 5, 0)
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrInvalidBudget))
	})

	t.Run("too few reachable nodes", func(t *testing.T) {
		_, err := Compute(lineGraph(t, 10, 300), 0, 0, 5, 4.5)
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrInsufficientCoverage))
	})

	t.Run("collinear reachable nodes", func(t *testing.T) {
		_, err := Compute(lineGraph(t, 10, 50), 0, 0, 5, 4.5)
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrInsufficientCoverage))
		assert.Contains(t, err.Error(), "collinear")
	})

	t.Run("isolated node", func(t *testing.T) {
		b := network.NewBuilder()
		require.NoError(t, b.AddNode(1, 0, 0))
		require.NoError(t, b.AddNode(2, 10, 10))
		require.NoError(t, b.AddNode(3, 0, 10))
		_, err := Compute(b.Build(), 0, 0, 15, 4.5)
		assert.True(t, eris.Is(err, ErrInsufficientCoverage))
	})
}

func TestSnap_MaxDistance(t *testing.T) {
	g := squareCycle(t)

	_, err := NewEngine(g, WithMaxSnapDistance(10)).Snap(500, 500)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoNearbyNode))

	i, err := NewEngine(g).Snap(500, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(3), g.NodeAt(i).ID)
}

func TestComputeBatch_PartialFailure(t *testing.T) {
	// One node every 200 m: 5 minutes reaches 2 nodes, 15 minutes reaches 6.
	b := network.NewBuilder()
	coords := [][2]float64{{0, 0}, {200, 0}, {200, 200}, {400, 200}, {400, 400}, {600, 400}}
	for i, c := range coords {
		require.NoError(t, b.AddNode(int64(i), c[0], c[1]))
		if i > 0 {
			require.NoError(t, b.AddEdge(network.Edge{From: int64(i - 1), To: int64(i), Length: 200}))
		}
	}
	results, err := NewEngine(b.Build()).ComputeBatch(0, 0, DefaultBudgets)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, eris.Is(results[0].Err, ErrInsufficientCoverage))
	assert.Nil(t, results[0].Polygon)
	assert.NoError(t, results[2].Err)
	assert.NotNil(t, results[2].Polygon)
}
