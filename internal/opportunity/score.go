// Package opportunity scores a regular lattice of cells inside a city
// boundary by combining local POI saturation with local density.
package opportunity

import (
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tourism-cli/internal/geo"
	"github.com/sells-group/tourism-cli/internal/model"
)

const (
	// DefaultCellSize is the lattice spacing in meters.
	DefaultCellSize = 500.0
	// DefaultBufferRadius is the neighborhood radius in meters.
	DefaultBufferRadius = 500.0
	// DefaultQuantile is the high-potential percentile.
	DefaultQuantile = 0.9
)

// ErrInvalidParameter means a scoring parameter was out of range.
var ErrInvalidParameter = eris.New("opportunity: invalid parameter")

// Option configures Score.
type Option func(*options)

type options struct {
	quantile float64
	workers  int
}

// WithQuantile sets the percentile in (0, 1] a cell must reach to be
// flagged high potential.
func WithQuantile(q float64) Option {
	return func(o *options) { o.quantile = q }
}

// WithWorkers bounds the number of cells scored concurrently.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// Score lays a lattice over the boundary, scores every interior cell and
// flags the top cells. pois and surface are read only. A nil surface scores
// every cell with a zero hotspot value.
func Score(boundary geom.T, pois []model.POI, surface *model.DensitySurface, cellSize, bufferRadius float64, opts ...Option) (*model.OpportunityGrid, error) {
	o := options{quantile: DefaultQuantile, workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		return nil, eris.Wrapf(ErrInvalidParameter, "cell size %v", cellSize)
	}
	if !(bufferRadius > 0) || math.IsInf(bufferRadius, 0) {
		return nil, eris.Wrapf(ErrInvalidParameter, "buffer radius %v", bufferRadius)
	}
	if !(o.quantile > 0 && o.quantile <= 1) {
		return nil, eris.Wrapf(ErrInvalidParameter, "quantile %v", o.quantile)
	}

	centers, err := Lattice(boundary, cellSize)
	if err != nil {
		return nil, err
	}

	grid := &model.OpportunityGrid{
		CellSize:     cellSize,
		BufferRadius: bufferRadius,
		Cells:        make([]model.OpportunityCell, len(centers)),
	}
	if len(centers) == 0 {
		return grid, nil
	}

	poiPts := make([][2]float64, len(pois))
	for i, p := range pois {
		poiPts[i] = p.Coord()
	}
	poiIdx := geo.NewIndex(poiPts)

	var samples []model.DensitySample
	if surface != nil {
		samples = surface.Samples
	}
	smpPts := make([][2]float64, len(samples))
	for i, s := range samples {
		smpPts[i] = [2]float64{s.X, s.Y}
	}
	smpIdx := geo.NewIndex(smpPts)

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, c := range centers {
		g.Go(func() error {
			cell := model.OpportunityCell{
				ID:       fmt.Sprintf("grid_%d", i),
				X:        c[0],
				Y:        c[1],
				POICount: len(poiIdx.Within(c[0], c[1], bufferRadius)),
			}
			if near := smpIdx.Within(c[0], c[1], bufferRadius); len(near) > 0 {
				var sum float64
				for _, j := range near {
					sum += samples[j].Density
				}
				cell.HotspotValue = sum / float64(len(near))
			}
			grid.Cells[i] = cell
			return nil
		})
	}
	_ = g.Wait()

	for _, c := range grid.Cells {
		grid.POICountMax = max(grid.POICountMax, c.POICount)
		grid.HotspotMax = math.Max(grid.HotspotMax, c.HotspotValue)
	}

	if grid.POICountMax == 0 || grid.HotspotMax == 0 {
		grid.Degenerate = true
		zap.L().Warn("opportunity: degenerate scoring input, all potentials are zero",
			zap.Int("cells", len(grid.Cells)),
			zap.Int("poi_count_max", grid.POICountMax),
			zap.Float64("hotspot_max", grid.HotspotMax),
		)
	} else {
		for i := range grid.Cells {
			c := &grid.Cells[i]
			p := (1 - float64(c.POICount)/float64(grid.POICountMax)) * (c.HotspotValue / grid.HotspotMax)
			c.Potential = math.Min(math.Max(p, 0), 1)
		}
	}

	potentials := make([]float64, len(grid.Cells))
	for i, c := range grid.Cells {
		potentials[i] = c.Potential
	}
	grid.Threshold = Percentile(potentials, o.quantile)
	for i := range grid.Cells {
		grid.Cells[i].HighPotential = grid.Cells[i].Potential >= grid.Threshold
	}
	return grid, nil
}

// Lattice returns the cell centers strictly inside boundary. Centers step
// from the bounding box minimum by cellSize while below the maximum, x outer
// and y inner.
func Lattice(boundary geom.T, cellSize float64) ([][2]float64, error) {
	if !(cellSize > 0) {
		return nil, eris.Wrapf(ErrInvalidParameter, "cell size %v", cellSize)
	}
	if boundary == nil {
		return nil, eris.New("opportunity: nil boundary")
	}
	bb := geo.BBoxOf(boundary)
	if bb.IsEmpty() {
		return nil, nil
	}
	nx := steps(bb.MinX, bb.MaxX, cellSize)
	ny := steps(bb.MinY, bb.MaxY, cellSize)

	var out [][2]float64
	for i := 0; i < nx; i++ {
		x := bb.MinX + float64(i)*cellSize
		for j := 0; j < ny; j++ {
			y := bb.MinY + float64(j)*cellSize
			in, err := geo.Contains(boundary, x, y)
			if err != nil {
				return nil, eris.Wrap(err, "opportunity: lattice")
			}
			if in {
				out = append(out, [2]float64{x, y})
			}
		}
	}
	return out, nil
}

func steps(lo, hi, step float64) int {
	n := int(math.Ceil((hi - lo) / step))
	return max(n, 0)
}

// Percentile returns the q-th quantile of values with linear interpolation
// between closest ranks. It returns 0 for no values.
func Percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// HighPotential returns the flagged cells of grid in grid order.
func HighPotential(grid *model.OpportunityGrid) []model.OpportunityCell {
	return grid.HighPotential()
}
