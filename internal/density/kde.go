// Package density fits a bivariate Gaussian kernel density estimate to a
// point pattern and samples it on a regular grid.
//
// The bandwidth follows Scott's rule: the kernel covariance is the sample
// covariance scaled by n^(-1/(d+4)) squared, with d = 2. For weighted input,
// n is the effective sample size (sum w)^2 / sum w^2. This matches
// scipy.stats.gaussian_kde defaults.
package density

import (
	"math"
	"runtime"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/tourism-cli/internal/model"
)

const (
	// MinSamples is the fewest distinct points an estimate is fitted to.
	MinSamples = 5
	// DefaultResolution is the number of grid steps along each axis.
	DefaultResolution = 100
)

// ErrInsufficientSample means the input cannot support a density estimate.
var ErrInsufficientSample = eris.New("density: insufficient sample")

// Option configures an estimate.
type Option func(*options)

type options struct {
	workers int
}

// WithWorkers bounds the number of grid rows evaluated concurrently.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// kernel is a fitted Gaussian KDE.
type kernel struct {
	points  [][2]float64
	weights []float64 // normalized to sum 1
	inv     [2][2]float64
	norm    float64
	factor  float64
}

// Estimate fits an unweighted KDE to points and samples it on a
// resolution x resolution grid spanning their bounding box.
func Estimate(points [][2]float64, resolution int, opts ...Option) (*model.DensitySurface, error) {
	return EstimateWeighted(points, nil, resolution, opts...)
}

// EstimateWeighted is Estimate with a non-negative weight per point, such
// as a seasonal affinity. A nil weights slice means equal weights.
func EstimateWeighted(points [][2]float64, weights []float64, resolution int, opts ...Option) (*model.DensitySurface, error) {
	o := options{workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}
	if resolution < 2 {
		return nil, eris.Errorf("density: grid resolution %d, need at least 2", resolution)
	}

	k, err := fit(points, weights)
	if err != nil {
		return nil, err
	}

	minX, minY, maxX, maxY := bounds(points)
	xs := linspace(minX, maxX, resolution)
	ys := linspace(minY, maxY, resolution)

	samples := make([]model.DensitySample, resolution*resolution)
	var g errgroup.Group
	g.SetLimit(o.workers)
	for j, y := range ys {
		g.Go(func() error {
			row := samples[j*resolution : (j+1)*resolution]
			for i, x := range xs {
				row[i] = model.DensitySample{X: x, Y: y, Density: k.eval(x, y)}
			}
			return nil
		})
	}
	_ = g.Wait()

	return &model.DensitySurface{
		Resolution:      resolution,
		BandwidthFactor: k.factor,
		MinX:            minX,
		MinY:            minY,
		MaxX:            maxX,
		MaxY:            maxY,
		Samples:         samples,
	}, nil
}

func fit(points [][2]float64, weights []float64) (*kernel, error) {
	if weights != nil && len(weights) != len(points) {
		return nil, eris.Errorf("density: %d weights for %d points", len(weights), len(points))
	}
	if d := distinct(points); d < MinSamples {
		return nil, eris.Wrapf(ErrInsufficientSample, "%d distinct points, need %d", d, MinSamples)
	}

	n := len(points)
	w := make([]float64, n)
	var sum float64
	for i := range w {
		w[i] = 1
		if weights != nil {
			if weights[i] < 0 || math.IsNaN(weights[i]) {
				return nil, eris.Errorf("density: invalid weight %v at %d", weights[i], i)
			}
			w[i] = weights[i]
		}
		sum += w[i]
	}
	if sum == 0 {
		return nil, eris.Wrap(ErrInsufficientSample, "all weights are zero")
	}
	var sumSq float64
	for i := range w {
		w[i] /= sum
		sumSq += w[i] * w[i]
	}
	neff := 1 / sumSq

	data := mat.NewDense(n, 2, nil)
	for i, p := range points {
		data.Set(i, 0, p[0])
		data.Set(i, 1, p[1])
	}
	// Scaling normalized weights to sum to neff makes gonum's frequency
	// weighted estimator equal the reliability weighted one.
	var covWeights []float64
	if weights != nil {
		covWeights = make([]float64, n)
		for i := range w {
			covWeights[i] = w[i] * neff
		}
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, covWeights)

	factor := math.Pow(neff, -1.0/6)
	var bw mat.SymDense
	bw.ScaleSym(factor*factor, &cov)

	var chol mat.Cholesky
	if ok := chol.Factorize(&bw); !ok {
		return nil, eris.Wrap(ErrInsufficientSample, "points are collinear")
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, eris.Wrap(ErrInsufficientSample, "kernel covariance is singular")
	}

	return &kernel{
		points:  points,
		weights: w,
		inv:     [2][2]float64{{inv.At(0, 0), inv.At(0, 1)}, {inv.At(1, 0), inv.At(1, 1)}},
		norm:    1 / (2 * math.Pi * math.Sqrt(chol.Det())),
		factor:  factor,
	}, nil
}

func (k *kernel) eval(x, y float64) float64 {
	var sum float64
	for i, p := range k.points {
		dx, dy := x-p[0], y-p[1]
		q := dx*(k.inv[0][0]*dx+k.inv[0][1]*dy) + dy*(k.inv[1][0]*dx+k.inv[1][1]*dy)
		sum += k.weights[i] * math.Exp(-0.5*q)
	}
	return sum * k.norm
}

func distinct(points [][2]float64) int {
	seen := make(map[[2]float64]struct{}, len(points))
	for _, p := range points {
		seen[p] = struct{}{}
	}
	return len(seen)
}

func bounds(points [][2]float64) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p[0])
		minY = math.Min(minY, p[1])
		maxX = math.Max(maxX, p[0])
		maxY = math.Max(maxY, p[1])
	}
	return minX, minY, maxX, maxY
}

// linspace returns n evenly spaced values from lo to hi inclusive.
func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}
