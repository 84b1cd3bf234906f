package density

import (
	"math"
	"math/rand"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cluster(rng *rand.Rand, cx, cy, spread float64, n int) [][2]float64 {
	out := make([][2]float64, n)
	for i := range out {
		out[i] = [2]float64{cx + rng.NormFloat64()*spread, cy + rng.NormFloat64()*spread}
	}
	return out
}

func TestEstimate_TooFewPoints(t *testing.T) {
	_, err := Estimate([][2]float64{{0, 0}, {1, 1}, {2, 0}}, 10)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInsufficientSample))
}

func TestEstimate_DuplicatesDoNotCount(t *testing.T) {
	pts := [][2]float64{{0, 0}, {0, 0}, {1, 1}, {1, 1}, {2, 0}, {2, 0}, {3, 5}}
	_, err := Estimate(pts, 10)
	assert.True(t, eris.Is(err, ErrInsufficientSample))
}

func TestEstimate_Collinear(t *testing.T) {
	pts := [][2]float64{{0, 0}, {1, 1}, {2, 2}, {3, 3}, {4, 4}, {5, 5}}
	_, err := Estimate(pts, 10)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInsufficientSample))
}

func TestEstimate_BadResolution(t *testing.T) {
	pts := cluster(rand.New(rand.NewSource(1)), 0, 0, 10, 20)
	_, err := Estimate(pts, 1)
	assert.Error(t, err)
}

func TestEstimate_GridLayout(t *testing.T) {
	pts := [][2]float64{{0, 0}, {10, 0}, {0, 20}, {10, 20}, {4, 7}}
	s, err := Estimate(pts, 5)
	require.NoError(t, err)

	require.Len(t, s.Samples, 25)
	assert.Equal(t, 5, s.Resolution)
	assert.Equal(t, 0.0, s.MinX)
	assert.Equal(t, 10.0, s.MaxX)
	assert.Equal(t, 20.0, s.MaxY)
	assert.InDelta(t, math.Pow(5, -1.0/6), s.BandwidthFactor, 1e-12)

	// y outer, x inner
	assert.Equal(t, 0.0, s.Samples[0].X)
	assert.Equal(t, 0.0, s.Samples[0].Y)
	assert.Equal(t, 2.5, s.Samples[1].X)
	assert.Equal(t, 0.0, s.Samples[1].Y)
	assert.Equal(t, 0.0, s.Samples[5].X)
	assert.Equal(t, 5.0, s.Samples[5].Y)
	assert.Equal(t, 10.0, s.Samples[24].X)
	assert.Equal(t, 20.0, s.Samples[24].Y)

	for _, smp := range s.Samples {
		assert.GreaterOrEqual(t, smp.Density, 0.0)
	}
}

func TestEstimate_PeakInsideCluster(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pts := cluster(rng, 500, 500, 15, 60)
	// sparse background
	for i := 0; i < 10; i++ {
		pts = append(pts, [2]float64{rng.Float64() * 2000, rng.Float64() * 2000})
	}

	s, err := Estimate(pts, 60, WithWorkers(3))
	require.NoError(t, err)

	peak, ok := s.Peak()
	require.True(t, ok)
	assert.InDelta(t, 500, peak.X, 100)
	assert.InDelta(t, 500, peak.Y, 100)
}

func TestEstimate_MatchesSingleKernelByHand(t *testing.T) {
	// Symmetric cross: covariance is diagonal, so the density at the
	// center can be checked in closed form.
	pts := [][2]float64{{0, 0}, {1, 0}, {-1, 0}, {0, 2}, {0, -2}}
	k, err := fit(pts, nil)
	require.NoError(t, err)

	f := math.Pow(5, -1.0/6)
	vx := 2.0 / 4 * f * f
	vy := 8.0 / 4 * f * f
	norm := 1 / (2 * math.Pi * math.Sqrt(vx*vy))
	want := (1 + 2*math.Exp(-0.5/vx) + 2*math.Exp(-0.5*4/vy)) / 5 * norm

	assert.InDelta(t, want, k.eval(0, 0), 1e-12)
}

func TestEstimateWeighted_EqualWeightsMatchUnweighted(t *testing.T) {
	pts := cluster(rand.New(rand.NewSource(3)), 0, 0, 50, 30)
	w := make([]float64, len(pts))
	for i := range w {
		w[i] = 0.4
	}

	a, err := Estimate(pts, 8)
	require.NoError(t, err)
	b, err := EstimateWeighted(pts, w, 8)
	require.NoError(t, err)

	require.Len(t, b.Samples, len(a.Samples))
	assert.InDelta(t, a.BandwidthFactor, b.BandwidthFactor, 1e-12)
	for i := range a.Samples {
		assert.InDelta(t, a.Samples[i].Density, b.Samples[i].Density, 1e-12)
	}
}

func TestEstimateWeighted_ShiftsMass(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	west := cluster(rng, 0, 0, 20, 20)
	east := cluster(rng, 1000, 0, 20, 20)
	pts := append(west, east...)
	w := make([]float64, len(pts))
	for i := range w {
		w[i] = 0.1
		if i >= len(west) {
			w[i] = 0.9
		}
	}

	s, err := EstimateWeighted(pts, w, 40)
	require.NoError(t, err)
	peak, _ := s.Peak()
	assert.Greater(t, peak.X, 500.0)
}

func TestEstimateWeighted_Invalid(t *testing.T) {
	pts := cluster(rand.New(rand.NewSource(5)), 0, 0, 10, 10)

	tests := []struct {
		name    string
		weights []float64
		sample  bool
	}{
		{"length mismatch", []float64{1, 2}, false},
		{"negative", append([]float64{-1}, make([]float64, 9)...), false},
		{"all zero", make([]float64, 10), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EstimateWeighted(pts, tt.weights, 10)
			require.Error(t, err)
			assert.Equal(t, tt.sample, eris.Is(err, ErrInsufficientSample))
		})
	}
}
