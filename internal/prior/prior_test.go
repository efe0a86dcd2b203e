package prior

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/blockworlds/geohist/internal/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

func newRNG() *rand.Rand { return rand.New(rand.NewPCG(7, 11)) }

func column(draws [][]float64, j int) []float64 {
	out := make([]float64, len(draws))
	for i, d := range draws {
		out[i] = d[j]
	}
	return out
}

// #region gaussian-tests

func TestGaussianLogDensityAtMean(t *testing.T) {
	g, err := NewGaussian(1900, 300)
	require.NoError(t, err)
	assert.InDelta(t, -0.5*math.Log(2*math.Pi*300*300), g.LogDensity(1900), 1e-12)
	assert.InDelta(t, -0.5-0.5*math.Log(2*math.Pi*300*300), g.LogDensity(2200), 1e-12)
}

func TestGaussianSampleMoments(t *testing.T) {
	g, _ := NewGaussian(2.5, 0.5)
	x := column(g.Sample(newRNG(), 10000), 0)
	require.Len(t, x, 10000)
	assert.InDelta(t, 2.5, stat.Mean(x, nil), 0.02)
	assert.InDelta(t, 0.5, stat.StdDev(x, nil), 0.02)
}

func TestGaussianRejectsBadStd(t *testing.T) {
	for _, std := range []float64{0, -1, math.NaN()} {
		_, err := NewGaussian(0, std)
		assert.True(t, errors.Is(err, ErrHyperparameter), "std=%v", std)
	}
}

// #endregion gaussian-tests

// #region uniform-tests

func TestUniformLogDensity(t *testing.T) {
	u, err := NewUniform(-4200, 1000)
	require.NoError(t, err)
	want := -math.Log(1000)
	for _, x := range []float64{-4200, -4699, -3701, -4700, -3700} {
		assert.Equal(t, want, u.LogDensity(x), "x=%v", x)
	}
	for _, x := range []float64{-4700.001, -3699.999, 0} {
		assert.True(t, math.IsInf(u.LogDensity(x), -1), "x=%v", x)
	}
}

func TestUniformLogDensityNaN(t *testing.T) {
	u, err := NewUniform(0, 2)
	require.NoError(t, err)
	assert.True(t, math.IsInf(u.LogDensity(math.NaN()), -1))
}

func TestUniformSamplesInSupport(t *testing.T) {
	u, _ := NewUniform(0, 360)
	lo, hi := u.Bounds()
	for _, d := range u.Sample(newRNG(), 5000) {
		require.True(t, d[0] >= lo && d[0] <= hi, "sample %v outside [%v, %v]", d[0], lo, hi)
		require.False(t, math.IsInf(u.LogDensity(d[0]), -1))
	}
}

func TestUniformRejectsBadWidth(t *testing.T) {
	_, err := NewUniform(0, 0)
	assert.ErrorIs(t, err, ErrHyperparameter)
}

// #endregion uniform-tests

// #region vmf-tests

func TestVMFNormalized(t *testing.T) {
	for _, kappa := range []float64{0.5, 10, 100} {
		d, err := NewVonMisesFisher(20, 30, kappa)
		require.NoError(t, err)
		// midpoint rule over elevation/azimuth with the cos(elevation) area element
		const n = 720
		del, daz := 180.0/n, 360.0/(2*n)
		var total float64
		for i := 0; i < n; i++ {
			el := -90 + (float64(i)+0.5)*del
			for j := 0; j < 2*n; j++ {
				az := -180 + (float64(j)+0.5)*daz
				total += math.Exp(d.LogDensity(el, az)) * math.Cos(geom.Radians(el))
			}
		}
		total *= geom.Radians(del) * geom.Radians(daz)
		assert.InDelta(t, 1.0, total, 1e-3, "kappa=%v", kappa)
	}
}

func TestVMFLargeKappaFinite(t *testing.T) {
	d, err := NewVonMisesFisher(-20, 0, 800)
	require.NoError(t, err)
	lp := d.LogDensity(-20, 0)
	require.False(t, math.IsNaN(lp) || math.IsInf(lp, 0), "log density %v", lp)
	// closed form for large kappa: log(kappa / 2pi)
	assert.InDelta(t, math.Log(800/(2*math.Pi)), lp, 1e-9)
	for _, s := range d.Sample(newRNG(), 1000) {
		require.False(t, math.IsNaN(s[0]) || math.IsNaN(s[1]))
	}
}

func TestVMFSamplesCenterOnMode(t *testing.T) {
	d, _ := NewVonMisesFisher(20, 0, 100)
	var sum r3.Vec
	for _, s := range d.Sample(newRNG(), 5000) {
		sum = r3.Add(sum, geom.SphToXYZ(s[0], s[1]))
	}
	el, az := geom.XYZToSph(sum)
	assert.InDelta(t, 20, el, 0.5)
	assert.InDelta(t, 0, az, 0.5)
}

func TestVMFConcentrationMatchesKappa(t *testing.T) {
	const kappa = 5.0
	d, _ := NewVonMisesFisher(-35, 110, kappa)
	draws := d.Sample(newRNG(), 20000)
	w := make([]float64, len(draws))
	for i, s := range draws {
		w[i] = r3.Dot(d.Mode(), geom.SphToXYZ(s[0], s[1]))
	}
	want := 1/math.Tanh(kappa) - 1/kappa
	assert.InDelta(t, want, stat.Mean(w, nil), 0.01)
}

func TestVMFTightForLargeKappa(t *testing.T) {
	d, _ := NewVonMisesFisher(45, -60, 1e6)
	for _, s := range d.Sample(newRNG(), 500) {
		cos := r3.Dot(d.Mode(), geom.SphToXYZ(s[0], s[1]))
		require.Greater(t, cos, 1-1e-4)
	}
}

func TestVMFNearUniformForSmallKappa(t *testing.T) {
	d, _ := NewVonMisesFisher(60, 0, 1e-6)
	draws := d.Sample(newRNG(), 20000)
	z := make([]float64, len(draws))
	z2 := make([]float64, len(draws))
	for i, s := range draws {
		u := geom.SphToXYZ(s[0], s[1])
		z[i] = u.Z
		z2[i] = u.Z * u.Z
	}
	assert.InDelta(t, 0, stat.Mean(z, nil), 0.02)
	assert.InDelta(t, 1.0/3, stat.Mean(z2, nil), 0.02)
}

func TestVMFVerticalMode(t *testing.T) {
	d, err := NewVonMisesFisher(90, 0, 50)
	require.NoError(t, err)
	for _, s := range d.Sample(newRNG(), 200) {
		require.False(t, math.IsNaN(s[0]) || math.IsNaN(s[1]))
		require.Greater(t, s[0], 45.0)
	}
}

func TestVMFRejectsBadKappa(t *testing.T) {
	_, err := NewVonMisesFisher(0, 0, 0)
	assert.ErrorIs(t, err, ErrHyperparameter)
}

func TestLogDensityWrongArityPanics(t *testing.T) {
	d, _ := NewVonMisesFisher(0, 0, 1)
	assert.Panics(t, func() { d.LogDensity(1) })
	g, _ := NewGaussian(0, 1)
	assert.Panics(t, func() { g.LogDensity(1, 2) })
}

// #endregion vmf-tests
