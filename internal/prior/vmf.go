package prior

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/blockworlds/geohist/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// #region vmf

// VonMisesFisher is a distribution over directions on the unit sphere,
// parametrized by (elevation, azimuth) in degrees. Its mode is
// (Elevation0, Azimuth0) and Kappa is the concentration.
type VonMisesFisher struct {
	Elevation0 float64
	Azimuth0   float64
	Kappa      float64

	gamma, v0, v1 r3.Vec
	logNorm       float64
}

// NewVonMisesFisher validates kappa > 0 and precomputes the mode frame and
// normalizing constant.
func NewVonMisesFisher(elevation0, azimuth0, kappa float64) (*VonMisesFisher, error) {
	if !(kappa > 0) || math.IsInf(kappa, 1) {
		return nil, fmt.Errorf("von Mises-Fisher kappa %v: %w", kappa, ErrHyperparameter)
	}
	d := &VonMisesFisher{Elevation0: elevation0, Azimuth0: azimuth0, Kappa: kappa}
	d.gamma = geom.SphToXYZ(elevation0, azimuth0)
	d.v0, d.v1 = geom.HorizontalFrame(d.gamma)
	d.logNorm = vmfLogNorm(kappa)
	return d, nil
}

func (d *VonMisesFisher) Name() string { return "VonMisesFisher" }
func (d *VonMisesFisher) Ndim() int    { return 2 }

// Mode returns the unit vector of the mode direction.
func (d *VonMisesFisher) Mode() r3.Vec { return d.gamma }

// LogDensity takes (elevation, azimuth) in degrees.
func (d *VonMisesFisher) LogDensity(x ...float64) float64 {
	checkArgs(d, x)
	u := geom.SphToXYZ(x[0], x[1])
	return d.logNorm + d.Kappa*r3.Dot(d.gamma, u)
}

// Sample draws directions without rejection: the cosine W between a draw and
// the mode is obtained by inverting its marginal CDF, and the draw is then
// rotated uniformly about the mode axis.
func (d *VonMisesFisher) Sample(rng *rand.Rand, count int) [][]float64 {
	out := make([][]float64, count)
	for i := range out {
		w := d.cosine(1 - rng.Float64())
		v := 2 * math.Pi * rng.Float64()
		u := math.Sqrt(math.Max(0, 1-w*w))
		x := r3.Add(r3.Scale(w, d.gamma),
			r3.Add(r3.Scale(u*math.Cos(v), d.v0), r3.Scale(u*math.Sin(v), d.v1)))
		el, az := geom.XYZToSph(x)
		out[i] = []float64{el, az}
	}
	return out
}

// cosine inverts the marginal CDF of W = dot(x, mode) for xi in (0, 1].
func (d *VonMisesFisher) cosine(xi float64) float64 {
	k := d.Kappa
	w := 1 + (math.Log(xi)+math.Log1p(-(xi-1)/xi*math.Exp(-2*k)))/k
	return math.Max(-1, math.Min(1, w))
}

func (d *VonMisesFisher) String() string {
	return fmt.Sprintf("VonMisesFisher(elevation0=%g, azimuth0=%g, kappa=%g)", d.Elevation0, d.Azimuth0, d.Kappa)
}

// vmfLogNorm is log C3(kappa) = (p/2-1) log k - (p/2) log 2pi - log I_{p/2-1}(k)
// for p = 3. The Bessel term is evaluated in its exponentially scaled form so
// large kappa does not overflow.
func vmfLogNorm(kappa float64) float64 {
	const nu = 0.5
	logBessel := math.Log(besselIHalfScaled(kappa)) + kappa
	return nu*math.Log(kappa) - (nu+1)*math.Log(2*math.Pi) - logBessel
}

// besselIHalfScaled returns exp(-k) I_{1/2}(k) = sqrt(2/(pi k)) (1 - exp(-2k)) / 2.
func besselIHalfScaled(k float64) float64 {
	return math.Sqrt(2/(math.Pi*k)) * -math.Expm1(-2*k) / 2
}

// #endregion vmf
