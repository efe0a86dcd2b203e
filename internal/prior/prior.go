// Package prior provides the probability distributions attached to geologic
// event parameters. Log-densities outside a distribution's support are -Inf,
// never errors, so joint log-priors can be summed directly.
package prior

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrHyperparameter marks an invalid distribution hyperparameter.
var ErrHyperparameter = errors.New("invalid prior hyperparameter")

// #region prior

// Prior is a distribution over an Ndim-dimensional parameter.
type Prior interface {
	Name() string
	Ndim() int
	// LogDensity evaluates the log-density at x, which must have Ndim values.
	LogDensity(x ...float64) float64
	// Sample returns count draws of Ndim values each.
	Sample(rng *rand.Rand, count int) [][]float64
}

func checkArgs(p Prior, x []float64) {
	if len(x) != p.Ndim() {
		panic(fmt.Sprintf("prior: %s expects %d values, got %d", p.Name(), p.Ndim(), len(x)))
	}
}

// #endregion prior

// #region gaussian

// Gaussian is a 1-D normal distribution.
type Gaussian struct {
	Mean float64
	Std  float64
}

// NewGaussian validates std > 0.
func NewGaussian(mean, std float64) (*Gaussian, error) {
	if !(std > 0) {
		return nil, fmt.Errorf("gaussian std %v: %w", std, ErrHyperparameter)
	}
	return &Gaussian{Mean: mean, Std: std}, nil
}

func (g *Gaussian) Name() string { return "Gaussian" }
func (g *Gaussian) Ndim() int    { return 1 }

func (g *Gaussian) LogDensity(x ...float64) float64 {
	checkArgs(g, x)
	return distuv.Normal{Mu: g.Mean, Sigma: g.Std}.LogProb(x[0])
}

func (g *Gaussian) Sample(rng *rand.Rand, count int) [][]float64 {
	d := distuv.Normal{Mu: g.Mean, Sigma: g.Std, Src: rng}
	out := make([][]float64, count)
	for i := range out {
		out[i] = []float64{d.Rand()}
	}
	return out
}

func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian(mean=%g, std=%g)", g.Mean, g.Std)
}

// #endregion gaussian

// #region uniform

// Uniform is a 1-D flat distribution on the closed interval
// [Mean-Width/2, Mean+Width/2]. Both endpoints are inside the support.
type Uniform struct {
	Mean  float64
	Width float64
}

// NewUniform validates width > 0.
func NewUniform(mean, width float64) (*Uniform, error) {
	if !(width > 0) {
		return nil, fmt.Errorf("uniform width %v: %w", width, ErrHyperparameter)
	}
	return &Uniform{Mean: mean, Width: width}, nil
}

func (u *Uniform) Name() string { return "Uniform" }
func (u *Uniform) Ndim() int    { return 1 }

// Bounds returns the support endpoints.
func (u *Uniform) Bounds() (lo, hi float64) {
	hw := 0.5 * u.Width
	return u.Mean - hw, u.Mean + hw
}

func (u *Uniform) LogDensity(x ...float64) float64 {
	checkArgs(u, x)
	// Negated so NaN falls outside the support.
	if !(math.Abs(x[0]-u.Mean) <= 0.5*u.Width) {
		return math.Inf(-1)
	}
	return -math.Log(u.Width)
}

func (u *Uniform) Sample(rng *rand.Rand, count int) [][]float64 {
	lo, hi := u.Bounds()
	d := distuv.Uniform{Min: lo, Max: hi, Src: rng}
	out := make([][]float64, count)
	for i := range out {
		out[i] = []float64{d.Rand()}
	}
	return out
}

func (u *Uniform) String() string {
	return fmt.Sprintf("Uniform(mean=%g, width=%g)", u.Mean, u.Width)
}

// #endregion uniform
