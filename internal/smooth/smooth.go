// Package smooth replaces hard spatial boundaries with differentiable blends.
package smooth

import (
	"fmt"
	"math"
)

// #region kernel

// Kernel selects the transition shape used by Blend.
type Kernel int

const (
	// Linear is a boxcar-smoothed step: exact limits outside |d| < h/2.
	Linear Kernel = iota
	// Erf is a Gaussian-smoothed step.
	Erf
	// Tanh is a logistic-shaped step.
	Tanh
)

func (k Kernel) String() string {
	switch k {
	case Linear:
		return "linear"
	case Erf:
		return "erf"
	case Tanh:
		return "tanh"
	}
	return fmt.Sprintf("kernel(%d)", int(k))
}

// ParseKernel maps a kernel name to its Kernel. The empty string is Linear.
func ParseKernel(name string) (Kernel, error) {
	switch name {
	case "", "linear":
		return Linear, nil
	case "erf":
		return Erf, nil
	case "tanh":
		return Tanh, nil
	}
	return Linear, fmt.Errorf("unknown smoothing kernel %q", name)
}

// #endregion kernel

// #region step

// Step returns y0[i] where d[i] << 0 and y1[i] where d[i] >> 0, blending
// linearly across |d[i]| < h/2.
func Step(d, y0, y1 []float64, h float64) []float64 {
	return Blend(Linear, d, y0, y1, h)
}

// Blend is Step with a selectable kernel.
func Blend(k Kernel, d, y0, y1 []float64, h float64) []float64 {
	if len(y0) != len(d) || len(y1) != len(d) {
		panic(fmt.Sprintf("smooth: length mismatch d=%d y0=%d y1=%d", len(d), len(y0), len(y1)))
	}
	out := make([]float64, len(d))
	for i, di := range d {
		out[i] = blend(k, di, y0[i], y1[i], h)
	}
	return out
}

func blend(k Kernel, d, y0, y1, h float64) float64 {
	switch k {
	case Erf:
		if h == 0 {
			return hard(d, y0, y1)
		}
		w := 0.5 * (1 + math.Erf(2.15*d/h))
		return y0 + w*(y1-y0)
	case Tanh:
		if h == 0 {
			return hard(d, y0, y1)
		}
		w := 0.5 * (1 + math.Tanh(2.5*d/h))
		return y0 + w*(y1-y0)
	}
	half := 0.5 * h
	switch {
	case d <= -half && d < 0:
		return y0
	case d >= half && d > 0:
		return y1
	case h == 0:
		return 0.5 * (y0 + y1)
	}
	return 0.5*(y0+y1) - (y0-y1)*d/h
}

func hard(d, y0, y1 float64) float64 {
	switch {
	case d < 0:
		return y0
	case d > 0:
		return y1
	}
	return 0.5 * (y0 + y1)
}

// #endregion step
