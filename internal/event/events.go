package event

import (
	"fmt"
	"math"

	"github.com/blockworlds/geohist/internal/geom"
	"github.com/blockworlds/geohist/internal/smooth"
	"gonum.org/v1/gonum/spatial/r3"
)

// #region basement

// Basement is the uniform field every history starts from.
type Basement struct {
	Density float64
	core
}

// NewBasement builds a Basement whose single parameter is "density".
func NewBasement(priors []Binding, opts ...Option) (*Basement, error) {
	e := &Basement{}
	if err := e.setup(KindBasement, []string{"density"}, []*float64{&e.Density}, priors, opts); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Basement) RockProperties(points geom.Points, scale float64) ([]float64, error) {
	return constant(len(points), e.Density), nil
}

// #endregion basement

// #region strat-layer

// StratLayer deposits a layer of the given density and thickness on top of
// the previous geology.
type StratLayer struct {
	Thickness float64
	Density   float64
	core
}

// NewStratLayer builds a layer with parameters "thickness", "density".
func NewStratLayer(priors []Binding, opts ...Option) (*StratLayer, error) {
	e := &StratLayer{}
	names := []string{"thickness", "density"}
	if err := e.setup(KindStratLayer, names, []*float64{&e.Thickness, &e.Density}, priors, opts); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *StratLayer) RockProperties(points geom.Points, scale float64) ([]float64, error) {
	prev, err := e.previous()
	if err != nil {
		return nil, err
	}
	shifted := points.Shift(r3.Vec{Z: e.Thickness})
	below, err := prev.RockProperties(shifted, scale)
	if err != nil {
		return nil, err
	}
	above := constant(len(points), e.Density)
	return smooth.Blend(e.kernel, shifted.Z(), below, above, scale), nil
}

// #endregion strat-layer

// #region planar-fault

// PlanarFault offsets the previous geology across a plane through
// (X0, Y0, 0). The normal is given by Elevation (from horizontal) and Azimuth
// (counterclockwise from +x) in degrees; rock on the +normal side moves by
// Slip along the in-plane direction closest to vertical.
type PlanarFault struct {
	X0        float64
	Y0        float64
	Elevation float64
	Azimuth   float64
	Slip      float64
	core
}

// NewPlanarFault builds a fault with parameters "x0", "y0", "elevation",
// "azimuth", "slip".
func NewPlanarFault(priors []Binding, opts ...Option) (*PlanarFault, error) {
	e := &PlanarFault{}
	names := []string{"x0", "y0", "elevation", "azimuth", "slip"}
	ptrs := []*float64{&e.X0, &e.Y0, &e.Elevation, &e.Azimuth, &e.Slip}
	if err := e.setup(KindPlanarFault, names, ptrs, priors, opts); err != nil {
		return nil, err
	}
	return e, nil
}

// Normal returns the unit normal of the fault plane.
func (e *PlanarFault) Normal() r3.Vec { return geom.SphToXYZ(e.Elevation, e.Azimuth) }

// Displacement is the slip vector applied on the +normal side. A horizontal
// plane has no in-plane vertical direction and yields zero displacement.
func (e *PlanarFault) Displacement() r3.Vec {
	n := e.Normal()
	v := r3.Cross(r3.Cross(geom.Up, n), n)
	if r3.Norm(v) < 1e-12 {
		return r3.Vec{}
	}
	return r3.Scale(e.Slip, r3.Unit(v))
}

func (e *PlanarFault) RockProperties(points geom.Points, scale float64) ([]float64, error) {
	prev, err := e.previous()
	if err != nil {
		return nil, err
	}
	g0, err := prev.RockProperties(points, scale)
	if err != nil {
		return nil, err
	}
	g1, err := prev.RockProperties(points.Shift(e.Displacement()), scale)
	if err != nil {
		return nil, err
	}
	d := points.Project(r3.Vec{X: e.X0, Y: e.Y0}, e.Normal())
	return smooth.Blend(e.kernel, d, g0, g1, scale), nil
}

// #endregion planar-fault

// #region fold

// Fold warps the previous geology sinusoidally along an axis. Elevation and
// Azimuth give the fold axis, Pitch rotates the displacement direction about
// it and Phase shifts the wave; all angles are in degrees.
type Fold struct {
	Elevation  float64
	Azimuth    float64
	Pitch      float64
	Phase      float64
	Wavelength float64
	Amplitude  float64
	core
}

// NewFold builds a fold with parameters "elevation", "azimuth", "pitch",
// "phase", "wavelength", "amplitude".
func NewFold(priors []Binding, opts ...Option) (*Fold, error) {
	e := &Fold{}
	names := []string{"elevation", "azimuth", "pitch", "phase", "wavelength", "amplitude"}
	ptrs := []*float64{&e.Elevation, &e.Azimuth, &e.Pitch, &e.Phase, &e.Wavelength, &e.Amplitude}
	if err := e.setup(KindFold, names, ptrs, priors, opts); err != nil {
		return nil, err
	}
	return e, nil
}

// Warp returns the displaced positions at which the previous geology is sampled.
func (e *Fold) Warp(points geom.Points) (geom.Points, error) {
	if e.Amplitude == 0 {
		return append(geom.Points(nil), points...), nil
	}
	if e.Wavelength == 0 {
		return nil, fmt.Errorf("%s: zero wavelength", e.kind)
	}
	n := geom.SphToXYZ(e.Elevation, e.Azimuth)
	v0, v1 := geom.HorizontalFrame(n)
	psi := geom.Radians(e.Pitch)
	v := r3.Add(r3.Scale(math.Sin(psi), v0), r3.Scale(math.Cos(psi), v1))
	phase := geom.Radians(e.Phase)

	out := make(geom.Points, len(points))
	for i, p := range points {
		s := e.Amplitude * math.Sin(2*math.Pi*r3.Dot(p, n)/e.Wavelength+phase)
		out[i] = r3.Add(p, r3.Scale(s, v))
	}
	return out, nil
}

func (e *Fold) RockProperties(points geom.Points, scale float64) ([]float64, error) {
	prev, err := e.previous()
	if err != nil {
		return nil, err
	}
	warped, err := e.Warp(points)
	if err != nil {
		return nil, err
	}
	return prev.RockProperties(warped, scale)
}

// #endregion fold

// #region factory

// New builds an event of the given kind.
func New(kind Kind, priors []Binding, opts ...Option) (Event, error) {
	var (
		e   Event
		err error
	)
	switch kind {
	case KindBasement:
		e, err = NewBasement(priors, opts...)
	case KindStratLayer:
		e, err = NewStratLayer(priors, opts...)
	case KindPlanarFault:
		e, err = NewPlanarFault(priors, opts...)
	case KindFold:
		e, err = NewFold(priors, opts...)
	default:
		return nil, &ConfigError{Event: kind, Reason: "unknown event kind"}
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// #endregion factory

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
