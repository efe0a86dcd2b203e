package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// #region points

// Points is an ordered set of 3-D query positions. Evaluations treat it as
// read-only; anything that moves points returns a new slice.
type Points []r3.Vec

// Up is the world vertical axis.
var Up = r3.Vec{Z: 1}

// NewPoints builds a point set from flat (x, y, z) triples.
func NewPoints(xyz ...[3]float64) Points {
	pts := make(Points, len(xyz))
	for i, p := range xyz {
		pts[i] = r3.Vec{X: p[0], Y: p[1], Z: p[2]}
	}
	return pts
}

// Shift returns a copy of pts translated by d.
func (pts Points) Shift(d r3.Vec) Points {
	out := make(Points, len(pts))
	for i, p := range pts {
		out[i] = r3.Add(p, d)
	}
	return out
}

// Z returns the vertical coordinates.
func (pts Points) Z() []float64 {
	z := make([]float64, len(pts))
	for i, p := range pts {
		z[i] = p.Z
	}
	return z
}

// Project returns dot(p - origin, n) for every point.
func (pts Points) Project(origin, n r3.Vec) []float64 {
	d := make([]float64, len(pts))
	for i, p := range pts {
		d[i] = r3.Dot(r3.Sub(p, origin), n)
	}
	return d
}

// #endregion points

// #region spherical

// SphToXYZ converts an elevation (from horizontal, +90 = +z) and azimuth
// (counterclockwise from +x), both in degrees, to a unit vector.
func SphToXYZ(elevation, azimuth float64) r3.Vec {
	th, ph := Radians(elevation), Radians(azimuth)
	return r3.Vec{
		X: math.Cos(th) * math.Cos(ph),
		Y: math.Cos(th) * math.Sin(ph),
		Z: math.Sin(th),
	}
}

// XYZToSph is the inverse of SphToXYZ. v need not be normalized.
func XYZToSph(v r3.Vec) (elevation, azimuth float64) {
	u := r3.Unit(v)
	z := math.Max(-1, math.Min(1, u.Z))
	return Degrees(math.Asin(z)), Degrees(math.Atan2(u.Y, u.X))
}

func Radians(deg float64) float64 { return deg * math.Pi / 180 }
func Degrees(rad float64) float64 { return rad * 180 / math.Pi }

// #endregion spherical

// #region frame

// HorizontalFrame returns two unit vectors completing n to a right-handed
// orthonormal frame: v0 = unit(n × up) is horizontal, v1 = unit(v0 × n).
// A vertical n has no unique horizontal complement; +x is used for v0.
func HorizontalFrame(n r3.Vec) (v0, v1 r3.Vec) {
	n = r3.Unit(n)
	c := r3.Cross(n, Up)
	if r3.Norm(c) < 1e-12 {
		v0 = r3.Vec{X: 1}
	} else {
		v0 = r3.Unit(c)
	}
	v1 = r3.Unit(r3.Cross(v0, n))
	return v0, v1
}

// #endregion frame
