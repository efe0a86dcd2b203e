// Package forward turns a history into predicted gravity through a pluggable
// engine, and scores predictions against observations.
package forward

import (
	"fmt"

	"github.com/blockworlds/geohist/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// #region mesh
// Mesh supplies the cell centers a history is evaluated on and the cell
// width used as the smoothing scale.
type Mesh interface {
	CellCenters() geom.Points
	CellSize() float64
}

// RegularMesh is a cube of N^3 cells of width H, centered on the origin
// horizontally with its top face at Z0.
type RegularMesh struct {
	N  int
	H  float64
	Z0 float64

	centers geom.Points
}

// NewRegularMesh builds the cell centers once. X varies fastest, then Y,
// then depth.
func NewRegularMesh(n int, h, z0 float64) (*RegularMesh, error) {
	if n <= 0 || h <= 0 {
		return nil, fmt.Errorf("mesh needs n > 0 and h > 0, got n=%d h=%g", n, h)
	}
	m := &RegularMesh{N: n, H: h, Z0: z0}
	half := float64(n) * h / 2
	m.centers = make(geom.Points, 0, n*n*n)
	for k := 0; k < n; k++ {
		z := z0 - (float64(k)+0.5)*h
		for j := 0; j < n; j++ {
			y := -half + (float64(j)+0.5)*h
			for i := 0; i < n; i++ {
				x := -half + (float64(i)+0.5)*h
				m.centers = append(m.centers, r3.Vec{X: x, Y: y, Z: z})
			}
		}
	}
	return m, nil
}

func (m *RegularMesh) CellCenters() geom.Points { return m.centers }
func (m *RegularMesh) CellSize() float64        { return m.H }

// Extent is the side length of the cube.
func (m *RegularMesh) Extent() float64 { return float64(m.N) * m.H }

// pointMesh wraps centers received over the wire.
type pointMesh struct {
	centers geom.Points
	h       float64
}

func (m pointMesh) CellCenters() geom.Points { return m.centers }
func (m pointMesh) CellSize() float64        { return m.h }
// #endregion mesh

// #region survey
// GriddedSurvey lays nx by ny stations over an lx by ly rectangle centered on
// the origin at height z0, edges included.
func GriddedSurvey(lx, ly float64, nx, ny int, z0 float64) geom.Points {
	pts := make(geom.Points, 0, nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			pts = append(pts, r3.Vec{
				X: linspace(-lx/2, lx/2, nx, i),
				Y: linspace(-ly/2, ly/2, ny, j),
				Z: z0,
			})
		}
	}
	return pts
}

func linspace(lo, hi float64, n, i int) float64 {
	if n == 1 {
		return (lo + hi) / 2
	}
	return lo + (hi-lo)*float64(i)/float64(n-1)
}
// #endregion survey
