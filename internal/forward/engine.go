package forward

import (
	"context"
	"fmt"

	"github.com/blockworlds/geohist/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// #region engine
// Engine computes the vertical gravity anomaly at each survey station for a
// density value per mesh cell.
type Engine interface {
	Gravity(ctx context.Context, mesh Mesh, survey geom.Points, density []float64) ([]float64, error)
}
// #endregion engine

// #region point-mass
const (
	gravConst = 6.674e-11 // m^3 kg^-1 s^-2
	gccToSI   = 1000.0    // g/cc -> kg/m^3
	siToMGal  = 1e5       // m/s^2 -> mGal
)

// PointMassEngine treats every cell as a point mass at its center. It is
// exact far from the mesh and good enough for stations above the top face.
type PointMassEngine struct{}

// Gravity returns gz in mGal, positive downward, for densities in g/cc.
func (PointMassEngine) Gravity(ctx context.Context, mesh Mesh, survey geom.Points, density []float64) ([]float64, error) {
	centers := mesh.CellCenters()
	if len(density) != len(centers) {
		return nil, fmt.Errorf("point mass: %d densities for %d cells", len(density), len(centers))
	}
	h := mesh.CellSize()
	vol := h * h * h
	gz := make([]float64, len(survey))
	for i, s := range survey {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var sum float64
		for j, c := range centers {
			d := r3.Sub(s, c)
			r := r3.Norm(d)
			if r == 0 {
				continue
			}
			sum += density[j] * d.Z / (r * r * r)
		}
		gz[i] = gravConst * gccToSI * vol * sum * siToMGal
	}
	return gz, nil
}
// #endregion point-mass
