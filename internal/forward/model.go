package forward

import (
	"context"
	"fmt"
	"math"

	"github.com/blockworlds/geohist/internal/geom"
	"github.com/blockworlds/geohist/internal/history"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// #region model
// Result is one forward run.
type Result struct {
	Density []float64 // per mesh cell
	Gravity []float64 // per survey station, background corrected
}

// Model evaluates histories on a fixed mesh and survey.
type Model struct {
	mesh   Mesh
	survey geom.Points
	engine Engine
	log    *zap.Logger

	edgeMask []float64
}

// NewModel binds a mesh, survey and engine. A nil log discards output.
func NewModel(mesh Mesh, survey geom.Points, engine Engine, log *zap.Logger) *Model {
	if log == nil {
		log = zap.NewNop()
	}
	return &Model{mesh: mesh, survey: survey, engine: engine, log: log}
}

func (m *Model) Mesh() Mesh          { return m.mesh }
func (m *Model) Survey() geom.Points { return m.survey }

// Run evaluates the full history and its gravity.
func (m *Model) Run(ctx context.Context, h *history.History) (Result, error) {
	density, err := h.RockProperties(m.mesh.CellCenters(), m.mesh.CellSize())
	if err != nil {
		return Result{}, fmt.Errorf("rock properties: %w", err)
	}
	return m.gravity(ctx, density)
}

// RunAt evaluates the history as it stood after event i.
func (m *Model) RunAt(ctx context.Context, h *history.History, i int) (Result, error) {
	density, err := h.RockPropertiesAt(i, m.mesh.CellCenters(), m.mesh.CellSize())
	if err != nil {
		return Result{}, fmt.Errorf("rock properties at %d: %w", i, err)
	}
	return m.gravity(ctx, density)
}

// gravity subtracts edgeMask*mean(density): the signal of a uniform block
// the size of the mesh, which otherwise dominates near the mesh edges.
func (m *Model) gravity(ctx context.Context, density []float64) (Result, error) {
	mask, err := m.EdgeMask(ctx)
	if err != nil {
		return Result{}, err
	}
	gz, err := m.engine.Gravity(ctx, m.mesh, m.survey, density)
	if err != nil {
		return Result{}, fmt.Errorf("gravity: %w", err)
	}
	if len(gz) != len(mask) {
		return Result{}, fmt.Errorf("gravity: engine returned %d values for %d stations", len(gz), len(mask))
	}
	mean := stat.Mean(density, nil)
	floats.AddScaled(gz, -mean, mask)
	m.log.Debug("forward run",
		zap.Int("cells", len(density)),
		zap.Float64("mean_density", mean),
	)
	return Result{Density: density, Gravity: gz}, nil
}

// EdgeMask is the gravity of unit density in every cell. It is computed on
// first use and cached.
func (m *Model) EdgeMask(ctx context.Context) ([]float64, error) {
	if m.edgeMask != nil {
		return m.edgeMask, nil
	}
	n := len(m.mesh.CellCenters())
	unit := make([]float64, n)
	for i := range unit {
		unit[i] = 1
	}
	mask, err := m.engine.Gravity(ctx, m.mesh, m.survey, unit)
	if err != nil {
		return nil, fmt.Errorf("edge mask: %w", err)
	}
	m.log.Debug("edge mask computed", zap.Int("stations", len(mask)))
	m.edgeMask = mask
	return mask, nil
}
// #endregion model

// #region likelihood
// Residual returns observed - predicted.
func Residual(observed, predicted []float64) ([]float64, error) {
	if len(observed) != len(predicted) {
		return nil, fmt.Errorf("residual: %d observed vs %d predicted", len(observed), len(predicted))
	}
	r := make([]float64, len(observed))
	floats.SubTo(r, observed, predicted)
	return r, nil
}

// GaussianLogLikelihood scores predicted against observed with independent
// Gaussian noise of standard deviation sigma.
func GaussianLogLikelihood(observed, predicted []float64, sigma float64) (float64, error) {
	if sigma <= 0 || math.IsNaN(sigma) {
		return 0, fmt.Errorf("log likelihood: sigma must be positive, got %g", sigma)
	}
	r, err := Residual(observed, predicted)
	if err != nil {
		return 0, err
	}
	chi := floats.Norm(r, 2) / sigma
	n := float64(len(r))
	return -0.5*chi*chi - n*(math.Log(sigma)+0.5*math.Log(2*math.Pi)), nil
}

// RMS is the root-mean-square of a residual.
func RMS(r []float64) float64 {
	if len(r) == 0 {
		return 0
	}
	return floats.Norm(r, 2) / math.Sqrt(float64(len(r)))
}
// #endregion likelihood
