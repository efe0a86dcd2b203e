// Package config reads run settings for the command-line tools from the
// environment.
package config

import (
	"fmt"
	"math/rand/v2"

	"github.com/blockworlds/geohist/internal/forward"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// #region run-config
// RunConfig holds the settings shared by the commands. Flags may override
// individual fields after Load.
type RunConfig struct {
	DBPath     string `env:"GEOHIST_DB" envDefault:"geohist.db" validate:"required"`
	EngineAddr string `env:"GEOHIST_ENGINE_ADDR" validate:"omitempty,hostname_port"`
	// Seed 0 draws a random seed.
	Seed uint64 `env:"GEOHIST_SEED" envDefault:"0"`

	MeshCells      int     `env:"GEOHIST_MESH_CELLS" envDefault:"30" validate:"min=1,max=200"`
	MeshExtent     float64 `env:"GEOHIST_MESH_EXTENT" envDefault:"10000" validate:"gt=0"`
	SurveyStations int     `env:"GEOHIST_SURVEY_STATIONS" envDefault:"20" validate:"min=1,max=500"`
	NoiseSigma     float64 `env:"GEOHIST_NOISE_SIGMA" envDefault:"0.1" validate:"gt=0"`

	LogLevel  string `env:"GEOHIST_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat string `env:"GEOHIST_LOG_FORMAT" envDefault:"console" validate:"oneof=console json"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load parses the environment and validates the result.
func Load() (RunConfig, error) {
	var cfg RunConfig
	if err := env.Parse(&cfg); err != nil {
		return RunConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// Validate checks field constraints. Call again after applying flags.
func (c RunConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// CellSize is the mesh cell width.
func (c RunConfig) CellSize() float64 {
	return c.MeshExtent / float64(c.MeshCells)
}
// #endregion run-config

// #region helpers
// Rand returns a generator seeded from Seed, or from fresh entropy when Seed
// is 0, along with the seed actually used.
func (c RunConfig) Rand() (*rand.Rand, uint64) {
	seed := c.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), seed
}

// NewLogger builds a zap logger at the configured level and format.
func (c RunConfig) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	var zc zap.Config
	if c.LogFormat == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// NewModel builds the forward model on a regular mesh with a gridded survey
// at the surface. Gravity is computed locally unless EngineAddr is set; the
// returned func closes the remote engine.
func (c RunConfig) NewModel(logger *zap.Logger) (*forward.Model, func(), error) {
	mesh, err := forward.NewRegularMesh(c.MeshCells, c.CellSize(), 0)
	if err != nil {
		return nil, nil, err
	}
	survey := forward.GriddedSurvey(c.MeshExtent, c.MeshExtent, c.SurveyStations, c.SurveyStations, 0)

	var engine forward.Engine = forward.PointMassEngine{}
	closeEngine := func() {}
	if c.EngineAddr != "" {
		g, err := forward.NewGRPCEngine(c.EngineAddr, logger)
		if err != nil {
			return nil, nil, err
		}
		engine, closeEngine = g, func() { g.Close() }
		if logger != nil {
			logger.Info("using remote gravity engine", zap.String("addr", c.EngineAddr))
		}
	}
	return forward.NewModel(mesh, survey, engine, logger), closeEngine, nil
}
// #endregion helpers
