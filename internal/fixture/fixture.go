// Package fixture loads geologic history definitions from JSON.
package fixture

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/blockworlds/geohist/internal/event"
	"github.com/blockworlds/geohist/internal/history"
	"github.com/blockworlds/geohist/internal/prior"
	"github.com/blockworlds/geohist/internal/smooth"
	"github.com/go-playground/validator/v10"
)

// #region fixture-types

// Fixture is the top-level JSON structure of a history definition.
type Fixture struct {
	Description string         `json:"description"`
	Kernel      string         `json:"kernel,omitempty" validate:"omitempty,oneof=linear erf tanh"`
	Events      []FixtureEvent `json:"events" validate:"required,min=1,dive"`
	// Vector optionally fixes every parameter after the prior draw.
	Vector []float64 `json:"vector,omitempty"`
}

// FixtureEvent declares one event and its priors.
type FixtureEvent struct {
	Kind   string             `json:"kind" validate:"required,event_kind"`
	Priors []FixturePrior     `json:"priors" validate:"required,min=1,dive"`
	Values map[string]float64 `json:"values,omitempty"`
}

// FixturePrior binds a distribution to one or two parameters.
type FixturePrior struct {
	Params     []string `json:"params" validate:"required,min=1,max=2,dive,required"`
	Dist       string   `json:"dist" validate:"required,oneof=gaussian uniform vmf"`
	Mean       float64  `json:"mean,omitempty"`
	Std        float64  `json:"std,omitempty"`
	Width      float64  `json:"width,omitempty"`
	Elevation0 float64  `json:"elevation0,omitempty"`
	Azimuth0   float64  `json:"azimuth0,omitempty"`
	Kappa      float64  `json:"kappa,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.RegisterValidation("event_kind", func(fl validator.FieldLevel) bool {
		return event.Kind(fl.Field().String()).Valid()
	})
	if err != nil {
		panic(fmt.Sprintf("register event_kind: %v", err))
	}
	return v
}

//go:embed graben.json
var grabenJSON []byte

// Graben returns the built-in graben definition: basement, two layers, two
// opposing normal faults and a fold.
func Graben() (*Fixture, error) {
	return Parse(grabenJSON)
}

// Load returns the fixture at path, or the built-in graben when path is empty.
func Load(path string) (*Fixture, error) {
	if path == "" {
		return Graben()
	}
	return LoadFixture(path)
}

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a fixture.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("validate fixture: %w", err)
	}
	return &f, nil
}

// #endregion fixture-loader

// #region build

// Build constructs the history, drawing initial values from rng, then
// applying per-event values and finally the fixed vector if present.
func (f *Fixture) Build(rng *rand.Rand) (*history.History, error) {
	kernel, err := smooth.ParseKernel(f.Kernel)
	if err != nil {
		return nil, err
	}
	h := history.New()
	for i, fe := range f.Events {
		priors := make([]event.Binding, len(fe.Priors))
		for j, fp := range fe.Priors {
			p, err := fp.ToPrior()
			if err != nil {
				return nil, fmt.Errorf("event %d (%s) prior %d: %w", i, fe.Kind, j, err)
			}
			priors[j] = event.Bind(p, fp.Params...)
		}
		opts := []event.Option{event.WithRand(rng), event.WithKernel(kernel)}
		for name, v := range fe.Values {
			opts = append(opts, event.WithValue(name, v))
		}
		e, err := event.New(event.Kind(fe.Kind), priors, opts...)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if err := h.Append(e); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}
	if len(f.Vector) > 0 {
		if err := h.Deserialize(f.Vector); err != nil {
			return nil, fmt.Errorf("fixture vector: %w", err)
		}
	}
	return h, nil
}

// ToPrior converts the declaration to a distribution.
func (fp *FixturePrior) ToPrior() (prior.Prior, error) {
	switch fp.Dist {
	case "gaussian":
		return prior.NewGaussian(fp.Mean, fp.Std)
	case "uniform":
		return prior.NewUniform(fp.Mean, fp.Width)
	case "vmf":
		return prior.NewVonMisesFisher(fp.Elevation0, fp.Azimuth0, fp.Kappa)
	}
	return nil, fmt.Errorf("unknown distribution %q", fp.Dist)
}

// #endregion build
