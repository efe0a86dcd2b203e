package event

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/blockworlds/geohist/internal/geom"
	"github.com/blockworlds/geohist/internal/prior"
	"github.com/blockworlds/geohist/internal/smooth"
)

// #region kind
// Kind names an event variant.
type Kind string

const (
	KindBasement    Kind = "Basement"
	KindStratLayer  Kind = "StratLayer"
	KindPlanarFault Kind = "PlanarFault"
	KindFold        Kind = "Fold"
)

// Kinds lists every variant in declaration order.
var Kinds = []Kind{KindBasement, KindStratLayer, KindPlanarFault, KindFold}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool { return slices.Contains(Kinds, k) }
// #endregion kind

// #region errors
var (
	// ErrConfig marks an invalid prior assignment at construction time.
	ErrConfig = errors.New("event configuration")
	// ErrNoPredecessor is returned when a transform event is evaluated
	// before it has been linked into a chain.
	ErrNoPredecessor = errors.New("event has no predecessor")
	// ErrParamCount is returned by Deserialize for a vector of the wrong length.
	ErrParamCount = errors.New("parameter count mismatch")
	// ErrUnknownParam is returned by Get and Set for undeclared names.
	ErrUnknownParam = errors.New("unknown parameter")
)

// ConfigError describes which parameter of which event is misconfigured.
type ConfigError struct {
	Event  Kind
	Param  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s: %s", e.Event, e.Reason)
	}
	return fmt.Sprintf("%s: parameter %q: %s", e.Event, e.Param, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }
// #endregion errors

// #region binding
// Binding attaches one prior to an ordered subset of an event's parameters.
// The prior's dimension must equal len(Params).
type Binding struct {
	Params []string
	Prior  prior.Prior
}

// Bind is shorthand for Binding{Params: params, Prior: p}.
func Bind(p prior.Prior, params ...string) Binding {
	return Binding{Params: params, Prior: p}
}
// #endregion binding

// #region event
// Event is one step of a geologic history. Each event owns its parameter
// values and holds a non-owning reference to the event before it.
type Event interface {
	Kind() Kind
	// ParamNames returns the declared parameter order used for serialization.
	ParamNames() []string
	NumParams() int
	Serialize() []float64
	Deserialize(v []float64) error
	Get(name string) (float64, error)
	Set(name string, value float64) error
	Params() map[string]float64
	Priors() []Binding
	LogPrior() float64
	SetToPriorDraw(rng *rand.Rand)
	Previous() Event
	SetPrevious(prev Event)
	// RockProperties returns the density at each point. scale is the width
	// of every smoothed boundary.
	RockProperties(points geom.Points, scale float64) ([]float64, error)
	String() string
}
// #endregion event

// #region options
// Option adjusts event construction.
type Option func(*options)

type options struct {
	rng       *rand.Rand
	kernel    smooth.Kernel
	overrides []override
}

type override struct {
	name  string
	value float64
}

// WithRand sets the source used for the initial prior draw.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithValue overrides a parameter after the initial prior draw.
func WithValue(name string, value float64) Option {
	return func(o *options) { o.overrides = append(o.overrides, override{name, value}) }
}

// WithKernel selects the boundary smoothing kernel (default smooth.Linear).
func WithKernel(k smooth.Kernel) Option {
	return func(o *options) { o.kernel = k }
}
// #endregion options
