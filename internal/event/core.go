package event

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/blockworlds/geohist/internal/smooth"
)

// core carries the bookkeeping shared by all variants. names and ptrs form
// the name -> field table: ptrs[i] points at the variant's field for names[i].
type core struct {
	kind   Kind
	names  []string
	ptrs   []*float64
	priors []Binding
	kernel smooth.Kernel
	prev   Event
}

// #region setup
// setup validates the prior bindings against the declared names, draws every
// parameter from its prior and applies overrides.
func (c *core) setup(kind Kind, names []string, ptrs []*float64, priors []Binding, opts []Option) error {
	c.kind, c.names, c.ptrs = kind, names, ptrs

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	c.kernel = o.kernel

	if err := c.validate(priors); err != nil {
		return err
	}
	c.priors = make([]Binding, len(priors))
	for i, b := range priors {
		c.priors[i] = Binding{Params: append([]string(nil), b.Params...), Prior: b.Prior}
	}

	c.SetToPriorDraw(o.rng)
	for _, ov := range o.overrides {
		if err := c.Set(ov.name, ov.value); err != nil {
			return &ConfigError{Event: kind, Param: ov.name, Reason: "override of undeclared parameter"}
		}
	}
	return nil
}

func (c *core) validate(priors []Binding) error {
	if len(priors) == 0 {
		return &ConfigError{Event: c.kind, Reason: "no priors given"}
	}
	count := make(map[string]int, len(c.names))
	for _, b := range priors {
		if b.Prior == nil {
			return &ConfigError{Event: c.kind, Param: strings.Join(b.Params, ","), Reason: "nil prior"}
		}
		for _, p := range b.Params {
			if c.index(p) < 0 {
				return &ConfigError{Event: c.kind, Param: p, Reason: "is not a parameter of this event"}
			}
			count[p]++
		}
		if len(b.Params) != b.Prior.Ndim() {
			return &ConfigError{
				Event:  c.kind,
				Param:  strings.Join(b.Params, ","),
				Reason: fmt.Sprintf("distribution %s is %d-dimensional but covers %d parameters", b.Prior.Name(), b.Prior.Ndim(), len(b.Params)),
			}
		}
	}
	for _, n := range c.names {
		switch count[n] {
		case 0:
			return &ConfigError{Event: c.kind, Param: n, Reason: "has no prior"}
		case 1:
		default:
			return &ConfigError{Event: c.kind, Param: n, Reason: fmt.Sprintf("has %d priors, want exactly one", count[n])}
		}
	}
	return nil
}
// #endregion setup

// #region params
func (c *core) index(name string) int {
	for i, n := range c.names {
		if n == name {
			return i
		}
	}
	return -1
}

func (c *core) Kind() Kind { return c.kind }

func (c *core) ParamNames() []string { return append([]string(nil), c.names...) }

func (c *core) NumParams() int { return len(c.names) }

func (c *core) Serialize() []float64 {
	v := make([]float64, len(c.ptrs))
	for i, p := range c.ptrs {
		v[i] = *p
	}
	return v
}

func (c *core) Deserialize(v []float64) error {
	if len(v) != len(c.ptrs) {
		return fmt.Errorf("%s: got %d values, want %d: %w", c.kind, len(v), len(c.ptrs), ErrParamCount)
	}
	for i, p := range c.ptrs {
		*p = v[i]
	}
	return nil
}

func (c *core) Get(name string) (float64, error) {
	i := c.index(name)
	if i < 0 {
		return 0, fmt.Errorf("%s: %q: %w", c.kind, name, ErrUnknownParam)
	}
	return *c.ptrs[i], nil
}

func (c *core) Set(name string, value float64) error {
	i := c.index(name)
	if i < 0 {
		return fmt.Errorf("%s: %q: %w", c.kind, name, ErrUnknownParam)
	}
	*c.ptrs[i] = value
	return nil
}

func (c *core) Params() map[string]float64 {
	m := make(map[string]float64, len(c.names))
	for i, n := range c.names {
		m[n] = *c.ptrs[i]
	}
	return m
}

func (c *core) Priors() []Binding { return append([]Binding(nil), c.priors...) }
// #endregion params

// #region prior
// LogPrior sums the log-density of every binding at the current values.
func (c *core) LogPrior() float64 {
	var lp float64
	for _, b := range c.priors {
		x := make([]float64, len(b.Params))
		for j, p := range b.Params {
			x[j] = *c.ptrs[c.index(p)]
		}
		lp += b.Prior.LogDensity(x...)
	}
	return lp
}

// SetToPriorDraw replaces every parameter with an independent prior draw.
func (c *core) SetToPriorDraw(rng *rand.Rand) {
	for _, b := range c.priors {
		draw := b.Prior.Sample(rng, 1)[0]
		for j, p := range b.Params {
			*c.ptrs[c.index(p)] = draw[j]
		}
	}
}
// #endregion prior

// #region chain
func (c *core) Previous() Event        { return c.prev }
func (c *core) SetPrevious(prev Event) { c.prev = prev }

func (c *core) previous() (Event, error) {
	if c.prev == nil {
		return nil, fmt.Errorf("%s: %w", c.kind, ErrNoPredecessor)
	}
	return c.prev, nil
}
// #endregion chain

func (c *core) String() string {
	parts := make([]string, len(c.names))
	for i, n := range c.names {
		parts[i] = fmt.Sprintf("%s=%g", n, *c.ptrs[i])
	}
	return fmt.Sprintf("%s(%s)", c.kind, strings.Join(parts, ", "))
}
