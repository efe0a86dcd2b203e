// Package history composes geologic events into a single density model and
// manages the flat parameter vector a sampler works with.
package history

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/blockworlds/geohist/internal/event"
	"github.com/blockworlds/geohist/internal/geom"
)

// #region errors
var (
	// ErrChainStructure is returned when an append would break the
	// basement-first rule, or when an empty history is evaluated.
	ErrChainStructure = errors.New("invalid event chain")
	// ErrLength marks a parameter vector whose length does not match the chain.
	ErrLength = errors.New("parameter vector length mismatch")
)

// LengthError reports the expected and actual vector lengths.
type LengthError struct {
	Want int
	Got  int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("parameter vector has %d values, history needs %d", e.Got, e.Want)
}

func (e *LengthError) Is(target error) bool { return target == ErrLength }
// #endregion errors

// #region history
// History is an append-only chain of events. It owns its events; each event
// only references its predecessor.
type History struct {
	events []event.Event
}

// New returns an empty history.
func New() *History {
	return &History{}
}

// Build appends each event in order.
func Build(events ...event.Event) (*History, error) {
	h := New()
	for _, e := range events {
		if err := h.Append(e); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Append links e to the current last event and adds it to the chain. The
// first event must be a Basement and no later event may be one.
func (h *History) Append(e event.Event) error {
	if e == nil {
		return fmt.Errorf("append nil event: %w", ErrChainStructure)
	}
	isBasement := e.Kind() == event.KindBasement
	if len(h.events) == 0 {
		if !isBasement {
			return fmt.Errorf("first event must be %s, got %s: %w", event.KindBasement, e.Kind(), ErrChainStructure)
		}
		e.SetPrevious(nil)
	} else {
		if isBasement {
			return fmt.Errorf("%s can only start a history (event %d): %w", event.KindBasement, len(h.events), ErrChainStructure)
		}
		e.SetPrevious(h.events[len(h.events)-1])
	}
	h.events = append(h.events, e)
	return nil
}

// Len returns the number of events.
func (h *History) Len() int { return len(h.events) }

// Events returns the chain in order. The slice is a copy; the events are not.
func (h *History) Events() []event.Event {
	return append([]event.Event(nil), h.events...)
}

// Last returns the final event, or nil for an empty history.
func (h *History) Last() event.Event {
	if len(h.events) == 0 {
		return nil
	}
	return h.events[len(h.events)-1]
}
// #endregion history

// #region serialization
// NumParams is the length of the serialization vector.
func (h *History) NumParams() int {
	n := 0
	for _, e := range h.events {
		n += e.NumParams()
	}
	return n
}

// Serialize concatenates every event's parameters in chain order.
func (h *History) Serialize() []float64 {
	v := make([]float64, 0, h.NumParams())
	for _, e := range h.events {
		v = append(v, e.Serialize()...)
	}
	return v
}

// Deserialize splits v into per-event chunks and assigns them in chain
// order. On a length mismatch nothing is modified.
func (h *History) Deserialize(v []float64) error {
	if want := h.NumParams(); len(v) != want {
		return &LengthError{Want: want, Got: len(v)}
	}
	for _, e := range h.events {
		n := e.NumParams()
		if err := e.Deserialize(v[:n]); err != nil {
			return err
		}
		v = v[n:]
	}
	return nil
}

// LayoutEntry describes one event's slot in the serialization vector.
type LayoutEntry struct {
	Kind      event.Kind `json:"kind"`
	NumParams int        `json:"num_params"`
}

// Layout describes the vector structure so it can be tracked alongside
// stored vectors, which carry no metadata of their own.
func (h *History) Layout() []LayoutEntry {
	out := make([]LayoutEntry, len(h.events))
	for i, e := range h.events {
		out[i] = LayoutEntry{Kind: e.Kind(), NumParams: e.NumParams()}
	}
	return out
}

// ParamLabels names every vector slot as "<index>.<kind>.<param>".
func (h *History) ParamLabels() []string {
	labels := make([]string, 0, h.NumParams())
	for i, e := range h.events {
		for _, n := range e.ParamNames() {
			labels = append(labels, fmt.Sprintf("%d.%s.%s", i, e.Kind(), n))
		}
	}
	return labels
}
// #endregion serialization

// #region evaluation
// RockProperties evaluates the density of the full history at each point.
func (h *History) RockProperties(points geom.Points, scale float64) ([]float64, error) {
	last := h.Last()
	if last == nil {
		return nil, fmt.Errorf("evaluate empty history: %w", ErrChainStructure)
	}
	return last.RockProperties(points, scale)
}

// RockPropertiesAt evaluates the history truncated after event i, so the
// geology can be inspected as it stood after each event.
func (h *History) RockPropertiesAt(i int, points geom.Points, scale float64) ([]float64, error) {
	if i < 0 || i >= len(h.events) {
		return nil, fmt.Errorf("event index %d out of range [0, %d): %w", i, len(h.events), ErrChainStructure)
	}
	return h.events[i].RockProperties(points, scale)
}

// LogPrior sums every event's log-prior. Any parameter outside its prior's
// support makes the result -Inf.
func (h *History) LogPrior() float64 {
	var lp float64
	for _, e := range h.events {
		lp += e.LogPrior()
	}
	return lp
}

// SetToPriorDraw redraws every event's parameters independently.
func (h *History) SetToPriorDraw(rng *rand.Rand) {
	for _, e := range h.events {
		e.SetToPriorDraw(rng)
	}
}
// #endregion evaluation

func (h *History) String() string {
	parts := make([]string, len(h.events))
	for i, e := range h.events {
		parts[i] = e.String()
	}
	return "History[" + strings.Join(parts, " -> ") + "]"
}
