// Package eval validates density fields produced by a history.
package eval

import (
	"fmt"
	"math"

	"github.com/blockworlds/geohist/internal/history"
	"gonum.org/v1/gonum/floats"
)

// #region eval-harness
// EvalHarness runs lightweight validation on an evaluated field.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run checks the field h produced. Every cell is a convex blend of event
// densities, so the field must also stay inside the range those densities span.
func (e *EvalHarness) Run(h *history.History, field []float64) EvalResult {
	var metrics []EvalMetric
	var failReasons []string
	fail := func(format string, args ...any) {
		failReasons = append(failReasons, fmt.Sprintf(format, args...))
	}

	// 1. Prior support
	lp := h.LogPrior()
	lpPass := !math.IsInf(lp, -1) && !math.IsNaN(lp)
	metrics = append(metrics, EvalMetric{Name: "log_prior", Value: lp, Pass: lpPass})
	if !lpPass && e.config.RequireInSupport {
		fail("log prior %v outside support", lp)
	}

	if len(field) == 0 {
		fail("empty density field")
		return result(metrics, failReasons)
	}

	// 2. Finite cells
	nonFinite := 0
	for _, v := range field {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			nonFinite++
		}
	}
	metrics = append(metrics, EvalMetric{Name: "non_finite", Value: float64(nonFinite), Pass: nonFinite == 0})
	if nonFinite > 0 {
		fail("%d non-finite cells", nonFinite)
		return result(metrics, failReasons)
	}

	// 3. Absolute bounds
	lo, hi := floats.Min(field), floats.Max(field)
	loPass, hiPass := lo >= e.config.MinDensity, hi <= e.config.MaxDensity
	metrics = append(metrics,
		EvalMetric{Name: "density_min", Value: lo, Pass: loPass},
		EvalMetric{Name: "density_max", Value: hi, Pass: hiPass},
	)
	if !loPass {
		fail("density %.4f below %.4f", lo, e.config.MinDensity)
	}
	if !hiPass {
		fail("density %.4f above %.4f", hi, e.config.MaxDensity)
	}

	// 4. Event density range
	if rlo, rhi, ok := densityRange(h); ok {
		excess := math.Max(rlo-lo, hi-rhi)
		pass := excess <= e.config.Tolerance
		metrics = append(metrics, EvalMetric{Name: "range_excess", Value: math.Max(excess, 0), Pass: pass})
		if !pass {
			fail("field [%.4f, %.4f] leaves event density range [%.4f, %.4f]", lo, hi, rlo, rhi)
		}
	}

	return result(metrics, failReasons)
}

func result(metrics []EvalMetric, failReasons []string) EvalResult {
	if len(failReasons) == 0 {
		return EvalResult{Passed: true, Metrics: metrics, Reason: "all checks passed"}
	}
	reason := fmt.Sprintf("eval failed: %s", failReasons[0])
	if len(failReasons) > 1 {
		reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
	}
	return EvalResult{Passed: false, Metrics: metrics, Reason: reason}
}

// #endregion eval-harness

// #region helpers
// densityRange spans the density parameter of every event that has one.
func densityRange(h *history.History) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, ev := range h.Events() {
		rho, err := ev.Get("density")
		if err != nil {
			continue
		}
		lo, hi, ok = math.Min(lo, rho), math.Max(hi, rho), true
	}
	return lo, hi, ok
}

// #endregion helpers
