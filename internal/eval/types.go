package eval

// #region eval-config
// EvalConfig holds thresholds for validating an evaluated density field.
type EvalConfig struct {
	MinDensity       float64 // reject if any cell is below this
	MaxDensity       float64 // reject if any cell is above this
	RequireInSupport bool    // reject if the log-prior is -Inf
	Tolerance        float64 // slack for the event density range check
}

// DefaultEvalConfig returns bounds that cover crustal rock densities in g/cc.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MinDensity:       0.0,
		MaxDensity:       5.0,
		RequireInSupport: true,
		Tolerance:        1e-9,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of field validation.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// Metric returns the named metric and whether it was recorded.
func (r EvalResult) Metric(name string) (EvalMetric, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return EvalMetric{}, false
}

// #endregion eval-result
