// Package replay re-scores stored chain states against a history definition.
package replay

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/blockworlds/geohist/internal/eval"
	"github.com/blockworlds/geohist/internal/forward"
	"github.com/blockworlds/geohist/internal/history"
	"github.com/blockworlds/geohist/internal/state"
	"go.uber.org/zap"
)

// #region types
// Action values for a replayed state.
const (
	ActionAccept   = "accept"
	ActionReject   = "reject"
	ActionMismatch = "mismatch"
)

// ReplayConfig bundles what a replay needs besides the states themselves.
type ReplayConfig struct {
	EvalConfig eval.EvalConfig
	// Observed, when set, is scored against each state's predicted gravity.
	Observed []float64
	Sigma    float64
	// LogPriorTolerance bounds the allowed drift from the stored log-prior.
	LogPriorTolerance float64
}

// DefaultReplayConfig returns defaults with no observations.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		EvalConfig:        eval.DefaultEvalConfig(),
		Sigma:             0.1,
		LogPriorTolerance: 1e-9,
	}
}

// ReplayResult captures the outcome of replaying one stored state.
type ReplayResult struct {
	VersionID string
	Action    string
	Reason    string

	LogPrior      float64
	LogLikelihood *float64
	// Drift is set when the stored log-prior disagrees with the recomputed one.
	Drift bool

	EvalResult *eval.EvalResult
	Gravity    []float64
}

// LogPosterior is LogPrior plus LogLikelihood when one was computed.
func (r ReplayResult) LogPosterior() float64 {
	if r.LogLikelihood == nil {
		return r.LogPrior
	}
	return r.LogPrior + *r.LogLikelihood
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	Total      int
	Accepted   int
	Rejected   int
	Mismatched int
	Drifted    int

	BestVersionID    string
	BestLogPosterior float64
}

// #endregion types

// #region replay
// Replayer runs stored states through one history and forward model.
type Replayer struct {
	history *history.History
	model   *forward.Model
	config  ReplayConfig
	eval    *eval.EvalHarness
	log     *zap.Logger
}

// NewReplayer binds a history and model. A nil log discards output.
func NewReplayer(h *history.History, model *forward.Model, config ReplayConfig, log *zap.Logger) *Replayer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Replayer{
		history: h,
		model:   model,
		config:  config,
		eval:    eval.NewEvalHarness(config.EvalConfig),
		log:     log,
	}
}

// Replay deserializes each state into the history, then recomputes its
// log-prior, density field and gravity: layout check -> log-prior -> forward
// -> eval -> likelihood. The history is left holding the last state.
func (r *Replayer) Replay(ctx context.Context, states []state.ChainState) ([]ReplayResult, error) {
	results := make([]ReplayResult, 0, len(states))
	layout := r.history.Layout()

	for _, st := range states {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := ReplayResult{VersionID: st.VersionID}

		// 1. Layout
		if !slices.Equal(st.Layout, layout) {
			res.Action, res.Reason = ActionMismatch, "stored layout does not match history"
			results = append(results, res)
			continue
		}
		if err := r.history.Deserialize(st.Vector); err != nil {
			res.Action, res.Reason = ActionMismatch, err.Error()
			results = append(results, res)
			continue
		}

		// 2. Log-prior, compared with what was stored
		res.LogPrior = r.history.LogPrior()
		if m, err := st.Metrics(); err == nil && st.MetricsJSON != "" {
			res.Drift = !sameScore(float64(m.LogPrior), res.LogPrior, r.config.LogPriorTolerance)
		}

		// 3. Forward
		fwd, err := r.model.Run(ctx, r.history)
		if err != nil {
			return results, fmt.Errorf("replay %s: %w", st.VersionID, err)
		}
		res.Gravity = fwd.Gravity

		// 4. Eval
		ev := r.eval.Run(r.history, fwd.Density)
		res.EvalResult = &ev
		if !ev.Passed {
			res.Action, res.Reason = ActionReject, ev.Reason
			results = append(results, res)
			r.log.Debug("state rejected", zap.String("version", st.VersionID), zap.String("reason", ev.Reason))
			continue
		}

		// 5. Likelihood
		if r.config.Observed != nil {
			ll, err := forward.GaussianLogLikelihood(r.config.Observed, fwd.Gravity, r.config.Sigma)
			if err != nil {
				return results, fmt.Errorf("replay %s: %w", st.VersionID, err)
			}
			res.LogLikelihood = &ll
		}
		res.Action, res.Reason = ActionAccept, ev.Reason
		results = append(results, res)
		r.log.Debug("state replayed",
			zap.String("version", st.VersionID),
			zap.Float64("log_prior", res.LogPrior),
			zap.Bool("drift", res.Drift),
		)
	}
	return results, nil
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{Total: len(results), BestLogPosterior: math.Inf(-1)}
	for _, r := range results {
		switch r.Action {
		case ActionAccept:
			s.Accepted++
			if lp := r.LogPosterior(); s.BestVersionID == "" || lp > s.BestLogPosterior {
				s.BestVersionID, s.BestLogPosterior = r.VersionID, lp
			}
		case ActionReject:
			s.Rejected++
		case ActionMismatch:
			s.Mismatched++
		}
		if r.Drift {
			s.Drifted++
		}
	}
	return s
}

// #endregion replay

// #region helpers
func sameScore(a, b, tol float64) bool {
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}
	return math.Abs(a-b) <= tol*math.Max(1, math.Abs(b))
}

// #endregion helpers
