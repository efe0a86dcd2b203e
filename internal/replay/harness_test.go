package replay

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/blockworlds/geohist/internal/fixture"
	"github.com/blockworlds/geohist/internal/forward"
	"github.com/blockworlds/geohist/internal/history"
	"github.com/blockworlds/geohist/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// #region helpers

func grabenHistory(t *testing.T) (*history.History, []float64) {
	t.Helper()
	f, err := fixture.Graben()
	require.NoError(t, err)
	h, err := f.Build(rand.New(rand.NewPCG(11, 13)))
	require.NoError(t, err)
	return h, f.Vector
}

func coarseModel(t *testing.T) *forward.Model {
	t.Helper()
	mesh, err := forward.NewRegularMesh(6, 2000, 0)
	require.NoError(t, err)
	return forward.NewModel(mesh, forward.GriddedSurvey(10000, 10000, 4, 4, 0), forward.PointMassEngine{}, nil)
}

func chainState(t *testing.T, id string, h *history.History, vector []float64, logPrior *float64) state.ChainState {
	t.Helper()
	st := state.ChainState{
		VersionID: id,
		Vector:    append([]float64(nil), vector...),
		Layout:    h.Layout(),
		CreatedAt: time.Now().UTC(),
	}
	if logPrior != nil {
		js, err := state.Metrics{LogPrior: state.Score(*logPrior)}.JSON()
		require.NoError(t, err)
		st.MetricsJSON = js
	}
	return st
}

// #endregion helpers

// #region replay-tests

func TestReplay_Actions(t *testing.T) {
	ctx := context.Background()
	h, vec := grabenHistory(t)
	require.NoError(t, h.Deserialize(vec))
	lp := h.LogPrior()
	wrong := lp + 1

	outside := append([]float64(nil), vec...)
	outside[9] = 0 // first fault slip, outside its uniform prior

	mismatched := chainState(t, "s4", h, vec, nil)
	mismatched.Layout = mismatched.Layout[:1]

	states := []state.ChainState{
		chainState(t, "s1", h, vec, &lp),
		chainState(t, "s2", h, vec, &wrong),
		chainState(t, "s3", h, outside, nil),
		mismatched,
	}

	r := NewReplayer(h, coarseModel(t), DefaultReplayConfig(), nil)
	results, err := r.Replay(ctx, states)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, ActionAccept, results[0].Action, results[0].Reason)
	assert.False(t, results[0].Drift)
	assert.InDelta(t, lp, results[0].LogPrior, 1e-12)
	assert.Nil(t, results[0].LogLikelihood)

	assert.Equal(t, ActionAccept, results[1].Action)
	assert.True(t, results[1].Drift)

	assert.Equal(t, ActionReject, results[2].Action)
	assert.Contains(t, results[2].Reason, "outside support")

	assert.Equal(t, ActionMismatch, results[3].Action)

	s := Summarize(results)
	assert.Equal(t, ReplaySummary{
		Total:            4,
		Accepted:         2,
		Rejected:         1,
		Mismatched:       1,
		Drifted:          1,
		BestVersionID:    "s1",
		BestLogPosterior: lp,
	}, s)
}

func TestReplay_LikelihoodPicksGeneratingState(t *testing.T) {
	ctx := context.Background()
	h, vec := grabenHistory(t)
	model := coarseModel(t)

	require.NoError(t, h.Deserialize(vec))
	truth, err := model.Run(ctx, h)
	require.NoError(t, err)

	thin := append([]float64(nil), vec...)
	thin[3] = 1500 // second layer thickness

	cfg := DefaultReplayConfig()
	cfg.Observed = truth.Gravity
	cfg.Sigma = 0.5
	r := NewReplayer(h, model, cfg, nil)
	results, err := r.Replay(ctx, []state.ChainState{
		chainState(t, "thin", h, thin, nil),
		chainState(t, "truth", h, vec, nil),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.NotNil(t, results[1].LogLikelihood)
	assert.Greater(t, *results[1].LogLikelihood, *results[0].LogLikelihood)

	s := Summarize(results)
	assert.Equal(t, "truth", s.BestVersionID)
}

func TestReplay_CancelledContext(t *testing.T) {
	h, vec := grabenHistory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewReplayer(h, coarseModel(t), DefaultReplayConfig(), nil)
	results, err := r.Replay(ctx, []state.ChainState{chainState(t, "s1", h, vec, nil)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0, s.Total)
	assert.Empty(t, s.BestVersionID)
}

// #endregion replay-tests
