package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"slices"
	"time"

	"github.com/blockworlds/geohist/internal/config"
	"github.com/blockworlds/geohist/internal/eval"
	"github.com/blockworlds/geohist/internal/fixture"
	"github.com/blockworlds/geohist/internal/forward"
	"github.com/blockworlds/geohist/internal/history"
	"github.com/blockworlds/geohist/internal/logging"
	"github.com/blockworlds/geohist/internal/state"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// #region main
func main() {
	os.Exit(realMain(os.Args[1:]))
}

// realMain returns the exit code so deferred calls, logger.Sync among them,
// run before the process exits.
func realMain(args []string) int {
	fs := flag.NewFlagSet("graben", flag.ContinueOnError)
	fixturePath := fs.String("fixture", "", "history definition JSON (default: built-in graben)")
	dbPath := fs.String("db", "", "chain-state database (overrides GEOHIST_DB)")
	engineAddr := fs.String("engine", "", "gravity engine address (overrides GEOHIST_ENGINE_ADDR)")
	seed := fs.Uint64("seed", 0, "random seed (overrides GEOHIST_SEED)")
	dryRun := fs.Bool("dry-run", false, "do not write to the database")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *engineAddr != "" {
		cfg.EngineAddr = *engineAddr
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 2
	}
	defer logger.Sync()

	if err := run(context.Background(), cfg, *fixturePath, *dryRun, logger); err != nil {
		logger.Error("graben failed", zap.Error(err))
		return 1
	}
	return 0
}
// #endregion main

// #region run
func run(ctx context.Context, cfg config.RunConfig, fixturePath string, dryRun bool, logger *zap.Logger) error {
	rng, seed := cfg.Rand()
	logger.Info("starting", zap.Uint64("seed", seed), zap.String("db", cfg.DBPath))

	f, err := fixture.Load(fixturePath)
	if err != nil {
		return err
	}
	h, err := f.Build(rng)
	if err != nil {
		return fmt.Errorf("build history: %w", err)
	}
	fmt.Println("history.pars =", h.Serialize())

	// Parameters can be redrawn or set all at once, which is what a sampler does.
	var recorded []recordedVector
	h.SetToPriorDraw(rng)
	fmt.Println("prior draw  =", h.Serialize())
	fmt.Println("log prior   =", h.LogPrior())
	recorded = append(recorded, recordedVector{logging.TriggerPriorDraw, h.Serialize()})

	if len(f.Vector) > 0 {
		if err := h.Deserialize(f.Vector); err != nil {
			return fmt.Errorf("deserialize: %w", err)
		}
		printParams(h)
		fmt.Println("log prior   =", h.LogPrior())
		recorded = append(recorded, recordedVector{logging.TriggerDeserialize, h.Serialize()})
	}

	model, closeEngine, err := cfg.NewModel(logger)
	if err != nil {
		return err
	}
	defer closeEngine()

	if err := crossSections(ctx, model, h); err != nil {
		return err
	}

	if dryRun {
		return nil
	}
	return record(ctx, cfg, h, model, recorded, logger)
}

type recordedVector struct {
	trigger string
	vector  []float64
}


// #endregion run

// #region cross-sections
// crossSections evaluates the history as it stood after each event.
func crossSections(ctx context.Context, model *forward.Model, h *history.History) error {
	fmt.Printf("%-3s  %-60s  %8s  %8s  %10s  %10s  %8s\n",
		"#", "Event", "rho min", "rho max", "gz min", "gz max", "Time")
	for i, e := range h.Events() {
		start := time.Now()
		res, err := model.RunAt(ctx, h, i)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		fmt.Printf("%-3d  %-60s  %8.3f  %8.3f  %10.4f  %10.4f  %8s\n",
			i, truncate(e.String(), 60),
			floats.Min(res.Density), floats.Max(res.Density),
			floats.Min(res.Gravity), floats.Max(res.Gravity),
			time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// printParams prints one labeled line per vector slot.
func printParams(h *history.History) {
	labels := h.ParamLabels()
	for i, v := range h.Serialize() {
		fmt.Printf("  %-28s %12.4f\n", labels[i], v)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
// #endregion cross-sections

// #region record
// record stores each vector as a new chain state and logs how it was made.
func record(ctx context.Context, cfg config.RunConfig, h *history.History, model *forward.Model, vectors []recordedVector, logger *zap.Logger) error {
	store, err := state.NewStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	harness := eval.NewEvalHarness(eval.DefaultEvalConfig())
	hash := logging.Fingerprint(h)
	mesh := model.Mesh()

	for _, rv := range vectors {
		if err := h.Deserialize(rv.vector); err != nil {
			return err
		}
		lp := h.LogPrior()
		field, err := h.RockProperties(mesh.CellCenters(), mesh.CellSize())
		if err != nil {
			return err
		}
		result := harness.Run(h, field)

		rec, err := commit(ctx, store, h, rv.vector, state.Metrics{LogPrior: state.Score(lp)})
		if err != nil {
			return err
		}

		decision := logging.DecisionAccept
		if !result.Passed {
			decision = logging.DecisionReject
		}
		entry, err := logging.NewEntry(rec.VersionID, hash, rv.trigger, decision, result.Reason, logging.ScoreRecord{
			LogPrior:   state.Score(lp),
			MinDensity: floats.Min(field),
			MaxDensity: floats.Max(field),
			NumPoints:  len(field),
		})
		if err != nil {
			return err
		}
		if err := logging.LogDecision(ctx, store.DB(), entry); err != nil {
			return err
		}
		logger.Info("stored chain state",
			zap.String("version", rec.VersionID),
			zap.String("trigger", rv.trigger),
			zap.String("decision", decision),
			zap.Bool("in_support", !math.IsInf(lp, -1)),
		)
	}
	return nil
}

// commit appends to the active chain, or starts one if the store is empty
// or holds a different layout.
func commit(ctx context.Context, store *state.Store, h *history.History, vector []float64, m state.Metrics) (state.ChainState, error) {
	parent := state.ChainState{Layout: h.Layout()}
	cur, err := store.GetCurrent(ctx)
	switch {
	case errors.Is(err, state.ErrNotFound):
	case err != nil:
		return state.ChainState{}, err
	case slices.Equal(cur.Layout, parent.Layout):
		parent = cur
	}
	next, err := state.Derive(parent, vector, m)
	if err != nil {
		return state.ChainState{}, err
	}
	return next, store.CommitState(ctx, next)
}
// #endregion record
