package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"

	"github.com/blockworlds/geohist/internal/config"
	"github.com/blockworlds/geohist/internal/fixture"
	"github.com/blockworlds/geohist/internal/forward"
	"github.com/blockworlds/geohist/internal/history"
	"github.com/blockworlds/geohist/internal/logging"
	"github.com/blockworlds/geohist/internal/replay"
	"github.com/blockworlds/geohist/internal/state"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"
)

// #region main

func main() {
	os.Exit(realMain(os.Args[1:]))
}

// realMain returns the exit code so deferred calls, logger.Sync among them,
// run before the process exits.
func realMain(args []string) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	dbPath := fs.String("db", "", "chain-state database (overrides GEOHIST_DB)")
	fixturePath := fs.String("fixture", "", "history definition JSON (default: built-in graben)")
	version := fs.String("version", "", "replay the lineage ending at this version (default: active state)")
	all := fs.Bool("all", false, "replay every stored version instead of one lineage")
	observedPath := fs.String("observed", "", "JSON array of observed gz values, one per station")
	synthetic := fs.Bool("synthetic", false, "score against gravity of the fixture vector plus noise")
	logResults := fs.Bool("log", false, "write a replay provenance row per state")
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
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	if *observedPath != "" && *synthetic {
		fmt.Fprintln(os.Stderr, "usage: replay [--db path] [--fixture path] [--version id | --all] [--observed path | --synthetic] [--log]")
		return 2
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 2
	}
	defer logger.Sync()

	opts := options{
		fixturePath:  *fixturePath,
		version:      *version,
		all:          *all,
		observedPath: *observedPath,
		synthetic:    *synthetic,
		log:          *logResults,
	}
	code, err := run(context.Background(), cfg, opts, logger)
	if err != nil {
		logger.Error("replay failed", zap.Error(err))
	}
	return code
}

// #endregion main

// #region run

type options struct {
	fixturePath  string
	version      string
	all          bool
	observedPath string
	synthetic    bool
	log          bool
}

// run returns 0 when every state was accepted, 1 otherwise and 2 on error.
func run(ctx context.Context, cfg config.RunConfig, opts options, logger *zap.Logger) (int, error) {
	rng, seed := cfg.Rand()

	f, err := fixture.Load(opts.fixturePath)
	if err != nil {
		return 2, err
	}
	h, err := f.Build(rng)
	if err != nil {
		return 2, fmt.Errorf("build history: %w", err)
	}

	model, closeEngine, err := cfg.NewModel(logger)
	if err != nil {
		return 2, err
	}
	defer closeEngine()

	store, err := state.NewStore(cfg.DBPath)
	if err != nil {
		return 2, err
	}
	defer store.Close()

	states, err := loadStates(ctx, store, opts)
	if err != nil {
		return 2, err
	}
	if len(states) == 0 {
		fmt.Fprintln(os.Stderr, "no versions found")
		return 0, nil
	}

	rc := replay.DefaultReplayConfig()
	rc.Sigma = cfg.NoiseSigma
	switch {
	case opts.observedPath != "":
		if rc.Observed, err = readObserved(opts.observedPath); err != nil {
			return 2, err
		}
	case opts.synthetic:
		if rc.Observed, err = syntheticData(ctx, h, f.Vector, model, cfg.NoiseSigma, seed); err != nil {
			return 2, err
		}
	}

	results, err := replay.NewReplayer(h, model, rc, logger).Replay(ctx, states)
	if err != nil {
		return 2, err
	}
	printResults(results)

	if opts.log {
		if err := logReplay(ctx, store, h, results); err != nil {
			return 2, err
		}
	}

	sum := replay.Summarize(results)
	printSummary(sum)
	if sum.Accepted != sum.Total {
		return 1, nil
	}
	return 0, nil
}



// loadStates picks the states to replay, oldest first.
func loadStates(ctx context.Context, store *state.Store, opts options) ([]state.ChainState, error) {
	if opts.all {
		versions, err := store.ListVersions(ctx, -1)
		if err != nil {
			return nil, err
		}
		slices.Reverse(versions)
		return versions, nil
	}
	id := opts.version
	if id == "" {
		cur, err := store.GetCurrent(ctx)
		if errors.Is(err, state.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		id = cur.VersionID
	}
	return store.Lineage(ctx, id)
}

func readObserved(path string) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read observed: %w", err)
	}
	var gz []float64
	if err := json.Unmarshal(data, &gz); err != nil {
		return nil, fmt.Errorf("parse observed: %w", err)
	}
	return gz, nil
}

// syntheticData runs the model at vector and adds N(0, sigma) noise. The
// history is restored to its previous vector afterwards.
func syntheticData(ctx context.Context, h *history.History, vector []float64, model *forward.Model, sigma float64, seed uint64) ([]float64, error) {
	if len(vector) == 0 {
		return nil, errors.New("synthetic data needs a fixture vector")
	}
	saved := h.Serialize()
	defer h.Deserialize(saved)

	if err := h.Deserialize(vector); err != nil {
		return nil, err
	}
	res, err := model.Run(ctx, h)
	if err != nil {
		return nil, err
	}
	noise := distuv.Normal{Mu: 0, Sigma: sigma, Src: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
	gz := make([]float64, len(res.Gravity))
	for i, g := range res.Gravity {
		gz[i] = g + noise.Rand()
	}
	return gz, nil
}

func logReplay(ctx context.Context, store *state.Store, h *history.History, results []replay.ReplayResult) error {
	hash := logging.Fingerprint(h)
	for _, r := range results {
		decision := logging.DecisionAccept
		if r.Action != replay.ActionAccept {
			decision = logging.DecisionReject
		}
		rec := logging.ScoreRecord{LogPrior: state.Score(r.LogPrior)}
		if r.LogLikelihood != nil {
			rec.LogLikelihood = state.Score(*r.LogLikelihood).Ptr()
		}
		if r.EvalResult != nil {
			if m, ok := r.EvalResult.Metric("density_min"); ok {
				rec.MinDensity = m.Value
			}
			if m, ok := r.EvalResult.Metric("density_max"); ok {
				rec.MaxDensity = m.Value
			}
		}
		entry, err := logging.NewEntry(r.VersionID, hash, logging.TriggerReplay, decision, r.Reason, rec)
		if err != nil {
			return err
		}
		if err := logging.LogDecision(ctx, store.DB(), entry); err != nil {
			return err
		}
	}
	return nil
}

// #endregion run

// #region output

func printResults(results []replay.ReplayResult) {
	fmt.Printf("%-10s  %-8s  %14s  %14s  %5s  %s\n", "Version", "Action", "Log Prior", "Log Lik", "Drift", "Reason")
	for _, r := range results {
		ll := "-"
		if r.LogLikelihood != nil {
			ll = fmt.Sprintf("%.4f", *r.LogLikelihood)
		}
		drift := ""
		if r.Drift {
			drift = "yes"
		}
		fmt.Printf("%-10s  %-8s  %14.4f  %14s  %5s  %s\n", shortID(r.VersionID), r.Action, r.LogPrior, ll, drift, r.Reason)
	}
}

func printSummary(s replay.ReplaySummary) {
	fmt.Printf("\n=== Replay Summary ===\n")
	fmt.Printf("Total:       %d\n", s.Total)
	fmt.Printf("Accepted:    %d\n", s.Accepted)
	fmt.Printf("Rejected:    %d\n", s.Rejected)
	fmt.Printf("Mismatched:  %d\n", s.Mismatched)
	fmt.Printf("Drifted:     %d\n", s.Drifted)
	if s.BestVersionID != "" {
		fmt.Printf("Best:        %s (log posterior %.4f)\n", shortID(s.BestVersionID), s.BestLogPosterior)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
